package db

import (
	"context"
	"fmt"
	"log"

	"solver-bench/internal/config"
	"solver-bench/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var DB *gorm.DB

// 每批 upsert 的行数
const upsertBatchSize = 500

func InitDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DBName,
		cfg.Database.Charset,
	)

	conn, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("连接数据库失败: %w", err)
	}
	if err := Migrate(conn); err != nil {
		return err
	}
	DB = conn

	log.Println("数据库初始化成功")
	return nil
}

// Migrate 自动迁移结果表与 run 记录表
func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&model.ResultRecord{},
		&model.BenchmarkRun{},
	); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	return nil
}

// GormMirror 把结果表镜像到 SQL 数据库，三元组为复合主键
type GormMirror struct {
	db *gorm.DB
}

func NewGormMirror(conn *gorm.DB) *GormMirror {
	return &GormMirror{db: conn}
}

// SyncResults 按主键 upsert 全部记录
func (m *GormMirror) SyncResults(ctx context.Context, records []model.ResultRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := m.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(records, upsertBatchSize).Error
	if err != nil {
		return fmt.Errorf("同步结果到数据库失败: %w", err)
	}
	return nil
}

func (m *GormMirror) RecordRun(ctx context.Context, run *model.BenchmarkRun) error {
	if err := m.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("保存 run 记录失败: %w", err)
	}
	return nil
}

// ListRuns 最近的 run 记录，按时间倒序
func ListRuns(ctx context.Context, conn *gorm.DB, testSet string, limit int) ([]model.BenchmarkRun, error) {
	var runs []model.BenchmarkRun
	query := conn.WithContext(ctx).Model(&model.BenchmarkRun{})
	if testSet != "" {
		query = query.Where("test_set = ?", testSet)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Order("started_at DESC").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("查询 run 记录失败: %w", err)
	}
	return runs, nil
}
