package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"solver-bench/internal/config"
	"solver-bench/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	resultsCollection = "results"
	runsCollection    = "benchmark_runs"
)

// MongoMirror 把结果表镜像到 MongoDB，每个三元组一个文档
type MongoMirror struct {
	results *mongo.Collection
	runs    *mongo.Collection
	timeout time.Duration
}

// NewMongoMirror 连接并 ping，返回的 cleanup 负责断开连接
func NewMongoMirror(parent context.Context, cfg config.MongoConfig) (*MongoMirror, func(), error) {
	timeout := cfg.Timeout()
	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, func() {}, fmt.Errorf("连接 MongoDB 失败: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, func() {}, fmt.Errorf("MongoDB ping 失败: %w", err)
	}

	database := client.Database(cfg.Database)
	m := &MongoMirror{
		results: database.Collection(resultsCollection),
		runs:    database.Collection(runsCollection),
		timeout: timeout,
	}
	if err := m.ensureIndexes(parent); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, func() {}, err
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			log.Printf("[mongodb] 断开连接失败: %v", err)
		}
	}
	log.Printf("[mongodb] 已连接 %s", cfg.Database)
	return m, cleanup, nil
}

func (m *MongoMirror) ensureIndexes(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, m.timeout)
	defer cancel()
	_, err := m.results.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "problem", Value: 1},
			{Key: "solver", Value: 1},
			{Key: "settings", Value: 1},
		},
		Options: options.Index().SetName("triple_unique").SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("创建 MongoDB 索引失败: %w", err)
	}
	return nil
}

func tripleFilter(rec model.ResultRecord) bson.D {
	return bson.D{
		{Key: "problem", Value: rec.Problem},
		{Key: "solver", Value: rec.Solver},
		{Key: "settings", Value: rec.Settings},
	}
}

// SyncResults 每条记录整体 replace（upsert）
func (m *MongoMirror) SyncResults(parent context.Context, records []model.ResultRecord) error {
	if len(records) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(records))
	for _, rec := range records {
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(tripleFilter(rec)).
			SetReplacement(rec).
			SetUpsert(true))
	}

	ctx, cancel := context.WithTimeout(parent, 6*m.timeout)
	defer cancel()
	opts := options.BulkWrite().SetOrdered(false)
	if _, err := m.results.BulkWrite(ctx, writes, opts); err != nil {
		return fmt.Errorf("MongoDB BulkWrite 失败: %w", err)
	}
	return nil
}

func (m *MongoMirror) RecordRun(parent context.Context, run *model.BenchmarkRun) error {
	ctx, cancel := context.WithTimeout(parent, m.timeout)
	defer cancel()
	if _, err := m.runs.InsertOne(ctx, run); err != nil {
		return fmt.Errorf("MongoDB 保存 run 记录失败: %w", err)
	}
	return nil
}
