package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Benchmark BenchmarkConfig `yaml:"benchmark"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig MySQL 结果镜像（可选，enabled=false 时只写 CSV）
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Charset  string `yaml:"charset"`
}

// MongoConfig MongoDB 结果镜像（可选）
type MongoConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type BenchmarkConfig struct {
	// 测试集定义文件（yaml）
	TestSet string `yaml:"test_set"`
	// 结果文件（csv），为空时默认放在 results/<测试集名>.csv
	ResultsPath string `yaml:"results_path"`
	// 报告输出路径，为空时与结果文件同目录、同名 .md
	ReportPath string `yaml:"report_path"`
	// 本机已安装的求解器（显式传入，不做环境探测）
	AvailableSolvers []string `yaml:"available_solvers"`
	// 求解命令：<command> <solver> <problem path>，选项以 JSON 写入 stdin
	SolverCommand string `yaml:"solver_command"`
	// 远程求解服务地址，非空时替代 solver_command
	SolverURL    string  `yaml:"solver_url"`
	SolverAPIKey string  `yaml:"solver_api_key"`
	// 远程求解单次请求超时（秒），0 表示不限制
	SolverTimeoutSec float64 `yaml:"solver_timeout_sec"`
	// 子进程强制结束时间（秒），0 表示不强制
	KillAfterSec float64 `yaml:"kill_after_sec"`
	// 结果落盘间隔（秒）；0 表示每次求解后都写
	CheckpointSec *float64 `yaml:"checkpoint_sec"`
	Author        string   `yaml:"author"`
	Verbose       bool     `yaml:"verbose"`
}

// CheckpointInterval 落盘间隔，未配置时默认 10 秒
func (b BenchmarkConfig) CheckpointInterval() time.Duration {
	if b.CheckpointSec == nil {
		return 10 * time.Second
	}
	if *b.CheckpointSec <= 0 {
		return 0
	}
	return time.Duration(*b.CheckpointSec * float64(time.Second))
}

func (b BenchmarkConfig) KillAfter() time.Duration {
	if b.KillAfterSec <= 0 {
		return 0
	}
	return time.Duration(b.KillAfterSec * float64(time.Second))
}

func (b BenchmarkConfig) SolverTimeout() time.Duration {
	if b.SolverTimeoutSec <= 0 {
		return 0
	}
	return time.Duration(b.SolverTimeoutSec * float64(time.Second))
}

func (m MongoConfig) Timeout() time.Duration {
	if m.TimeoutSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(m.TimeoutSec) * time.Second
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "solver_bench"
	}
}
