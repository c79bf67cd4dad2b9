package model

import (
	"time"

	"gorm.io/gorm"
)

// BenchmarkRun 每次 run 命令的元数据（过滤条件、调用次数、耗时）
type BenchmarkRun struct {
	ID        uint           `gorm:"primarykey" json:"id" bson:"-"`
	CreatedAt time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" bson:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-" bson:"-"`

	TestSet string `gorm:"type:varchar(100);not null;index" json:"test_set" bson:"test_set"`
	// 过滤条件，空字符串表示不过滤
	OnlyProblem     string `gorm:"type:varchar(191)" json:"only_problem" bson:"only_problem"`
	OnlySolver      string `gorm:"type:varchar(64)" json:"only_solver" bson:"only_solver"`
	OnlySettings    string `gorm:"type:varchar(64)" json:"only_settings" bson:"only_settings"`
	Rerun           bool   `json:"rerun" bson:"rerun"`
	IncludeTimeouts bool   `json:"include_timeouts" bson:"include_timeouts"`

	SolverCalls   int       `json:"solver_calls" bson:"solver_calls"`
	IssueSkips    int       `json:"issue_skips" bson:"issue_skips"`
	TimeoutSkips  int       `json:"timeout_skips" bson:"timeout_skips"`
	KeptResults   int       `json:"kept_results" bson:"kept_results"`
	StartedAt     time.Time `json:"started_at" bson:"started_at"`
	DurationSec   float64   `json:"duration_sec" bson:"duration_sec"`
	ResultsPath   string    `gorm:"type:varchar(500)" json:"results_path" bson:"results_path"`
	ResultsRowCnt int       `json:"results_rows" bson:"results_rows"`
	Error         string    `gorm:"type:text" json:"error,omitempty" bson:"error,omitempty"`
}
