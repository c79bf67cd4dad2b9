package model

// ResultRecord 一次 (problem, solver, settings) 求解的结果，三元组唯一
type ResultRecord struct {
	Problem  string  `gorm:"primaryKey;type:varchar(191)" json:"problem" bson:"problem"`
	Solver   string  `gorm:"primaryKey;type:varchar(64)" json:"solver" bson:"solver"`
	Settings string  `gorm:"primaryKey;type:varchar(64)" json:"settings" bson:"settings"`
	Runtime  float64 `gorm:"not null" json:"runtime" bson:"runtime"`
	Found    bool    `gorm:"not null" json:"found" bson:"found"`

	// 未找到解或该指标对问题无定义时为 nil（例如没有已知最优值时 CostError 为 nil）
	PrimalResidual *float64 `json:"primal_residual" bson:"primal_residual"`
	DualResidual   *float64 `json:"dual_residual" bson:"dual_residual"`
	DualityGap     *float64 `json:"duality_gap" bson:"duality_gap"`
	CostError      *float64 `json:"cost_error" bson:"cost_error"`
}

func (ResultRecord) TableName() string {
	return "results"
}

// Key 三元组主键
type Key struct {
	Problem  string
	Solver   string
	Settings string
}

func (r ResultRecord) Key() Key {
	return Key{Problem: r.Problem, Solver: r.Solver, Settings: r.Settings}
}

// Less 按 (problem, solver, settings) 排序
func (k Key) Less(o Key) bool {
	if k.Problem != o.Problem {
		return k.Problem < o.Problem
	}
	if k.Solver != o.Solver {
		return k.Solver < o.Solver
	}
	return k.Settings < o.Settings
}

// Metric 返回指定指标的值，指标缺失时 ok=false
func (r ResultRecord) Metric(metric string) (value float64, ok bool) {
	var p *float64
	switch metric {
	case MetricRuntime:
		return r.Runtime, true
	case MetricPrimalResidual:
		p = r.PrimalResidual
	case MetricDualResidual:
		p = r.DualResidual
	case MetricDualityGap:
		p = r.DualityGap
	case MetricCostError:
		p = r.CostError
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

const (
	MetricRuntime        = "runtime"
	MetricPrimalResidual = "primal_residual"
	MetricDualResidual   = "dual_residual"
	MetricDualityGap     = "duality_gap"
	MetricCostError      = "cost_error"
)

// Metrics 报告中参与 shgm 的指标
var Metrics = []string{
	MetricRuntime,
	MetricPrimalResidual,
	MetricDualResidual,
	MetricDualityGap,
	MetricCostError,
}
