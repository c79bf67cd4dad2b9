package service

import (
	"fmt"

	"solver-bench/internal/model"
)

// Tolerance 结果校验阈值；Runtime 同时是传给求解器的时间限制
type Tolerance struct {
	Primal  float64 `json:"primal" yaml:"primal"`
	Dual    float64 `json:"dual" yaml:"dual"`
	Gap     float64 `json:"gap" yaml:"gap"`
	Cost    float64 `json:"cost" yaml:"cost"`
	Runtime float64 `json:"runtime" yaml:"runtime"`
}

// FromMetric 返回某个指标对应的阈值
func (t Tolerance) FromMetric(metric string) (float64, error) {
	switch metric {
	case model.MetricPrimalResidual:
		return t.Primal, nil
	case model.MetricDualResidual:
		return t.Dual, nil
	case model.MetricDualityGap:
		return t.Gap, nil
	case model.MetricCostError:
		return t.Cost, nil
	case model.MetricRuntime:
		return t.Runtime, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
}

// DefaultTolerances 四组内置阈值
func DefaultTolerances(runtime float64) map[string]Tolerance {
	return map[string]Tolerance{
		"default": {
			Primal:  1.0,
			Dual:    1.0,
			Gap:     1.0,
			Cost:    1000.0,
			Runtime: runtime,
		},
		"high_accuracy": {
			Primal:  1e-9,
			Dual:    1e-9,
			Gap:     1e-9,
			Cost:    1e-6,
			Runtime: runtime,
		},
		"low_accuracy": {
			Primal:  1e-3,
			Dual:    1e-3,
			Gap:     1e-3,
			Cost:    1.0,
			Runtime: runtime,
		},
		"mid_accuracy": {
			Primal:  1e-6,
			Dual:    1e-6,
			Gap:     1e-6,
			Cost:    1e-3,
			Runtime: runtime,
		},
	}
}
