package service

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"solver-bench/internal/model"
)

// Table 聚合结果：行是求解器，列是 settings，两个轴都排序。
// 没有任何记录的格子为 NaN。
type Table struct {
	Solvers  []string
	Settings []string
	values   map[string]map[string]float64
}

func newTable(records []model.ResultRecord) *Table {
	solvers := map[string]bool{}
	settings := map[string]bool{}
	for _, rec := range records {
		solvers[rec.Solver] = true
		settings[rec.Settings] = true
	}
	t := &Table{
		Solvers:  sortedKeys(solvers),
		Settings: sortedKeys(settings),
		values:   map[string]map[string]float64{},
	}
	for _, s := range t.Solvers {
		row := map[string]float64{}
		for _, st := range t.Settings {
			row[st] = math.NaN()
		}
		t.values[s] = row
	}
	return t
}

// Value 取 (solver, settings) 格子；不存在或无数据时 ok=false
func (t *Table) Value(solver, settings string) (float64, bool) {
	row, ok := t.values[solver]
	if !ok {
		return math.NaN(), false
	}
	v, ok := row[settings]
	if !ok || math.IsNaN(v) {
		return math.NaN(), false
	}
	return v, true
}

func (t *Table) set(solver, settings string, v float64) {
	t.values[solver][settings] = v
}

// MarshalJSON NaN/Inf 输出为 null
func (t *Table) MarshalJSON() ([]byte, error) {
	values := map[string]map[string]*float64{}
	for _, s := range t.Solvers {
		row := map[string]*float64{}
		for _, st := range t.Settings {
			v, ok := t.Value(s, st)
			if !ok || math.IsInf(v, 0) {
				row[st] = nil
				continue
			}
			row[st] = &v
		}
		values[s] = row
	}
	return json.Marshal(struct {
		Solvers  []string                       `json:"solvers"`
		Settings []string                       `json:"settings"`
		Values   map[string]map[string]*float64 `json:"values"`
	}{t.Solvers, t.Settings, values})
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// groupRecords 按 (solver, settings) 分组
func groupRecords(records []model.ResultRecord) map[[2]string][]model.ResultRecord {
	groups := map[[2]string][]model.ResultRecord{}
	for _, rec := range records {
		k := [2]string{rec.Solver, rec.Settings}
		groups[k] = append(groups[k], rec)
	}
	return groups
}

// Validate 重新判定一条记录是否成功：found 且所有已上报的指标都严格小于容差。
// 没有上报的指标不参与判定。
func Validate(rec model.ResultRecord, tol Tolerance) bool {
	if !rec.Found {
		return false
	}
	if rec.PrimalResidual != nil && !(*rec.PrimalResidual < tol.Primal) {
		return false
	}
	if rec.DualResidual != nil && !(*rec.DualResidual < tol.Dual) {
		return false
	}
	if rec.DualityGap != nil && !(*rec.DualityGap < tol.Gap) {
		return false
	}
	if rec.CostError != nil && !(math.Abs(*rec.CostError) < tol.Cost) {
		return false
	}
	return true
}

// SuccessRate 每个 (solver, settings) 中 Validate 通过的百分比
func SuccessRate(records []model.ResultRecord, tolerances map[string]Tolerance) (*Table, error) {
	return rateTable(records, tolerances, func(rec model.ResultRecord, valid bool) bool {
		return valid
	})
}

// CorrectnessRate 上报的 found 与重新判定结果一致的百分比
func CorrectnessRate(records []model.ResultRecord, tolerances map[string]Tolerance) (*Table, error) {
	return rateTable(records, tolerances, func(rec model.ResultRecord, valid bool) bool {
		return rec.Found == valid
	})
}

func rateTable(records []model.ResultRecord, tolerances map[string]Tolerance, hit func(model.ResultRecord, bool) bool) (*Table, error) {
	t := newTable(records)
	for k, recs := range groupRecords(records) {
		solver, settings := k[0], k[1]
		tol, ok := tolerances[settings]
		if !ok {
			return nil, fmt.Errorf("%w: 没有 settings %q 的容差", ErrSettingsNotFound, settings)
		}
		n := 0
		for _, rec := range recs {
			if hit(rec, Validate(rec, tol)) {
				n++
			}
		}
		t.set(solver, settings, 100.0*float64(n)/float64(len(recs)))
	}
	return t, nil
}

// Shgm 平移几何平均 exp(mean(log(v + shift))) - shift
func Shgm(values []float64, shift float64) (float64, error) {
	if shift < 1.0 {
		return 0, fmt.Errorf("%w: shift=%g", ErrInvalidShift, shift)
	}
	if len(values) == 0 {
		return 0, ErrEmptyValues
	}
	sum := 0.0
	for _, v := range values {
		if v < 0 {
			return 0, fmt.Errorf("%w: %g", ErrNegativeValue, v)
		}
		sum += math.Log(v + shift)
	}
	return math.Exp(sum/float64(len(values))) - shift, nil
}

// shgmZero 以下的平均值视为 0：全零输入经 log/exp 往返后会残留约 1e-15 的误差
const shgmZero = 1e-12

// ShgmTable 计算 metric 的平移几何平均，并按 settings 列用最小值归一化（最优求解器为 1.0）。
// 未找到解的记录取 notFoundValues[settings]；已找到但没有上报该指标的记录不参与。
func ShgmTable(records []model.ResultRecord, metric string, shift float64, notFoundValues map[string]float64) (*Table, error) {
	if !isMetric(metric) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	if shift < 1.0 {
		return nil, fmt.Errorf("%w: shift=%g", ErrInvalidShift, shift)
	}

	t := newTable(records)
	for k, recs := range groupRecords(records) {
		solver, settings := k[0], k[1]
		notFound, ok := notFoundValues[settings]
		if !ok {
			return nil, fmt.Errorf("%w: 没有 settings %q 的未找到替代值", ErrSettingsNotFound, settings)
		}
		values := make([]float64, 0, len(recs))
		for _, rec := range recs {
			if !rec.Found {
				values = append(values, notFound)
				continue
			}
			if v, ok := rec.Metric(metric); ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		mean, err := Shgm(values, shift)
		if err != nil {
			return nil, fmt.Errorf("无法计算 metric=%s settings=%s solver=%s 的平均值: %w", metric, settings, solver, err)
		}
		if math.Abs(mean) < shgmZero {
			mean = 0
		}
		t.set(solver, settings, mean)
	}

	for _, settings := range t.Settings {
		best := math.Inf(1)
		for _, solver := range t.Solvers {
			if v, ok := t.Value(solver, settings); ok && v < best {
				best = v
			}
		}
		if math.IsInf(best, 1) {
			continue
		}
		for _, solver := range t.Solvers {
			v, ok := t.Value(solver, settings)
			if !ok {
				continue
			}
			switch {
			case best > 0:
				t.set(solver, settings, v/best)
			case v == best:
				t.set(solver, settings, 1.0)
			default:
				t.set(solver, settings, math.Inf(1))
			}
		}
	}
	return t, nil
}

func isMetric(metric string) bool {
	for _, m := range model.Metrics {
		if m == metric {
			return true
		}
	}
	return false
}

// NotFoundValues 各 settings 下某个指标的未找到替代值：该指标对应的容差
func NotFoundValues(tolerances map[string]Tolerance, metric string) (map[string]float64, error) {
	out := make(map[string]float64, len(tolerances))
	for name, tol := range tolerances {
		v, err := tol.FromMetric(metric)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}
