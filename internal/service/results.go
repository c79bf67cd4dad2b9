package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"solver-bench/internal/model"
)

// 结果文件列顺序
var resultColumns = []string{
	"problem",
	"solver",
	"settings",
	"runtime",
	"found",
	"primal_residual",
	"dual_residual",
	"duality_gap",
	"cost_error",
}

// 旧版结果文件没有 cost_error 列
var requiredColumns = []string{"problem", "solver", "settings", "runtime", "found"}

// Results 当前测试集的结果表。
// 不属于当前测试集的记录放在 complementary 中原样保留，只在写文件时合并。
type Results struct {
	mu            sync.RWMutex
	path          string
	records       map[model.Key]model.ResultRecord
	complementary []model.ResultRecord
	mirrors       []Mirror
}

// NewResults 读取已有结果文件（不存在则为空表），按问题名拆分为本测试集与其它测试集两部分。
// path 为空表示不关联文件。
func NewResults(path string, source ProblemSource, mirrors ...Mirror) (*Results, error) {
	r := &Results{
		path:    path,
		records: map[model.Key]model.ResultRecord{},
		mirrors: mirrors,
	}
	if path == "" {
		return r, nil
	}
	if err := checkExtension(path); err != nil {
		return nil, err
	}

	loaded, err := readResultsFile(path)
	if err != nil {
		return nil, err
	}
	members := map[string]bool{}
	for _, p := range source.Problems() {
		members[p.Name] = true
	}
	for _, rec := range loaded {
		if members[rec.Problem] {
			r.records[rec.Key()] = rec
		} else {
			r.complementary = append(r.complementary, rec)
		}
	}
	if len(loaded) > 0 {
		log.Printf("[results] 从 %s 读取 %d 行（本测试集 %d 行）", path, len(loaded), len(r.records))
	}
	return r, nil
}

func checkExtension(path string) error {
	if filepath.Ext(path) != ".csv" {
		return fmt.Errorf("%w: %q", ErrUnknownExtension, path)
	}
	return nil
}

func (r *Results) Path() string {
	return r.path
}

// Has 三元组是否已有结果
func (r *Results) Has(problem, solver, settings string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[model.Key{Problem: problem, Solver: solver, Settings: settings}]
	return ok
}

func (r *Results) Get(problem, solver, settings string) (model.ResultRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[model.Key{Problem: problem, Solver: solver, Settings: settings}]
	return rec, ok
}

// IsTimeout 已有结果的耗时是否达到时间限制的 99%。
// 求解器并不总是把超时和其它失败区分开，这里按耗时判断。
func (r *Results) IsTimeout(problem, solver, settings string, timeLimit float64) bool {
	rec, ok := r.Get(problem, solver, settings)
	if !ok {
		return false
	}
	return rec.Runtime >= 0.99*timeLimit
}

// Update 用新结果整体替换三元组的旧记录（不做合并）
func (r *Results) Update(problem, solver, settings string, sol Solution, runtime float64) {
	rec := model.ResultRecord{
		Problem:  problem,
		Solver:   solver,
		Settings: settings,
		Runtime:  runtime,
		Found:    sol.Found,
	}
	if sol.Found {
		rec.PrimalResidual = copyFloat(sol.PrimalResidual)
		rec.DualResidual = copyFloat(sol.DualResidual)
		rec.DualityGap = copyFloat(sol.DualityGap)
		rec.CostError = copyFloat(sol.CostError)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.Key()] = rec
}

// Count 本测试集的记录数
func (r *Results) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Records 本测试集记录的有序副本
func (r *Results) Records() []model.ResultRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ResultRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sortRecords(out)
	return out
}

// allRecords 本测试集 ∪ complementary，有序
func (r *Results) allRecords() []model.ResultRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ResultRecord, 0, len(r.records)+len(r.complementary))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	out = append(out, r.complementary...)
	sortRecords(out)
	return out
}

// Write 把完整结果表（含其它测试集的记录）重写到关联文件，然后同步镜像
func (r *Results) Write(ctx context.Context) error {
	if r.path == "" {
		return ErrNoResultsPath
	}
	return r.WriteTo(ctx, r.path)
}

// WriteTo 写到指定文件。先写临时文件再 rename，崩溃时不会留下半个文件。
func (r *Results) WriteTo(ctx context.Context, path string) error {
	if path == "" {
		return ErrNoResultsPath
	}
	if err := checkExtension(path); err != nil {
		return err
	}
	all := r.allRecords()
	if err := writeResultsFile(path, all); err != nil {
		return err
	}
	log.Printf("[results] 写入 %s（%d 行）", path, len(all))

	for _, m := range r.mirrors {
		if err := m.SyncResults(ctx, all); err != nil {
			log.Printf("[mirror] 同步结果失败: %v", err)
		}
	}
	return nil
}

// RecordRun 把 run 元数据交给各镜像
func (r *Results) RecordRun(ctx context.Context, run *model.BenchmarkRun) {
	for _, m := range r.mirrors {
		if err := m.RecordRun(ctx, run); err != nil {
			log.Printf("[mirror] 记录 run 失败: %v", err)
		}
	}
}

func sortRecords(recs []model.ResultRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Key().Less(recs[j].Key())
	})
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func readResultsFile(path string) ([]model.ResultRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("打开结果文件失败: %w", err)
	}
	defer f.Close()
	return readResults(f)
}

func readResults(in io.Reader) ([]model.ResultRecord, error) {
	cr := csv.NewReader(in)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取结果表头失败: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%w: 缺少 %q 列", ErrResultsCorrupt, name)
		}
	}
	cr.FieldsPerRecord = len(header)

	var out []model.ResultRecord
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: 第 %d 行: %v", ErrResultsCorrupt, line, err)
		}
		cell := func(name string) string {
			i, ok := col[name]
			if !ok {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		found, err := parseFound(cell("found"))
		if err != nil {
			return nil, fmt.Errorf("%w: 第 %d 行: %v", ErrResultsCorrupt, line, err)
		}
		runtime, err := strconv.ParseFloat(cell("runtime"), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: 第 %d 行 runtime: %v", ErrResultsCorrupt, line, err)
		}
		if runtime < 0 {
			return nil, fmt.Errorf("%w: 第 %d 行 runtime 为负数: %g", ErrResultsCorrupt, line, runtime)
		}
		rec := model.ResultRecord{
			Problem:  cell("problem"),
			Solver:   cell("solver"),
			Settings: cell("settings"),
			Runtime:  runtime,
			Found:    found,
		}
		for _, f := range []struct {
			name string
			dst  **float64
		}{
			{"primal_residual", &rec.PrimalResidual},
			{"dual_residual", &rec.DualResidual},
			{"duality_gap", &rec.DualityGap},
			{"cost_error", &rec.CostError},
		} {
			v, err := parseNullableFloat(cell(f.name))
			if err != nil {
				return nil, fmt.Errorf("%w: 第 %d 行 %s: %v", ErrResultsCorrupt, line, f.name, err)
			}
			*f.dst = v
		}
		out = append(out, rec)
	}
	return out, nil
}

// parseFound found 列只接受布尔值
func parseFound(s string) (bool, error) {
	switch s {
	case "True", "true", "TRUE", "1":
		return true, nil
	case "False", "false", "FALSE", "0":
		return false, nil
	}
	return false, fmt.Errorf("found 列存在非布尔值 %q", s)
}

func parseNullableFloat(s string) (*float64, error) {
	if s == "" || strings.EqualFold(s, "nan") || s == "None" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) {
		return nil, nil
	}
	return &v, nil
}

func formatNullableFloat(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'g', -1, 64)
}

func formatFound(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func writeResults(out io.Writer, recs []model.ResultRecord) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(resultColumns); err != nil {
		return err
	}
	for _, rec := range recs {
		row := []string{
			rec.Problem,
			rec.Solver,
			rec.Settings,
			strconv.FormatFloat(rec.Runtime, 'g', -1, 64),
			formatFound(rec.Found),
			formatNullableFloat(rec.PrimalResidual),
			formatNullableFloat(rec.DualResidual),
			formatNullableFloat(rec.DualityGap),
			formatNullableFloat(rec.CostError),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeResultsFile(path string, recs []model.ResultRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建结果目录失败: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // rename 成功后这里是空操作

	if err := writeResults(tmp, recs); err != nil {
		tmp.Close()
		return fmt.Errorf("写入结果失败: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("写入结果失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("写入结果失败: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("替换结果文件失败: %w", err)
	}
	return nil
}
