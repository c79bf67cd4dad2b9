package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"solver-bench/internal/model"
)

type solveCall struct {
	problem  string
	solver   string
	settings Options
}

// fakeSolver 记录每次调用；fn 为空时返回固定的成功结果
type fakeSolver struct {
	mu    sync.Mutex
	calls []solveCall
	fn    func(problem Problem, solver string, opts Options) Solution
}

func (f *fakeSolver) Solve(ctx context.Context, problem Problem, solver string, opts Options) Solution {
	f.mu.Lock()
	f.calls = append(f.calls, solveCall{problem.Name, solver, opts})
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(problem, solver, opts)
	}
	return Solution{
		Found:          true,
		PrimalResidual: ptr(1e-10),
		DualResidual:   ptr(1e-10),
		DualityGap:     ptr(1e-10),
	}
}

func (f *fakeSolver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeMirror 记录同步内容
type fakeMirror struct {
	mu    sync.Mutex
	syncs [][]model.ResultRecord
	runs  []*model.BenchmarkRun
	err   error
}

func (m *fakeMirror) SyncResults(ctx context.Context, records []model.ResultRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs = append(m.syncs, records)
	return m.err
}

func (m *fakeMirror) RecordRun(ctx context.Context, run *model.BenchmarkRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return m.err
}

func newTestCatalogue(t *testing.T, timeLimit float64, available ...string) *Catalogue {
	t.Helper()
	cat, err := NewCatalogue(available, DefaultSettingsGroups(), DefaultTolerances(timeLimit))
	require.NoError(t, err)
	return cat
}

func newTestSet(t *testing.T, problems []string, available ...string) *TestSet {
	t.Helper()
	src := make(StaticSource, 0, len(problems))
	for _, name := range problems {
		src = append(src, Problem{Name: name, Path: name + ".mat"})
	}
	return &TestSet{
		Name:      "unit",
		Title:     "Unit test set",
		Source:    src,
		Catalogue: newTestCatalogue(t, 1000, available...),
		Skips:     NewSkipPolicy(),
	}
}

func found(runtime float64, primal, dual, gap float64) model.ResultRecord {
	return model.ResultRecord{
		Runtime:        runtime,
		Found:          true,
		PrimalResidual: ptr(primal),
		DualResidual:   ptr(dual),
		DualityGap:     ptr(gap),
	}
}

func record(problem, solver, settings string, base model.ResultRecord) model.ResultRecord {
	base.Problem = problem
	base.Solver = solver
	base.Settings = settings
	return base
}
