package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solver-bench/internal/model"
)

func newTestRunner(t *testing.T, ts *TestSet, solver Solver, every time.Duration, mirrors ...Mirror) (*Runner, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), ts.Name+".csv")
	results, err := NewResults(path, ts.Source, mirrors...)
	require.NoError(t, err)
	return NewRunner(ts, results, solver, every, false), path
}

func TestRunner_RunsEveryTripleOnce(t *testing.T) {
	ts := newTestSet(t, []string{"P1", "P2"}, "highs", "osqp")
	solver := &fakeSolver{}
	runner, path := newTestRunner(t, ts, solver, time.Hour)

	summary, err := runner.Run(context.Background(), RunRequest{})
	require.NoError(t, err)

	assert.Equal(t, 16, solver.count())
	assert.Equal(t, 16, summary.SolverCalls)
	assert.Equal(t, 16, summary.Rows)
	assert.Equal(t, path, summary.ResultsPath)

	seen := map[[3]string]int{}
	for _, rec := range runner.Results().Records() {
		seen[[3]string{rec.Problem, rec.Solver, rec.Settings}]++
		assert.True(t, rec.Found)
	}
	assert.Len(t, seen, 16)

	onDisk, err := readResultsFile(path)
	require.NoError(t, err)
	assert.Len(t, onDisk, 16)
}

func TestRunner_LoopOrderAndOptions(t *testing.T) {
	ts := newTestSet(t, []string{"P1", "P2"}, "highs", "osqp")
	solver := &fakeSolver{}
	runner, _ := newTestRunner(t, ts, solver, time.Hour)

	_, err := runner.Run(context.Background(), RunRequest{Settings: "high_accuracy"})
	require.NoError(t, err)

	require.Len(t, solver.calls, 4)
	order := make([][2]string, len(solver.calls))
	for i, c := range solver.calls {
		order[i] = [2]string{c.problem, c.solver}
	}
	assert.Equal(t, [][2]string{{"P1", "highs"}, {"P1", "osqp"}, {"P2", "highs"}, {"P2", "osqp"}}, order)
	assert.Equal(t, 1e-9, solver.calls[1].settings["eps_abs"])
	assert.Equal(t, 1000.0, solver.calls[1].settings["time_limit"])
}

func TestRunner_NoRerunMakesNoCalls(t *testing.T) {
	ts := newTestSet(t, []string{"P1"}, "osqp")
	solver := &fakeSolver{}
	runner, _ := newTestRunner(t, ts, solver, time.Hour)

	_, err := runner.Run(context.Background(), RunRequest{})
	require.NoError(t, err)
	before := runner.Results().Records()
	first := solver.count()

	summary, err := runner.Run(context.Background(), RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, first, solver.count())
	assert.Equal(t, 0, summary.SolverCalls)
	assert.Equal(t, 4, summary.KeptResults)
	assert.Equal(t, before, runner.Results().Records())
}

func TestRunner_RerunSkipsPreviousTimeouts(t *testing.T) {
	ts := newTestSet(t, []string{"P1"}, "osqp")
	solver := &fakeSolver{}
	runner, _ := newTestRunner(t, ts, solver, time.Hour)

	runner.Results().Update("P1", "osqp", "default", NotFound(), 999.5)
	runner.Results().Update("P1", "osqp", "low_accuracy", NotFound(), 12)

	summary, err := runner.Run(context.Background(), RunRequest{Rerun: true})
	require.NoError(t, err)
	// default 之前超时，不重跑；其余三组都要跑
	assert.Equal(t, 3, summary.SolverCalls)
	rec, _ := runner.Results().Get("P1", "osqp", "default")
	assert.False(t, rec.Found)
	assert.Equal(t, 999.5, rec.Runtime)
	rec, _ = runner.Results().Get("P1", "osqp", "low_accuracy")
	assert.True(t, rec.Found)

	summary, err = runner.Run(context.Background(), RunRequest{Rerun: true, IncludeTimeouts: true, Settings: "default"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SolverCalls)
	rec, _ = runner.Results().Get("P1", "osqp", "default")
	assert.True(t, rec.Found)
}

func TestRunner_KnownTimeoutNeverCallsSolver(t *testing.T) {
	ts := newTestSet(t, []string{"CONT-300"}, "highs")
	ts.Skips.AddTimeout("CONT-300", "highs", "default", 1800)
	solver := &fakeSolver{}
	runner, _ := newTestRunner(t, ts, solver, time.Hour)

	summary, err := runner.Run(context.Background(), RunRequest{Settings: "default"})
	require.NoError(t, err)
	assert.Equal(t, 0, solver.count())
	assert.Equal(t, 1, summary.TimeoutSkips)

	rec, ok := runner.Results().Get("CONT-300", "highs", "default")
	require.True(t, ok)
	assert.False(t, rec.Found)
	assert.Equal(t, 0.0, rec.Runtime)
}

func TestRunner_SkipsAreTerminalEvenOnRerun(t *testing.T) {
	ts := newTestSet(t, []string{"P1"}, "osqp", "qpalm")
	ts.Skips.AddIssue("P1", "qpalm")
	solver := &fakeSolver{}
	runner, _ := newTestRunner(t, ts, solver, time.Hour)

	// 旧结果声称成功，重跑时也要被跳过记录覆盖
	runner.Results().Update("P1", "qpalm", "default", Solution{Found: true, PrimalResidual: ptr(1e-9)}, 2)

	summary, err := runner.Run(context.Background(), RunRequest{Rerun: true, IncludeTimeouts: true})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.IssueSkips)
	assert.Equal(t, 4, summary.SolverCalls)
	for _, c := range solver.calls {
		assert.Equal(t, "osqp", c.solver)
	}
	for _, settings := range ts.Catalogue.Names() {
		rec, ok := runner.Results().Get("P1", "qpalm", settings)
		require.True(t, ok)
		assert.False(t, rec.Found)
		assert.Equal(t, 0.0, rec.Runtime)
		assert.Nil(t, rec.PrimalResidual)
	}
}

func TestRunner_FilterErrorsBeforeSolving(t *testing.T) {
	ts := newTestSet(t, []string{"P1"}, "osqp")
	solver := &fakeSolver{}
	runner, _ := newTestRunner(t, ts, solver, time.Hour)

	_, err := runner.Run(context.Background(), RunRequest{Settings: "ultra_accuracy"})
	assert.ErrorIs(t, err, ErrSettingsNotFound)

	_, err = runner.Run(context.Background(), RunRequest{Solver: "gurobi"})
	assert.ErrorIs(t, err, ErrSolverNotFound)

	_, err = runner.Run(context.Background(), RunRequest{Problem: "NOPE"})
	assert.ErrorIs(t, err, ErrProblemNotFound)

	assert.Equal(t, 0, solver.count())
	assert.Equal(t, 0, runner.Results().Count())
}

func TestRunner_SingleTripleFilter(t *testing.T) {
	ts := newTestSet(t, []string{"P1", "P2"}, "highs", "osqp")
	solver := &fakeSolver{}
	runner, _ := newTestRunner(t, ts, solver, time.Hour)

	summary, err := runner.Run(context.Background(), RunRequest{Problem: "P2", Solver: "osqp", Settings: "mid_accuracy"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SolverCalls)
	assert.True(t, runner.Results().Has("P2", "osqp", "mid_accuracy"))
	assert.Equal(t, 1, runner.Results().Count())
}

func TestRunner_CheckpointAfterEverySolve(t *testing.T) {
	ts := newTestSet(t, []string{"P1"}, "osqp")
	var path string
	var onDisk []int
	solver := &fakeSolver{fn: func(problem Problem, solver string, opts Options) Solution {
		recs, err := readResultsFile(path)
		require.NoError(t, err)
		onDisk = append(onDisk, len(recs))
		return NotFound()
	}}
	runner, p := newTestRunner(t, ts, solver, 0)
	path = p

	_, err := runner.Run(context.Background(), RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, onDisk)
}

func TestRunner_CheckpointAfterEachProblem(t *testing.T) {
	ts := newTestSet(t, []string{"P1", "P2", "P3"}, "osqp")
	var path string
	var onDisk []int
	solver := &fakeSolver{fn: func(problem Problem, solver string, opts Options) Solution {
		recs, err := readResultsFile(path)
		require.NoError(t, err)
		onDisk = append(onDisk, len(recs))
		return NotFound()
	}}
	runner, p := newTestRunner(t, ts, solver, time.Hour)
	path = p

	summary, err := runner.Run(context.Background(), RunRequest{Settings: "default"})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, onDisk)
	assert.Equal(t, 3, summary.Checkpoints)
}

func TestRunner_CheckpointTimer(t *testing.T) {
	ts := newTestSet(t, []string{"P1"}, "osqp")
	var path string
	var onDisk []int
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	solver := &fakeSolver{fn: func(problem Problem, solver string, opts Options) Solution {
		recs, err := readResultsFile(path)
		require.NoError(t, err)
		onDisk = append(onDisk, len(recs))
		clock = clock.Add(6 * time.Second)
		return NotFound()
	}}
	runner, p := newTestRunner(t, ts, solver, 10*time.Second)
	runner.now = func() time.Time { return clock }
	path = p

	_, err := runner.Run(context.Background(), RunRequest{})
	require.NoError(t, err)
	// 6s、12s（写）、18s、24s（写）
	assert.Equal(t, []int{0, 0, 2, 2}, onDisk)
}

func TestRunner_CancelledContextPersists(t *testing.T) {
	ts := newTestSet(t, []string{"P1"}, "osqp")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	solver := &fakeSolver{}
	solver.fn = func(problem Problem, s string, opts Options) Solution {
		if len(solver.calls) == 2 {
			cancel()
		}
		return Solution{Found: true}
	}
	runner, path := newTestRunner(t, ts, solver, time.Hour)

	summary, err := runner.Run(ctx, RunRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.SolverCalls)

	onDisk, err := readResultsFile(path)
	require.NoError(t, err)
	assert.Len(t, onDisk, 2)
}

func TestRunner_PanicBecomesNotFound(t *testing.T) {
	ts := newTestSet(t, []string{"P1"}, "osqp")
	solver := &fakeSolver{fn: func(problem Problem, s string, opts Options) Solution {
		panic("segfault")
	}}
	runner, _ := newTestRunner(t, ts, solver, time.Hour)

	summary, err := runner.Run(context.Background(), RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.SolverCalls)
	for _, rec := range runner.Results().Records() {
		assert.False(t, rec.Found)
	}
}

func TestRunner_RecordsRunInMirrors(t *testing.T) {
	ts := newTestSet(t, []string{"P1"}, "osqp")
	ts.Skips.AddIssue("P1", "osqp")
	mirror := &fakeMirror{}
	runner, _ := newTestRunner(t, ts, &fakeSolver{}, time.Hour, mirror)

	_, err := runner.Run(context.Background(), RunRequest{Rerun: true})
	require.NoError(t, err)

	require.Len(t, mirror.runs, 1)
	run := mirror.runs[0]
	assert.Equal(t, "unit", run.TestSet)
	assert.True(t, run.Rerun)
	assert.Equal(t, 4, run.IssueSkips)
	assert.Equal(t, 0, run.SolverCalls)
	assert.Equal(t, 4, run.ResultsRowCnt)
	assert.Empty(t, run.Error)
	assert.NotEmpty(t, mirror.syncs)
	assert.IsType(t, []model.ResultRecord{}, mirror.syncs[0])
}

func TestRunner_WithoutResultsPath(t *testing.T) {
	ts := newTestSet(t, []string{"P1"}, "osqp")
	results, err := NewResults("", ts.Source)
	require.NoError(t, err)
	runner := NewRunner(ts, results, &fakeSolver{}, 0, true)

	summary, err := runner.Run(context.Background(), RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Rows)
	assert.Equal(t, 0, summary.Checkpoints)
}
