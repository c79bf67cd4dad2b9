package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"solver-bench/internal/model"
)

// RunRequest run 命令的过滤条件；空字符串表示不过滤
type RunRequest struct {
	Problem  string `json:"problem"`
	Solver   string `json:"solver"`
	Settings string `json:"settings"`
	// 已有结果的三元组也重跑（已知超时除外）
	Rerun bool `json:"rerun"`
	// 重跑时包括之前超时的三元组
	IncludeTimeouts bool `json:"include_timeouts"`
}

// RunSummary 运行统计，只用于观察进度，不影响结果
type RunSummary struct {
	TestSet      string        `json:"test_set"`
	SolverCalls  int           `json:"solver_calls"`
	IssueSkips   int           `json:"issue_skips"`
	TimeoutSkips int           `json:"timeout_skips"`
	KeptResults  int           `json:"kept_results"`
	Checkpoints  int           `json:"checkpoints"`
	Duration     time.Duration `json:"-"`
	DurationSec  float64       `json:"duration_sec"`
	ResultsPath  string        `json:"results_path"`
	Rows         int           `json:"rows"`
}

// Runner 单线程顺序执行：同一时间只有一个求解调用，墙钟时间直接作为 runtime 指标
type Runner struct {
	testSet *TestSet
	results *Results
	solver  Solver
	// 定时落盘间隔；0 表示每次求解后都写
	checkpointEvery time.Duration
	verbose         bool
	now             func() time.Time

	dirty     bool
	lastWrite time.Time
}

func NewRunner(testSet *TestSet, results *Results, solver Solver, checkpointEvery time.Duration, verbose bool) *Runner {
	return &Runner{
		testSet:         testSet,
		results:         results,
		solver:          solver,
		checkpointEvery: checkpointEvery,
		verbose:         verbose,
		now:             time.Now,
	}
}

func (r *Runner) TestSet() *TestSet {
	return r.testSet
}

func (r *Runner) Results() *Results {
	return r.results
}

// validate 过滤条件必须在任何求解调用之前检查
func (r *Runner) validate(req RunRequest) ([]Problem, []string, []string, error) {
	cat := r.testSet.Catalogue
	if req.Settings != "" && !cat.Has(req.Settings) {
		return nil, nil, nil, fmt.Errorf("%w: %q 不在测试集的 settings 列表 %v 中", ErrSettingsNotFound, req.Settings, cat.Names())
	}
	if req.Solver != "" && !cat.HasSolver(req.Solver) {
		return nil, nil, nil, fmt.Errorf("%w: %q 不在可用求解器列表 %v 中", ErrSolverNotFound, req.Solver, cat.Available())
	}

	var problems []Problem
	if req.Problem != "" {
		p, err := r.testSet.Source.Get(req.Problem)
		if err != nil {
			return nil, nil, nil, err
		}
		problems = []Problem{p}
	} else {
		problems = r.testSet.Source.Problems()
	}

	var solvers []string
	for _, s := range cat.Available() {
		if req.Solver == "" || s == req.Solver {
			solvers = append(solvers, s)
		}
	}
	var settings []string
	for _, s := range cat.Names() {
		if req.Settings == "" || s == req.Settings {
			settings = append(settings, s)
		}
	}
	return problems, solvers, settings, nil
}

// Run 遍历 problem -> solver -> settings，每个未跳过的三元组只调用一次求解器
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunSummary, error) {
	problems, solvers, settingsNames, err := r.validate(req)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{
		TestSet:     r.testSet.Name,
		ResultsPath: r.results.Path(),
	}
	start := r.now()
	r.lastWrite = start
	r.dirty = false

	runErr := r.loop(ctx, req, problems, solvers, settingsNames, summary)
	if r.dirty {
		if err := r.checkpoint(ctx, summary); err != nil && runErr == nil {
			runErr = err
		}
	}

	summary.Duration = r.now().Sub(start)
	summary.DurationSec = summary.Duration.Seconds()
	summary.Rows = r.results.Count()
	log.Printf("[run] 测试集 %s 运行耗时 %.0f 秒", r.testSet.Name, summary.DurationSec)
	log.Printf("[run] 共调用求解器 %d 次（已知问题跳过 %d，已知超时跳过 %d，保留已有结果 %d）",
		summary.SolverCalls, summary.IssueSkips, summary.TimeoutSkips, summary.KeptResults)

	run := &model.BenchmarkRun{
		TestSet:         r.testSet.Name,
		OnlyProblem:     req.Problem,
		OnlySolver:      req.Solver,
		OnlySettings:    req.Settings,
		Rerun:           req.Rerun,
		IncludeTimeouts: req.IncludeTimeouts,
		SolverCalls:     summary.SolverCalls,
		IssueSkips:      summary.IssueSkips,
		TimeoutSkips:    summary.TimeoutSkips,
		KeptResults:     summary.KeptResults,
		StartedAt:       start,
		DurationSec:     summary.DurationSec,
		ResultsPath:     summary.ResultsPath,
		ResultsRowCnt:   summary.Rows,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	r.results.RecordRun(context.WithoutCancel(ctx), run)

	return summary, runErr
}

func (r *Runner) loop(ctx context.Context, req RunRequest, problems []Problem, solvers, settingsNames []string, summary *RunSummary) error {
	cat := r.testSet.Catalogue
	skips := r.testSet.Skips

	for _, problem := range problems {
		for _, solver := range solvers {
			for _, settings := range settingsNames {
				if err := ctx.Err(); err != nil {
					return err
				}
				tol, _ := cat.Tolerance(settings)
				timeLimit := tol.Runtime

				if skips.ShouldSkipIssue(problem.Name, solver) {
					log.Printf("[run] 跳过 %s / %s：已知求解器问题", problem.Name, solver)
					r.results.Update(problem.Name, solver, settings, NotFound(), 0)
					r.dirty = true
					summary.IssueSkips++
					continue
				}
				if skips.ShouldSkipTimeout(timeLimit, problem.Name, solver, settings) {
					log.Printf("[run] 跳过 %s / %s / %s：已知耗时 %.0f 秒 > 时间限制 %.0f 秒",
						problem.Name, solver, settings, skips.ExpectedDuration(problem.Name, solver, settings), timeLimit)
					r.results.Update(problem.Name, solver, settings, NotFound(), 0)
					r.dirty = true
					summary.TimeoutSkips++
					continue
				}
				if r.results.Has(problem.Name, solver, settings) {
					if !req.Rerun {
						r.debugf("[run] %s 已由 %s 在 %s settings 下求解过", problem.Name, solver, settings)
						summary.KeptResults++
						continue
					}
					if !req.IncludeTimeouts && r.results.IsTimeout(problem.Name, solver, settings, timeLimit) {
						log.Printf("[run] 跳过 %s / %s / %s：之前的结果是超时", problem.Name, solver, settings)
						summary.KeptResults++
						continue
					}
				}

				log.Printf("[run] 求解 %s，求解器 %s，settings %s", problem.Name, solver, settings)
				opts := cat.Get(settings, solver)
				t0 := time.Now()
				sol := r.solve(ctx, problem, solver, opts)
				runtime := time.Since(t0).Seconds()

				r.results.Update(problem.Name, solver, settings, sol, runtime)
				r.dirty = true
				summary.SolverCalls++

				if r.checkpointEvery <= 0 || r.now().Sub(r.lastWrite) >= r.checkpointEvery {
					if err := r.checkpoint(ctx, summary); err != nil {
						return err
					}
				}
			}
		}
		// 每个问题处理完强制落盘
		if r.dirty {
			if err := r.checkpoint(ctx, summary); err != nil {
				return err
			}
		}
	}
	return nil
}

// solve 求解器约定不向外抛错；这里再兜底 panic，保证一次 run 总能跑完
func (r *Runner) solve(ctx context.Context, problem Problem, solver string, opts Options) (sol Solution) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[run] 求解器 %s 在 %s 上 panic: %v", solver, problem.Name, rec)
			sol = NotFound()
		}
	}()
	sol = r.solver.Solve(ctx, problem, solver, opts)
	if !sol.Found {
		return NotFound()
	}
	return sol
}

func (r *Runner) checkpoint(ctx context.Context, summary *RunSummary) error {
	if r.results.Path() == "" {
		r.dirty = false
		return nil
	}
	if err := r.results.Write(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("结果落盘失败: %w", err)
	}
	r.dirty = false
	r.lastWrite = r.now()
	summary.Checkpoints++
	return nil
}

func (r *Runner) debugf(format string, args ...any) {
	if r.verbose {
		log.Printf(format, args...)
	}
}
