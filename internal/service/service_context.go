package service

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"solver-bench/internal/config"
)

type ServiceContext struct {
	TestSet    *TestSet
	Results    *Results
	Runner     *Runner
	Author     string
	ReportPath string

	runMu sync.Mutex
}

// NewServiceContext 加载测试集与已有结果，组装 Runner
func NewServiceContext(cfg *config.Config, solver Solver, mirrors ...Mirror) (*ServiceContext, error) {
	bc := cfg.Benchmark
	testSet, err := LoadTestSet(bc.TestSet, bc.AvailableSolvers, bc.Verbose)
	if err != nil {
		return nil, err
	}

	resultsPath := bc.ResultsPath
	if resultsPath == "" {
		resultsPath = filepath.Join("results", testSet.Name+".csv")
	}
	results, err := NewResults(resultsPath, testSet.Source, mirrors...)
	if err != nil {
		return nil, err
	}

	reportPath := bc.ReportPath
	if reportPath == "" {
		reportPath = strings.TrimSuffix(resultsPath, filepath.Ext(resultsPath)) + ".md"
	}

	return &ServiceContext{
		TestSet:    testSet,
		Results:    results,
		Runner:     NewRunner(testSet, results, solver, bc.CheckpointInterval(), bc.Verbose),
		Author:     bc.Author,
		ReportPath: reportPath,
	}, nil
}

// TryRun 同一时间只允许一个 run；已有 run 在执行时返回 ErrRunInProgress
func (s *ServiceContext) TryRun(ctx context.Context, req RunRequest) (*RunSummary, error) {
	if !s.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.runMu.Unlock()
	return s.Runner.Run(ctx, req)
}

// NewReport 每次调用生成新的 Report，可并发使用
func (s *ServiceContext) NewReport() *Report {
	return NewReport(s.TestSet, s.Results, s.Author)
}
