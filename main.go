package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"solver-bench/internal/config"
	"solver-bench/internal/db"
	"solver-bench/internal/router"
	"solver-bench/internal/service"
)

// command 子命令处理函数
type command func(args []string) error

var commands = map[string]command{
	"run":           runBenchmark,
	"report":        writeReport,
	"serve":         serve,
	"list-problems": listProblems,
	"check-results": checkResults,
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	if err := dispatch(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		fmt.Fprintln(os.Stderr)
		usage()
		os.Exit(1)
	}
}

func dispatch(args []string) error {
	if len(args) == 0 {
		return errors.New("missing command")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s", args[0])
	}
	return cmd(args[1:])
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(os.Stderr, "usage: solver-bench <command> [-config config/config.yaml] [flags]")
	fmt.Fprintln(os.Stderr, "commands:")
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %s\n", name)
	}
}

// setup 加载配置、连接镜像、组装服务；cleanup 断开镜像连接
func setup(configPath string) (*config.Config, *service.ServiceContext, func(), error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, func() {}, fmt.Errorf("加载配置失败: %w", err)
	}

	var mirrors []service.Mirror
	cleanups := []func(){}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.Database.Enabled {
		if err := db.InitDB(cfg); err != nil {
			return nil, nil, cleanup, fmt.Errorf("初始化数据库失败: %w", err)
		}
		mirrors = append(mirrors, db.NewGormMirror(db.DB))
	}
	if cfg.Mongo.Enabled {
		m, closeMongo, err := db.NewMongoMirror(context.Background(), cfg.Mongo)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("初始化 MongoDB 失败: %w", err)
		}
		cleanups = append(cleanups, closeMongo)
		mirrors = append(mirrors, m)
	}

	var solver service.Solver = service.NewCommandSolver(cfg.Benchmark.SolverCommand, cfg.Benchmark.KillAfter())
	if cfg.Benchmark.SolverURL != "" {
		log.Printf("[main] 使用远程求解服务: %s", cfg.Benchmark.SolverURL)
		solver = service.NewHTTPSolver(cfg.Benchmark.SolverURL, cfg.Benchmark.SolverAPIKey, cfg.Benchmark.SolverTimeout())
	}
	svc, err := service.NewServiceContext(cfg, solver, mirrors...)
	if err != nil {
		return nil, nil, cleanup, fmt.Errorf("初始化服务失败: %w", err)
	}
	return cfg, svc, cleanup, nil
}

func runBenchmark(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "config/config.yaml", "config file")
	req := service.RunRequest{}
	fs.StringVar(&req.Problem, "problem", "", "only run this problem")
	fs.StringVar(&req.Solver, "solver", "", "only run this solver")
	fs.StringVar(&req.Settings, "settings", "", "only run these settings")
	fs.BoolVar(&req.Rerun, "rerun", false, "rerun triples that already have results")
	fs.BoolVar(&req.IncludeTimeouts, "include-timeouts", false, "with -rerun, also rerun previous timeouts")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, svc, cleanup, err := setup(*configPath)
	defer cleanup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := svc.Runner.Run(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("[run] 已中断，结果已保存到 %s", svc.Results.Path())
			return nil
		}
		return err
	}
	log.Printf("[run] 完成：%d 行结果写入 %s", summary.Rows, summary.ResultsPath)
	return nil
}

func writeReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	configPath := fs.String("config", "config/config.yaml", "config file")
	output := fs.String("output", "", "report path (defaults to config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, svc, cleanup, err := setup(*configPath)
	defer cleanup()
	if err != nil {
		return err
	}
	path := *output
	if path == "" {
		path = svc.ReportPath
	}
	return svc.NewReport().Write(path)
}

func serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "config/config.yaml", "config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, svc, cleanup, err := setup(*configPath)
	defer cleanup()
	if err != nil {
		return err
	}

	r := router.SetupRouter(svc)
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("服务启动在 %s", addr)
	if err := r.Run(addr); err != nil {
		return fmt.Errorf("启动服务失败: %w", err)
	}
	return nil
}

func listProblems(args []string) error {
	fs := flag.NewFlagSet("list-problems", flag.ContinueOnError)
	configPath := fs.String("config", "config/config.yaml", "config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	testSet, err := service.LoadTestSet(cfg.Benchmark.TestSet, cfg.Benchmark.AvailableSolvers, false)
	if err != nil {
		return err
	}
	for _, p := range testSet.Source.Problems() {
		fmt.Println(p.Name)
	}
	log.Printf("测试集 %s 共 %d 个问题", testSet.Name, testSet.Source.Count())
	return nil
}

// checkResults 读取结果文件并打印每个 (solver, settings) 的记录数与成功率
func checkResults(args []string) error {
	fs := flag.NewFlagSet("check-results", flag.ContinueOnError)
	configPath := fs.String("config", "config/config.yaml", "config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, svc, cleanup, err := setup(*configPath)
	defer cleanup()
	if err != nil {
		return err
	}

	records := svc.Results.Records()
	success, err := service.SuccessRate(records, svc.TestSet.Catalogue.Tolerances())
	if err != nil {
		return err
	}
	counts := map[[2]string]int{}
	for _, rec := range records {
		counts[[2]string{rec.Solver, rec.Settings}]++
	}
	expected := svc.TestSet.Source.Count()
	for _, solver := range success.Solvers {
		for _, settings := range success.Settings {
			n := counts[[2]string{solver, settings}]
			if n == 0 {
				continue
			}
			rate, _ := success.Value(solver, settings)
			fmt.Printf("%-12s %-14s %4d/%-4d results  %5.1f%% success\n", solver, settings, n, expected, rate)
		}
	}
	log.Printf("结果文件 %s 共 %d 行", svc.Results.Path(), len(records))
	return nil
}
