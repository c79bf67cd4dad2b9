package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"math"
	"os/exec"
	"strings"
	"time"
)

// Solution 求解器返回的结果；Found=false 时各指标都应为 nil
type Solution struct {
	Found          bool
	PrimalResidual *float64
	DualResidual   *float64
	DualityGap     *float64
	CostError      *float64
}

// NotFound 未找到解
func NotFound() Solution {
	return Solution{}
}

// Solver 外部求解协作方。实现方必须把内部失败转换成 Found=false，不能向外返回错误。
type Solver interface {
	Solve(ctx context.Context, problem Problem, solver string, opts Options) Solution
}

// SolverFunc 函数适配器
type SolverFunc func(ctx context.Context, problem Problem, solver string, opts Options) Solution

func (f SolverFunc) Solve(ctx context.Context, problem Problem, solver string, opts Options) Solution {
	return f(ctx, problem, solver, opts)
}

// CommandSolver 通过子进程求解：<Command> <solver> <problem path>。
// 选项以 JSON 写入 stdin，stdout 返回 JSON 结果。
type CommandSolver struct {
	Command string
	// 大于 0 时到点强制结束子进程；时间限制本身仍由求解器自己遵守
	KillAfter time.Duration
}

type commandOutput struct {
	Found          bool     `json:"found"`
	PrimalResidual *float64 `json:"primal_residual"`
	DualResidual   *float64 `json:"dual_residual"`
	DualityGap     *float64 `json:"duality_gap"`
	Cost           *float64 `json:"cost"`
}

func NewCommandSolver(command string, killAfter time.Duration) *CommandSolver {
	return &CommandSolver{Command: command, KillAfter: killAfter}
}

func (s *CommandSolver) Solve(ctx context.Context, problem Problem, solver string, opts Options) Solution {
	parts := strings.Fields(s.Command)
	if len(parts) == 0 {
		log.Printf("[solver] 未配置求解命令")
		return NotFound()
	}
	if s.KillAfter > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.KillAfter)
		defer cancel()
	}

	input, err := json.Marshal(opts)
	if err != nil {
		log.Printf("[solver] 序列化 %s 参数失败: %v", solver, err)
		return NotFound()
	}

	args := append(parts[1:len(parts):len(parts)], solver, problem.Path)
	cmd := exec.CommandContext(ctx, parts[0], args...)
	cmd.Stdin = bytes.NewReader(input)
	if s.KillAfter > 0 {
		// 子进程被杀后，孙进程可能仍占着 stdout
		cmd.WaitDelay = time.Second
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Printf("[solver] %s 求解 %s 失败: %v %s", solver, problem.Name, err, strings.TrimSpace(stderr.String()))
		return NotFound()
	}

	var out commandOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		log.Printf("[solver] %s 在 %s 上的输出无法解析: %v", solver, problem.Name, err)
		return NotFound()
	}
	return out.solution(problem)
}

// solution 转成 Solution；有最优值时计算代价误差
func (out commandOutput) solution(problem Problem) Solution {
	if !out.Found {
		return NotFound()
	}
	sol := Solution{
		Found:          true,
		PrimalResidual: out.PrimalResidual,
		DualResidual:   out.DualResidual,
		DualityGap:     out.DualityGap,
	}
	if out.Cost != nil && problem.OptimalCost != nil {
		// 原始残差较大时代价可能低于最优值，按绝对值计
		ce := math.Abs(*out.Cost + problem.CostOffset - *problem.OptimalCost)
		sol.CostError = &ce
	}
	return sol
}
