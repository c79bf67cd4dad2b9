package service

import (
	"fmt"
	"log"
	"math"
	"sort"
)

// Options 传给某个求解器的关键字参数
type Options map[string]any

// optionRef 抽象参数映射到求解器自己的参数名，scale 为换算系数
type optionRef struct {
	name  string
	scale float64
}

// ImplementedSolvers 有参数映射表的求解器
var ImplementedSolvers = []string{
	"clarabel",
	"cvxopt",
	"daqp",
	"ecos",
	"gurobi",
	"highs",
	"hpipm",
	"jaxopt_osqp",
	"kvxopt",
	"nppro",
	"osqp",
	"piqp",
	"proxqp",
	"qpalm",
	"qpax",
	"qpoases",
	"qpswift",
	"quadprog",
	"scs",
}

// eps_abs：原始残差、对偶残差与对偶间隙的绝对容差。
// 部分求解器把原始残差容差叫 "feasibility tolerance"（cvxopt、ecos）。
var epsAbsOptions = map[string][]optionRef{
	"clarabel": {{"tol_feas", 1}, {"tol_gap_abs", 1}},
	"cvxopt":   {{"feastol", 1}},
	"daqp":     {{"dual_tol", 1}, {"primal_tol", 1}},
	"ecos":     {{"feastol", 1}},
	"gurobi":   {{"FeasibilityTol", 1}, {"OptimalityTol", 1}},
	// HiGHS 的原始可行性是"维持"而非"达到"，对 QP 设置无效，但仍然下发
	"highs":       {{"dual_feasibility_tolerance", 1}, {"primal_feasibility_tolerance", 1}},
	"hpipm":       {{"tol_dual_gap", 1}, {"tol_eq", 1}, {"tol_ineq", 1}, {"tol_stat", 1}},
	"jaxopt_osqp": {{"tol", 1}},
	"kvxopt":      {{"feastol", 1}},
	"osqp":        {{"eps_abs", 1}},
	"piqp":        {{"eps_abs", 1}, {"eps_duality_gap_abs", 1}},
	"proxqp":      {{"eps_abs", 1}, {"eps_duality_gap_abs", 1}},
	"qpalm":       {{"eps_abs", 1}},
	"qpax":        {{"solver_tol", 1}},
	"qpswift":     {{"RELTOL", math.Sqrt(3)}},
	"scs":         {{"eps_abs", 1}},
}

var epsRelOptions = map[string][]optionRef{
	"clarabel": {{"tol_gap_rel", 1}},
	"osqp":     {{"eps_rel", 1}},
	"piqp":     {{"eps_duality_gap_rel", 1}, {"eps_rel", 1}},
	"proxqp":   {{"eps_duality_gap_rel", 1}, {"eps_rel", 1}},
	"qpalm":    {{"eps_rel", 1}},
	"scs":      {{"eps_rel", 1}},
}

var timeLimitOptions = map[string][]optionRef{
	"gurobi":  {{"TimeLimit", 1}},
	"highs":   {{"time_limit", 1}},
	"osqp":    {{"time_limit", 1}},
	"qpalm":   {{"time_limit", 1}},
	"qpoases": {{"time_limit", 1}},
	"scs":     {{"time_limit_secs", 1}},
}

// SettingsGroup 一组 settings 的声明式定义
type SettingsGroup struct {
	Name    string
	EpsAbs  *float64
	EpsRel  *float64
	Verbose bool
	// solver -> 额外参数，最后应用，可覆盖前面的映射结果
	Params map[string]Options
}

// Catalogue settings 目录：settings -> solver -> options，外加平行的 tolerances
type Catalogue struct {
	options    map[string]map[string]Options
	tolerances map[string]Tolerance
	available  []string
}

// NewCatalogue 构建目录。available 为本机可用的求解器，与已实现的求解器取交集。
func NewCatalogue(available []string, groups []SettingsGroup, tolerances map[string]Tolerance) (*Catalogue, error) {
	names := map[string]bool{}
	for _, g := range groups {
		names[g.Name] = true
	}
	if err := checkDefinitions(names, tolerances); err != nil {
		return nil, err
	}

	c := &Catalogue{
		options:    make(map[string]map[string]Options, len(groups)),
		tolerances: make(map[string]Tolerance, len(tolerances)),
	}
	for name, tol := range tolerances {
		c.tolerances[name] = tol
	}
	for _, g := range groups {
		perSolver := make(map[string]Options, len(ImplementedSolvers))
		for _, solver := range ImplementedSolvers {
			perSolver[solver] = Options{}
		}
		if g.EpsAbs != nil {
			propagate(perSolver, epsAbsOptions, *g.EpsAbs)
		}
		if g.EpsRel != nil {
			propagate(perSolver, epsRelOptions, *g.EpsRel)
		}
		propagate(perSolver, timeLimitOptions, tolerances[g.Name].Runtime)
		for _, solver := range ImplementedSolvers {
			perSolver[solver]["verbose"] = g.Verbose
		}
		for solver, params := range g.Params {
			opts, ok := perSolver[solver]
			if !ok {
				log.Printf("[settings] settings=%s 中的求解器 %q 没有参数映射，忽略", g.Name, solver)
				continue
			}
			for k, v := range params {
				opts[k] = v
			}
		}
		c.options[g.Name] = perSolver
	}

	implemented := map[string]bool{}
	for _, s := range ImplementedSolvers {
		implemented[s] = true
	}
	seen := map[string]bool{}
	for _, s := range available {
		if seen[s] {
			continue
		}
		seen[s] = true
		if !implemented[s] {
			log.Printf("[settings] 求解器 %q 可用但没有已知参数映射，跳过", s)
			continue
		}
		c.available = append(c.available, s)
	}
	sort.Strings(c.available)
	return c, nil
}

func checkDefinitions(settings map[string]bool, tolerances map[string]Tolerance) error {
	for name := range settings {
		if _, ok := tolerances[name]; !ok {
			return fmt.Errorf("%w: settings %q 没有 tolerance", ErrInconsistentSettings, name)
		}
	}
	for name := range tolerances {
		if !settings[name] {
			return fmt.Errorf("%w: tolerance %q 没有对应 settings", ErrInconsistentSettings, name)
		}
	}
	return nil
}

func propagate(perSolver map[string]Options, table map[string][]optionRef, value float64) {
	for solver, refs := range table {
		opts, ok := perSolver[solver]
		if !ok {
			continue
		}
		for _, ref := range refs {
			opts[ref.name] = value * ref.scale
		}
	}
}

// Get 返回 solver 在 settings 下的参数副本；没有自定义参数时返回空集合
func (c *Catalogue) Get(settings, solver string) Options {
	out := Options{}
	for k, v := range c.options[settings][solver] {
		out[k] = v
	}
	return out
}

// Param 单个参数，报告中的参数表用
func (c *Catalogue) Param(settings, solver, param string) (any, bool) {
	v, ok := c.options[settings][solver][param]
	return v, ok
}

// Solvers settings 下配置过的全部求解器（已排序）
func (c *Catalogue) Solvers(settings string) []string {
	perSolver, ok := c.options[settings]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(perSolver))
	for s := range perSolver {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Available 参与测试的求解器：可用且已实现
func (c *Catalogue) Available() []string {
	return append([]string(nil), c.available...)
}

func (c *Catalogue) HasSolver(solver string) bool {
	for _, s := range c.available {
		if s == solver {
			return true
		}
	}
	return false
}

// Names 全部 settings 名（已排序）
func (c *Catalogue) Names() []string {
	out := make([]string, 0, len(c.options))
	for name := range c.options {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *Catalogue) Has(settings string) bool {
	_, ok := c.options[settings]
	return ok
}

func (c *Catalogue) Tolerance(settings string) (Tolerance, bool) {
	t, ok := c.tolerances[settings]
	return t, ok
}

// Tolerances 返回副本
func (c *Catalogue) Tolerances() map[string]Tolerance {
	out := make(map[string]Tolerance, len(c.tolerances))
	for k, v := range c.tolerances {
		out[k] = v
	}
	return out
}

func ptr(v float64) *float64 {
	return &v
}

// DefaultSettingsGroups 内置四组 settings
func DefaultSettingsGroups() []SettingsGroup {
	checkGap := func(preset string) map[string]Options {
		params := map[string]Options{
			"piqp":   {"check_duality_gap": true},
			"proxqp": {"check_duality_gap": true},
		}
		if preset != "" {
			params["qpoases"] = Options{"predefined_options": preset}
		}
		return params
	}
	return []SettingsGroup{
		{
			Name:   "default",
			Params: map[string]Options{"qpoases": {"predefined_options": "default"}},
		},
		{
			Name:   "high_accuracy",
			EpsAbs: ptr(1e-9),
			EpsRel: ptr(0),
			Params: checkGap("reliable"),
		},
		{
			Name:   "low_accuracy",
			EpsAbs: ptr(1e-3),
			EpsRel: ptr(0),
			Params: checkGap("fast"),
		},
		{
			Name:   "mid_accuracy",
			EpsAbs: ptr(1e-6),
			EpsRel: ptr(0),
			Params: checkGap(""),
		},
	}
}
