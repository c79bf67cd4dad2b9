package service

// AnySettings 已知超时登记中匹配任意 settings 的通配符
const AnySettings = "*"

type issueKey struct {
	problem string
	solver  string
}

type timeoutKey struct {
	problem  string
	solver   string
	settings string
}

// SkipPolicy 已知求解器问题与已知超时两张登记表，只做查询，不产生副作用
type SkipPolicy struct {
	issues   map[issueKey]bool
	timeouts map[timeoutKey]float64
}

func NewSkipPolicy() *SkipPolicy {
	return &SkipPolicy{
		issues:   map[issueKey]bool{},
		timeouts: map[timeoutKey]float64{},
	}
}

// AddIssue 登记 solver 在 problem 上的已知故障（段错误、崩溃等），与 settings 无关
func (p *SkipPolicy) AddIssue(problem, solver string) {
	p.issues[issueKey{problem, solver}] = true
}

// AddTimeout 登记预计耗时（秒）。settings 为 "*" 时匹配任意 settings。
func (p *SkipPolicy) AddTimeout(problem, solver, settings string, seconds float64) {
	if settings == "" {
		settings = AnySettings
	}
	p.timeouts[timeoutKey{problem, solver, settings}] = seconds
}

func (p *SkipPolicy) ShouldSkipIssue(problem, solver string) bool {
	return p.issues[issueKey{problem, solver}]
}

// ExpectedDuration 先查精确三元组，再查通配符，都没有时为 0
func (p *SkipPolicy) ExpectedDuration(problem, solver, settings string) float64 {
	if d, ok := p.timeouts[timeoutKey{problem, solver, settings}]; ok {
		return d
	}
	if d, ok := p.timeouts[timeoutKey{problem, solver, AnySettings}]; ok {
		return d
	}
	return 0
}

// ShouldSkipTimeout 预计耗时超过 timeLimit 时跳过
func (p *SkipPolicy) ShouldSkipTimeout(timeLimit float64, problem, solver, settings string) bool {
	return p.ExpectedDuration(problem, solver, settings) > timeLimit
}

func (p *SkipPolicy) IssueCount() int {
	return len(p.issues)
}

func (p *SkipPolicy) TimeoutCount() int {
	return len(p.timeouts)
}
