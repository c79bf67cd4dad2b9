package service

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// TestSet 问题来源 + settings 目录 + 跳过策略
type TestSet struct {
	Name        string
	Title       string
	Description string
	Source      ProblemSource
	Catalogue   *Catalogue
	Skips       *SkipPolicy
}

type toleranceOverride struct {
	Primal  *float64 `yaml:"primal"`
	Dual    *float64 `yaml:"dual"`
	Gap     *float64 `yaml:"gap"`
	Cost    *float64 `yaml:"cost"`
	Runtime *float64 `yaml:"runtime"`
}

type customSettings struct {
	Name      string            `yaml:"name"`
	EpsAbs    *float64          `yaml:"eps_abs"`
	EpsRel    *float64          `yaml:"eps_rel"`
	Tolerance toleranceOverride `yaml:"tolerance"`
}

type knownIssue struct {
	Problem string `yaml:"problem"`
	Solver  string `yaml:"solver"`
}

type knownTimeout struct {
	Problem  string  `yaml:"problem"`
	Solver   string  `yaml:"solver"`
	Settings string  `yaml:"settings"`
	Seconds  float64 `yaml:"seconds"`
}

// testSetFile 测试集 yaml 文件格式
type testSetFile struct {
	Name         string  `yaml:"name"`
	Title        string  `yaml:"title"`
	Description  string  `yaml:"description"`
	ProblemsDir  string  `yaml:"problems_dir"`
	ProblemExt   string  `yaml:"problem_ext"`
	OptimalCosts string  `yaml:"optimal_costs"`
	TimeLimit    float64 `yaml:"time_limit"`

	Tolerances     map[string]toleranceOverride `yaml:"tolerances"`
	Params         map[string]map[string]Options `yaml:"params"`
	CustomSettings []customSettings             `yaml:"custom_settings"`
	KnownIssues    []knownIssue                 `yaml:"known_issues"`
	KnownTimeouts  []knownTimeout               `yaml:"known_timeouts"`
}

// LoadTestSet 读取测试集 yaml；相对路径以 yaml 所在目录为基准
func LoadTestSet(path string, available []string, verbose bool) (*TestSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取测试集文件失败: %w", err)
	}
	var def testSetFile
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("解析测试集文件失败: %w", err)
	}
	if def.Name == "" {
		base := filepath.Base(path)
		def.Name = base[:len(base)-len(filepath.Ext(base))]
	}

	base := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	source, err := NewDirSource(resolve(def.ProblemsDir), def.ProblemExt, resolve(def.OptimalCosts))
	if err != nil {
		return nil, err
	}

	catalogue, err := def.catalogue(available, verbose)
	if err != nil {
		return nil, err
	}

	skips := NewSkipPolicy()
	for _, is := range def.KnownIssues {
		skips.AddIssue(is.Problem, is.Solver)
	}
	for _, to := range def.KnownTimeouts {
		skips.AddTimeout(to.Problem, to.Solver, to.Settings, to.Seconds)
	}

	return &TestSet{
		Name:        def.Name,
		Title:       def.Title,
		Description: def.Description,
		Source:      source,
		Catalogue:   catalogue,
		Skips:       skips,
	}, nil
}

func (def testSetFile) catalogue(available []string, verbose bool) (*Catalogue, error) {
	timeLimit := def.TimeLimit
	if timeLimit <= 0 {
		timeLimit = 10.0
	}
	tolerances := DefaultTolerances(timeLimit)
	groups := DefaultSettingsGroups()

	for _, cs := range def.CustomSettings {
		groups = append(groups, SettingsGroup{Name: cs.Name, EpsAbs: cs.EpsAbs, EpsRel: cs.EpsRel})
		// 未指定的字段沿用 default 组
		tol := tolerances["default"]
		if cs.EpsAbs != nil {
			tol.Primal, tol.Dual, tol.Gap = *cs.EpsAbs, *cs.EpsAbs, *cs.EpsAbs
		}
		tolerances[cs.Name] = cs.Tolerance.apply(tol)
	}
	for name, ov := range def.Tolerances {
		tolerances[name] = ov.apply(tolerances[name])
	}

	known := map[string]bool{}
	for _, g := range groups {
		known[g.Name] = true
	}
	for name := range def.Params {
		if !known[name] {
			return nil, fmt.Errorf("%w: params 中的 settings %q 未定义", ErrInconsistentSettings, name)
		}
	}

	for i := range groups {
		groups[i].Verbose = verbose
		for solver, params := range def.Params[groups[i].Name] {
			if groups[i].Params == nil {
				groups[i].Params = map[string]Options{}
			}
			merged := Options{}
			for k, v := range groups[i].Params[solver] {
				merged[k] = v
			}
			for k, v := range params {
				merged[k] = v
			}
			groups[i].Params[solver] = merged
		}
	}
	return NewCatalogue(available, groups, tolerances)
}

func (o toleranceOverride) apply(t Tolerance) Tolerance {
	if o.Primal != nil {
		t.Primal = *o.Primal
	}
	if o.Dual != nil {
		t.Dual = *o.Dual
	}
	if o.Gap != nil {
		t.Gap = *o.Gap
	}
	if o.Cost != nil {
		t.Cost = *o.Cost
	}
	if o.Runtime != nil {
		t.Runtime = *o.Runtime
	}
	return t
}
