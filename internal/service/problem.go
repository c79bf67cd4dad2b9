package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Problem 测试问题。核心只用 Name 做键，其余字段交给求解器。
type Problem struct {
	Name        string
	Path        string
	OptimalCost *float64
	CostOffset  float64
}

// ProblemSource 测试集的问题来源
type ProblemSource interface {
	Problems() []Problem
	Count() int
	Get(name string) (Problem, error)
}

// StaticSource 内存中的问题列表
type StaticSource []Problem

func (s StaticSource) Problems() []Problem {
	return append([]Problem(nil), s...)
}

func (s StaticSource) Count() int {
	return len(s)
}

func (s StaticSource) Get(name string) (Problem, error) {
	for _, p := range s {
		if p.Name == name {
			return p, nil
		}
	}
	return Problem{}, fmt.Errorf("%w: %q", ErrProblemNotFound, name)
}

// DirSource 目录下所有 ext 后缀的文件，每个文件一个问题，按文件名排序
type DirSource struct {
	Dir      string
	Ext      string
	problems []Problem
}

// NewDirSource 扫描目录；costsPath 非空时读取 "问题名: 最优值" 的 yaml
func NewDirSource(dir, ext, costsPath string) (*DirSource, error) {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("读取问题目录失败: %w", err)
	}

	costs := map[string]float64{}
	if costsPath != "" {
		data, err := os.ReadFile(costsPath)
		if err != nil {
			return nil, fmt.Errorf("读取最优值文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, &costs); err != nil {
			return nil, fmt.Errorf("解析最优值文件失败: %w", err)
		}
	}

	src := &DirSource{Dir: dir, Ext: ext}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fname := e.Name()
		if ext != "" && filepath.Ext(fname) != ext {
			continue
		}
		name := strings.TrimSuffix(fname, filepath.Ext(fname))
		p := Problem{Name: name, Path: filepath.Join(dir, fname)}
		if c, ok := costs[name]; ok {
			c := c
			p.OptimalCost = &c
		}
		src.problems = append(src.problems, p)
	}
	sort.Slice(src.problems, func(i, j int) bool {
		return src.problems[i].Name < src.problems[j].Name
	})
	return src, nil
}

func (s *DirSource) Problems() []Problem {
	return append([]Problem(nil), s.problems...)
}

func (s *DirSource) Count() int {
	return len(s.problems)
}

func (s *DirSource) Get(name string) (Problem, error) {
	return StaticSource(s.problems).Get(name)
}
