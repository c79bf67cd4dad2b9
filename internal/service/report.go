package service

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"solver-bench/internal/model"
)

// ReportShift 报告中所有 shgm 表使用的平移量
const ReportShift = 10.0

// Report 由测试集与结果表生成 Markdown 报告
type Report struct {
	testSet *TestSet
	results *Results
	author  string
	now     func() time.Time

	success *Table
	correct *Table
	shgm    map[string]*Table
	hasCost bool
}

func NewReport(testSet *TestSet, results *Results, author string) *Report {
	return &Report{
		testSet: testSet,
		results: results,
		author:  author,
		now:     time.Now,
	}
}

func (r *Report) compute(records []model.ResultRecord) error {
	tolerances := r.testSet.Catalogue.Tolerances()
	var err error
	if r.success, err = SuccessRate(records, tolerances); err != nil {
		return fmt.Errorf("计算成功率失败: %w", err)
	}
	if r.correct, err = CorrectnessRate(records, tolerances); err != nil {
		return fmt.Errorf("计算正确率失败: %w", err)
	}

	r.hasCost = false
	for _, rec := range records {
		if rec.CostError != nil {
			r.hasCost = true
			break
		}
	}
	r.shgm = map[string]*Table{}
	for _, metric := range model.Metrics {
		if metric == model.MetricCostError && !r.hasCost {
			continue
		}
		notFound, err := NotFoundValues(tolerances, metric)
		if err != nil {
			return err
		}
		t, err := ShgmTable(records, metric, ReportShift, notFound)
		if err != nil {
			return err
		}
		r.shgm[metric] = t
	}
	return nil
}

// Render 生成完整报告文本
func (r *Report) Render() (string, error) {
	records := r.results.Records()
	if err := r.compute(records); err != nil {
		return "", err
	}

	var b strings.Builder
	r.writeHeader(&b, records)
	r.writeContents(&b)
	if r.testSet.Description != "" {
		b.WriteString(fmt.Sprintf("## Description\n\n%s\n\n", r.testSet.Description))
	}
	r.writeSettings(&b)
	r.writeLimitations(&b)
	r.writeResultsBySettings(&b)
	r.writeResultsByMetric(&b)
	return b.String(), nil
}

// Write 写报告文件，只接受 .md
func (r *Report) Write(path string) error {
	if filepath.Ext(path) != ".md" {
		return fmt.Errorf("%w: 报告文件 %q", ErrUnknownExtension, path)
	}
	text, err := r.Render()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建报告目录失败: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("写入报告失败: %w", err)
	}
	log.Printf("[report] 报告已写入 %s", path)
	return nil
}

func (r *Report) title() string {
	if r.testSet.Title != "" {
		return r.testSet.Title
	}
	return r.testSet.Name
}

func (r *Report) writeHeader(b *strings.Builder, records []model.ResultRecord) {
	problems := map[string]bool{}
	for _, rec := range records {
		problems[rec.Problem] = true
	}
	b.WriteString(fmt.Sprintf("# %s\n\n", r.title()))
	b.WriteString(fmt.Sprintf("| Number of problems | %d |\n", len(problems)))
	b.WriteString("|:-------------------|:--------------------|\n")
	b.WriteString(fmt.Sprintf("| Date               | %s |\n", r.now().UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("| Platform           | %s/%s, %d CPUs |\n", runtime.GOOS, runtime.GOARCH, runtime.NumCPU()))
	if r.author != "" {
		b.WriteString(fmt.Sprintf("| Run by             | [@%s](https://github.com/%s/) |\n", r.author, r.author))
	}
	b.WriteString("\n")
	b.WriteString("You can also [jump to results](#results-by-settings) directly.\n\n")
}

func (r *Report) writeContents(b *strings.Builder) {
	b.WriteString("## Contents\n\n")
	if r.testSet.Description != "" {
		b.WriteString("* [Description](#description)\n")
	}
	b.WriteString("* [Settings](#settings)\n")
	b.WriteString("* [Known limitations](#known-limitations)\n")
	b.WriteString("* [Results by settings](#results-by-settings)\n")
	for _, name := range r.testSet.Catalogue.Names() {
		b.WriteString(fmt.Sprintf("    * [%s](#%s)\n", capitalizeSettings(name), strings.ReplaceAll(name, "_", "-")))
	}
	b.WriteString("* [Results by metric](#results-by-metric)\n")
	b.WriteString("    * [Success rate](#success-rate)\n")
	b.WriteString("    * [Computation time](#computation-time)\n")
	b.WriteString("    * [Optimality conditions](#optimality-conditions)\n")
	b.WriteString("        * [Primal residual](#primal-residual)\n")
	b.WriteString("        * [Dual residual](#dual-residual)\n")
	b.WriteString("        * [Duality gap](#duality-gap)\n")
	if r.hasCost {
		b.WriteString("        * [Cost error](#cost-error)\n")
	}
	b.WriteString("\n")
}

func (r *Report) writeSettings(b *strings.Builder) {
	cat := r.testSet.Catalogue
	names := cat.Names()
	italics := make([]string, len(names))
	for i, n := range names {
		italics[i] = "*" + n + "*"
	}
	b.WriteString("## Settings\n\n")
	b.WriteString(fmt.Sprintf("There are %d settings: %s. They validate solutions using the following tolerances:\n\n",
		len(names), joinAnd(italics)))

	// 容差表
	b.WriteString("| tolerance | " + strings.Join(names, " | ") + " |\n")
	b.WriteString("|:--" + strings.Repeat("|--:", len(names)) + "|\n")
	tolerances := cat.Tolerances()
	rows := []struct {
		name string
		get  func(Tolerance) float64
	}{
		{"cost", func(t Tolerance) float64 { return t.Cost }},
		{"dual", func(t Tolerance) float64 { return t.Dual }},
		{"gap", func(t Tolerance) float64 { return t.Gap }},
		{"primal", func(t Tolerance) float64 { return t.Primal }},
		{"runtime", func(t Tolerance) float64 { return t.Runtime }},
	}
	for _, row := range rows {
		cells := make([]string, len(names))
		for i, n := range names {
			cells[i] = fmt.Sprintf("%g", row.get(tolerances[n]))
		}
		b.WriteString(fmt.Sprintf("| ``%s`` | %s |\n", row.name, strings.Join(cells, " | ")))
	}
	b.WriteString("\n")

	// 参数表：只列参与测试的求解器
	type paramKey struct{ solver, param string }
	keys := map[paramKey]bool{}
	for _, n := range names {
		for _, solver := range cat.Available() {
			for param := range cat.Get(n, solver) {
				keys[paramKey{solver, param}] = true
			}
		}
	}
	sorted := make([]paramKey, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].solver != sorted[j].solver {
			return sorted[i].solver < sorted[j].solver
		}
		return sorted[i].param < sorted[j].param
	})

	b.WriteString("Solvers for each settings are configured as follows:\n\n")
	b.WriteString("| solver | parameter | " + strings.Join(names, " | ") + " |\n")
	b.WriteString("|:--|:--" + strings.Repeat("|--:", len(names)) + "|\n")
	for _, k := range sorted {
		cells := make([]string, len(names))
		for i, n := range names {
			if v, ok := cat.Param(n, k.solver, k.param); ok {
				cells[i] = fmt.Sprint(v)
			} else {
				cells[i] = "-"
			}
		}
		b.WriteString(fmt.Sprintf("| %s | ``%s`` | %s |\n", k.solver, k.param, strings.Join(cells, " | ")))
	}
	b.WriteString("\n")
}

func (r *Report) writeLimitations(b *strings.Builder) {
	skips := r.testSet.Skips
	b.WriteString("## Known limitations\n\n")
	b.WriteString(fmt.Sprintf("%d known solver issues and %d known timeouts are skipped without calling the solver. "+
		"Skipped runs count as failures with zero runtime.\n\n", skips.IssueCount(), skips.TimeoutCount()))
}

func (r *Report) writeResultsBySettings(b *strings.Builder) {
	type column struct {
		title  string
		table  *Table
		format string
	}
	cols := []column{
		{"[Success rate](#success-rate) (%)", r.success, "%.1f"},
		{"[Runtime](#computation-time) (shm)", r.shgm[model.MetricRuntime], "%.1f"},
		{"[Primal residual](#primal-residual) (shm)", r.shgm[model.MetricPrimalResidual], "%.1f"},
		{"[Dual residual](#dual-residual) (shm)", r.shgm[model.MetricDualResidual], "%.1f"},
		{"[Duality gap](#duality-gap) (shm)", r.shgm[model.MetricDualityGap], "%.1f"},
	}
	if r.hasCost {
		cols = append(cols, column{"[Cost error](#cost-error) (shm)", r.shgm[model.MetricCostError], "%.1f"})
	}

	b.WriteString("## Results by settings\n\n")
	for _, settings := range r.testSet.Catalogue.Names() {
		b.WriteString(fmt.Sprintf("### %s\n\n", capitalizeSettings(settings)))
		b.WriteString("Solvers are compared over the whole test set by shifted geometric mean (shm). Lower is better, 1.0 is the best.\n\n")
		b.WriteString("| |")
		for _, c := range cols {
			b.WriteString(" " + c.title + " |")
		}
		b.WriteString("\n|:--" + strings.Repeat("|--:", len(cols)) + "|\n")
		for _, solver := range r.success.Solvers {
			b.WriteString("| " + solver + " |")
			for _, c := range cols {
				v, ok := c.table.Value(solver, settings)
				b.WriteString(" " + formatCell(v, ok, c.format) + " |")
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
}

func (r *Report) writeResultsByMetric(b *strings.Builder) {
	b.WriteString("## Results by metric\n\n")
	b.WriteString("### Success rate\n\n")
	b.WriteString("Percentage of problems each solver is able to solve:\n\n")
	b.WriteString(markdownTable(r.success, "%.0f"))
	b.WriteString("\nRows are solvers and columns are settings. A solver successfully solved a problem when " +
		"(1) it returned with a success status and (2) its solution satisfies optimality conditions within tolerance.\n\n")
	b.WriteString("Percentage of problems where \"solved\" return codes are correct:\n\n")
	b.WriteString(markdownTable(r.correct, "%.0f"))
	b.WriteString("\n")

	b.WriteString("### Computation time\n\n")
	b.WriteString("Shifted geometric mean of solver computation times (1.0 is the best):\n\n")
	b.WriteString(markdownTable(r.shgm[model.MetricRuntime], "%.1f"))
	b.WriteString(fmt.Sprintf("\nRows are solvers and columns are settings. The shift is $sh = %g$. "+
		"A solver's run time is taken at the time limit when it fails to solve a problem.\n\n", ReportShift))

	b.WriteString("### Optimality conditions\n\n")
	sections := []struct {
		title, metric, tolerance string
	}{
		{"Primal residual", model.MetricPrimalResidual, "primal tolerance"},
		{"Dual residual", model.MetricDualResidual, "dual tolerance"},
		{"Duality gap", model.MetricDualityGap, "gap tolerance"},
		{"Cost error", model.MetricCostError, "cost tolerance"},
	}
	for _, s := range sections {
		t, ok := r.shgm[s.metric]
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf("#### %s\n\n", s.title))
		b.WriteString(fmt.Sprintf("Shifted geometric means of %s (1.0 is the best):\n\n", strings.ToLower(s.title)))
		b.WriteString(markdownTable(t, "%.1f"))
		b.WriteString(fmt.Sprintf("\nRows are solvers and columns are settings. The shift is $sh = %g$. "+
			"A solver that fails to find a solution receives a value equal to the full %s.\n\n", ReportShift, s.tolerance))
	}
}

func markdownTable(t *Table, format string) string {
	var b strings.Builder
	b.WriteString("| | " + strings.Join(t.Settings, " | ") + " |\n")
	b.WriteString("|:--" + strings.Repeat("|--:", len(t.Settings)) + "|\n")
	for _, solver := range t.Solvers {
		cells := make([]string, len(t.Settings))
		for i, settings := range t.Settings {
			v, ok := t.Value(solver, settings)
			cells[i] = formatCell(v, ok, format)
		}
		b.WriteString("| " + solver + " | " + strings.Join(cells, " | ") + " |\n")
	}
	return b.String()
}

func formatCell(v float64, ok bool, format string) string {
	if !ok {
		return "-"
	}
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf(format, v)
}

// capitalizeSettings "low_accuracy" -> "Low accuracy"
func capitalizeSettings(name string) string {
	s := strings.ToLower(strings.ReplaceAll(name, "_", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func joinAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}
