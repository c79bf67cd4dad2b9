package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogue_EpsAbsPropagation(t *testing.T) {
	cat := newTestCatalogue(t, 1000, "osqp", "qpswift", "clarabel")

	osqp := cat.Get("high_accuracy", "osqp")
	assert.Equal(t, 1e-9, osqp["eps_abs"])
	assert.Equal(t, 0.0, osqp["eps_rel"])
	assert.Equal(t, 1000.0, osqp["time_limit"])
	assert.Equal(t, false, osqp["verbose"])

	clarabel := cat.Get("low_accuracy", "clarabel")
	assert.Equal(t, 1e-3, clarabel["tol_feas"])
	assert.Equal(t, 1e-3, clarabel["tol_gap_abs"])
	assert.Equal(t, 0.0, clarabel["tol_gap_rel"])

	// qpswift 的 RELTOL 需要换算
	reltol, ok := cat.Param("mid_accuracy", "qpswift", "RELTOL")
	require.True(t, ok)
	assert.InDelta(t, 1e-6*math.Sqrt(3), reltol.(float64), 1e-18)
}

func TestCatalogue_DefaultGroupHasNoAccuracy(t *testing.T) {
	cat := newTestCatalogue(t, 42, "osqp", "qpoases")

	osqp := cat.Get("default", "osqp")
	_, hasEps := osqp["eps_abs"]
	assert.False(t, hasEps)
	assert.Equal(t, 42.0, osqp["time_limit"])

	assert.Equal(t, "default", cat.Get("default", "qpoases")["predefined_options"])
	assert.Equal(t, "reliable", cat.Get("high_accuracy", "qpoases")["predefined_options"])
	assert.Equal(t, "fast", cat.Get("low_accuracy", "qpoases")["predefined_options"])
	_, hasPreset := cat.Get("mid_accuracy", "qpoases")["predefined_options"]
	assert.False(t, hasPreset)

	assert.Equal(t, true, cat.Get("high_accuracy", "piqp")["check_duality_gap"])
	assert.Equal(t, true, cat.Get("low_accuracy", "proxqp")["check_duality_gap"])
}

func TestCatalogue_GetReturnsCopy(t *testing.T) {
	cat := newTestCatalogue(t, 10, "osqp")
	opts := cat.Get("default", "osqp")
	opts["time_limit"] = -1.0
	opts["injected"] = true

	again := cat.Get("default", "osqp")
	assert.Equal(t, 10.0, again["time_limit"])
	_, ok := again["injected"]
	assert.False(t, ok)
}

func TestCatalogue_UnknownSolverOptionsEmpty(t *testing.T) {
	cat := newTestCatalogue(t, 10, "osqp")
	assert.Empty(t, cat.Get("default", "not-a-solver"))
	assert.Empty(t, cat.Get("no-such-settings", "osqp"))
}

func TestCatalogue_InconsistentDefinitions(t *testing.T) {
	tolerances := DefaultTolerances(10)
	delete(tolerances, "mid_accuracy")
	_, err := NewCatalogue(nil, DefaultSettingsGroups(), tolerances)
	assert.ErrorIs(t, err, ErrInconsistentSettings)

	tolerances = DefaultTolerances(10)
	tolerances["extra"] = Tolerance{Runtime: 10}
	_, err = NewCatalogue(nil, DefaultSettingsGroups(), tolerances)
	assert.ErrorIs(t, err, ErrInconsistentSettings)
}

func TestCatalogue_AvailableSolvers(t *testing.T) {
	cat := newTestCatalogue(t, 10, "osqp", "unknown-solver", "highs", "osqp")
	assert.Equal(t, []string{"highs", "osqp"}, cat.Available())
	assert.True(t, cat.HasSolver("highs"))
	assert.False(t, cat.HasSolver("unknown-solver"))
	assert.False(t, cat.HasSolver("gurobi"))
}

func TestCatalogue_NamesAndSolversSorted(t *testing.T) {
	cat := newTestCatalogue(t, 10)
	assert.Equal(t, []string{"default", "high_accuracy", "low_accuracy", "mid_accuracy"}, cat.Names())
	assert.True(t, cat.Has("low_accuracy"))
	assert.False(t, cat.Has("ultra"))

	solvers := cat.Solvers("default")
	assert.Len(t, solvers, len(ImplementedSolvers))
	assert.IsIncreasing(t, solvers)
	assert.Nil(t, cat.Solvers("ultra"))
}

func TestCatalogue_TimeLimitFollowsRuntimeTolerance(t *testing.T) {
	tolerances := DefaultTolerances(10)
	tol := tolerances["high_accuracy"]
	tol.Runtime = 60
	tolerances["high_accuracy"] = tol

	cat, err := NewCatalogue([]string{"gurobi", "scs"}, DefaultSettingsGroups(), tolerances)
	require.NoError(t, err)
	assert.Equal(t, 60.0, cat.Get("high_accuracy", "gurobi")["TimeLimit"])
	assert.Equal(t, 10.0, cat.Get("default", "scs")["time_limit_secs"])

	got, ok := cat.Tolerance("high_accuracy")
	require.True(t, ok)
	assert.Equal(t, 60.0, got.Runtime)
}

func TestCatalogue_VerbosityOnlySolver(t *testing.T) {
	groups := DefaultSettingsGroups()
	for i := range groups {
		groups[i].Verbose = true
	}
	cat, err := NewCatalogue([]string{"nppro"}, groups, DefaultTolerances(10))
	require.NoError(t, err)
	assert.Equal(t, []string{"nppro"}, cat.Available())
	assert.Equal(t, Options{"verbose": true}, cat.Get("high_accuracy", "nppro"))
}

func TestTolerance_FromMetric(t *testing.T) {
	tol := DefaultTolerances(100)["low_accuracy"]
	v, err := tol.FromMetric("primal_residual")
	require.NoError(t, err)
	assert.Equal(t, 1e-3, v)

	v, err = tol.FromMetric("runtime")
	require.NoError(t, err)
	assert.Equal(t, 100.0, v)

	v, err = tol.FromMetric("cost_error")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	_, err = tol.FromMetric("iterations")
	assert.ErrorIs(t, err, ErrUnknownMetric)
}
