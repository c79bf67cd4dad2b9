package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSolver_Solve(t *testing.T) {
	var got solveRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/solve", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"found": true, "primal_residual": 1e-9, "dual_residual": 1e-9, "duality_gap": 0, "cost": 2.5}`))
	}))
	defer srv.Close()

	s := NewHTTPSolver(srv.URL+"/", "secret", 5*time.Second)
	problem := Problem{Name: "HS35", Path: "/data/HS35.mat", OptimalCost: ptr(2.0)}
	sol := s.Solve(context.Background(), problem, "osqp", Options{"eps_abs": 1e-6})

	require.True(t, sol.Found)
	assert.Equal(t, 1e-9, *sol.PrimalResidual)
	assert.InDelta(t, 0.5, *sol.CostError, 1e-12)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "HS35", got.Problem)
	assert.Equal(t, "osqp", got.Solver)
	assert.Equal(t, 1e-6, got.Options["eps_abs"])
	assert.Equal(t, 2.0, *got.OptimalCost)
}

func TestHTTPSolver_ErrorsBecomeNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message": "solver crashed"}`))
	}))
	defer srv.Close()

	s := NewHTTPSolver(srv.URL, "", time.Second)
	assert.Equal(t, NotFound(), s.Solve(context.Background(), Problem{Name: "HS35"}, "osqp", Options{}))

	_, err := s.post(context.Background(), Problem{Name: "HS35"}, "osqp", Options{})
	assert.ErrorContains(t, err, "solver crashed")

	down := NewHTTPSolver("http://127.0.0.1:1", "", time.Second)
	assert.Equal(t, NotFound(), down.Solve(context.Background(), Problem{Name: "HS35"}, "osqp", Options{}))
}

func TestHTTPSolver_BadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	s := NewHTTPSolver(srv.URL, "", time.Second)
	assert.Equal(t, NotFound(), s.Solve(context.Background(), Problem{Name: "HS35"}, "osqp", Options{}))
}
