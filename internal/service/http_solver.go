package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// HTTPSolver 通过远程求解服务求解：POST {BaseURL}/solve
type HTTPSolver struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

type solveRequest struct {
	Problem     string   `json:"problem"`
	Path        string   `json:"path"`
	Solver      string   `json:"solver"`
	Options     Options  `json:"options"`
	OptimalCost *float64 `json:"optimal_cost,omitempty"`
}

// NewHTTPSolver timeout 为单次请求的上限，0 表示不限制
func NewHTTPSolver(baseURL, apiKey string, timeout time.Duration) *HTTPSolver {
	return &HTTPSolver{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *HTTPSolver) Solve(ctx context.Context, problem Problem, solver string, opts Options) Solution {
	out, err := s.post(ctx, problem, solver, opts)
	if err != nil {
		log.Printf("[solver] %s 远程求解 %s 失败: %v", solver, problem.Name, err)
		return NotFound()
	}
	return out.solution(problem)
}

func (s *HTTPSolver) post(ctx context.Context, problem Problem, solver string, opts Options) (*commandOutput, error) {
	reqBody := solveRequest{
		Problem:     problem.Name,
		Path:        problem.Path,
		Solver:      solver,
		Options:     opts,
		OptimalCost: problem.OptimalCost,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/solve", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.APIKey))
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var errResp map[string]interface{}
		if json.Unmarshal(body, &errResp) == nil {
			if msg, ok := errResp["message"].(string); ok {
				return nil, fmt.Errorf("API返回错误: %d, %s", resp.StatusCode, msg)
			}
		}
		return nil, fmt.Errorf("API返回错误: %d, %s", resp.StatusCode, string(body))
	}

	var out commandOutput
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w, body: %s", err, string(body))
	}
	return &out, nil
}
