package handler

import (
	"errors"
	"net/http"
	"strconv"

	"solver-bench/internal/db"
	"solver-bench/internal/model"
	"solver-bench/internal/service"

	"github.com/gin-gonic/gin"
)

type ResultsHandler struct {
	svc *service.ServiceContext
}

func NewResultsHandler(svc *service.ServiceContext) *ResultsHandler {
	return &ResultsHandler{svc: svc}
}

// ListResults 当前测试集的结果，可按 problem/solver/settings 过滤
func (h *ResultsHandler) ListResults(c *gin.Context) {
	problem := c.Query("problem")
	solver := c.Query("solver")
	settings := c.Query("settings")

	records := make([]model.ResultRecord, 0)
	for _, rec := range h.svc.Results.Records() {
		if problem != "" && rec.Problem != problem {
			continue
		}
		if solver != "" && rec.Solver != solver {
			continue
		}
		if settings != "" && rec.Settings != settings {
			continue
		}
		records = append(records, rec)
	}

	c.JSON(http.StatusOK, gin.H{
		"test_set": h.svc.TestSet.Name,
		"results":  records,
		"total":    len(records),
	})
}

// SuccessRate 成功率表
func (h *ResultsHandler) SuccessRate(c *gin.Context) {
	table, err := service.SuccessRate(h.svc.Results.Records(), h.svc.TestSet.Catalogue.Tolerances())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, table)
}

// CorrectRate 正确率表
func (h *ResultsHandler) CorrectRate(c *gin.Context) {
	table, err := service.CorrectnessRate(h.svc.Results.Records(), h.svc.TestSet.Catalogue.Tolerances())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, table)
}

// Shgm 归一化的平移几何平均表 ?metric=runtime&shift=10
func (h *ResultsHandler) Shgm(c *gin.Context) {
	metric := c.DefaultQuery("metric", model.MetricRuntime)
	shift, err := strconv.ParseFloat(c.DefaultQuery("shift", "10"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shift 必须是数字"})
		return
	}

	notFound, err := service.NotFoundValues(h.svc.TestSet.Catalogue.Tolerances(), metric)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	table, err := service.ShgmTable(h.svc.Results.Records(), metric, shift, notFound)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrInvalidShift) || errors.Is(err, service.ErrUnknownMetric) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"metric": metric,
		"shift":  shift,
		"table":  table,
	})
}

// Report Markdown 报告
func (h *ResultsHandler) Report(c *gin.Context) {
	text, err := h.svc.NewReport().Render()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(text))
}

// StartRun 同步执行一次 run，返回统计
func (h *ResultsHandler) StartRun(c *gin.Context) {
	var req service.RunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	summary, err := h.svc.TryRun(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRunInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrSettingsNotFound),
			errors.Is(err, service.ErrSolverNotFound),
			errors.Is(err, service.ErrProblemNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": summary})
		}
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ListRuns 数据库中的 run 记录；未启用数据库时返回 501
func (h *ResultsHandler) ListRuns(c *gin.Context) {
	if db.DB == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "未启用数据库"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := db.ListRuns(c.Request.Context(), db.DB, h.svc.TestSet.Name, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}
