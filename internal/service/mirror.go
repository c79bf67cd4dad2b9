package service

import (
	"context"

	"solver-bench/internal/model"
)

// Mirror 结果镜像（数据库等）。CSV 文件是唯一事实来源，镜像失败只记日志。
type Mirror interface {
	SyncResults(ctx context.Context, records []model.ResultRecord) error
	RecordRun(ctx context.Context, run *model.BenchmarkRun) error
}
