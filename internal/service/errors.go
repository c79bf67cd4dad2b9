package service

import "errors"

var (
	// 配置不一致：在任何求解调用之前返回
	ErrInconsistentSettings = errors.New("settings 与 tolerances 定义不一致")
	ErrSettingsNotFound     = errors.New("settings 不存在")
	ErrSolverNotFound       = errors.New("求解器不可用")
	ErrProblemNotFound      = errors.New("问题不在测试集中")

	// 结果文件结构损坏（load 时）
	ErrResultsCorrupt   = errors.New("结果文件结构不一致")
	ErrUnknownExtension = errors.New("未知的结果文件扩展名")
	ErrNoResultsPath    = errors.New("没有可写入的结果文件路径")

	// 统计前置条件
	ErrInvalidShift  = errors.New("shift 参数必须 >= 1")
	ErrNegativeValue = errors.New("shgm 输入存在负值")
	ErrEmptyValues   = errors.New("shgm 输入为空")
	ErrUnknownMetric = errors.New("未知指标")

	ErrRunInProgress = errors.New("已有 run 正在执行")
)
