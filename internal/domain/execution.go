// Package domain 定义了动态函数执行平台的核心领域模型。
package domain

import (
	"encoding/json"
	"time"
)

// ExecutionStatus 表示一次函数执行的最终状态。
type ExecutionStatus string

// 执行状态常量定义
const (
	// ExecutionStatusSuccess 表示执行成功
	ExecutionStatusSuccess ExecutionStatus = "success"
	// ExecutionStatusError 表示执行失败（包括超时、越权和运行时错误）
	ExecutionStatusError ExecutionStatus = "error"
)

// MaxLogEntriesPerFunction 是每个函数保留的执行日志条目上限。
// 日志按最近优先排列，超出上限时最旧的条目被淘汰。
const MaxLogEntriesPerFunction = 100

// ExecutionLogEntry 表示一次函数调用的执行日志条目。
// 条目在创建后不可变，永不单独删除，只会被容量上限整体淘汰。
type ExecutionLogEntry struct {
	// ID 是日志条目的唯一标识符
	ID string `json:"id"`
	// FunctionName 是被调用函数的名称
	FunctionName string `json:"function_name"`
	// Timestamp 是调用发生的时间
	Timestamp time.Time `json:"timestamp"`
	// DurationMs 是执行耗时（单位：毫秒）
	DurationMs int64 `json:"duration_ms"`
	// Status 是执行的最终状态
	Status ExecutionStatus `json:"status"`
	// Inputs 是调用的原始载荷，以 JSON 格式存储
	Inputs json.RawMessage `json:"inputs,omitempty"`
	// Output 是执行的返回值，仅在成功时存在
	Output json.RawMessage `json:"output,omitempty"`
	// Error 是失败原因描述，仅在失败时存在
	Error string `json:"error,omitempty"`
}

// DayBucket 表示滚动窗口中单个 UTC 日历日的调用统计。
type DayBucket struct {
	// Date 是 UTC 日期，格式为 "2006-01-02"
	Date string `json:"date"`
	// Calls 是当日调用总数
	Calls int64 `json:"calls"`
	// Errors 是当日失败调用数
	Errors int64 `json:"errors"`
}

// AnalyticsSnapshot 表示从执行日志派生的聚合统计。
// 该结构按需计算，不做持久化，没有独立的生命周期。
type AnalyticsSnapshot struct {
	// FunctionName 是函数名称
	FunctionName string `json:"function_name"`
	// TotalCalls 是日志窗口内的调用总数
	TotalCalls int64 `json:"total_calls"`
	// SuccessCount 是成功调用数
	SuccessCount int64 `json:"success_count"`
	// ErrorCount 是失败调用数
	ErrorCount int64 `json:"error_count"`
	// SuccessRate 是成功率（成功数 / 总数），无调用时为 0
	SuccessRate float64 `json:"success_rate"`
	// AvgDurationMs 是平均执行耗时（单位：毫秒）
	AvgDurationMs float64 `json:"avg_duration_ms"`
	// LastCalledAt 是最近一次调用的时间，无调用时为 nil
	LastCalledAt *time.Time `json:"last_called_at,omitempty"`
	// Daily 是最近 7 个 UTC 日历日的逐日统计（含零值日），按日期升序
	Daily []DayBucket `json:"daily"`
}

// ExecutionRecorder 定义了执行遥测记录器的接口。
// Record 必须是非阻塞的尽力而为操作：记录失败或延迟
// 永远不能影响调用方的响应路径。
type ExecutionRecorder interface {
	// Record 记录一条执行日志，异步落盘
	Record(entry *ExecutionLogEntry)
	// ListRecent 返回指定函数最近的日志条目，最近优先，最多 limit 条
	ListRecent(functionName string, limit int) ([]*ExecutionLogEntry, error)
	// Aggregate 从日志计算聚合统计快照
	Aggregate(functionName string) (*AnalyticsSnapshot, error)
}
