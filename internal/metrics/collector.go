// Package metrics 提供 Prometheus 指标采集与上报的统一封装。
// 该包集中定义平台关键指标（调用、安全扫描、沙箱、遥测队列等），
// 便于在各模块复用并保持标签一致。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 封装平台运行时指标集合。
// 所有字段均为 Prometheus 指标类型，通过辅助方法更新指标值。
// 辅助方法对 nil 接收者安全，未启用指标的组件可以直接持有 nil。
//
// 指标分类:
//   - 调用指标: 跟踪函数调用的数量、耗时和失败类别
//   - 安全指标: 统计安全扫描拒绝和沙箱越权尝试
//   - 遥测指标: 监控执行记录队列的积压和丢弃
//   - 目录指标: 统计注册的函数数量和生成服务调用
type Metrics struct {
	// ========== 调用相关指标 ==========

	// InvocationsTotal 函数调用总次数计数器
	// 标签: function_name, status
	InvocationsTotal *prometheus.CounterVec

	// InvocationDuration 函数调用耗时直方图（单位：毫秒）
	// 标签: function_name
	// 桶边界: 1, 5, 10, 50, 100, 250, 500, 1000, 2500, 5000 ms
	InvocationDuration *prometheus.HistogramVec

	// InvocationErrors 调用失败计数器，按失败类别分类
	// 标签: function_name, error_kind
	InvocationErrors *prometheus.CounterVec

	// SandboxTimeouts 沙箱强制中断次数计数器
	// 标签: function_name
	SandboxTimeouts *prometheus.CounterVec

	// ========== 安全相关指标 ==========

	// SafetyRejections 安全扫描拒绝次数计数器
	// 标签: stage (register/invoke), reason
	SafetyRejections *prometheus.CounterVec

	// UnauthorizedAccess 沙箱越权访问尝试计数器
	// 标签: function_name
	UnauthorizedAccess *prometheus.CounterVec

	// AuthFailures 调用令牌校验失败计数器
	// 标签: reason (missing/malformed/empty/mismatch)
	AuthFailures *prometheus.CounterVec

	// ========== 遥测相关指标 ==========

	// TelemetryDropped 执行记录因队列满被丢弃的条数
	TelemetryDropped prometheus.Counter

	// ========== 目录相关指标 ==========

	// FunctionsTotal 注册的函数总数
	FunctionsTotal prometheus.Gauge

	// GeneratorRequests 代码生成服务调用计数器
	// 标签: kind (code/docs), status (ok/error)
	GeneratorRequests *prometheus.CounterVec
}

// NewMetrics 创建并注册一组 Prometheus 指标。
// namespace 用于作为所有指标名前缀，便于在同一 Prometheus 中区分不同应用。
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		InvocationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of function invocations",
			},
			[]string{"function_name", "status"},
		),
		InvocationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_ms",
				Help:      "Function invocation duration in milliseconds",
				Buckets:   []float64{1, 5, 10, 50, 100, 250, 500, 1000, 2500, 5000},
			},
			[]string{"function_name"},
		),
		InvocationErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocation_errors_total",
				Help:      "Total number of invocation failures by kind",
			},
			[]string{"function_name", "error_kind"},
		),
		SandboxTimeouts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sandbox_timeouts_total",
				Help:      "Total number of forcibly interrupted executions",
			},
			[]string{"function_name"},
		),
		SafetyRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "safety_rejections_total",
				Help:      "Total number of sources rejected by the safety scan",
			},
			[]string{"stage", "reason"},
		),
		UnauthorizedAccess: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unauthorized_access_total",
				Help:      "Total number of sandbox escape attempts",
			},
			[]string{"function_name"},
		),
		AuthFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Total number of rejected invocation credentials",
			},
			[]string{"reason"},
		),
		TelemetryDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "telemetry_dropped_total",
				Help:      "Execution log entries dropped due to a full queue",
			},
		),
		FunctionsTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "functions_total",
				Help:      "Total number of registered functions",
			},
		),
		GeneratorRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generator_requests_total",
				Help:      "Total number of code generator service calls",
			},
			[]string{"kind", "status"},
		),
	}
}

// RecordInvocation 记录一次函数调用的结果和耗时
func (m *Metrics) RecordInvocation(functionName, status string, durationMs float64) {
	if m == nil {
		return
	}
	m.InvocationsTotal.WithLabelValues(functionName, status).Inc()
	m.InvocationDuration.WithLabelValues(functionName).Observe(durationMs)
}

// RecordInvocationError 记录一次按类别归类的调用失败
func (m *Metrics) RecordInvocationError(functionName, errorKind string) {
	if m == nil {
		return
	}
	m.InvocationErrors.WithLabelValues(functionName, errorKind).Inc()
	switch errorKind {
	case "timeout":
		m.SandboxTimeouts.WithLabelValues(functionName).Inc()
	case "unauthorized_access":
		m.UnauthorizedAccess.WithLabelValues(functionName).Inc()
	}
}

// RecordSafetyRejection 记录一次安全扫描拒绝
func (m *Metrics) RecordSafetyRejection(stage, reason string) {
	if m == nil {
		return
	}
	m.SafetyRejections.WithLabelValues(stage, reason).Inc()
}

// RecordAuthFailure 记录一次调用令牌校验失败
func (m *Metrics) RecordAuthFailure(reason string) {
	if m == nil {
		return
	}
	m.AuthFailures.WithLabelValues(reason).Inc()
}

// RecordTelemetryDrop 记录一条被丢弃的执行记录
func (m *Metrics) RecordTelemetryDrop() {
	if m == nil {
		return
	}
	m.TelemetryDropped.Inc()
}

// UpdateFunctionsTotal 更新注册函数总数
func (m *Metrics) UpdateFunctionsTotal(count int) {
	if m == nil {
		return
	}
	m.FunctionsTotal.Set(float64(count))
}

// RecordGeneratorRequest 记录一次代码生成服务调用
func (m *Metrics) RecordGeneratorRequest(kind string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.GeneratorRequests.WithLabelValues(kind, status).Inc()
}
