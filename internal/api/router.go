// Package api 提供了动态函数执行平台的 HTTP API 处理程序。
// 该文件负责配置 HTTP 路由器和中间件，将请求映射到相应的处理器方法。
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oriys/conjure/internal/auth"
	"github.com/oriys/conjure/internal/telemetry"
)

// RouterConfig 路由器配置选项
type RouterConfig struct {
	// Handler API 处理器
	Handler *Handler
	// Auth 管理接口认证中间件（可选，未配置时管理接口放开）
	Auth *auth.Middleware
	// RequestTimeout 单个请求的处理超时时间
	RequestTimeout time.Duration
}

// NewRouter 创建并配置 HTTP 路由器。
//
// 路由结构：
//
//	/health              - 基本健康检查
//	/health/ready        - 就绪探针
//	/health/live         - 存活探针
//	/metrics             - Prometheus 指标端点
//	/run/{name}          - 函数调用端点（函数令牌鉴权）
//	/api/v1/functions    - 函数管理 API（JWT 鉴权）
//
// 调用端点刻意放在管理接口认证之外：它只认逐函数签发的令牌。
func NewRouter(cfg *RouterConfig) *chi.Mux {
	h := cfg.Handler
	r := chi.NewRouter()

	// 中间件按添加顺序执行，形成洋葱模型
	r.Use(telemetry.HTTPMiddleware("conjure-gateway"))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5, "application/json", "text/plain"))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	r.Use(middleware.Timeout(timeout))
	r.Use(corsMiddleware)

	// 健康检查端点
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)
	r.Get("/health/live", h.Live)

	// Prometheus 指标端点
	r.Handle("/metrics", promhttp.Handler())

	// 函数调用端点，Bearer 函数令牌鉴权
	r.Post("/run/{name}", h.Run)

	// 管理 API 路由组
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(cfg.Auth.Authenticate)
		}

		r.Route("/functions", func(r chi.Router) {
			// POST /api/v1/functions - 创建新函数
			r.Post("/", h.CreateFunction)
			// GET /api/v1/functions - 获取函数列表
			r.Get("/", h.ListFunctions)

			r.Route("/{name}", func(r chi.Router) {
				// GET /api/v1/functions/{name} - 获取函数详情
				r.Get("/", h.GetFunction)
				// PUT /api/v1/functions/{name} - 更新函数
				r.Put("/", h.UpdateFunction)
				// DELETE /api/v1/functions/{name} - 删除函数
				r.Delete("/", h.DeleteFunction)
				// GET /api/v1/functions/{name}/logs - 获取执行日志
				r.Get("/logs", h.ListLogs)
				// GET /api/v1/functions/{name}/logs/stream - 实时日志流
				r.Get("/logs/stream", h.LogStream)
				// GET /api/v1/functions/{name}/analytics - 获取聚合统计
				r.Get("/analytics", h.GetAnalytics)
			})
		})
	})

	return r
}

// corsMiddleware 处理跨域资源共享（CORS）。
// 预检请求直接放行，实际请求附带许可头后继续。
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
