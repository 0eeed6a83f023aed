// Package api 提供了动态函数执行平台的 HTTP API 处理程序。
// 该包实现了 RESTful 管理接口与函数调用接口：
//   - 函数的 CRUD 操作（创建时经过代码生成、安全扫描与编译检查）
//   - POST /run/{name} 持函数令牌的调用端点
//   - 执行日志、聚合统计与 WebSocket 实时日志流
//   - 健康检查端点
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oriys/conjure/internal/auth"
	"github.com/oriys/conjure/internal/catalog"
	"github.com/oriys/conjure/internal/domain"
	"github.com/oriys/conjure/internal/events"
	"github.com/oriys/conjure/internal/generator"
	"github.com/oriys/conjure/internal/invoker"
	"github.com/oriys/conjure/internal/metrics"
	"github.com/oriys/conjure/internal/normalize"
	"github.com/oriys/conjure/internal/safety"
	"github.com/oriys/conjure/internal/sandbox"
	"github.com/oriys/conjure/internal/scheduler"
)

// maxRequestBody 是请求体大小上限，防止超大载荷拖垮解析
const maxRequestBody = 1 << 20

// Handler 是 API 请求处理器的核心结构体。
// 它封装了目录、生成器、调用编排器和遥测记录器的依赖，
// 负责处理所有 HTTP 请求。Events 和 Cron 为可选依赖，
// 单实例最小部署时可为 nil。
type Handler struct {
	store       catalog.Store
	generator   *generator.Client
	safety      *safety.Validator
	normalizer  *normalize.Normalizer
	invoker     *invoker.Invoker
	recorder    domain.ExecutionRecorder
	events      *events.EventBus
	cron        *scheduler.CronManager
	metrics     *metrics.Metrics
	broadcaster *Broadcaster
	tools       ToolRegistry
	logger      *logrus.Logger
}

// ToolRegistry 是工具注册表的最小刷新接口，
// 由 MCP 服务器实现。
type ToolRegistry interface {
	Refresh(ctx context.Context, name string)
}

// HandlerConfig 聚合 Handler 的全部依赖。
type HandlerConfig struct {
	// Store 函数目录
	Store catalog.Store
	// Generator 代码生成服务客户端
	Generator *generator.Client
	// Invoker 调用编排器
	Invoker *invoker.Invoker
	// Recorder 执行遥测记录器
	Recorder domain.ExecutionRecorder
	// Events 事件总线（可选）
	Events *events.EventBus
	// Cron 定时任务管理器（可选）
	Cron *scheduler.CronManager
	// Metrics 指标收集器（可为 nil）
	Metrics *metrics.Metrics
	// Broadcaster 实时日志广播器（可选）
	Broadcaster *Broadcaster
	// Tools 工具注册表（可选）
	Tools ToolRegistry
	// Logger 日志记录器
	Logger *logrus.Logger
}

// NewHandler 创建并返回一个新的 Handler 实例。
func NewHandler(cfg *HandlerConfig) *Handler {
	return &Handler{
		store:       cfg.Store,
		generator:   cfg.Generator,
		safety:      safety.New(),
		normalizer:  normalize.New(),
		invoker:     cfg.Invoker,
		recorder:    cfg.Recorder,
		events:      cfg.Events,
		cron:        cfg.Cron,
		metrics:     cfg.Metrics,
		broadcaster: cfg.Broadcaster,
		tools:       cfg.Tools,
		logger:      cfg.Logger,
	}
}

// CreateFunction 处理创建函数的请求。
// HTTP 端点: POST /api/v1/functions
//
// 流程：解析请求 → （缺源码时）调用生成器产出代码 → 静态安全扫描 →
// 归一化并编译检查 → 签发调用令牌 → 入库 → 生成文档（尽力而为）→
// 刷新分发表与定时任务 → 广播目录变更。
// 函数令牌仅在创建响应中返回一次。
func (h *Handler) CreateFunction(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateFunctionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := req.Validate(); err != nil {
		h.logWarn(r, "CreateFunction", "参数验证失败", logrus.Fields{"name": req.Name, "error": err.Error()})
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	source := req.SourceCode
	if source == "" {
		generated, err := h.generator.Generate(r.Context(), req.Name, req.Description, req.Contract)
		h.metrics.RecordGeneratorRequest("generate", err)
		if err != nil {
			h.logError(r, "CreateFunction", "代码生成失败", err, logrus.Fields{"name": req.Name})
			writeError(w, r, http.StatusBadGateway, "code generation failed: "+err.Error())
			return
		}
		source = generated
		if err := domain.ValidateSourceSize(source); err != nil {
			writeError(w, r, http.StatusUnprocessableEntity, "generated code exceeds size limit")
			return
		}
	}

	if res := h.safety.Check(source); !res.Safe {
		h.metrics.RecordSafetyRejection("register", res.Reason)
		h.logWarn(r, "CreateFunction", "源码未通过安全扫描", logrus.Fields{"name": req.Name, "reason": res.Reason})
		writeError(w, r, http.StatusUnprocessableEntity, "unsafe code rejected: "+res.Reason)
		return
	}

	// 入库前确认代码可编译，坏代码不进目录
	if _, err := sandbox.Compile(req.Name, h.normalizer.Normalize(source)); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "code does not compile: "+err.Error())
		return
	}

	now := time.Now().UTC()
	fn := &domain.FunctionRecord{
		ID:             uuid.NewString(),
		Name:           req.Name,
		Description:    req.Description,
		SourceCode:     source,
		Token:          auth.IssueToken(),
		Contract:       req.Contract,
		CronExpression: req.CronExpression,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// 文档生成失败不阻塞创建
	if doc, err := h.generator.GenerateDocs(r.Context(), fn.Name, fn.Description, fn.Contract, fn.SourceCode); err == nil {
		fn.Documentation = doc
		h.metrics.RecordGeneratorRequest("docs", nil)
	} else {
		h.metrics.RecordGeneratorRequest("docs", err)
		h.logWarn(r, "CreateFunction", "文档生成失败", logrus.Fields{"name": fn.Name, "error": err.Error()})
	}

	if err := h.store.CreateFunction(r.Context(), fn); err != nil {
		if errors.Is(err, domain.ErrFunctionExists) {
			writeError(w, r, http.StatusConflict, "function with this name already exists")
			return
		}
		h.logError(r, "CreateFunction", "保存函数失败", err, logrus.Fields{"name": fn.Name})
		writeError(w, r, http.StatusInternalServerError, "failed to create function")
		return
	}

	h.afterCatalogChange(r.Context(), fn.Name, "")
	if h.events != nil {
		h.events.PublishFunctionCreated(r.Context(), fn.Name)
	}

	h.logInfo(r, "CreateFunction", "函数已创建", logrus.Fields{"name": fn.Name, "id": fn.ID})
	writeJSON(w, http.StatusCreated, fn)
}

// ListFunctions 处理获取函数列表的请求。
// HTTP 端点: GET /api/v1/functions
func (h *Handler) ListFunctions(w http.ResponseWriter, r *http.Request) {
	fns, err := h.store.ListFunctions(r.Context())
	if err != nil {
		h.logError(r, "ListFunctions", "查询函数列表失败", err, nil)
		writeError(w, r, http.StatusInternalServerError, "failed to list functions")
		return
	}

	views := make([]*domain.FunctionRecord, len(fns))
	for i, fn := range fns {
		views[i] = redacted(fn)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"functions": views,
		"total":     len(views),
	})
}

// GetFunction 处理获取单个函数详情的请求。
// HTTP 端点: GET /api/v1/functions/{name}
func (h *Handler) GetFunction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	fn, err := h.store.GetFunctionByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrFunctionNotFound) {
			writeError(w, r, http.StatusNotFound, "function not found: "+name)
			return
		}
		h.logError(r, "GetFunction", "查询函数失败", err, logrus.Fields{"name": name})
		writeError(w, r, http.StatusInternalServerError, "failed to get function")
		return
	}

	writeJSON(w, http.StatusOK, redacted(fn))
}

// UpdateFunction 处理更新函数的请求。
// HTTP 端点: PUT /api/v1/functions/{name}
//
// 涉及逻辑（名称/描述/契约/源码）的更新会重新生成文档并重新执行
// 安全扫描与编译检查；仅更新 Documentation 字段则直接落库。
// 调用令牌永不变更。
func (h *Handler) UpdateFunction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	fn, err := h.store.GetFunctionByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrFunctionNotFound) {
			writeError(w, r, http.StatusNotFound, "function not found: "+name)
			return
		}
		h.logError(r, "UpdateFunction", "查询函数失败", err, logrus.Fields{"name": name})
		writeError(w, r, http.StatusInternalServerError, "failed to get function")
		return
	}

	var req domain.UpdateFunctionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	oldName := fn.Name
	regenerateCode := false

	if req.Name != nil && *req.Name != fn.Name {
		if err := domain.ValidateFunctionName(*req.Name); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		fn.Name = *req.Name
		regenerateCode = req.SourceCode == nil
	}
	if req.Description != nil {
		fn.Description = *req.Description
		regenerateCode = req.SourceCode == nil
	}
	if req.Contract != nil {
		if err := req.Contract.Validate(); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		fn.Contract = *req.Contract
		regenerateCode = req.SourceCode == nil
	}
	if req.CronExpression != nil {
		if err := domain.ValidateCronExpression(*req.CronExpression); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid cron expression")
			return
		}
		fn.CronExpression = *req.CronExpression
	}
	if req.Documentation != nil {
		fn.Documentation = *req.Documentation
	}
	if req.SourceCode != nil {
		if err := domain.ValidateSourceSize(*req.SourceCode); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		fn.SourceCode = *req.SourceCode
	}

	if regenerateCode {
		generated, err := h.generator.Generate(r.Context(), fn.Name, fn.Description, fn.Contract)
		h.metrics.RecordGeneratorRequest("generate", err)
		if err != nil {
			h.logError(r, "UpdateFunction", "代码生成失败", err, logrus.Fields{"name": fn.Name})
			writeError(w, r, http.StatusBadGateway, "code generation failed: "+err.Error())
			return
		}
		fn.SourceCode = generated
	}

	if req.ChangesLogic() {
		if res := h.safety.Check(fn.SourceCode); !res.Safe {
			h.metrics.RecordSafetyRejection("register", res.Reason)
			writeError(w, r, http.StatusUnprocessableEntity, "unsafe code rejected: "+res.Reason)
			return
		}
		if _, err := sandbox.Compile(fn.Name, h.normalizer.Normalize(fn.SourceCode)); err != nil {
			writeError(w, r, http.StatusUnprocessableEntity, "code does not compile: "+err.Error())
			return
		}

		// 逻辑变化时文档随之重写；单独更新文档字段不走这里
		if doc, err := h.generator.GenerateDocs(r.Context(), fn.Name, fn.Description, fn.Contract, fn.SourceCode); err == nil {
			fn.Documentation = doc
			h.metrics.RecordGeneratorRequest("docs", nil)
		} else {
			h.metrics.RecordGeneratorRequest("docs", err)
			h.logWarn(r, "UpdateFunction", "文档生成失败", logrus.Fields{"name": fn.Name, "error": err.Error()})
		}
	}

	fn.UpdatedAt = time.Now().UTC()

	if err := h.store.UpdateFunction(r.Context(), fn); err != nil {
		if errors.Is(err, domain.ErrFunctionExists) {
			writeError(w, r, http.StatusConflict, "function with this name already exists")
			return
		}
		h.logError(r, "UpdateFunction", "更新函数失败", err, logrus.Fields{"name": fn.Name})
		writeError(w, r, http.StatusInternalServerError, "failed to update function")
		return
	}

	if oldName != fn.Name {
		h.afterCatalogChange(r.Context(), oldName, "")
	}
	h.afterCatalogChange(r.Context(), fn.Name, oldName)
	if h.events != nil {
		h.events.PublishFunctionUpdated(r.Context(), fn.Name, oldName)
	}

	h.logInfo(r, "UpdateFunction", "函数已更新", logrus.Fields{"name": fn.Name})
	writeJSON(w, http.StatusOK, redacted(fn))
}

// DeleteFunction 处理删除函数的请求。
// HTTP 端点: DELETE /api/v1/functions/{name}
func (h *Handler) DeleteFunction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.store.DeleteFunction(r.Context(), name); err != nil {
		if errors.Is(err, domain.ErrFunctionNotFound) {
			writeError(w, r, http.StatusNotFound, "function not found: "+name)
			return
		}
		h.logError(r, "DeleteFunction", "删除函数失败", err, logrus.Fields{"name": name})
		writeError(w, r, http.StatusInternalServerError, "failed to delete function")
		return
	}

	// 连带清理执行日志
	if f, ok := h.recorder.(interface {
		Forget(ctx context.Context, name string) error
	}); ok {
		if err := f.Forget(r.Context(), name); err != nil {
			h.logWarn(r, "DeleteFunction", "清理执行日志失败", logrus.Fields{"name": name, "error": err.Error()})
		}
	}

	h.afterCatalogChange(r.Context(), name, "")
	if h.events != nil {
		h.events.PublishFunctionDeleted(r.Context(), name)
	}

	h.logInfo(r, "DeleteFunction", "函数已删除", logrus.Fields{"name": name})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Run 处理函数调用请求。
// HTTP 端点: POST /run/{name}
//
// 该端点不走管理接口认证，凭 Authorization 头中的函数令牌鉴权。
// 失败类别与响应码的映射：
//   - 凭证缺失/格式错误/令牌不符 → 401
//   - 函数不存在 → 404
//   - 入参未通过契约校验 → 400（附逐字段原因）
//   - 存量源码未通过安全复检 → 422
//   - 执行超时 → 504
//   - 越权访问 / 运行时异常 → 500（附失败类别）
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	token, err := auth.BearerToken(r)
	if err != nil {
		h.metrics.RecordAuthFailure(authFailureReason(err))
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}

	result, err := h.invoker.Invoke(r.Context(), name, token, payload)
	if err != nil {
		h.writeInvokeError(w, r, name, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// writeInvokeError 将调用编排的失败映射为 HTTP 响应。
func (h *Handler) writeInvokeError(w http.ResponseWriter, r *http.Request, name string, err error) {
	switch {
	case errors.Is(err, domain.ErrFunctionNotFound):
		writeError(w, r, http.StatusNotFound, "function not found: "+name)
	case errors.Is(err, domain.ErrMissingCredential),
		errors.Is(err, domain.ErrMalformedCredential),
		errors.Is(err, domain.ErrEmptyToken),
		errors.Is(err, domain.ErrTokenMismatch):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrUnsafeCode):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		if ve := domain.AsValidationError(err); ve != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "input validation failed",
				"fields": ve.Fields,
			})
			return
		}
		if ee := domain.AsExecutionError(err); ee != nil {
			status := http.StatusInternalServerError
			if ee.Kind == domain.ExecTimeout {
				status = http.StatusGatewayTimeout
			}
			writeJSON(w, status, map[string]any{
				"error": ee.Message,
				"kind":  string(ee.Kind),
			})
			return
		}
		h.logError(r, "Run", "调用失败", err, logrus.Fields{"name": name})
		writeError(w, r, http.StatusInternalServerError, "invocation failed")
	}
}

// ListLogs 处理获取函数执行日志的请求。
// HTTP 端点: GET /api/v1/functions/{name}/logs?limit=
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if _, err := h.store.GetFunctionByName(r.Context(), name); err != nil {
		if errors.Is(err, domain.ErrFunctionNotFound) {
			writeError(w, r, http.StatusNotFound, "function not found: "+name)
			return
		}
		writeError(w, r, http.StatusInternalServerError, "failed to get function")
		return
	}

	limit := domain.MaxLogEntriesPerFunction
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := h.recorder.ListRecent(name, limit)
	if err != nil {
		h.logError(r, "ListLogs", "读取执行日志失败", err, logrus.Fields{"name": name})
		writeError(w, r, http.StatusInternalServerError, "failed to list logs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"function_name": name,
		"logs":          entries,
		"total":         len(entries),
	})
}

// GetAnalytics 处理获取函数聚合统计的请求。
// HTTP 端点: GET /api/v1/functions/{name}/analytics
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if _, err := h.store.GetFunctionByName(r.Context(), name); err != nil {
		if errors.Is(err, domain.ErrFunctionNotFound) {
			writeError(w, r, http.StatusNotFound, "function not found: "+name)
			return
		}
		writeError(w, r, http.StatusInternalServerError, "failed to get function")
		return
	}

	snap, err := h.recorder.Aggregate(name)
	if err != nil {
		h.logError(r, "GetAnalytics", "计算聚合统计失败", err, logrus.Fields{"name": name})
		writeError(w, r, http.StatusInternalServerError, "failed to aggregate analytics")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// Health 处理基本健康检查请求。
// HTTP 端点: GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready 处理就绪探针请求，检查目录存储可用性。
// HTTP 端点: GET /health/ready
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.ListFunctions(r.Context()); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "catalog not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Live 处理存活探针请求。
// HTTP 端点: GET /health/live
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// afterCatalogChange 在目录变更落库后同步本实例的派生状态：
// 分发表、定时任务、工具注册表。跨实例同步经由事件总线完成。
func (h *Handler) afterCatalogChange(ctx context.Context, name, oldName string) {
	if err := h.invoker.Refresh(ctx, name); err != nil {
		h.logger.WithError(err).WithField("function", name).Warn("刷新分发表失败")
	}

	if h.tools != nil {
		h.tools.Refresh(ctx, name)
		if oldName != "" && oldName != name {
			h.tools.Refresh(ctx, oldName)
		}
	}

	if h.cron != nil {
		fn, err := h.store.GetFunctionByName(ctx, name)
		if err != nil {
			h.cron.RemoveFunction(name)
		} else {
			h.cron.AddOrUpdateFunction(fn)
		}
		if oldName != "" && oldName != name {
			h.cron.RemoveFunction(oldName)
		}
	}
}

// authFailureReason 将凭证提取失败映射为指标标签。
func authFailureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingCredential):
		return "missing"
	case errors.Is(err, domain.ErrMalformedCredential):
		return "malformed"
	case errors.Is(err, domain.ErrEmptyToken):
		return "empty"
	default:
		return "mismatch"
	}
}

// redacted 返回抹除调用令牌后的记录副本。
// 令牌只在创建响应中出现一次，之后的查询与更新视图一律不回显。
func redacted(fn *domain.FunctionRecord) *domain.FunctionRecord {
	c := *fn
	c.Token = ""
	return &c
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应。
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse 是统一的错误响应结构体。
type ErrorResponse struct {
	// Error 错误消息
	Error string `json:"error"`
	// RequestID 请求 ID，用于关联日志
	RequestID string `json:"request_id,omitempty"`
}

// writeError 将错误信息以 JSON 格式写入 HTTP 响应，
// 自动附带请求上下文中的 request_id。
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// logInfo 记录带请求上下文的 Info 级日志
func (h *Handler) logInfo(r *http.Request, method, message string, fields logrus.Fields) {
	h.requestEntry(r, method, fields).Info(message)
}

// logWarn 记录带请求上下文的 Warn 级日志
func (h *Handler) logWarn(r *http.Request, method, message string, fields logrus.Fields) {
	h.requestEntry(r, method, fields).Warn(message)
}

// logError 记录带请求上下文的 Error 级日志
func (h *Handler) logError(r *http.Request, method, message string, err error, fields logrus.Fields) {
	h.requestEntry(r, method, fields).WithError(err).Error(message)
}

func (h *Handler) requestEntry(r *http.Request, method string, fields logrus.Fields) *logrus.Entry {
	logger := h.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	entry := logger.WithContext(r.Context()).WithFields(logrus.Fields{
		"method":     method,
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
	})
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	return entry
}
