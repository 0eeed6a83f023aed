package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oriys/conjure/internal/catalog"
	"github.com/oriys/conjure/internal/domain"
	"github.com/oriys/conjure/internal/generator"
	"github.com/oriys/conjure/internal/history"
	"github.com/oriys/conjure/internal/invoker"
	"github.com/oriys/conjure/internal/sandbox"
)

// generatorStub 模拟外部代码生成服务，并统计各端点的命中次数。
type generatorStub struct {
	server    *httptest.Server
	source    string
	genCalls  atomic.Int64
	docsCalls atomic.Int64
}

func newGeneratorStub(source string) *generatorStub {
	g := &generatorStub{source: source}
	g.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/generate":
			g.genCalls.Add(1)
			json.NewEncoder(w).Encode(map[string]string{"source_code": g.source})
		case "/v1/generate/docs":
			g.docsCalls.Add(1)
			json.NewEncoder(w).Encode(map[string]string{"documentation": "# generated docs"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	return g
}

// testEnv 组装一套使用内存目录的完整处理链
type testEnv struct {
	router  http.Handler
	store   *catalog.MemoryStore
	gen     *generatorStub
	handler *Handler
}

func newTestEnv(t *testing.T, generatedSource string) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	gen := newGeneratorStub(generatedSource)
	t.Cleanup(gen.server.Close)

	store := catalog.NewMemoryStore()
	recorder := history.New(logger, nil, nil, nil)
	t.Cleanup(recorder.Close)

	inv := invoker.New(logger, store, sandbox.New(2*time.Second), recorder, nil)

	h := NewHandler(&HandlerConfig{
		Store:       store,
		Generator:   generator.New(gen.server.URL, "test-key", 5*time.Second),
		Invoker:     inv,
		Recorder:    recorder,
		Broadcaster: NewBroadcaster(),
		Logger:      logger,
	})

	return &testEnv{
		router:  NewRouter(&RouterConfig{Handler: h}),
		store:   store,
		gen:     gen,
		handler: h,
	}
}

// doJSON 发送 JSON 请求并返回响应记录器
func (e *testEnv) doJSON(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// createDouble 通过 API 创建 double 函数并返回其调用令牌
func (e *testEnv) createDouble(t *testing.T) string {
	t.Helper()

	w := e.doJSON(http.MethodPost, "/api/v1/functions", map[string]any{
		"name":        "double",
		"description": "double a number",
		"contract": map[string]any{
			"inputs": []map[string]any{{"name": "x", "type": "number"}},
			"output": map[string]any{"type": "number"},
		},
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}

	var fn domain.FunctionRecord
	if err := json.NewDecoder(w.Body).Decode(&fn); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if fn.Token == "" {
		t.Fatal("create response should contain the issued token")
	}
	return fn.Token
}

// TestCreateFunction 验证创建流程：生成代码、落库、签发令牌、生成文档。
func TestCreateFunction(t *testing.T) {
	env := newTestEnv(t, "export function double(x: number): number { return x * 2; }")
	env.createDouble(t)

	// 生成器的两个端点各被调用一次
	if got := env.gen.genCalls.Load(); got != 1 {
		t.Errorf("generate calls = %d, want 1", got)
	}
	if got := env.gen.docsCalls.Load(); got != 1 {
		t.Errorf("docs calls = %d, want 1", got)
	}

	// 落库的记录带生成的文档
	fn, err := env.store.GetFunctionByName(t.Context(), "double")
	if err != nil {
		t.Fatalf("stored function missing: %v", err)
	}
	if fn.Documentation != "# generated docs" {
		t.Errorf("documentation = %q, want generated docs", fn.Documentation)
	}
}

// TestCreateFunction_RejectsUnsafe 验证生成的代码命中拒绝清单时创建被拒绝。
func TestCreateFunction_RejectsUnsafe(t *testing.T) {
	env := newTestEnv(t, "function double(x) { return process.env.SECRET; }")

	w := env.doJSON(http.MethodPost, "/api/v1/functions", map[string]any{
		"name":        "double",
		"description": "double a number",
		"contract": map[string]any{
			"inputs": []map[string]any{{"name": "x", "type": "number"}},
			"output": map[string]any{"type": "number"},
		},
	}, nil)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	// 不安全的代码不进目录
	if _, err := env.store.GetFunctionByName(t.Context(), "double"); err == nil {
		t.Error("unsafe function should not be stored")
	}
}

// TestCreateFunction_Validation 表驱动验证创建请求的参数校验。
func TestCreateFunction_Validation(t *testing.T) {
	env := newTestEnv(t, "function double(x) { return x * 2; }")

	tests := []struct {
		name     string // 用例名称
		body     map[string]any
		wantCode int
	}{
		{
			// 函数名不符合标识符规范
			name: "invalid name",
			body: map[string]any{
				"name":        "1bad",
				"description": "desc",
				"contract":    map[string]any{"inputs": []any{}, "output": map[string]any{"type": "number"}},
			},
			wantCode: http.StatusBadRequest,
		},
		{
			// 描述和源码都缺失
			name: "missing description",
			body: map[string]any{
				"name":     "fine",
				"contract": map[string]any{"inputs": []any{}, "output": map[string]any{"type": "number"}},
			},
			wantCode: http.StatusBadRequest,
		},
		{
			// 契约中的输入类型不受支持
			name: "bad input type",
			body: map[string]any{
				"name":        "fine",
				"description": "desc",
				"contract": map[string]any{
					"inputs": []map[string]any{{"name": "x", "type": "datetime"}},
					"output": map[string]any{"type": "number"},
				},
			},
			wantCode: http.StatusBadRequest,
		},
		{
			// cron 表达式无效
			name: "bad cron",
			body: map[string]any{
				"name":            "fine",
				"description":     "desc",
				"contract":        map[string]any{"inputs": []any{}, "output": map[string]any{"type": "number"}},
				"cron_expression": "not a cron",
			},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.doJSON(http.MethodPost, "/api/v1/functions", tt.body, nil)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}

// TestCreateFunction_Conflict 验证同名函数重复创建返回 409。
func TestCreateFunction_Conflict(t *testing.T) {
	env := newTestEnv(t, "export function double(x: number): number { return x * 2; }")
	env.createDouble(t)

	w := env.doJSON(http.MethodPost, "/api/v1/functions", map[string]any{
		"name":        "double",
		"description": "again",
		"contract": map[string]any{
			"inputs": []map[string]any{{"name": "x", "type": "number"}},
			"output": map[string]any{"type": "number"},
		},
	}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

// TestRun 验证调用端点的完整状态码映射。
func TestRun(t *testing.T) {
	env := newTestEnv(t, "export function double(x: number): number { return x * 2; }")
	token := env.createDouble(t)

	tests := []struct {
		name     string // 用例名称
		path     string
		payload  string
		headers  map[string]string
		wantCode int
	}{
		{
			// 正确令牌和入参，执行成功
			name:     "success",
			path:     "/run/double",
			payload:  `{"x": 21}`,
			headers:  map[string]string{"Authorization": "Bearer " + token},
			wantCode: http.StatusOK,
		},
		{
			// 未携带凭证
			name:     "missing credential",
			path:     "/run/double",
			payload:  `{"x": 21}`,
			wantCode: http.StatusUnauthorized,
		},
		{
			// 凭证缺少 Bearer 前缀
			name:     "malformed credential",
			path:     "/run/double",
			payload:  `{"x": 21}`,
			headers:  map[string]string{"Authorization": "Token abc"},
			wantCode: http.StatusUnauthorized,
		},
		{
			// 令牌不匹配
			name:     "wrong token",
			path:     "/run/double",
			payload:  `{"x": 21}`,
			headers:  map[string]string{"Authorization": "Bearer wrong-token"},
			wantCode: http.StatusUnauthorized,
		},
		{
			// 函数不存在
			name:     "not found",
			path:     "/run/missing",
			payload:  `{"x": 21}`,
			headers:  map[string]string{"Authorization": "Bearer " + token},
			wantCode: http.StatusNotFound,
		},
		{
			// 缺少必填入参
			name:     "validation error",
			path:     "/run/double",
			payload:  `{}`,
			headers:  map[string]string{"Authorization": "Bearer " + token},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.payload))
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}

// TestRun_ReturnsOutput 验证成功调用返回 output 与 duration。
func TestRun_ReturnsOutput(t *testing.T) {
	env := newTestEnv(t, "export function double(x: number): number { return x * 2; }")
	token := env.createDouble(t)

	w := env.doJSON(http.MethodPost, "/run/double", map[string]any{"x": 21},
		map[string]string{"Authorization": "Bearer " + token})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var result domain.InvokeResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.RequestID == "" {
		t.Error("request_id should be set")
	}
	out, ok := result.Output.(float64)
	if !ok || out != 42 {
		t.Errorf("output = %v, want 42", result.Output)
	}
}

// TestUpdateFunction_DocumentationOnly 验证仅更新文档不触发代码与文档重生成。
func TestUpdateFunction_DocumentationOnly(t *testing.T) {
	env := newTestEnv(t, "export function double(x: number): number { return x * 2; }")
	env.createDouble(t)

	genBefore := env.gen.genCalls.Load()
	docsBefore := env.gen.docsCalls.Load()

	w := env.doJSON(http.MethodPut, "/api/v1/functions/double", map[string]any{
		"documentation": "# hand-written docs",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	if got := env.gen.genCalls.Load(); got != genBefore {
		t.Errorf("generate calls changed from %d to %d on documentation-only update", genBefore, got)
	}
	if got := env.gen.docsCalls.Load(); got != docsBefore {
		t.Errorf("docs calls changed from %d to %d on documentation-only update", docsBefore, got)
	}

	fn, _ := env.store.GetFunctionByName(t.Context(), "double")
	if fn.Documentation != "# hand-written docs" {
		t.Errorf("documentation = %q, want hand-written docs", fn.Documentation)
	}
}

// TestUpdateFunction_DescriptionRegenerates 验证更新描述会重新生成代码与文档，
// 且调用令牌保持不变。
func TestUpdateFunction_DescriptionRegenerates(t *testing.T) {
	env := newTestEnv(t, "export function double(x: number): number { return x * 2; }")
	token := env.createDouble(t)

	env.gen.source = "function double(x) { return x + x; }"
	w := env.doJSON(http.MethodPut, "/api/v1/functions/double", map[string]any{
		"description": "double a number by addition",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	fn, _ := env.store.GetFunctionByName(t.Context(), "double")
	if !strings.Contains(fn.SourceCode, "x + x") {
		t.Errorf("source not regenerated: %q", fn.SourceCode)
	}
	if fn.Token != token {
		t.Error("token must never change on update")
	}

	// 旧令牌仍然可以调用更新后的函数
	run := env.doJSON(http.MethodPost, "/run/double", map[string]any{"x": 21},
		map[string]string{"Authorization": "Bearer " + token})
	if run.Code != http.StatusOK {
		t.Fatalf("run after update status = %d, body = %s", run.Code, run.Body.String())
	}
}

// TestDeleteFunction 验证删除后函数对管理接口和调用接口都不可见。
func TestDeleteFunction(t *testing.T) {
	env := newTestEnv(t, "export function double(x: number): number { return x * 2; }")
	token := env.createDouble(t)

	w := env.doJSON(http.MethodDelete, "/api/v1/functions/double", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}

	if get := env.doJSON(http.MethodGet, "/api/v1/functions/double", nil, nil); get.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", get.Code)
	}
	run := env.doJSON(http.MethodPost, "/run/double", map[string]any{"x": 21},
		map[string]string{"Authorization": "Bearer " + token})
	if run.Code != http.StatusNotFound {
		t.Errorf("run after delete status = %d, want 404", run.Code)
	}
}

// TestDeleteFunction_PurgesLogs 验证删除函数会连带清空其执行记录，
// 同名重建后不会继承旧函数的历史。
func TestDeleteFunction_PurgesLogs(t *testing.T) {
	env := newTestEnv(t, "export function double(x: number): number { return x * 2; }")
	token := env.createDouble(t)

	w := env.doJSON(http.MethodPost, "/run/double", map[string]any{"x": 21},
		map[string]string{"Authorization": "Bearer " + token})
	if w.Code != http.StatusOK {
		t.Fatalf("run status = %d", w.Code)
	}

	// 记录是异步落盘的，轮询等待
	deadline := time.Now().Add(2 * time.Second)
	for {
		logs := env.doJSON(http.MethodGet, "/api/v1/functions/double/logs", nil, nil)
		var resp struct {
			Total int `json:"total"`
		}
		json.NewDecoder(logs.Body).Decode(&resp)
		if resp.Total == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("logs total = %d, want 1", resp.Total)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if del := env.doJSON(http.MethodDelete, "/api/v1/functions/double", nil, nil); del.Code != http.StatusOK {
		t.Fatalf("delete status = %d", del.Code)
	}
	env.createDouble(t)

	logs := env.doJSON(http.MethodGet, "/api/v1/functions/double/logs", nil, nil)
	if logs.Code != http.StatusOK {
		t.Fatalf("logs after recreate status = %d", logs.Code)
	}
	var resp struct {
		Total int `json:"total"`
	}
	json.NewDecoder(logs.Body).Decode(&resp)
	if resp.Total != 0 {
		t.Errorf("重建后 logs total = %d, want 0", resp.Total)
	}
}

// TestListFunctions_HidesTokens 验证列表视图不包含调用令牌。
func TestListFunctions_HidesTokens(t *testing.T) {
	env := newTestEnv(t, "export function double(x: number): number { return x * 2; }")
	env.createDouble(t)

	w := env.doJSON(http.MethodGet, "/api/v1/functions", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Functions []domain.FunctionRecord `json:"functions"`
		Total     int                     `json:"total"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Functions) != 1 {
		t.Fatalf("total = %d, functions = %d, want 1", resp.Total, len(resp.Functions))
	}
	if resp.Functions[0].Token != "" {
		t.Error("list view must not expose tokens")
	}
}

// TestGetAndUpdate_HideToken 验证详情与更新响应同样不回显调用令牌。
func TestGetAndUpdate_HideToken(t *testing.T) {
	env := newTestEnv(t, "export function double(x: number): number { return x * 2; }")
	env.createDouble(t)

	get := env.doJSON(http.MethodGet, "/api/v1/functions/double", nil, nil)
	if get.Code != http.StatusOK {
		t.Fatalf("get status = %d", get.Code)
	}
	var fn domain.FunctionRecord
	if err := json.NewDecoder(get.Body).Decode(&fn); err != nil {
		t.Fatalf("decode get response: %v", err)
	}
	if fn.Token != "" {
		t.Error("get view must not expose tokens")
	}

	upd := env.doJSON(http.MethodPut, "/api/v1/functions/double",
		map[string]any{"documentation": "updated docs"}, nil)
	if upd.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", upd.Code, upd.Body.String())
	}
	var updated domain.FunctionRecord
	if err := json.NewDecoder(upd.Body).Decode(&updated); err != nil {
		t.Fatalf("decode update response: %v", err)
	}
	if updated.Token != "" {
		t.Error("update view must not expose tokens")
	}
}

// TestLogsAndAnalytics 验证执行后日志和统计端点可读。
func TestLogsAndAnalytics(t *testing.T) {
	env := newTestEnv(t, "export function double(x: number): number { return x * 2; }")
	token := env.createDouble(t)

	for i := 0; i < 3; i++ {
		w := env.doJSON(http.MethodPost, "/run/double", map[string]any{"x": i},
			map[string]string{"Authorization": "Bearer " + token})
		if w.Code != http.StatusOK {
			t.Fatalf("run %d status = %d", i, w.Code)
		}
	}

	// 记录是异步落盘的，轮询等待
	deadline := time.Now().Add(2 * time.Second)
	for {
		w := env.doJSON(http.MethodGet, "/api/v1/functions/double/logs", nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("logs status = %d", w.Code)
		}
		var resp struct {
			Total int `json:"total"`
		}
		json.NewDecoder(w.Body).Decode(&resp)
		if resp.Total == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("logs total = %d, want 3", resp.Total)
		}
		time.Sleep(10 * time.Millisecond)
	}

	w := env.doJSON(http.MethodGet, "/api/v1/functions/double/analytics", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("analytics status = %d", w.Code)
	}
	var snap domain.AnalyticsSnapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode analytics: %v", err)
	}
	if snap.TotalCalls != 3 || snap.SuccessCount != 3 {
		t.Errorf("snapshot = %d total / %d success, want 3/3", snap.TotalCalls, snap.SuccessCount)
	}
	if len(snap.Daily) != 7 {
		t.Errorf("daily buckets = %d, want 7", len(snap.Daily))
	}

	// 未注册函数的日志查询返回 404
	if miss := env.doJSON(http.MethodGet, "/api/v1/functions/nope/logs", nil, nil); miss.Code != http.StatusNotFound {
		t.Errorf("logs for missing function status = %d, want 404", miss.Code)
	}
}

// TestHealthEndpoints 验证健康检查端点。
func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, "function noop() {}")

	for _, path := range []string{"/health", "/health/ready", "/health/live"} {
		w := env.doJSON(http.MethodGet, path, nil, nil)
		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, w.Code)
		}
	}
}
