package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestParseInputSpec(t *testing.T) {
	tests := []struct {
		spec     string
		name     string
		typ      string
		optional bool
		desc     string
		wantErr  bool
	}{
		{spec: "city:string", name: "city", typ: "string"},                              // 必填参数
		{spec: "units:string?", name: "units", typ: "string", optional: true},           // 可选参数
		{spec: "n:number:数量", name: "n", typ: "number", desc: "数量"},                     // 带说明
		{spec: "tags:array?:标签列表", name: "tags", typ: "array", optional: true, desc: "标签列表"}, // 可选且带说明
		{spec: "city", wantErr: true},   // 缺类型
		{spec: ":string", wantErr: true}, // 缺名字
	}

	for _, tt := range tests {
		in, err := parseInputSpec(tt.spec)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseInputSpec(%q): expected error", tt.spec)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseInputSpec(%q): %v", tt.spec, err)
			continue
		}
		if in.Name != tt.name || in.Type != tt.typ || in.Description != tt.desc {
			t.Errorf("parseInputSpec(%q) = %+v", tt.spec, in)
		}
		optional := in.Required != nil && !*in.Required
		if optional != tt.optional {
			t.Errorf("parseInputSpec(%q): optional = %v, want %v", tt.spec, optional, tt.optional)
		}
	}
}

func TestClientCreateFunction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/api/v1/functions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req CreateFunctionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Name != "greet" || len(req.Contract.Inputs) != 1 {
			t.Errorf("unexpected request body: %+v", req)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "fn-1",
			"name":  "greet",
			"token": "tok-secret",
		})
	}))
	defer server.Close()

	viper.Set("api_url", server.URL)
	defer viper.Set("api_url", "")

	fn, err := NewClient().CreateFunction(&CreateFunctionRequest{
		Name:        "greet",
		Description: "Return a greeting",
		Contract: Contract{
			Inputs: []InputSpec{{Name: "name", Type: "string"}},
			Output: OutputSpec{Type: "string"},
		},
	})
	if err != nil {
		t.Fatalf("CreateFunction: %v", err)
	}
	// 创建响应携带仅此一次展示的令牌
	if fn.Token != "tok-secret" {
		t.Errorf("token = %q, want tok-secret", fn.Token)
	}
}

func TestClientInvokeFunction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/run/greet" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		// 调用端点使用函数专属的 Bearer 令牌
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"request_id":  "req-1",
			"output":      "Hello, World!",
			"duration_ms": 3,
		})
	}))
	defer server.Close()

	viper.Set("api_url", server.URL)
	defer viper.Set("api_url", "")

	result, err := NewClient().InvokeFunction("greet", "tok-1", json.RawMessage(`{"name":"World"}`))
	if err != nil {
		t.Fatalf("InvokeFunction: %v", err)
	}
	if result.RequestID != "req-1" {
		t.Errorf("request_id = %q", result.RequestID)
	}
	if string(result.Output) != `"Hello, World!"` {
		t.Errorf("output = %s", result.Output)
	}
}

func TestClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{
			"error":      "invalid token",
			"request_id": "req-9",
		})
	}))
	defer server.Close()

	viper.Set("api_url", server.URL)
	defer viper.Set("api_url", "")

	_, err := NewClient().InvokeFunction("greet", "wrong", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error")
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type = %T", err)
	}
	if apiErr.Code != http.StatusUnauthorized {
		t.Errorf("code = %d", apiErr.Code)
	}
	if !strings.Contains(apiErr.Error(), "invalid token") || !strings.Contains(apiErr.Error(), "req-9") {
		t.Errorf("message = %q", apiErr.Error())
	}
}

func TestClientListLogs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/functions/greet/logs" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("limit = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"function_name": "greet",
			"logs": []map[string]interface{}{
				{"id": "log-1", "function_name": "greet", "status": "success", "duration_ms": 2},
			},
			"total": 1,
		})
	}))
	defer server.Close()

	viper.Set("api_url", server.URL)
	defer viper.Set("api_url", "")

	logs, err := NewClient().ListLogs("greet", 5)
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(logs) != 1 || logs[0].Status != "success" {
		t.Errorf("logs = %+v", logs)
	}
}
