package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oriys/conjure/internal/domain"
)

func testContract() domain.Contract {
	return domain.Contract{
		Inputs: []domain.InputSpec{{Name: "x", Type: domain.TypeNumber}},
		Output: domain.OutputSpec{Type: domain.TypeNumber},
	}
}

// TestClient_Generate 测试源码生成请求的编组与解析
func TestClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generate" || r.Method != http.MethodPost {
			t.Errorf("意外请求: %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("解析请求失败: %v", err)
		}
		if req.Name != "double" || len(req.Contract.Inputs) != 1 {
			t.Errorf("请求体不完整: %+v", req)
		}
		json.NewEncoder(w).Encode(generateResponse{SourceCode: "function double(x) { return x * 2; }"})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", time.Second)
	src, err := c.Generate(context.Background(), "double", "把输入翻倍", testContract())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(src, "x * 2") {
		t.Errorf("source = %q", src)
	}
}

// TestClient_Generate_EmptySource 测试空源码响应被拒绝
func TestClient_Generate_EmptySource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{})
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	if _, err := c.Generate(context.Background(), "empty", "", testContract()); err == nil {
		t.Fatal("期望错误, got nil")
	}
}

// TestClient_Generate_APIError 测试服务端错误结构的透传
func TestClient_Generate_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "描述过于含糊"})
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	_, err := c.Generate(context.Background(), "vague", "做点什么", testContract())
	if err == nil || !strings.Contains(err.Error(), "描述过于含糊") {
		t.Errorf("err = %v, 应包含服务端给出的原因", err)
	}
}

// TestClient_GenerateDocs 测试文档生成请求
func TestClient_GenerateDocs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generate/docs" {
			t.Errorf("意外路径: %s", r.URL.Path)
		}
		var req docsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("解析请求失败: %v", err)
		}
		if req.SourceCode == "" {
			t.Error("文档生成请求应携带源码")
		}
		json.NewEncoder(w).Encode(docsResponse{Documentation: "# double\n把输入翻倍。"})
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	docs, err := c.GenerateDocs(context.Background(), "double", "把输入翻倍", testContract(), "function double(x) { return x * 2; }")
	if err != nil {
		t.Fatalf("GenerateDocs() error = %v", err)
	}
	if !strings.Contains(docs, "double") {
		t.Errorf("docs = %q", docs)
	}
}
