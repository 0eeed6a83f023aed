// Package generator 提供访问外部代码生成服务的 HTTP 客户端封装。
// 生成服务接收函数名、自然语言描述和输入输出契约，
// 返回候选源码或使用文档；产物在进入目录之前必须
// 通过安全扫描和归一化流水线。
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oriys/conjure/internal/domain"
	"github.com/oriys/conjure/internal/telemetry"
)

// Client 是代码生成服务的 HTTP 客户端
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New 创建生成服务客户端。
// baseURL 为空时默认使用 http://localhost:9090。
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9090"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: telemetry.HTTPClientTransport(nil),
		},
	}
}

// generateRequest 表示代码生成的请求体
type generateRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Contract    domain.Contract `json:"contract"`
}

// generateResponse 表示代码生成的响应体
type generateResponse struct {
	SourceCode string `json:"source_code"`
}

// docsRequest 表示文档生成的请求体
type docsRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Contract    domain.Contract `json:"contract"`
	SourceCode  string          `json:"source_code"`
}

// docsResponse 表示文档生成的响应体
type docsResponse struct {
	Documentation string `json:"documentation"`
}

// apiError 是生成服务返回的标准错误结构
type apiError struct {
	Message string `json:"error"`
}

func (e *apiError) Error() string {
	if e == nil || e.Message == "" {
		return "generator api error"
	}
	return e.Message
}

// Generate 请求生成服务为指定函数产出源码。
// 返回的源码是未经检查的产物，调用方负责走完
// 安全扫描与归一化流程后再入库。
func (c *Client) Generate(ctx context.Context, name, description string, contract domain.Contract) (string, error) {
	var resp generateResponse
	req := &generateRequest{Name: name, Description: description, Contract: contract}
	if err := c.do(ctx, http.MethodPost, "/v1/generate", req, &resp); err != nil {
		return "", fmt.Errorf("代码生成失败: %w", err)
	}
	if resp.SourceCode == "" {
		return "", fmt.Errorf("代码生成失败: 生成服务返回了空源码")
	}
	return resp.SourceCode, nil
}

// GenerateDocs 请求生成服务为指定函数产出使用文档
func (c *Client) GenerateDocs(ctx context.Context, name, description string, contract domain.Contract, sourceCode string) (string, error) {
	var resp docsResponse
	req := &docsRequest{Name: name, Description: description, Contract: contract, SourceCode: sourceCode}
	if err := c.do(ctx, http.MethodPost, "/v1/generate/docs", req, &resp); err != nil {
		return "", fmt.Errorf("文档生成失败: %w", err)
	}
	return resp.Documentation, nil
}

// do 是内部通用请求方法，负责：
// - JSON 编码请求体
// - 发起 HTTP 请求并解析 JSON 响应
// - 将 4xx/5xx 转换为可读错误
func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return &apiErr
		}
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
