// Package cmd 提供 conjure 命令行工具的所有子命令实现。
// 本文件实现 API 客户端，用于与 Conjure 平台的后端服务进行通信。
//
// Client 封装了所有与 API 服务器的交互逻辑，包括：
//   - 函数的 CRUD 操作（创建、读取、更新、删除）
//   - 函数调用（携带函数令牌）
//   - 执行日志与聚合统计查询
//   - 系统状态查询
//
// 客户端使用 HTTP/JSON 协议与服务器通信，支持错误处理和超时控制。
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Client 是 Conjure 平台的 API 客户端。
// 封装了与后端服务通信的所有方法，使用 HTTP/JSON 协议。
type Client struct {
	baseURL    string       // API 服务器的基础 URL
	httpClient *http.Client // HTTP 客户端，用于发送请求
}

// NewClient 创建一个新的 API 客户端实例。
// 从 viper 配置中读取 api_url，如果未配置则使用默认值 http://localhost:8080。
// HTTP 客户端默认超时时间为 60 秒。
//
// 返回值：
//   - *Client: 新创建的客户端实例
func NewClient() *Client {
	baseURL := viper.GetString("api_url")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ====== 领域模型定义 ======

// InputSpec 表示契约中单个输入参数的声明。
type InputSpec struct {
	Name        string `json:"name"`                  // 参数名
	Type        string `json:"type"`                  // 参数类型
	Required    *bool  `json:"required,omitempty"`    // 是否必填（缺省为必填）
	Description string `json:"description,omitempty"` // 参数说明
}

// OutputSpec 表示契约中输出值的声明。
type OutputSpec struct {
	Type        string `json:"type"`                  // 输出类型
	Description string `json:"description,omitempty"` // 输出说明
}

// Contract 表示函数的输入输出契约。
type Contract struct {
	Inputs []InputSpec `json:"inputs"` // 输入参数列表
	Output OutputSpec  `json:"output"` // 输出声明
}

// Function 表示平台上一个已注册函数的完整信息。
type Function struct {
	ID             string    `json:"id"`                        // 函数唯一标识符
	Name           string    `json:"name"`                      // 函数名称
	Description    string    `json:"description,omitempty"`     // 自然语言描述
	SourceCode     string    `json:"source_code"`               // JavaScript 源码
	Token          string    `json:"token,omitempty"`           // 调用令牌（仅创建响应携带）
	Contract       Contract  `json:"contract"`                  // 输入输出契约
	Documentation  string    `json:"documentation,omitempty"`   // Markdown 文档
	CronExpression string    `json:"cron_expression,omitempty"` // 定时任务表达式
	CreatedAt      time.Time `json:"created_at"`                // 创建时间
	UpdatedAt      time.Time `json:"updated_at"`                // 更新时间
}

// CreateFunctionRequest 表示创建函数的 API 请求体。
// SourceCode 为空时由平台的代码生成服务产出实现。
type CreateFunctionRequest struct {
	Name           string   `json:"name"`                      // 函数名称，需唯一
	Description    string   `json:"description"`               // 自然语言描述
	Contract       Contract `json:"contract"`                  // 输入输出契约
	SourceCode     string   `json:"source_code,omitempty"`     // 源码（可选）
	CronExpression string   `json:"cron_expression,omitempty"` // 定时任务表达式
}

// UpdateFunctionRequest 表示更新函数的 API 请求体。
// 所有字段均为可选，只有携带的字段会被更新。
type UpdateFunctionRequest struct {
	Name           *string   `json:"name,omitempty"`
	Description    *string   `json:"description,omitempty"`
	Contract       *Contract `json:"contract,omitempty"`
	SourceCode     *string   `json:"source_code,omitempty"`
	Documentation  *string   `json:"documentation,omitempty"`
	CronExpression *string   `json:"cron_expression,omitempty"`
}

// InvokeResult 表示一次函数调用的响应结果。
type InvokeResult struct {
	RequestID  string          `json:"request_id"`       // 请求标识
	Output     json.RawMessage `json:"output,omitempty"` // 函数返回值
	DurationMs int64           `json:"duration_ms"`      // 执行耗时（毫秒）
}

// LogEntry 表示一条执行日志记录。
type LogEntry struct {
	ID           string          `json:"id"`
	FunctionName string          `json:"function_name"`
	Timestamp    time.Time       `json:"timestamp"`
	DurationMs   int64           `json:"duration_ms"`
	Status       string          `json:"status"`
	Inputs       json.RawMessage `json:"inputs,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// DayBucket 表示按天聚合的调用计数。
type DayBucket struct {
	Date   string `json:"date"`
	Calls  int64  `json:"calls"`
	Errors int64  `json:"errors"`
}

// Analytics 表示单个函数的聚合统计信息。
type Analytics struct {
	FunctionName  string      `json:"function_name"`
	TotalCalls    int64       `json:"total_calls"`
	SuccessCount  int64       `json:"success_count"`
	ErrorCount    int64       `json:"error_count"`
	SuccessRate   float64     `json:"success_rate"`
	AvgDurationMs float64     `json:"avg_duration_ms"`
	LastCalledAt  *time.Time  `json:"last_called_at,omitempty"`
	Daily         []DayBucket `json:"daily"`
}

// HealthStatus 表示系统健康状态。
type HealthStatus struct {
	Status string `json:"status"`
}

// APIError 表示 API 返回的错误响应。
type APIError struct {
	Code      int               `json:"-"`
	Message   string            `json:"error"`
	Kind      string            `json:"kind,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("API error %d: %s", e.Code, e.Message))

	if e.Kind != "" {
		sb.WriteString(fmt.Sprintf("\n  Kind: %s", e.Kind))
	}
	for field, msg := range e.Fields {
		sb.WriteString(fmt.Sprintf("\n  %s: %s", field, msg))
	}
	if e.RequestID != "" {
		sb.WriteString(fmt.Sprintf("\n  Request ID: %s", e.RequestID))
	}

	return sb.String()
}

// do 执行 HTTP 请求并处理响应。
func (c *Client) do(method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			apiErr.Code = resp.StatusCode
			return &apiErr
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

// ====== 函数操作方法 ======

func (c *Client) CreateFunction(req *CreateFunctionRequest) (*Function, error) {
	var fn Function
	if err := c.do("POST", "/api/v1/functions", req, &fn); err != nil {
		return nil, err
	}
	return &fn, nil
}

func (c *Client) ListFunctions() ([]Function, error) {
	var result struct {
		Functions []Function `json:"functions"`
	}
	if err := c.do("GET", "/api/v1/functions", nil, &result); err != nil {
		return nil, err
	}
	return result.Functions, nil
}

func (c *Client) GetFunction(name string) (*Function, error) {
	var fn Function
	if err := c.do("GET", "/api/v1/functions/"+name, nil, &fn); err != nil {
		return nil, err
	}
	return &fn, nil
}

func (c *Client) UpdateFunction(name string, req *UpdateFunctionRequest) (*Function, error) {
	var fn Function
	if err := c.do("PUT", "/api/v1/functions/"+name, req, &fn); err != nil {
		return nil, err
	}
	return &fn, nil
}

func (c *Client) DeleteFunction(name string) error {
	return c.do("DELETE", "/api/v1/functions/"+name, nil, nil)
}

// InvokeFunction 调用函数。调用端点独立于管理 API，
// 通过 Authorization: Bearer 头携带该函数专属的调用令牌。
func (c *Client) InvokeFunction(name, token string, payload json.RawMessage) (*InvokeResult, error) {
	req, err := http.NewRequest("POST", c.baseURL+"/run/"+name, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			apiErr.Code = resp.StatusCode
			return nil, &apiErr
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result InvokeResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// ====== 遥测查询方法 ======

func (c *Client) ListLogs(name string, limit int) ([]LogEntry, error) {
	var result struct {
		Logs []LogEntry `json:"logs"`
	}
	if limit <= 0 {
		limit = 20
	}
	path := fmt.Sprintf("/api/v1/functions/%s/logs?limit=%d", name, limit)
	if err := c.do("GET", path, nil, &result); err != nil {
		return nil, err
	}
	return result.Logs, nil
}

func (c *Client) GetAnalytics(name string) (*Analytics, error) {
	var analytics Analytics
	if err := c.do("GET", "/api/v1/functions/"+name+"/analytics", nil, &analytics); err != nil {
		return nil, err
	}
	return &analytics, nil
}

// ====== 系统状态方法 ======

func (c *Client) GetHealth() (*HealthStatus, error) {
	var status HealthStatus
	if err := c.do("GET", "/health", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) GetReadiness() (*HealthStatus, error) {
	var status HealthStatus
	if err := c.do("GET", "/health/ready", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
