// Package domain 定义了动态函数执行平台的核心领域模型。
package domain

import (
	"errors"
	"fmt"
)

// 领域错误定义
// 这些错误用于在应用程序的不同层之间传递业务逻辑相关的错误信息。

var (
	// ========== 函数相关错误 ==========

	// ErrFunctionNotFound 表示请求的函数不存在
	ErrFunctionNotFound = errors.New("function not found")
	// ErrFunctionExists 表示尝试创建的函数已经存在（名称冲突）
	ErrFunctionExists = errors.New("function already exists")
	// ErrInvalidFunctionName 表示函数名称无效（为空或不符合标识符规范）
	ErrInvalidFunctionName = errors.New("invalid function name")
	// ErrInvalidDescription 表示既未提供描述也未提供源码
	ErrInvalidDescription = errors.New("description or source code required")
	// ErrSourceSizeExceeded 表示源代码大小超出限制
	ErrSourceSizeExceeded = errors.New("source code size exceeds maximum limit")
	// ErrInvalidCronExpression 表示定时触发表达式无效
	ErrInvalidCronExpression = errors.New("invalid cron expression")

	// ========== 契约相关错误 ==========

	// ErrInvalidInputName 表示契约中的输入名称无效
	ErrInvalidInputName = errors.New("invalid input name")
	// ErrDuplicateInputName 表示契约中存在重复的输入名称
	ErrDuplicateInputName = errors.New("duplicate input name")
	// ErrInvalidInputType 表示契约中的输入类型不受支持
	ErrInvalidInputType = errors.New("invalid input type")
	// ErrInvalidOutputType 表示契约中的输出类型不受支持
	ErrInvalidOutputType = errors.New("invalid output type")

	// ========== 认证相关错误 ==========

	// ErrMissingCredential 表示请求未携带凭证字段
	ErrMissingCredential = errors.New("missing credential")
	// ErrMalformedCredential 表示凭证缺少 Bearer 前缀或格式不正确
	ErrMalformedCredential = errors.New("malformed bearer credential")
	// ErrEmptyToken 表示 Bearer 前缀后的令牌为空
	ErrEmptyToken = errors.New("empty token")
	// ErrTokenMismatch 表示令牌与函数存储的密钥不匹配
	ErrTokenMismatch = errors.New("token mismatch")

	// ========== 安全校验相关错误 ==========

	// ErrUnsafeCode 表示源码命中了静态安全扫描的拒绝模式
	ErrUnsafeCode = errors.New("unsafe code rejected")

	// ========== 存储相关错误 ==========

	// ErrStorageConnection 表示存储连接错误（如数据库连接失败）
	ErrStorageConnection = errors.New("storage connection error")
	// ErrStorageQuery 表示存储查询错误（如 SQL 查询失败）
	ErrStorageQuery = errors.New("storage query error")
)

// ExecutionErrorKind 表示沙箱执行失败的类别。
// 不同类别会映射到不同的响应码，并在遥测中分别统计，
// 以便区分“代码写坏了”和“代码试图越权”。
type ExecutionErrorKind string

// 执行错误类别常量定义
const (
	// ExecTimeout 表示执行超过了硬性墙钟超时并被强制中断
	ExecTimeout ExecutionErrorKind = "timeout"
	// ExecUnauthorizedAccess 表示代码引用了允许列表之外的环境能力
	ExecUnauthorizedAccess ExecutionErrorKind = "unauthorized_access"
	// ExecRuntimeError 表示沙箱内抛出了未捕获的运行时异常
	ExecRuntimeError ExecutionErrorKind = "runtime_error"
	// ExecFunctionNotFound 表示声明源码后未找到与函数名同名的可调用绑定
	ExecFunctionNotFound ExecutionErrorKind = "function_not_found"
)

// ExecutionError 表示沙箱执行失败的结构化错误。
// Kind 用于区分失败类别，Message 携带沙箱内部的原始错误信息。
type ExecutionError struct {
	// Kind 失败类别
	Kind ExecutionErrorKind
	// Message 沙箱内部的错误描述
	Message string
}

// Error 实现 error 接口。
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed (%s): %s", e.Kind, e.Message)
}

// NewExecutionError 创建一个指定类别的执行错误。
func NewExecutionError(kind ExecutionErrorKind, format string, args ...any) *ExecutionError {
	return &ExecutionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsExecutionError 尝试将 err 解包为 *ExecutionError。
// 返回 nil 表示 err 不是执行错误。
func AsExecutionError(err error) *ExecutionError {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee
	}
	return nil
}

// ValidationError 表示调用载荷未通过契约校验的结构化错误。
// Fields 记录每个失败字段及其原因，便于调用方逐项修正。
type ValidationError struct {
	// Fields 字段名到失败原因的映射
	Fields map[string]string
}

// Error 实现 error 接口。
func (e *ValidationError) Error() string {
	return fmt.Sprintf("input validation failed: %d field(s) invalid", len(e.Fields))
}

// AsValidationError 尝试将 err 解包为 *ValidationError。
func AsValidationError(err error) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}
