// Package domain 定义了动态函数执行平台的核心领域模型。
// 该包包含了函数记录、输入输出契约、执行日志等核心实体的定义，
// 以及相关的接口和请求/响应结构体。
// 这是整个应用程序的领域层，遵循领域驱动设计(DDD)原则。
package domain

import (
	"regexp"
	"time"

	"github.com/robfig/cron/v3"
)

// InputType 表示契约中声明的输入/输出类型。
// 类型系统刻意保持扁平：仅支持五种原始形态，不做嵌套结构校验。
type InputType string

// 支持的契约类型常量定义
const (
	// TypeString 字符串类型
	TypeString InputType = "string"
	// TypeNumber 数值类型（整数和浮点数均可）
	TypeNumber InputType = "number"
	// TypeBoolean 布尔类型
	TypeBoolean InputType = "boolean"
	// TypeObject 自由形态的键值对象（仅校验“是一个对象”）
	TypeObject InputType = "object"
	// TypeArray 自由形态的序列（仅校验“是一个数组”）
	TypeArray InputType = "array"
)

// IsValid 检查契约类型是否有效。
func (t InputType) IsValid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeObject, TypeArray:
		return true
	default:
		return false
	}
}

// 代码大小限制常量
const (
	// MaxSourceSize 是函数源代码的最大大小（256KB）
	MaxSourceSize = 256 * 1024
)

// functionNamePattern 是合法函数名的正则表达式。
// 函数名必须以字母开头，只能包含字母、数字和下划线，
// 因为它会作为沙箱内的顶层函数标识符被查找和调用。
var functionNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidateFunctionName 验证函数名是否符合命名规范。
// 返回 nil 表示验证通过，否则返回 ErrInvalidFunctionName。
func ValidateFunctionName(name string) error {
	if !functionNamePattern.MatchString(name) {
		return ErrInvalidFunctionName
	}
	return nil
}

// ValidateSourceSize 验证源代码大小是否在限制范围内。
func ValidateSourceSize(source string) error {
	if len(source) > MaxSourceSize {
		return ErrSourceSizeExceeded
	}
	return nil
}

// ValidateCronExpression 验证 cron 表达式是否有效。
// 支持标准 5 字段格式：分 时 日 月 星期。
// 空表达式是有效的（表示无定时触发）。
func ValidateCronExpression(expr string) error {
	if expr == "" {
		return nil
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return ErrInvalidCronExpression
	}
	return nil
}

// InputSpec 表示契约中一个具名的、带类型的输入声明。
type InputSpec struct {
	// Name 输入名称，同时是沙箱内函数的形参名
	Name string `json:"name"`
	// Type 输入类型
	Type InputType `json:"type"`
	// Required 是否必填，缺省为 true
	Required *bool `json:"required,omitempty"`
	// Description 输入的描述信息，可选
	Description string `json:"description,omitempty"`
}

// IsRequired 返回该输入是否必填。
// Required 字段未显式声明时默认必填。
func (s InputSpec) IsRequired() bool {
	return s.Required == nil || *s.Required
}

// OutputSpec 表示契约中声明的单一输出。
type OutputSpec struct {
	// Type 输出类型
	Type InputType `json:"type"`
	// Description 输出的描述信息，可选
	Description string `json:"description,omitempty"`
}

// Contract 表示函数的输入输出契约。
// 输入列表是有序的：沙箱执行器按声明顺序将输入值作为位置参数传入函数。
type Contract struct {
	// Inputs 有序的输入声明列表
	Inputs []InputSpec `json:"inputs"`
	// Output 单一输出声明
	Output OutputSpec `json:"output"`
}

// Validate 验证契约声明是否有效。
// 检查每个输入的名称和类型，以及输出类型。
func (c *Contract) Validate() error {
	seen := make(map[string]bool, len(c.Inputs))
	for _, in := range c.Inputs {
		if err := ValidateFunctionName(in.Name); err != nil {
			return ErrInvalidInputName
		}
		if seen[in.Name] {
			return ErrDuplicateInputName
		}
		seen[in.Name] = true
		if !in.Type.IsValid() {
			return ErrInvalidInputType
		}
	}
	if !c.Output.Type.IsValid() {
		return ErrInvalidOutputType
	}
	return nil
}

// FunctionRecord 表示一个已注册的动态函数实体。
// 这是平台的核心领域对象，由目录（catalog）独占持有；
// 执行子系统在每次调用时只读取该记录，并写出派生的执行遥测。
type FunctionRecord struct {
	// ID 是函数记录的唯一标识符
	ID string `json:"id"`
	// Name 是函数名称，全局唯一，同时是源码中顶层函数的标识符
	Name string `json:"name"`
	// Description 是创建该函数时的自然语言描述（生成器的输入）
	Description string `json:"description,omitempty"`
	// SourceCode 是生成器产出的源码片段，假定其中恰好定义一个名为 Name 的顶层函数
	SourceCode string `json:"source_code"`
	// Token 是创建时签发的不透明凭证，此后不可变（更新操作永不重新生成）
	Token string `json:"token,omitempty"`
	// Contract 是函数的输入输出契约
	Contract Contract `json:"contract"`
	// Documentation 是生成的使用文档（Markdown），随逻辑/契约变更重新生成
	Documentation string `json:"documentation,omitempty"`
	// CronExpression 是定时触发表达式（可选），如 "*/5 * * * *"
	CronExpression string `json:"cron_expression,omitempty"`
	// CreatedAt 是函数的创建时间，不可变
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt 是函数的最后更新时间
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateFunctionRequest 表示创建函数的请求结构体。
// 调用方只提供名称、自然语言描述和契约；源码由代码生成器产出。
type CreateFunctionRequest struct {
	// Name 是函数名称，必填
	Name string `json:"name"`
	// Description 是函数的自然语言描述，必填，作为代码生成器的输入
	Description string `json:"description"`
	// Contract 是函数的输入输出契约，必填
	Contract Contract `json:"contract"`
	// SourceCode 可选：直接提供源码以跳过生成步骤（仍会经过安全校验）
	SourceCode string `json:"source_code,omitempty"`
	// CronExpression 是定时触发表达式（可选）
	CronExpression string `json:"cron_expression,omitempty"`
}

// Validate 验证创建函数请求的参数是否有效。
// 如果验证失败，返回相应的错误；验证通过则返回 nil。
func (r *CreateFunctionRequest) Validate() error {
	if err := ValidateFunctionName(r.Name); err != nil {
		return err
	}
	if r.Description == "" && r.SourceCode == "" {
		return ErrInvalidDescription
	}
	if err := r.Contract.Validate(); err != nil {
		return err
	}
	if r.SourceCode != "" {
		if err := ValidateSourceSize(r.SourceCode); err != nil {
			return err
		}
	}
	return ValidateCronExpression(r.CronExpression)
}

// UpdateFunctionRequest 表示更新函数的请求结构体。
// 所有字段都是指针类型，允许部分更新（只更新非 nil 的字段）。
// Token 和 CreatedAt 永远不会被更新。
type UpdateFunctionRequest struct {
	// Name 是更新后的函数名称
	Name *string `json:"name,omitempty"`
	// Description 是更新后的自然语言描述（触发代码重新生成）
	Description *string `json:"description,omitempty"`
	// Contract 是更新后的契约（触发代码重新生成）
	Contract *Contract `json:"contract,omitempty"`
	// SourceCode 是更新后的源码（直接替换，跳过生成）
	SourceCode *string `json:"source_code,omitempty"`
	// Documentation 是更新后的文档；单独更新文档不会触发代码重新生成
	Documentation *string `json:"documentation,omitempty"`
	// CronExpression 是更新后的定时触发表达式
	CronExpression *string `json:"cron_expression,omitempty"`
}

// ChangesLogic 返回该更新是否涉及函数的逻辑、契约或名称。
// 涉及逻辑的更新需要重新生成文档并重新执行安全校验；
// 仅更新 Documentation 字段则两者都不需要。
func (r *UpdateFunctionRequest) ChangesLogic() bool {
	return r.Name != nil || r.Description != nil || r.Contract != nil || r.SourceCode != nil
}

// InvokeResult 表示一次函数调用的结果。
type InvokeResult struct {
	// RequestID 是本次调用的唯一请求标识
	RequestID string `json:"request_id"`
	// Output 是函数执行的返回值
	Output any `json:"output,omitempty"`
	// DurationMs 是函数执行耗时（单位：毫秒）
	DurationMs int64 `json:"duration_ms"`
}
