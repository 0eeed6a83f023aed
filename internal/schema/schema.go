// Package schema 提供基于函数契约的入参校验功能。
// 校验器在函数注册时由契约一次性构建，调用期仅做只读匹配，
// 可被任意并发使用。
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/oriys/conjure/internal/domain"
)

// fieldRule 是单个入参的校验规则
type fieldRule struct {
	name     string
	typ      domain.InputType
	required bool
}

// Validator 是由契约编译出的入参校验器。
// 校验器持有声明顺序的字段规则，供执行器按声明顺序取值。
type Validator struct {
	rules  []fieldRule
	byName map[string]*fieldRule
}

// Build 根据函数契约构建入参校验器。
// 契约本身必须已通过 Validate；Build 不重复做契约合法性检查。
func Build(contract domain.Contract) *Validator {
	v := &Validator{
		rules:  make([]fieldRule, 0, len(contract.Inputs)),
		byName: make(map[string]*fieldRule, len(contract.Inputs)),
	}
	for _, in := range contract.Inputs {
		v.rules = append(v.rules, fieldRule{
			name:     in.Name,
			typ:      in.Type,
			required: in.IsRequired(),
		})
	}
	for i := range v.rules {
		v.byName[v.rules[i].name] = &v.rules[i]
	}
	return v
}

// InputNames 按声明顺序返回契约中的入参名
func (v *Validator) InputNames() []string {
	names := make([]string, len(v.rules))
	for i, r := range v.rules {
		names[i] = r.name
	}
	return names
}

// Parse 解析并校验调用载荷，返回按入参名索引的取值表。
// 校验失败时返回 domain.ValidationError，其中聚合了所有字段的问题：
// 必填缺失、类型不匹配以及契约未声明的多余字段。
// 可选入参缺失时不出现在结果表中。
func (v *Validator) Parse(payload json.RawMessage) (map[string]any, error) {
	var raw map[string]json.RawMessage
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, &domain.ValidationError{Fields: map[string]string{
				"_payload": "调用载荷必须是 JSON 对象",
			}}
		}
	}

	fields := make(map[string]string)
	values := make(map[string]any, len(v.rules))

	for _, r := range v.rules {
		rawVal, ok := raw[r.name]
		if !ok {
			if r.required {
				fields[r.name] = "必填入参缺失"
			}
			continue
		}
		val, err := decodeTyped(rawVal, r.typ)
		if err != nil {
			fields[r.name] = fmt.Sprintf("期望类型 %s", r.typ)
			continue
		}
		values[r.name] = val
	}

	// 契约未声明的字段视为错误，避免悄悄丢弃调用方的拼写错误
	for name := range raw {
		if _, ok := v.byName[name]; !ok {
			fields[name] = "契约未声明该入参"
		}
	}

	if len(fields) > 0 {
		return nil, &domain.ValidationError{Fields: fields}
	}
	return values, nil
}

// decodeTyped 按声明类型解码单个入参值。
// JSON null 不匹配任何声明类型。
func decodeTyped(raw json.RawMessage, typ domain.InputType) (any, error) {
	// json.Unmarshal 对 null 保持目标零值且不报错，需显式拦截
	if string(raw) == "null" {
		return nil, fmt.Errorf("null 不匹配类型 %s", typ)
	}
	switch typ {
	case domain.TypeString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	case domain.TypeNumber:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, err
		}
		return f, nil
	case domain.TypeBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case domain.TypeObject:
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case domain.TypeArray:
		var a []any
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("未知入参类型: %s", typ)
	}
}
