package schema

import (
	"encoding/json"
	"testing"

	"github.com/oriys/conjure/internal/domain"
)

func boolPtr(b bool) *bool { return &b }

func testContract() domain.Contract {
	return domain.Contract{
		Inputs: []domain.InputSpec{
			{Name: "title", Type: domain.TypeString},
			{Name: "count", Type: domain.TypeNumber},
			{Name: "verbose", Type: domain.TypeBoolean, Required: boolPtr(false)},
			{Name: "meta", Type: domain.TypeObject, Required: boolPtr(false)},
			{Name: "tags", Type: domain.TypeArray, Required: boolPtr(false)},
		},
		Output: domain.OutputSpec{Type: domain.TypeString},
	}
}

// TestValidator_Parse 测试各类载荷的校验结果
func TestValidator_Parse(t *testing.T) {
	v := Build(testContract())

	tests := []struct {
		name       string
		payload    string
		wantErr    bool
		wantFields []string
	}{
		{
			// 完整载荷通过校验
			name:    "全部入参合法",
			payload: `{"title":"a","count":3,"verbose":true,"meta":{"k":1},"tags":[1,2]}`,
		},
		{
			// 可选入参可以缺失
			name:    "仅必填入参",
			payload: `{"title":"a","count":3}`,
		},
		{
			// 必填缺失按字段报告
			name:       "必填入参缺失",
			payload:    `{"title":"a"}`,
			wantErr:    true,
			wantFields: []string{"count"},
		},
		{
			// 类型不匹配按字段报告
			name:       "类型不匹配",
			payload:    `{"title":1,"count":"x"}`,
			wantErr:    true,
			wantFields: []string{"title", "count"},
		},
		{
			// null 不匹配任何声明类型
			name:       "null 值拒绝",
			payload:    `{"title":null,"count":3}`,
			wantErr:    true,
			wantFields: []string{"title"},
		},
		{
			// 多余字段被拒绝
			name:       "契约未声明的字段",
			payload:    `{"title":"a","count":3,"titel":"typo"}`,
			wantErr:    true,
			wantFields: []string{"titel"},
		},
		{
			// 多类问题同时聚合报告
			name:       "聚合多个字段问题",
			payload:    `{"count":"x","extra":1}`,
			wantErr:    true,
			wantFields: []string{"title", "count", "extra"},
		},
		{
			// 非对象载荷整体拒绝
			name:       "非对象载荷",
			payload:    `[1,2,3]`,
			wantErr:    true,
			wantFields: []string{"_payload"},
		},
		{
			// 空载荷等价于缺失全部字段
			name:       "空载荷",
			payload:    ``,
			wantErr:    true,
			wantFields: []string{"title", "count"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := v.Parse(json.RawMessage(tt.payload))
			if tt.wantErr {
				verr := domain.AsValidationError(err)
				if verr == nil {
					t.Fatalf("期望 ValidationError, got %v", err)
				}
				if len(verr.Fields) != len(tt.wantFields) {
					t.Fatalf("字段数 = %d, want %d: %v", len(verr.Fields), len(tt.wantFields), verr.Fields)
				}
				for _, f := range tt.wantFields {
					if _, ok := verr.Fields[f]; !ok {
						t.Errorf("缺少字段 %q 的报告: %v", f, verr.Fields)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if values["title"] != "a" {
				t.Errorf("title = %v, want a", values["title"])
			}
			if values["count"] != float64(3) {
				t.Errorf("count = %v, want 3", values["count"])
			}
		})
	}
}

// TestValidator_InputNames 测试入参名保持声明顺序
func TestValidator_InputNames(t *testing.T) {
	v := Build(testContract())
	want := []string{"title", "count", "verbose", "meta", "tags"}
	got := v.InputNames()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("InputNames()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
