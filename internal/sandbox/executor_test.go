package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/oriys/conjure/internal/domain"
)

// TestExecutor_Execute_Success 测试正常函数的执行与返回值导出
func TestExecutor_Execute_Success(t *testing.T) {
	e := New(0)

	tests := []struct {
		name   string
		fnName string
		source string
		inputs map[string]any
		order  []string
		check  func(t *testing.T, out any)
	}{
		{
			// 最基本的数值运算
			name:   "数值翻倍",
			fnName: "double",
			source: "function double(x) { return x * 2; }",
			inputs: map[string]any{"x": float64(21)},
			order:  []string{"x"},
			check: func(t *testing.T, out any) {
				if n, ok := out.(int64); !ok || n != 42 {
					if f, ok := out.(float64); !ok || f != 42 {
						t.Errorf("out = %v (%T), want 42", out, out)
					}
				}
			},
		},
		{
			// 多个入参按声明顺序传入
			name:   "多入参拼接",
			fnName: "greet",
			source: "function greet(name, title) { return title + \" \" + name; }",
			inputs: map[string]any{"name": "Wang", "title": "Dr."},
			order:  []string{"name", "title"},
			check: func(t *testing.T, out any) {
				if out != "Dr. Wang" {
					t.Errorf("out = %v, want Dr. Wang", out)
				}
			},
		},
		{
			// 内置对象在允许范围内可用
			name:   "使用内置 Math 与 JSON",
			fnName: "summarize",
			source: "function summarize(xs) { return JSON.stringify({ max: Math.max.apply(null, xs) }); }",
			inputs: map[string]any{"xs": []any{float64(1), float64(9), float64(4)}},
			order:  []string{"xs"},
			check: func(t *testing.T, out any) {
				if out != `{"max":9}` {
					t.Errorf("out = %v, want {\"max\":9}", out)
				}
			},
		},
		{
			// 异步函数的 Promise 结果被展开
			name:   "异步函数结果展开",
			fnName: "asyncDouble",
			source: "async function asyncDouble(x) { return x * 2; }",
			inputs: map[string]any{"x": float64(21)},
			order:  []string{"x"},
			check: func(t *testing.T, out any) {
				if n, ok := out.(int64); !ok || n != 42 {
					if f, ok := out.(float64); !ok || f != 42 {
						t.Errorf("out = %v (%T), want 42", out, out)
					}
				}
			},
		},
		{
			// 入参表同时以 inputs 命名空间对象暴露
			name:   "通过 inputs 命名空间取值",
			fnName: "viaNamespace",
			source: "function viaNamespace() { return inputs.x + inputs.y; }",
			inputs: map[string]any{"x": float64(40), "y": float64(2)},
			order:  []string{"x", "y"},
			check: func(t *testing.T, out any) {
				if n, ok := out.(int64); !ok || n != 42 {
					if f, ok := out.(float64); !ok || f != 42 {
						t.Errorf("out = %v (%T), want 42", out, out)
					}
				}
			},
		},
		{
			// 残留的 console 调试输出不报错
			name:   "console 输出被吞掉",
			fnName: "noisy",
			source: "function noisy(x) { console.log(\"debug\", x); return x; }",
			inputs: map[string]any{"x": "ok"},
			order:  []string{"x"},
			check: func(t *testing.T, out any) {
				if out != "ok" {
					t.Errorf("out = %v, want ok", out)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := Compile(tt.fnName, tt.source)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			out, err := e.Execute(context.Background(), prog, tt.fnName, tt.inputs, tt.order)
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			tt.check(t, out)
		})
	}
}

// TestExecutor_Execute_Timeout 测试死循环被强制中断
func TestExecutor_Execute_Timeout(t *testing.T) {
	e := New(100 * time.Millisecond)
	prog, err := Compile("spin", "function spin() { while (true) {} }")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	start := time.Now()
	_, err = e.Execute(context.Background(), prog, "spin", nil, nil)
	elapsed := time.Since(start)

	execErr := domain.AsExecutionError(err)
	if execErr == nil {
		t.Fatalf("期望 ExecutionError, got %v", err)
	}
	if execErr.Kind != domain.ExecTimeout {
		t.Errorf("Kind = %s, want %s", execErr.Kind, domain.ExecTimeout)
	}
	if elapsed > 2*time.Second {
		t.Errorf("中断耗时 %v, 超出预期", elapsed)
	}
}

// TestExecutor_Execute_UnauthorizedAccess 测试环境访问被归类为越权
func TestExecutor_Execute_UnauthorizedAccess(t *testing.T) {
	e := New(0)

	tests := []struct {
		name   string
		fnName string
		source string
	}{
		{
			// 读取环境变量
			name:   "访问 process.env",
			fnName: "leak",
			source: "function leak() { return process.env.SECRET; }",
		},
		{
			// 加载模块
			name:   "调用 require",
			fnName: "load",
			source: "function load() { return require(\"fs\"); }",
		},
		{
			// 发起网络请求
			name:   "调用 fetch",
			fnName: "callOut",
			source: "function callOut() { return fetch(\"http://example.com\"); }",
		},
		{
			// 动态求值入口被禁用
			name:   "调用 eval",
			fnName: "dyn",
			source: "function dyn() { return eval(\"1+1\"); }",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := Compile(tt.fnName, tt.source)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			_, err = e.Execute(context.Background(), prog, tt.fnName, nil, nil)
			execErr := domain.AsExecutionError(err)
			if execErr == nil {
				t.Fatalf("期望 ExecutionError, got %v", err)
			}
			if execErr.Kind != domain.ExecUnauthorizedAccess {
				t.Errorf("Kind = %s, want %s", execErr.Kind, domain.ExecUnauthorizedAccess)
			}
		})
	}
}

// TestExecutor_Execute_RuntimeError 测试普通代码缺陷归类为运行时错误
func TestExecutor_Execute_RuntimeError(t *testing.T) {
	e := New(0)
	prog, err := Compile("boom", "function boom() { throw new Error(\"业务失败\"); }")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	_, err = e.Execute(context.Background(), prog, "boom", nil, nil)
	execErr := domain.AsExecutionError(err)
	if execErr == nil {
		t.Fatalf("期望 ExecutionError, got %v", err)
	}
	if execErr.Kind != domain.ExecRuntimeError {
		t.Errorf("Kind = %s, want %s", execErr.Kind, domain.ExecRuntimeError)
	}
}

// TestExecutor_Execute_FunctionNotFound 测试源码未定义目标函数
func TestExecutor_Execute_FunctionNotFound(t *testing.T) {
	e := New(0)
	prog, err := Compile("missing", "function other() { return 1; }")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	_, err = e.Execute(context.Background(), prog, "missing", nil, nil)
	execErr := domain.AsExecutionError(err)
	if execErr == nil {
		t.Fatalf("期望 ExecutionError, got %v", err)
	}
	if execErr.Kind != domain.ExecFunctionNotFound {
		t.Errorf("Kind = %s, want %s", execErr.Kind, domain.ExecFunctionNotFound)
	}
}

// TestExecutor_Execute_Isolation 测试调用之间不共享解释器状态
func TestExecutor_Execute_Isolation(t *testing.T) {
	e := New(0)
	prog, err := Compile("bump", "var counter = (typeof counter === \"undefined\") ? 0 : counter; function bump() { counter++; return counter; }")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		out, err := e.Execute(context.Background(), prog, "bump", nil, nil)
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		// 每次调用都在全新实例中执行，计数器不会累积
		if n, ok := out.(int64); !ok || n != 1 {
			if f, ok := out.(float64); !ok || f != 1 {
				t.Errorf("第 %d 次调用 out = %v (%T), want 1", i+1, out, out)
			}
		}
	}
}

// TestCompile_SyntaxError 测试语法错误在编译期暴露
func TestCompile_SyntaxError(t *testing.T) {
	if _, err := Compile("bad", "function broken( { return; }"); err == nil {
		t.Fatal("期望编译错误, got nil")
	}
}
