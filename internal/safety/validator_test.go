// Package safety 提供生成代码的静态安全扫描。
// 该文件包含拒绝列表扫描的单元测试。
package safety

import "testing"

// TestValidator_Check 测试拒绝列表扫描对各类危险构造的拦截。
// 覆盖场景包括：
// - 干净的业务代码通过扫描
// - 模块加载、动态求值、进程/文件/全局访问被拦截
// - 大小写变体不能绕过扫描
func TestValidator_Check(t *testing.T) {
	v := New()

	tests := []struct {
		name     string // 测试用例名称
		source   string // 待扫描的源码
		wantSafe bool   // 是否期望通过
	}{
		{
			// 测试用例：普通业务逻辑应通过
			name:     "clean business logic",
			source:   "function double(n) { return n * 2; }",
			wantSafe: true,
		},
		{
			// 测试用例：带类型注解的干净代码也应通过
			name:     "clean typed source",
			source:   "function greet(name: string): string { return `hi ${name}`; }",
			wantSafe: true,
		},
		{
			// 测试用例：require 模块加载被拦截
			name:     "require call",
			source:   `function f() { const fs = require("fs"); }`,
			wantSafe: false,
		},
		{
			// 测试用例：动态 import 被拦截
			name:     "dynamic import",
			source:   `function f() { return import("os"); }`,
			wantSafe: false,
		},
		{
			// 测试用例：eval 被拦截
			name:     "eval call",
			source:   `function f(code) { return eval(code); }`,
			wantSafe: false,
		},
		{
			// 测试用例：Function 构造器被拦截
			name:     "function constructor",
			source:   `function f(body) { return new Function(body)(); }`,
			wantSafe: false,
		},
		{
			// 测试用例：process 访问被拦截
			name:     "process access",
			source:   `function f() { return process.env.SECRET; }`,
			wantSafe: false,
		},
		{
			// 测试用例：子进程调用被拦截
			name:     "child process",
			source:   `function f() { child_process.execSync("ls"); }`,
			wantSafe: false,
		},
		{
			// 测试用例：文件系统访问被拦截
			name:     "filesystem read",
			source:   `function f() { return readFileSync("/etc/passwd"); }`,
			wantSafe: false,
		},
		{
			// 测试用例：globalThis 逃逸被拦截
			name:     "globalThis escape",
			source:   `function f() { return globalThis.constructor; }`,
			wantSafe: false,
		},
		{
			// 测试用例：大小写变体不能绕过扫描
			name:     "uppercase disguise",
			source:   `function f() { return REQUIRE("fs"); }`,
			wantSafe: false,
		},
		{
			// 测试用例：fetch 网络访问被拦截
			name:     "network fetch",
			source:   `function f(url) { return fetch(url); }`,
			wantSafe: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Check(tt.source)
			if res.Safe != tt.wantSafe {
				t.Errorf("Check() safe = %v, want %v (reason: %q)", res.Safe, tt.wantSafe, res.Reason)
			}
			// 未通过时必须给出命中原因
			if !res.Safe && res.Reason == "" {
				t.Error("Check() unsafe result must carry a reason")
			}
			// 通过时不应携带原因
			if res.Safe && res.Reason != "" {
				t.Errorf("Check() safe result should not carry a reason, got %q", res.Reason)
			}
		})
	}
}

// TestValidator_FirstMatchWins 测试多個模式同时命中时返回首个命中的原因。
func TestValidator_FirstMatchWins(t *testing.T) {
	v := New()
	// 同时包含 require 和 eval，require 在拒绝列表中排位更靠前
	res := v.Check(`const m = require("x"); eval("1+1");`)
	if res.Safe {
		t.Fatal("expected unsafe result")
	}
	if res.Reason != "module loading via require()" {
		t.Errorf("expected first matching pattern to win, got %q", res.Reason)
	}
}
