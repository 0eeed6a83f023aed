// Package safety 提供生成代码的静态安全扫描。
// 该包对未经任何改写的原始源码片段执行基于子串的拒绝列表匹配，
// 拦截模块加载、动态求值、进程/文件系统/全局对象访问等危险构造。
//
// 这是一个尽力而为的前置闸门，不是安全边界本身——真正的边界是沙箱
// （internal/sandbox）。扫描必须在两个时机运行：
//  1. 函数首次入库之前；
//  2. 每次执行已存储代码之前（防御通过其他途径被篡改或加载的代码）。
package safety

import "strings"

// Result 表示一次安全扫描的结论。
type Result struct {
	// Safe 源码是否通过扫描
	Safe bool
	// Reason 未通过时命中的模式描述，通过时为空
	Reason string
}

// pattern 表示拒绝列表中的单个模式。
type pattern struct {
	// needle 小写形式的匹配子串
	needle string
	// reason 命中时返回给调用方的原因描述
	reason string
}

// denylist 是固定的危险构造拒绝列表。
// 匹配是大小写不敏感的子串匹配，按声明顺序求值，首个命中即判定不安全。
// 列表针对归一化之前的原始片段：先扫描再归一化，
// 避免攻击者借助归一化引入的改写来伪装危险构造。
var denylist = []pattern{
	// 模块加载
	{"require(", "module loading via require()"},
	{"import(", "dynamic module loading via import()"},
	{"import ", "static module import"},
	// 动态求值
	{"eval(", "dynamic code evaluation via eval()"},
	{"new function", "dynamic code evaluation via Function constructor"},
	{"settimeout", "deferred evaluation via setTimeout"},
	{"setinterval", "deferred evaluation via setInterval"},
	// 进程与子进程
	{"process.", "process object access"},
	{"child_process", "child process invocation"},
	{"execsync", "child process invocation"},
	{"spawn(", "child process invocation"},
	// 文件系统
	{"fs.", "filesystem access"},
	{"readfile", "filesystem read"},
	{"writefile", "filesystem write"},
	// 全局对象与环境逃逸
	{"globalthis", "global object access"},
	{"global.", "global object access"},
	{"__dirname", "module path access"},
	{"__filename", "module path access"},
	{"__proto__", "prototype chain manipulation"},
	// 网络
	{"fetch(", "network access via fetch"},
	{"xmlhttprequest", "network access via XMLHttpRequest"},
	{"websocket", "network access via WebSocket"},
}

// Validator 是基于模式的静态安全扫描器。
// 零值即可用；扫描是无状态的纯函数操作，可被任意并发调用。
type Validator struct{}

// New 创建一个安全扫描器。
func New() *Validator {
	return &Validator{}
}

// Check 对原始源码片段执行拒绝列表扫描。
// 首个命中的模式决定结论，Reason 指明命中的构造。
func (v *Validator) Check(source string) Result {
	lowered := strings.ToLower(source)
	for _, p := range denylist {
		if strings.Contains(lowered, p.needle) {
			return Result{Safe: false, Reason: p.reason}
		}
	}
	return Result{Safe: true}
}
