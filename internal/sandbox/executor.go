// Package sandbox 提供函数源码的受限执行环境。
// 执行环境基于纯 Go 的 ECMAScript 解释器构建，不开放任何宿主能力：
// 没有模块加载、没有文件系统、没有网络、没有计时器。
// 源码在注册时编译一次，每次调用在全新的解释器实例中求值，
// 调用之间不共享任何状态。
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/oriys/conjure/internal/domain"
)

// DefaultTimeout 是单次执行的默认超时时间
const DefaultTimeout = 5 * time.Second

// interruptReason 是超时中断时注入解释器的标记值
const interruptReason = "execution timed out"

// ambientNames 列出宿主环境惯有而沙箱刻意不提供的全局名。
// 引用这些名字产生的 ReferenceError 归类为越权访问而非普通运行时错误，
// 便于调用方区分“代码想逃逸”和“代码有缺陷”。
var ambientNames = map[string]struct{}{
	"process":        {},
	"require":        {},
	"module":         {},
	"exports":        {},
	"fs":             {},
	"child_process":  {},
	"fetch":          {},
	"XMLHttpRequest": {},
	"WebSocket":      {},
	"setTimeout":     {},
	"setInterval":    {},
	"setImmediate":   {},
	"window":         {},
	"document":       {},
	"global":         {},
	"Buffer":         {},
	"__dirname":      {},
	"__filename":     {},
}

// Executor 是沙箱执行器。
// 执行器本身无状态，单个实例可被任意并发调用。
type Executor struct {
	timeout time.Duration
}

// New 创建沙箱执行器。timeout 为零时使用 DefaultTimeout。
func New(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{timeout: timeout}
}

// Timeout 返回执行器的单次执行超时时间
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Compile 将归一化后的源码编译为可复用的程序。
// 编译产物只读，可被多次并发执行；语法错误在这里一次性暴露，
// 不会等到首次调用才发现。
func Compile(name, source string) (*goja.Program, error) {
	prog, err := goja.Compile(name, source, false)
	if err != nil {
		return nil, fmt.Errorf("源码编译失败: %w", err)
	}
	return prog, nil
}

// Execute 在全新的沙箱实例中执行已编译的程序并调用指定函数。
// inputs 是已通过契约校验的入参表，order 是契约声明的入参顺序；
// 函数按声明顺序收到位置实参，同时整个入参表以 inputs
// 命名空间对象的形式挂入全局，供解构风格的代码取用。
// 执行受超时与 ctx 取消双重约束，超限时解释器被强制中断并
// 返回 timeout 类错误。Promise 结果会被等待展开。
func (e *Executor) Execute(ctx context.Context, prog *goja.Program, fnName string, inputs map[string]any, order []string) (any, error) {
	vm := goja.New()
	hardenRuntime(vm)
	vm.Set("inputs", inputs)

	// 超时与取消共用一个中断通道；中断是强制性的，
	// 不依赖被执行代码的配合
	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-execCtx.Done():
			vm.Interrupt(interruptReason)
		case <-watchDone:
		}
	}()

	// 求值程序体，声明函数
	if _, err := vm.RunProgram(prog); err != nil {
		return nil, classify(err)
	}

	fn, ok := goja.AssertFunction(vm.Get(fnName))
	if !ok {
		return nil, domain.NewExecutionError(domain.ExecFunctionNotFound,
			"源码未定义可调用的函数 %s", fnName)
	}

	callArgs := make([]goja.Value, len(order))
	for i, name := range order {
		if v, ok := inputs[name]; ok {
			callArgs[i] = vm.ToValue(v)
		} else {
			// 缺席的可选入参以 undefined 占位，保持位置对齐
			callArgs[i] = goja.Undefined()
		}
	}

	result, err := fn(goja.Undefined(), callArgs...)
	if err != nil {
		return nil, classify(err)
	}

	// 异步函数返回 Promise；解释器在调用返回前已排空微任务队列，
	// 此时 Promise 必然已定型
	if p, ok := result.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			return p.Result().Export(), nil
		case goja.PromiseStateRejected:
			return nil, classify(fmt.Errorf("%s", promiseRejection(p.Result())))
		default:
			return nil, domain.NewExecutionError(domain.ExecRuntimeError,
				"Promise 未定型：代码依赖沙箱不提供的异步能力")
		}
	}

	return result.Export(), nil
}

// hardenRuntime 收紧解释器的全局环境。
// 动态求值入口换成抛错桩，保证静态扫描漏网的间接调用
// 也会以越权访问的形式失败。
func hardenRuntime(vm *goja.Runtime) {
	throwDisabled := func(name string) func(goja.FunctionCall) goja.Value {
		return func(goja.FunctionCall) goja.Value {
			panic(vm.NewTypeError("%s 在沙箱中被禁用", name))
		}
	}
	vm.Set("eval", throwDisabled("eval"))
	vm.Set("Function", throwDisabled("Function"))

	// console 提供空实现：生成的代码常残留调试输出，
	// 不应因此报 ReferenceError
	console := vm.NewObject()
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	console.Set("log", noop)
	console.Set("info", noop)
	console.Set("warn", noop)
	console.Set("error", noop)
	console.Set("debug", noop)
	vm.Set("console", console)
}

// classify 将解释器错误映射为带类别的执行错误
func classify(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return domain.NewExecutionError(domain.ExecTimeout, "执行超时被强制中断")
	}

	msg := err.Error()
	if name, ok := undefinedAmbientName(msg); ok {
		return domain.NewExecutionError(domain.ExecUnauthorizedAccess,
			"访问了沙箱不提供的环境能力: %s", name)
	}
	if strings.Contains(msg, "在沙箱中被禁用") {
		return domain.NewExecutionError(domain.ExecUnauthorizedAccess, "%s", msg)
	}
	return domain.NewExecutionError(domain.ExecRuntimeError, "%s", msg)
}

// undefinedAmbientName 从 ReferenceError 消息中提取未定义的标识符，
// 并判断它是否属于刻意缺席的宿主全局名
func undefinedAmbientName(msg string) (string, bool) {
	const marker = " is not defined"
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return "", false
	}
	head := msg[:idx]
	if cut := strings.LastIndexByte(head, ' '); cut >= 0 {
		head = head[cut+1:]
	}
	_, ok := ambientNames[head]
	return head, ok
}

// promiseRejection 将 Promise 拒绝值转为可读消息
func promiseRejection(v goja.Value) string {
	if v == nil {
		return "Promise 被拒绝"
	}
	if obj, ok := v.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
			return m.String()
		}
	}
	return v.String()
}
