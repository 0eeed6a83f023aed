// Package normalize 提供源码归一化功能。
// 该包将带类型注解的源码片段改写为纯运行时可直接求值的形式：
// 剥离模块导出标记、函数签名与箭头表达式上的类型注解、
// 以及局部变量声明上的类型注解。
//
// 归一化是纯函数式的：确定、全函数（永不失败）且幂等。
// 归一化只移除类型层面的语法，绝不改变业务逻辑的运行时语义。
// 若输入的形态超出可归一化范围，产出会在执行期以
// “函数未找到”一类的错误暴露，而不是在这里报错。
package normalize

import "regexp"

// typeExpr 匹配一个类型表达式：标识符（可带点路径）、
// 可选的单层泛型参数和任意层数组后缀。
// 不支持内联对象类型等复杂形态——归一化是尽力而为的文本改写。
const typeExpr = `[A-Za-z_$][\w$.]*(?:\s*<[^<>]*>)?(?:\s*\[\s*\])*`

// typeUnion 匹配由 | 或 & 连接的类型表达式序列。
const typeUnion = typeExpr + `(?:\s*[|&]\s*` + typeExpr + `)*`

// 归一化各阶段使用的正则表达式。
// 阶段顺序敏感：后面的阶段假定前面的阶段已经执行。
var (
	// 阶段一：剥离模块导出标记

	// exportDefaultRe 匹配 "export default " 前缀
	exportDefaultRe = regexp.MustCompile(`(?m)^(\s*)export\s+default\s+`)
	// exportRe 匹配 "export " 前缀
	exportRe = regexp.MustCompile(`(?m)^(\s*)export\s+`)
	// moduleExportsRe 匹配整行的 "module.exports = ..." 赋值
	moduleExportsRe = regexp.MustCompile(`(?m)^\s*module\.exports\s*=[^\n]*$`)
	// namedExportsRe 匹配 "exports.name = " 赋值前缀
	namedExportsRe = regexp.MustCompile(`(?m)^(\s*)exports\.[A-Za-z_$][\w$]*\s*=\s*`)
	// typeAliasRe 匹配整行的 "type Name = ..." 类型别名声明
	typeAliasRe = regexp.MustCompile(`(?m)^\s*type\s+[A-Za-z_$][\w$]*\s*=[^\n]*$`)

	// 阶段二：剥离函数签名上的类型注解

	// returnTypeRe 匹配 ") : Type {" 和 ") : Type =>" 形式的返回类型注解
	returnTypeRe = regexp.MustCompile(`\)\s*:\s*` + typeUnion + `\s*(=>|\{)`)
	// paramTypeRe 匹配形参上的类型注解 "(name: Type," / ", name?: Type)" 等；
	// 终结符（逗号、右括号或默认值的等号）被一并捕获以便原样保留
	paramTypeRe = regexp.MustCompile(`([(,]\s*[A-Za-z_$][\w$]*)\??\s*:\s*` + typeUnion + `\s*([,)=])`)

	// 阶段三：剥离局部变量声明上的类型注解

	// varTypeRe 匹配 "let name: Type =" 形式的变量类型注解
	varTypeRe = regexp.MustCompile(`\b(let|const|var)\s+([A-Za-z_$][\w$]*)\s*:\s*` + typeUnion + `\s*=`)
)

// Normalizer 是源码归一化器。
// 零值即可用；归一化是无状态操作，可被任意并发调用。
type Normalizer struct{}

// New 创建一个归一化器。
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize 将带类型注解的源码改写为可直接求值的形式。
// 三个阶段按固定顺序执行：
//  1. 剥离导出标记，使函数成为普通的本地声明；
//  2. 剥离函数签名与箭头表达式上的返回类型和形参类型注解，
//     保留形参名和默认值结构；
//  3. 剥离局部变量声明上的类型注解。
//
// 形参注解的剥离以固定点方式迭代：单次替换会消耗相邻形参的
// 分隔符，循环直到文本不再变化，保证 "(a: number, b: string)"
// 这类相邻注解被完整处理。
func (n *Normalizer) Normalize(source string) string {
	out := source

	// 阶段一：导出标记
	out = exportDefaultRe.ReplaceAllString(out, "$1")
	out = exportRe.ReplaceAllString(out, "$1")
	out = moduleExportsRe.ReplaceAllString(out, "")
	out = namedExportsRe.ReplaceAllString(out, "$1")
	out = typeAliasRe.ReplaceAllString(out, "")

	// 阶段二：函数签名
	out = returnTypeRe.ReplaceAllString(out, ") $1")
	out = fixpoint(paramTypeRe, out, "$1$2")

	// 阶段三：变量声明
	out = varTypeRe.ReplaceAllString(out, "$1 $2 =")

	return out
}

// fixpoint 反复应用替换直到文本不再变化。
// 用于存在重叠匹配（前一次匹配消耗了下一次匹配的起始字符）的模式。
func fixpoint(re *regexp.Regexp, s, repl string) string {
	for {
		next := re.ReplaceAllString(s, repl)
		if next == s {
			return s
		}
		s = next
	}
}
