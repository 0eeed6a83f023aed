// Package main 是 conjure 命令行工具的入口点
// conjure 是用于管理动态函数执行平台的 CLI 工具
// 它提供创建、列出、调用、删除函数等操作
package main

import (
	"os"

	"github.com/oriys/conjure/cmd/conjure/cmd"
)

// main 是 CLI 工具的主函数
// 它调用 cmd 包的 Execute 函数来解析和执行用户命令
func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
