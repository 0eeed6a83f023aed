// Package cmd 提供 conjure 命令行工具的所有子命令实现。
// 本文件实现 get 命令，用于获取单个函数的详细信息。
//
// 默认只显示契约和元数据，源码和文档需要通过 --source
// 和 --docs 参数启用，支持以 JSON 或 YAML 格式输出。
package cmd

import (
	"github.com/spf13/cobra"
)

// getCmd 是 get 命令的 cobra.Command 实例。
// 该命令用于获取指定函数的详细信息，包括描述、契约和定时表达式。
// 可通过 --source 参数显示函数源码，--docs 参数显示生成的文档。
var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Get function details",
	Long: `Get detailed information about a function.

Examples:
  # Get function by name
  conjure get greet

  # Include the source code
  conjure get greet --source

  # Include the generated documentation
  conjure get greet --docs

  # Output as JSON
  conjure get greet -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

// get 命令的标志变量
var (
	getShowSource bool // 是否显示函数源码
	getShowDocs   bool // 是否显示生成的文档
)

// init 注册 get 命令并设置命令行标志。
func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().BoolVar(&getShowSource, "source", false, "Show function source code")
	getCmd.Flags().BoolVar(&getShowDocs, "docs", false, "Show generated documentation")
}

// runGet 是 get 命令的执行函数。
// 该函数执行以下操作：
//  1. 通过名称获取函数信息
//  2. 根据 --source 和 --docs 参数裁剪输出
//  3. 以指定格式输出函数详情
//
// 参数：
//   - cmd: cobra 命令对象
//   - args: 命令行参数，args[0] 是函数名称
//
// 返回值：
//   - error: 获取失败时返回错误信息
func runGet(cmd *cobra.Command, args []string) error {
	client := NewClient()
	fn, err := client.GetFunction(args[0])
	if err != nil {
		return err
	}

	if !getShowSource {
		fn.SourceCode = ""
	}
	if !getShowDocs {
		fn.Documentation = ""
	}

	printer := NewPrinter()
	return printer.PrintFunction(fn)
}
