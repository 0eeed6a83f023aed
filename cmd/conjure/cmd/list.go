// Package cmd 提供 conjure 命令行工具的所有子命令实现。
// 本文件实现 list 命令，用于列出平台上所有已注册的函数。
//
// 默认以表格形式显示函数列表，包括名称、契约概要和创建时间。
// 支持以 JSON 或 YAML 格式输出，也支持 ls 作为命令别名。
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

// listCmd 是 list 命令的 cobra.Command 实例。
// 该命令用于列出平台上所有已注册的函数。
// 支持 ls 作为命令别名，可配置输出格式（table/json/yaml）。
// 列表响应不包含调用令牌。
var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all functions",
	Long: `List all functions on the platform.

Examples:
  # List all functions
  conjure list

  # Only scheduled functions
  conjure list --scheduled

  # Output as JSON
  conjure list -o json`,
	RunE: runList,
}

var (
	listSearch    string // Search query
	listScheduled bool   // Only functions with a cron expression
)

// init 注册 list 命令到根命令。
func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&listSearch, "search", "q", "", "Search by name or description")
	listCmd.Flags().BoolVar(&listScheduled, "scheduled", false, "Only show scheduled functions")
}

// runList 是 list 命令的执行函数。
func runList(cmd *cobra.Command, args []string) error {
	client := NewClient()
	functions, err := client.ListFunctions()
	if err != nil {
		return err
	}

	// Apply client-side filtering
	filtered := make([]Function, 0)
	for _, fn := range functions {
		if listScheduled && fn.CronExpression == "" {
			continue
		}
		if listSearch != "" {
			query := strings.ToLower(listSearch)
			if !strings.Contains(strings.ToLower(fn.Name), query) &&
				!strings.Contains(strings.ToLower(fn.Description), query) {
				continue
			}
		}
		filtered = append(filtered, fn)
	}

	printer := NewPrinter()
	return printer.PrintFunctions(filtered)
}
