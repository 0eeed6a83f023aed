// Package cmd 提供 conjure 命令行工具的所有子命令实现。
// 本文件实现 stats 命令，用于查看函数的聚合统计信息。
package cmd

import (
	"github.com/spf13/cobra"
)

// statsCmd 是 stats 命令的 cobra.Command 实例。
// 该命令显示指定函数的调用总量、成功率、平均耗时
// 和最近7天的按天计数。
var statsCmd = &cobra.Command{
	Use:     "stats <name>",
	Aliases: []string{"analytics"},
	Short:   "Show function analytics",
	Long: `Show aggregated invocation statistics for a function.

Examples:
  # Show analytics
  conjure stats greet

  # Output as JSON
  conjure stats greet -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runStats,
}

// init 注册 stats 命令到根命令。
func init() {
	rootCmd.AddCommand(statsCmd)
}

// runStats 是 stats 命令的执行函数。
func runStats(cmd *cobra.Command, args []string) error {
	client := NewClient()
	analytics, err := client.GetAnalytics(args[0])
	if err != nil {
		return err
	}

	printer := NewPrinter()
	return printer.PrintAnalytics(analytics)
}
