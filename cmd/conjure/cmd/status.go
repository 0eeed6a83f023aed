// Package cmd 提供 conjure 命令行工具的所有子命令实现。
// 本文件实现 status 命令，用于查看服务端的健康状态。
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// statusCmd 是 status 命令的 cobra.Command 实例。
// 该命令检查服务端的存活和就绪状态。
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show platform status",
	Long: `Check the health and readiness of the platform.

Examples:
  conjure status`,
	RunE: runStatus,
}

// init 注册 status 命令到根命令。
func init() {
	rootCmd.AddCommand(statusCmd)
}

// runStatus 是 status 命令的执行函数。
func runStatus(cmd *cobra.Command, args []string) error {
	client := NewClient()

	health, err := client.GetHealth()
	if err != nil {
		return err
	}
	fmt.Printf("Health: %s\n", colorStatus(health.Status))

	ready, err := client.GetReadiness()
	if err != nil {
		fmt.Printf("Ready:  %s (%v)\n", colorStatus("unhealthy"), err)
		return nil
	}
	fmt.Printf("Ready:  %s\n", colorStatus(ready.Status))

	return nil
}
