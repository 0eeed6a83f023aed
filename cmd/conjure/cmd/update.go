// Package cmd 提供 conjure 命令行工具的所有子命令实现。
// 本文件实现 update 命令，用于更新已注册的函数。
//
// 更新是部分更新：只有显式提供的标志会被发送给服务端。
// 改动描述或契约且未提供源码时，服务端会重新生成实现；
// 只改动文档不会触发重新生成。
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// updateCmd 是 update 命令的 cobra.Command 实例。
// 该命令用于更新指定函数的描述、契约、源码、文档或定时表达式。
// 未提供的字段保持不变，函数的调用令牌在更新后依然有效。
var updateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Update a function",
	Long: `Update an existing function. Only the provided flags are applied.

Changing the description or contract without providing new source code
makes the platform regenerate the implementation. The invocation token
is never rotated by an update.

Examples:
  # Change the description (implementation is regenerated)
  conjure update greet --description "Return a formal greeting"

  # Replace the implementation from a file
  conjure update greet --file greet.js

  # Replace the documentation only (no regeneration)
  conjure update greet --docs-file README.md

  # Attach a schedule
  conjure update daily_report --cron "0 6 * * *"

  # Rename the function
  conjure update greet --rename welcome`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

// update 命令的标志变量
var (
	updateRename      string   // 新函数名
	updateDescription string   // 新描述
	updateInputs      []string // 新输入契约声明（整体替换）
	updateOutput      string   // 新输出类型
	updateFile        string   // 源码文件路径
	updateDocsFile    string   // 文档文件路径
	updateCron        string   // 定时任务表达式
)

// init 注册 update 命令并设置命令行标志。
func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().StringVar(&updateRename, "rename", "", "New function name")
	updateCmd.Flags().StringVarP(&updateDescription, "description", "d", "", "New description")
	updateCmd.Flags().StringArrayVarP(&updateInputs, "input", "i", nil, "Replace input declarations (name:type, append '?' for optional)")
	updateCmd.Flags().StringVar(&updateOutput, "output-type", "", "New output type")
	updateCmd.Flags().StringVarP(&updateFile, "file", "f", "", "Replace source code from file")
	updateCmd.Flags().StringVar(&updateDocsFile, "docs-file", "", "Replace documentation from file")
	updateCmd.Flags().StringVar(&updateCron, "cron", "", "Cron expression (empty string removes the schedule)")
}

// runUpdate 是 update 命令的执行函数。
// 该函数把显式提供的标志组装成部分更新请求发送给服务端，
// 未提供的字段不出现在请求体中。
//
// 参数：
//   - cmd: cobra 命令对象
//   - args: 命令行参数，args[0] 是函数名称
//
// 返回值：
//   - error: 更新失败时返回错误信息
func runUpdate(cmd *cobra.Command, args []string) error {
	name := args[0]
	req := &UpdateFunctionRequest{}
	changed := false

	if cmd.Flags().Changed("rename") {
		req.Name = &updateRename
		changed = true
	}
	if cmd.Flags().Changed("description") {
		req.Description = &updateDescription
		changed = true
	}
	if cmd.Flags().Changed("input") || cmd.Flags().Changed("output-type") {
		// 契约整体替换；只改输出类型时保留原有输入声明
		client := NewClient()
		current, err := client.GetFunction(name)
		if err != nil {
			return err
		}
		contract := current.Contract
		if cmd.Flags().Changed("input") {
			inputs := make([]InputSpec, 0, len(updateInputs))
			for _, spec := range updateInputs {
				in, err := parseInputSpec(spec)
				if err != nil {
					return err
				}
				inputs = append(inputs, in)
			}
			contract.Inputs = inputs
		}
		if cmd.Flags().Changed("output-type") {
			contract.Output.Type = updateOutput
		}
		req.Contract = &contract
		changed = true
	}
	if cmd.Flags().Changed("file") {
		data, err := os.ReadFile(updateFile)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		source := string(data)
		req.SourceCode = &source
		changed = true
	}
	if cmd.Flags().Changed("docs-file") {
		data, err := os.ReadFile(updateDocsFile)
		if err != nil {
			return fmt.Errorf("failed to read docs file: %w", err)
		}
		docs := string(data)
		req.Documentation = &docs
		changed = true
	}
	if cmd.Flags().Changed("cron") {
		req.CronExpression = &updateCron
		changed = true
	}

	if !changed {
		return fmt.Errorf("nothing to update: provide at least one flag")
	}

	client := NewClient()
	fn, err := client.UpdateFunction(name, req)
	if err != nil {
		return err
	}

	printer := NewPrinter()
	fmt.Printf("Function '%s' updated successfully.\n\n", fn.Name)
	return printer.PrintFunction(fn)
}
