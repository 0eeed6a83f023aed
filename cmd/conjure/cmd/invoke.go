// Package cmd 提供 conjure 命令行工具的所有子命令实现。
// 本文件实现 invoke 命令，用于调用（执行）已注册的函数。
//
// 调用必须携带该函数专属的令牌，可以通过以下方式提供：
//   - 使用 --token 参数
//   - 设置 CONJURE_TOKEN 环境变量
//
// 调用参数支持多种提供方式：
//   - 使用 --data 参数直接提供 JSON 数据
//   - 使用 --file 参数从文件读取 JSON 数据
//   - 通过标准输入（stdin）管道传递数据
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// invokeCmd 是 invoke 命令的 cobra.Command 实例。
// 该命令用于调用指定的函数并等待执行结果。
// 调用参数可以通过命令行参数、文件或标准输入提供。
var invokeCmd = &cobra.Command{
	Use:   "invoke <name>",
	Short: "Invoke a function",
	Long: `Invoke a function and wait for the result.

The per-function invocation token is required. Pass it with --token or
set the CONJURE_TOKEN environment variable.

Examples:
  # Invoke with JSON data
  conjure invoke greet --token <token> --data '{"name": "World"}'

  # Invoke with data from file
  conjure invoke greet --token <token> --file event.json

  # Invoke from stdin
  echo '{"name": "World"}' | conjure invoke greet --token <token>

  # Token from the environment
  CONJURE_TOKEN=<token> conjure invoke greet --data '{"name": "World"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoke,
}

// invoke 命令的标志变量
var (
	invokeToken string // 函数调用令牌
	invokeData  string // JSON 格式的调用参数
	invokeFile  string // 包含 JSON 参数的文件路径
)

// init 注册 invoke 命令并设置命令行标志。
func init() {
	rootCmd.AddCommand(invokeCmd)

	invokeCmd.Flags().StringVarP(&invokeToken, "token", "t", "", "Invocation token (or CONJURE_TOKEN)")
	invokeCmd.Flags().StringVarP(&invokeData, "data", "d", "", "JSON payload")
	invokeCmd.Flags().StringVarP(&invokeFile, "file", "f", "", "JSON payload file")
}

// runInvoke 是 invoke 命令的执行函数。
// 该函数执行以下操作：
//  1. 获取要调用的函数名称和调用令牌
//  2. 从命令行参数、文件或标准输入获取 JSON 参数
//  3. 验证 JSON 格式是否正确
//  4. 携带 Bearer 令牌调用函数
//  5. 输出调用结果
//
// 参数：
//   - cmd: cobra 命令对象
//   - args: 命令行参数，args[0] 是函数名称
//
// 返回值：
//   - error: 调用失败时返回错误信息
func runInvoke(cmd *cobra.Command, args []string) error {
	name := args[0]

	token := invokeToken
	if token == "" {
		token = viper.GetString("token")
	}
	if token == "" {
		return fmt.Errorf("invocation token is required (--token or CONJURE_TOKEN)")
	}

	// Get payload from various sources
	var payload json.RawMessage

	switch {
	case invokeData != "":
		payload = json.RawMessage(invokeData)
	case invokeFile != "":
		data, err := os.ReadFile(invokeFile)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		payload = data
	default:
		// Try reading from stdin
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			if len(data) > 0 {
				payload = data
			}
		}
	}

	// Default to empty object if no payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	// Validate JSON
	if !json.Valid(payload) {
		return fmt.Errorf("invalid JSON payload")
	}

	client := NewClient()
	result, err := client.InvokeFunction(name, token, payload)
	if err != nil {
		return err
	}

	printer := NewPrinter()
	return printer.PrintInvokeResult(result)
}
