// Package cmd 提供 conjure 命令行工具的所有子命令实现。
// 本文件实现 create 命令，用于在平台上注册新函数。
//
// 创建函数时可以通过以下方式提供源码：
//   - 使用 --file 参数从文件读取 JavaScript 源码
//   - 省略源码，由平台的代码生成服务根据描述和契约产出实现
//
// 输入契约通过 --input 参数声明，格式为 name:type，
// 类型后缀 "?" 表示可选参数，例如 units:string?。
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// createCmd 是 create 命令的 cobra.Command 实例。
// 该命令用于在平台上注册新函数。缺省情况下源码由
// 代码生成服务根据自然语言描述产出，也可以从文件提供。
var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new function",
	Long: `Create a new function on the platform.

Without --file the platform generates the implementation from the
description and the declared contract. The invocation token is printed
exactly once in the create response.

Examples:
  # Generate implementation from natural language
  conjure create greet --description "Return a greeting for the given name" \
    --input name:string

  # Optional input and non-string output
  conjure create add --description "Add two numbers" \
    --input a:number --input b:number --output number

  # Provide the implementation yourself
  conjure create fetch_weather --description "Fetch current weather" \
    --input city:string --input units:string? --output object --file weather.js

  # Scheduled function (inputs must all be optional)
  conjure create daily_report --description "Build the daily report" \
    --output object --cron "0 6 * * *"`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

// create 命令的标志变量
var (
	createDescription string   // 自然语言描述
	createInputs      []string // 输入契约声明，格式为 name:type
	createOutput      string   // 输出类型
	createOutputDesc  string   // 输出说明
	createFile        string   // 源码文件路径
	createCron        string   // 定时任务表达式
)

// init 注册 create 命令并设置命令行标志。
// 该函数在包初始化时自动调用。
func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVarP(&createDescription, "description", "d", "", "Natural language description")
	createCmd.Flags().StringArrayVarP(&createInputs, "input", "i", nil, "Input declaration (name:type, append '?' for optional)")
	createCmd.Flags().StringVar(&createOutput, "output-type", "string", "Output type (string, number, boolean, object, array)")
	createCmd.Flags().StringVar(&createOutputDesc, "output-desc", "", "Output description")
	createCmd.Flags().StringVarP(&createFile, "file", "f", "", "Source code file path (omit to generate)")
	createCmd.Flags().StringVar(&createCron, "cron", "", "Cron expression for scheduled execution (e.g., '*/5 * * * *')")

	// 标记必需的参数
	createCmd.MarkFlagRequired("description")
}

// parseInputSpec 解析单个 --input 声明。
// 格式为 name:type，类型后缀 "?" 表示可选参数，
// 可以再跟一个冒号分隔的说明文本，如 city:string:城市名。
//
// 参数：
//   - spec: 输入声明字符串
//
// 返回值：
//   - InputSpec: 解析出的输入声明
//   - error: 格式非法时返回错误
func parseInputSpec(spec string) (InputSpec, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return InputSpec{}, fmt.Errorf("invalid input declaration %q (expected name:type)", spec)
	}

	in := InputSpec{Name: parts[0], Type: parts[1]}
	if strings.HasSuffix(in.Type, "?") {
		in.Type = strings.TrimSuffix(in.Type, "?")
		optional := false
		in.Required = &optional
	}
	if len(parts) == 3 {
		in.Description = parts[2]
	}
	return in, nil
}

// runCreate 是 create 命令的执行函数。
// 该函数执行以下操作：
//  1. 获取函数名称（从命令行参数）
//  2. 解析 --input 声明构造契约
//  3. 从文件读取源码（如果提供）
//  4. 调用 API 创建函数
//  5. 输出创建结果（包含仅此一次展示的调用令牌）
//
// 参数：
//   - cmd: cobra 命令对象
//   - args: 命令行参数，args[0] 是函数名称
//
// 返回值：
//   - error: 创建失败时返回错误信息
func runCreate(cmd *cobra.Command, args []string) error {
	name := args[0]

	// Parse input declarations
	inputs := make([]InputSpec, 0, len(createInputs))
	for _, spec := range createInputs {
		in, err := parseInputSpec(spec)
		if err != nil {
			return err
		}
		inputs = append(inputs, in)
	}

	// Read source from file if provided
	source := ""
	if createFile != "" {
		data, err := os.ReadFile(createFile)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		source = string(data)
	}

	client := NewClient()
	fn, err := client.CreateFunction(&CreateFunctionRequest{
		Name:        name,
		Description: createDescription,
		Contract: Contract{
			Inputs: inputs,
			Output: OutputSpec{Type: createOutput, Description: createOutputDesc},
		},
		SourceCode:     source,
		CronExpression: createCron,
	})
	if err != nil {
		return err
	}

	printer := NewPrinter()
	fmt.Printf("Function '%s' created successfully.\n\n", fn.Name)
	return printer.PrintFunction(fn)
}
