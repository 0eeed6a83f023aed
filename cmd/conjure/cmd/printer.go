// Package cmd 提供 conjure 命令行工具的所有子命令实现。
// 本文件实现输出格式化打印功能，支持多种输出格式。
//
// Printer 支持以下输出格式：
//   - table: 表格格式（默认），适合人类阅读
//   - json:  JSON 格式，适合程序处理
//   - yaml:  YAML 格式，适合配置文件
//
// 提供了针对不同数据类型的打印方法：
//   - PrintFunctions:    打印函数列表
//   - PrintFunction:     打印单个函数详情
//   - PrintLogs:         打印执行日志列表
//   - PrintInvokeResult: 打印调用结果
//   - PrintAnalytics:    打印聚合统计
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Printer 是格式化输出的处理器。
// 根据配置的输出格式（table/json/yaml）将数据格式化后输出到指定的 writer。
type Printer struct {
	format string    // 输出格式：table、json 或 yaml
	writer io.Writer // 输出目标，默认为 os.Stdout
}

// NewPrinter 创建一个新的 Printer 实例。
// 从 viper 配置中读取 output 格式，如果未配置则默认使用 table 格式。
//
// 返回值：
//   - *Printer: 新创建的打印器实例
func NewPrinter() *Printer {
	format := viper.GetString("output")
	if format == "" {
		format = "table"
	}
	return &Printer{
		format: format,
		writer: os.Stdout,
	}
}

// PrintFunctions 打印函数列表。
// 根据配置的输出格式（table/json/yaml）格式化输出函数列表。
func (p *Printer) PrintFunctions(functions []Function) error {
	switch p.format {
	case "json":
		return p.printJSON(functions)
	case "yaml":
		return p.printYAML(functions)
	default:
		return p.printFunctionsTable(functions)
	}
}

// PrintFunction 打印单个函数的详细信息。
func (p *Printer) PrintFunction(fn *Function) error {
	switch p.format {
	case "json":
		return p.printJSON(fn)
	case "yaml":
		return p.printYAML(fn)
	default:
		return p.printFunctionDetail(fn)
	}
}

// PrintLogs 打印执行日志列表。
func (p *Printer) PrintLogs(logs []LogEntry) error {
	switch p.format {
	case "json":
		return p.printJSON(logs)
	case "yaml":
		return p.printYAML(logs)
	default:
		return p.printLogsTable(logs)
	}
}

// PrintInvokeResult 打印函数调用结果。
func (p *Printer) PrintInvokeResult(result *InvokeResult) error {
	switch p.format {
	case "json":
		return p.printJSON(result)
	case "yaml":
		return p.printYAML(result)
	default:
		return p.printInvokeResultDetail(result)
	}
}

// PrintAnalytics 打印聚合统计信息。
func (p *Printer) PrintAnalytics(analytics *Analytics) error {
	switch p.format {
	case "json":
		return p.printJSON(analytics)
	case "yaml":
		return p.printYAML(analytics)
	default:
		return p.printAnalyticsDetail(analytics)
	}
}

// printJSON 以 JSON 格式输出数据。
// 使用 2 空格缩进美化输出。
func (p *Printer) printJSON(v interface{}) error {
	enc := json.NewEncoder(p.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printYAML 以 YAML 格式输出数据。
// 使用 2 空格缩进。
func (p *Printer) printYAML(v interface{}) error {
	enc := yaml.NewEncoder(p.writer)
	enc.SetIndent(2)
	return enc.Encode(v)
}

// printFunctionsTable 以表格形式输出函数列表。
// 显示名称、契约概要、定时表达式和创建时间。
func (p *Printer) printFunctionsTable(functions []Function) error {
	if len(functions) == 0 {
		fmt.Fprintln(p.writer, "No functions found.")
		return nil
	}

	w := tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tINPUTS\tOUTPUT\tCRON\tCREATED")

	for _, fn := range functions {
		cron := fn.CronExpression
		if cron == "" {
			cron = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			fn.Name,
			formatContractInputs(fn.Contract.Inputs),
			fn.Contract.Output.Type,
			cron,
			timeAgo(fn.CreatedAt),
		)
	}

	return w.Flush()
}

// printFunctionDetail 以详细格式输出单个函数信息。
// 显示函数的契约、令牌（仅创建响应携带）、文档和源码。
func (p *Printer) printFunctionDetail(fn *Function) error {
	fmt.Fprintf(p.writer, "Name:        %s\n", fn.Name)
	fmt.Fprintf(p.writer, "ID:          %s\n", fn.ID)
	fmt.Fprintf(p.writer, "Description: %s\n", fn.Description)
	fmt.Fprintf(p.writer, "Output:      %s\n", fn.Contract.Output.Type)
	if fn.CronExpression != "" {
		fmt.Fprintf(p.writer, "Cron:        %s\n", fn.CronExpression)
	}
	fmt.Fprintf(p.writer, "Created:     %s\n", fn.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(p.writer, "Updated:     %s\n", fn.UpdatedAt.Format(time.RFC3339))

	if len(fn.Contract.Inputs) > 0 {
		fmt.Fprintln(p.writer, "Inputs:")
		for _, in := range fn.Contract.Inputs {
			optional := ""
			if in.Required != nil && !*in.Required {
				optional = " (optional)"
			}
			desc := ""
			if in.Description != "" {
				desc = "  " + in.Description
			}
			fmt.Fprintf(p.writer, "  %s: %s%s%s\n", in.Name, in.Type, optional, desc)
		}
	}

	if fn.Token != "" {
		fmt.Fprintf(p.writer, "\nToken:       %s\n", fn.Token)
		fmt.Fprintln(p.writer, "Store this token now. It is only shown once.")
	}

	if fn.Documentation != "" {
		fmt.Fprintln(p.writer, "\nDocumentation:")
		fmt.Fprintln(p.writer, "---")
		fmt.Fprintln(p.writer, fn.Documentation)
		fmt.Fprintln(p.writer, "---")
	}

	if fn.SourceCode != "" {
		fmt.Fprintln(p.writer, "\nSource:")
		fmt.Fprintln(p.writer, "---")
		fmt.Fprintln(p.writer, fn.SourceCode)
		fmt.Fprintln(p.writer, "---")
	}

	return nil
}

// printLogsTable 以表格形式输出执行日志列表。
// 显示日志ID、状态、耗时、错误摘要和执行时间。
func (p *Printer) printLogsTable(logs []LogEntry) error {
	if len(logs) == 0 {
		fmt.Fprintln(p.writer, "No logs found.")
		return nil
	}

	w := tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tDURATION\tERROR\tTIME")

	for _, entry := range logs {
		errMsg := "-"
		if entry.Error != "" {
			errMsg = truncate(entry.Error, 40)
		}
		fmt.Fprintf(w, "%s\t%s\t%dms\t%s\t%s\n",
			truncate(entry.ID, 12),
			colorStatus(entry.Status),
			entry.DurationMs,
			errMsg,
			timeAgo(entry.Timestamp),
		)
	}

	return w.Flush()
}

// printInvokeResultDetail 以详细格式输出调用结果。
// 显示请求ID、耗时和函数返回值。
func (p *Printer) printInvokeResultDetail(result *InvokeResult) error {
	fmt.Fprintf(p.writer, "Request ID: %s\n", result.RequestID)
	fmt.Fprintf(p.writer, "Duration:   %d ms\n", result.DurationMs)

	if len(result.Output) > 0 {
		fmt.Fprintln(p.writer, "\nOutput:")
		var prettyJSON bytes.Buffer
		if err := json.Indent(&prettyJSON, result.Output, "", "  "); err == nil {
			fmt.Fprintln(p.writer, prettyJSON.String())
		} else {
			fmt.Fprintln(p.writer, string(result.Output))
		}
	}

	return nil
}

// printAnalyticsDetail 以详细格式输出聚合统计。
// 显示调用总量、成功率、平均耗时和最近7天的按天计数。
func (p *Printer) printAnalyticsDetail(analytics *Analytics) error {
	fmt.Fprintf(p.writer, "Function:     %s\n", analytics.FunctionName)
	fmt.Fprintf(p.writer, "Total Calls:  %d\n", analytics.TotalCalls)
	fmt.Fprintf(p.writer, "Success:      %d\n", analytics.SuccessCount)
	fmt.Fprintf(p.writer, "Errors:       %d\n", analytics.ErrorCount)
	fmt.Fprintf(p.writer, "Success Rate: %.1f%%\n", analytics.SuccessRate*100)
	fmt.Fprintf(p.writer, "Avg Duration: %.1f ms\n", analytics.AvgDurationMs)
	if analytics.LastCalledAt != nil {
		fmt.Fprintf(p.writer, "Last Called:  %s\n", timeAgo(*analytics.LastCalledAt))
	}

	if len(analytics.Daily) > 0 {
		fmt.Fprintln(p.writer, "\nDaily:")
		w := tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tCALLS\tERRORS")
		for _, bucket := range analytics.Daily {
			fmt.Fprintf(w, "%s\t%d\t%d\n", bucket.Date, bucket.Calls, bucket.Errors)
		}
		w.Flush()
	}

	return nil
}

// ====== 辅助函数 ======

// formatContractInputs 把契约输入参数压缩为一行摘要。
// 例如 "city:string, units:string?"
func formatContractInputs(inputs []InputSpec) string {
	if len(inputs) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(inputs))
	for _, in := range inputs {
		suffix := ""
		if in.Required != nil && !*in.Required {
			suffix = "?"
		}
		parts = append(parts, fmt.Sprintf("%s:%s%s", in.Name, in.Type, suffix))
	}
	return strings.Join(parts, ", ")
}

// colorStatus 根据状态值返回带颜色的字符串。
// 使用 ANSI 转义序列：
//   - 绿色: success、healthy、ready
//   - 红色: error、failed、unhealthy
func colorStatus(status string) string {
	switch strings.ToLower(status) {
	case "success", "healthy", "ready":
		return "\033[32m" + status + "\033[0m" // Green
	case "error", "failed", "unhealthy":
		return "\033[31m" + status + "\033[0m" // Red
	default:
		return status
	}
}

// timeAgo 将时间转换为相对时间字符串。
// 例如："5s ago"、"3m ago"、"2h ago"、"1d ago"
func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	d := time.Since(t)

	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// truncate 截断字符串到指定长度。
// 如果字符串超过最大长度，则截断并添加 "..." 后缀。
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
