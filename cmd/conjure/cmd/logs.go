// Package cmd 提供 conjure 命令行工具的所有子命令实现。
// 本文件实现 logs 命令，用于查看函数的执行日志。
//
// 该命令会显示指定函数最近的执行记录，包括状态、耗时和错误信息。
// 可以通过 --limit 参数控制显示的记录数量，默认显示最近20条。
// --follow 参数通过 WebSocket 跟随实时日志流。
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// logsCmd 是 logs 命令的 cobra.Command 实例。
// 该命令用于查看指定函数的执行日志，显示每次执行的状态、耗时等信息。
// 可以通过 --limit 参数限制显示的记录数量。
var logsCmd = &cobra.Command{
	Use:   "logs <name>",
	Short: "View function execution logs",
	Long: `View the execution log of a function.

Examples:
  # View recent executions
  conjure logs greet

  # Follow realtime logs (WebSocket stream)
  conjure logs greet --follow

  # View last N executions
  conjure logs greet --limit 50

  # Output as JSON
  conjure logs greet -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runLogs,
}

// logsLimit 控制显示的执行记录数量，默认为20条。
var logsLimit int

// logsFollow 是否跟随实时日志流。
var logsFollow bool

// init 注册 logs 命令并设置命令行标志。
func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 20, "Number of executions to show")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow realtime logs (WebSocket stream)")
}

// runLogs 是 logs 命令的执行函数。
// 该函数执行以下操作：
//  1. 校验函数存在
//  2. 跟随模式下连接 WebSocket 日志流
//  3. 否则调用 API 获取该函数的执行记录
//  4. 以指定格式输出记录列表
//
// 参数：
//   - cmd: cobra 命令对象
//   - args: 命令行参数，args[0] 是函数名称
//
// 返回值：
//   - error: 获取记录失败时返回错误信息
func runLogs(cmd *cobra.Command, args []string) error {
	name := args[0]

	client := NewClient()
	fn, err := client.GetFunction(name)
	if err != nil {
		return err
	}

	if logsFollow {
		return followLogs(client.baseURL, fn)
	}

	logs, err := client.ListLogs(fn.Name, logsLimit)
	if err != nil {
		return err
	}

	if len(logs) == 0 {
		fmt.Printf("No executions found for function '%s'.\n", name)
		return nil
	}

	printer := NewPrinter()
	fmt.Printf("Recent executions of function '%s':\n\n", name)
	return printer.PrintLogs(logs)
}

// followLogs 连接服务端的 WebSocket 日志流并持续打印，
// 直到用户按 Ctrl+C 中断。
func followLogs(baseURL string, fn *Function) error {
	wsURL, err := buildWebSocketURL(baseURL, "/api/v1/functions/"+fn.Name+"/logs/stream")
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect log stream: %w", err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	fmt.Printf("Following logs for function '%s' (Ctrl+C to stop)...\n", fn.Name)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// If user interrupted, treat as graceful exit.
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("log stream closed: %w", err)
		}

		var entry LogEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}

		if err := printStreamLogEntry(data, &entry); err != nil {
			return err
		}
	}
}

// printStreamLogEntry 按配置的输出格式打印一条实时日志。
func printStreamLogEntry(raw []byte, entry *LogEntry) error {
	switch viper.GetString("output") {
	case "json":
		fmt.Fprintln(os.Stdout, string(raw))
		return nil
	case "yaml":
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		out, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(out))
		return nil
	default:
		// Human-friendly output
		line := fmt.Sprintf("%s\t%s\tduration_ms=%d", entry.Timestamp.Format("15:04:05"), entry.Status, entry.DurationMs)
		if entry.Error != "" {
			line += fmt.Sprintf("\terror=%s", entry.Error)
		}
		fmt.Fprintln(os.Stdout, line)

		printJSONBlock("inputs", entry.Inputs)
		printJSONBlock("output", entry.Output)
		return nil
	}
}

// printJSONBlock 缩进打印一段 JSON 内容，带标签前缀。
func printJSONBlock(label string, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "  ", "  "); err == nil {
		fmt.Fprintf(os.Stdout, "  %s:\n%s\n", label, buf.String())
		return
	}
	fmt.Fprintf(os.Stdout, "  %s:\n  %s\n", label, string(raw))
}

// buildWebSocketURL 把 HTTP API 地址转换为 WebSocket 地址。
func buildWebSocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid api url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// ok
	default:
		return "", fmt.Errorf("unsupported api url scheme: %s", u.Scheme)
	}

	u.Path = path
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
