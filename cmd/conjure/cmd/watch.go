// Package cmd 提供 conjure 命令行工具的所有子命令实现。
// 本文件实现 watch 命令，用于本地开发时的自动同步。
//
// 该命令监听本地源码文件的变化，文件保存后自动把新源码
// 推送到平台。平台侧照常走安全扫描与编译检查，拒绝的改动
// 会在终端打印原因，函数保持上一版实现不变。
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// watchCmd 是 watch 命令的 cobra.Command 实例。
// 该命令监听本地文件变化并自动更新平台上的函数源码，
// 可选地在每次同步成功后用 --data 指定的参数调用一次函数。
var watchCmd = &cobra.Command{
	Use:   "watch <name>",
	Short: "Watch a source file and sync changes to the platform",
	Long: `Watch a local source file and push changes to the platform on save.

Each save goes through the platform's safety scan and compile check.
Rejected changes are printed and the deployed function stays on its
previous implementation.

Examples:
  # Sync greet.js on every save
  conjure watch greet --file greet.js

  # Invoke after each successful sync
  conjure watch greet --file greet.js --token <token> --data '{"name": "World"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

// watch 命令的标志变量
var (
	watchFile  string // 监听的源码文件路径
	watchToken string // 调用令牌（自动调用时使用）
	watchData  string // 同步成功后自动调用的 JSON 参数
)

// init 注册 watch 命令并设置命令行标志。
func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchFile, "file", "f", "", "Source file to watch")
	watchCmd.Flags().StringVarP(&watchToken, "token", "t", "", "Invocation token for --data")
	watchCmd.Flags().StringVarP(&watchData, "data", "d", "", "Invoke with this JSON payload after each sync")

	watchCmd.MarkFlagRequired("file")
}

// fileSyncer 负责把本地文件的变化同步到平台。
// 编辑器保存往往触发连续多个写事件，用去抖动窗口合并。
type fileSyncer struct {
	client     *Client
	name       string
	sourcePath string

	mu       sync.Mutex
	lastSync time.Time
}

// sync 读取本地文件并推送到平台。
// 750ms 内的重复触发被忽略。
func (s *fileSyncer) sync() {
	s.mu.Lock()
	if time.Since(s.lastSync) < 750*time.Millisecond {
		s.mu.Unlock()
		return
	}
	s.lastSync = time.Now()
	s.mu.Unlock()

	data, err := os.ReadFile(s.sourcePath)
	if err != nil {
		fmt.Printf("[%s] ❌ Failed to read source: %v\n", time.Now().Format("15:04:05"), err)
		return
	}

	source := string(data)
	if _, err := s.client.UpdateFunction(s.name, &UpdateFunctionRequest{SourceCode: &source}); err != nil {
		fmt.Printf("[%s] ❌ Rejected: %v\n", time.Now().Format("15:04:05"), err)
		return
	}
	fmt.Printf("[%s] ✅ Synced %s\n", time.Now().Format("15:04:05"), filepath.Base(s.sourcePath))

	if watchData != "" && watchToken != "" {
		result, err := s.client.InvokeFunction(s.name, watchToken, json.RawMessage(watchData))
		if err != nil {
			fmt.Printf("[%s] ❌ Invoke failed: %v\n", time.Now().Format("15:04:05"), err)
			return
		}
		fmt.Printf("[%s] 📨 Output: %s (%dms)\n", time.Now().Format("15:04:05"), string(result.Output), result.DurationMs)
	}
}

// runWatch 是 watch 命令的执行函数。
// 该函数执行以下操作：
//  1. 校验函数存在并做一次初始同步
//  2. 监听源码文件所在目录的写事件
//  3. 每次保存后推送新源码，直到用户按 Ctrl+C 中断
//
// 参数：
//   - cmd: cobra 命令对象
//   - args: 命令行参数，args[0] 是函数名称
//
// 返回值：
//   - error: 监听或同步失败时返回错误信息
func runWatch(cmd *cobra.Command, args []string) error {
	name := args[0]
	client := NewClient()

	if _, err := client.GetFunction(name); err != nil {
		return err
	}

	syncer := &fileSyncer{client: client, name: name, sourcePath: watchFile}
	syncer.sync()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// 监听源文件所在目录
	// 编辑器的原子保存（写临时文件再改名）不会命中文件本身的 watch
	dir := filepath.Dir(watchFile)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching %s for function '%s' (Ctrl+C to stop)...\n", watchFile, name)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Base(event.Name) != filepath.Base(watchFile) {
				continue
			}
			syncer.sync()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Printf("Watcher error: %v\n", err)
		case <-ctx.Done():
			fmt.Println("\nStopped.")
			return nil
		}
	}
}
