// Package cmd 包含 conjure CLI 工具的所有命令实现
// 使用 cobra 框架构建命令行接口
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// 全局命令行标志变量
var (
	cfgFile   string // 配置文件路径
	apiURL    string // API 服务器地址
	outputFmt string // 输出格式（table/json/yaml）
)

// rootCmd 是 CLI 的根命令
// 所有子命令都挂载在这个根命令下
var rootCmd = &cobra.Command{
	Use:   "conjure",
	Short: "Conjure - Dynamic Function Platform CLI",
	Long: `conjure 是用于管理动态函数执行平台的命令行工具。

使用示例:
  # 用自然语言描述创建函数（代码由平台生成）
  conjure create greet --description "Return a greeting for the given name" \
    --input name:string

  # 从文件创建函数
  conjure create add --description "Add two numbers" \
    --input a:number --input b:number --output number --file add.js

  # 列出所有函数
  conjure list

  # 调用函数
  conjure invoke greet --token <token> --data '{"name": "World"}'

  # 查看函数执行日志
  conjure logs greet --follow`,
}

// Execute 执行根命令
// 这是 CLI 的入口函数，由 main 包调用
//
// 返回:
//   - error: 命令执行错误
func Execute() error {
	return rootCmd.Execute()
}

// init 初始化命令行工具
// 注册全局标志和配置初始化函数
func init() {
	// 在命令执行前初始化配置
	cobra.OnInitialize(initConfig)

	// 注册持久化标志（所有子命令都可使用）
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径（默认为 $HOME/.conjure.yaml）")
	rootCmd.PersistentFlags().StringVarP(&apiURL, "api-url", "u", "http://localhost:8080", "API 服务器地址")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "输出格式（table、json、yaml）")

	// 将标志绑定到 viper 配置
	viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
}

// initConfig 初始化配置
// 按优先级加载配置：命令行标志 > 环境变量 > 配置文件
func initConfig() {
	if cfgFile != "" {
		// 使用用户指定的配置文件
		viper.SetConfigFile(cfgFile)
	} else {
		// 获取用户主目录
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// 搜索配置文件的路径
		viper.AddConfigPath(home) // 在主目录查找
		viper.AddConfigPath(".")  // 在当前目录查找
		viper.SetConfigType("yaml")
		viper.SetConfigName(".conjure") // 配置文件名（不含扩展名）
	}

	// 设置环境变量前缀
	// 环境变量格式：CONJURE_<KEY>，如 CONJURE_API_URL
	viper.SetEnvPrefix("CONJURE")
	viper.AutomaticEnv() // 自动读取环境变量

	_ = viper.BindEnv("api_url", "CONJURE_API_URL")
	_ = viper.BindEnv("output", "CONJURE_OUTPUT")
	_ = viper.BindEnv("token", "CONJURE_TOKEN")

	// 读取配置文件（如果存在）
	_ = viper.ReadInConfig()
}

// getConfigPath 获取配置文件的完整路径
// 如果未指定配置文件，返回默认路径
//
// 返回:
//   - string: 配置文件路径
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".conjure.yaml")
}
