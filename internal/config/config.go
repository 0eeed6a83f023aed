// Package config 提供了函数执行平台的配置管理功能。
// 该包负责从 YAML 配置文件加载配置，并支持通过环境变量覆盖敏感配置项（如密码和密钥）。
// 配置包含了服务器、认证、生成服务、沙箱、存储、事件、日志、指标和遥测等多个方面的设置。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是应用程序的主配置结构体，包含所有子系统的配置。
// 该结构体通过 YAML 标签与配置文件进行映射。
type Config struct {
	// Server 服务器配置，包括 HTTP 端口和超时设置
	Server ServerConfig `yaml:"server"`
	// Auth 管理接口认证配置
	Auth AuthConfig `yaml:"auth"`
	// Generator 代码生成服务配置
	Generator GeneratorConfig `yaml:"generator"`
	// Sandbox 沙箱执行配置
	Sandbox SandboxConfig `yaml:"sandbox"`
	// Storage 存储配置，包括 PostgreSQL 和 Redis 连接信息
	Storage StorageConfig `yaml:"storage"`
	// Events 事件配置，包括 NATS 消息队列连接信息
	Events EventsConfig `yaml:"events"`
	// Logging 日志配置，包括日志级别和格式
	Logging LoggingConfig `yaml:"logging"`
	// Metrics 指标配置，用于 Prometheus 监控
	Metrics MetricsConfig `yaml:"metrics"`
	// Telemetry 遥测配置，用于分布式追踪
	Telemetry TelemetryConfig `yaml:"telemetry"`
	// Scheduler 定时调用配置
	Scheduler SchedulerConfig `yaml:"scheduler"`
	// MCP 模型上下文协议服务配置
	MCP MCPConfig `yaml:"mcp"`
}

// ServerConfig 服务器配置结构体。
// 定义了服务端口和超时设置。
type ServerConfig struct {
	// HTTPPort HTTP API 服务端口，管理接口与调用接口共用
	// 默认值：8080
	HTTPPort int `yaml:"http_port"`
	// MetricsPort 指标服务端口，用于 Prometheus 指标暴露
	// 默认值：9091
	MetricsPort int `yaml:"metrics_port"`
	// RequestTimeout 单个 HTTP 请求的处理超时时间
	// 默认值：60 秒
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// ShutdownTimeout 优雅关闭超时时间
	// 默认值：30 秒
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig 管理接口认证配置结构体。
// 函数调用接口不使用这里的配置：调用令牌逐函数签发。
type AuthConfig struct {
	// Enabled 是否启用管理接口认证
	Enabled bool `yaml:"enabled"`
	// JWTSecret JWT 签名密钥，可通过环境变量 CONJURE_AUTH_JWT_SECRET 或
	// CONJURE_AUTH_JWT_SECRET_FILE（文件路径）覆盖
	JWTSecret string `yaml:"jwt_secret"`
	// JWTExpiration JWT 令牌过期时间
	// 默认值：24 小时
	JWTExpiration time.Duration `yaml:"jwt_expiration"`
}

// GeneratorConfig 代码生成服务配置结构体。
// 定义了外部 NL→代码生成服务的连接参数。
type GeneratorConfig struct {
	// BaseURL 生成服务地址，如 "http://localhost:9090"
	BaseURL string `yaml:"base_url"`
	// APIKey 生成服务的访问密钥，可通过环境变量 CONJURE_GENERATOR_API_KEY 或
	// CONJURE_GENERATOR_API_KEY_FILE（文件路径）覆盖
	APIKey string `yaml:"api_key"`
	// Timeout 单次生成请求的超时时间
	// 默认值：60 秒
	Timeout time.Duration `yaml:"timeout"`
}

// SandboxConfig 沙箱执行配置结构体。
type SandboxConfig struct {
	// ExecutionTimeout 单次函数执行的硬超时时间，超限强制中断
	// 默认值：5 秒
	ExecutionTimeout time.Duration `yaml:"execution_timeout"`
	// MaxSourceSize 源码大小上限（字节）
	// 默认值：262144（256 KiB）
	MaxSourceSize int `yaml:"max_source_size"`
}

// StorageConfig 存储配置结构体
type StorageConfig struct {
	// Postgres 函数目录数据库配置
	Postgres PostgresConfig `yaml:"postgres"`
	// Redis 执行记录持久化配置
	Redis RedisConfig `yaml:"redis"`
}

// PostgresConfig PostgreSQL 数据库配置结构体
type PostgresConfig struct {
	// Host 数据库主机地址
	Host string `yaml:"host"`
	// Port 数据库端口号
	Port int `yaml:"port"`
	// Database 数据库名称
	Database string `yaml:"database"`
	// User 数据库用户名
	User string `yaml:"user"`
	// Password 数据库密码，可通过环境变量 CONJURE_POSTGRES_PASSWORD 或
	// CONJURE_POSTGRES_PASSWORD_FILE（文件路径）覆盖
	Password string `yaml:"password"`
	// SSLMode TLS 模式（disable/require/verify-full）
	SSLMode string `yaml:"ssl_mode"`
}

// DSN 拼接 PostgreSQL 连接串
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		p.Host, p.Port, p.Database, p.User, p.Password, p.SSLMode)
}

// RedisConfig Redis 配置结构体
type RedisConfig struct {
	// Enabled 是否启用 Redis 持久化执行记录
	Enabled bool `yaml:"enabled"`
	// Address Redis 服务器地址，格式为 "host:port"
	Address string `yaml:"address"`
	// Password Redis 密码，可通过环境变量 CONJURE_REDIS_PASSWORD 或
	// CONJURE_REDIS_PASSWORD_FILE（文件路径）覆盖
	Password string `yaml:"password"`
	// DB Redis 数据库编号（0-15）
	DB int `yaml:"db"`
}

// EventsConfig 事件配置结构体。
// 定义了目录变更广播所用消息队列的连接信息。
type EventsConfig struct {
	// Enabled 是否启用事件总线，单实例部署可关闭
	Enabled bool `yaml:"enabled"`
	// NatsURL NATS 消息服务器 URL，如 "nats://localhost:4222"
	NatsURL string `yaml:"nats_url"`
}

// LoggingConfig 日志配置结构体
type LoggingConfig struct {
	// Level 日志级别，可选值：debug、info、warn、error
	Level string `yaml:"level"`
	// Format 日志格式，可选值：json、text
	Format string `yaml:"format"`
}

// MetricsConfig 指标配置结构体
type MetricsConfig struct {
	// Enabled 是否启用指标收集
	Enabled bool `yaml:"enabled"`
	// Namespace 指标命名空间前缀
	// 默认值：conjure
	Namespace string `yaml:"namespace"`
}

// TelemetryConfig 遥测配置结构体。
// 定义了分布式追踪的相关设置，支持 OpenTelemetry 协议。
type TelemetryConfig struct {
	// Enabled 是否启用遥测
	Enabled bool `yaml:"enabled"`
	// Endpoint OTLP 端点地址（如 "tempo:4317"）
	// 默认值：tempo:4317
	Endpoint string `yaml:"endpoint"`
	// ServiceName 服务名称，用于追踪标识
	// 默认值：conjure-gateway
	ServiceName string `yaml:"service_name"`
	// SampleRate 采样率，范围 0.0 到 1.0
	// 默认值：0.1（10% 采样）
	SampleRate float64 `yaml:"sample_rate"`
	// Environment 环境标识（如 production、staging、development）
	// 默认值：development
	Environment string `yaml:"environment"`
}

// SchedulerConfig 定时调用配置结构体。
// 带 cron 表达式的函数由调度器按表达式周期性触发。
type SchedulerConfig struct {
	// Enabled 是否启用定时调用
	Enabled bool `yaml:"enabled"`
}

// MCPConfig 模型上下文协议服务配置结构体。
// 启用后已注册函数以工具形式暴露给 LLM 客户端。
type MCPConfig struct {
	// Enabled 是否启用 MCP 服务
	Enabled bool `yaml:"enabled"`
	// ListenAddr MCP SSE 服务监听地址，如 ":8082"
	ListenAddr string `yaml:"listen_addr"`
}

// Load 从指定路径加载配置文件。
// 该函数会读取 YAML 配置文件，应用默认值，并处理环境变量覆盖。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides 应用环境变量覆盖。
// 该方法允许通过环境变量覆盖敏感配置项，支持两种方式：
// 1. 直接设置环境变量（如 CONJURE_POSTGRES_PASSWORD）
// 2. 通过 _FILE 后缀指定包含密钥的文件路径（如 CONJURE_POSTGRES_PASSWORD_FILE）
// _FILE 方式优先级更高，适用于 Docker Secrets 等场景。
func (c *Config) applyEnvOverrides() {
	if v := readEnvOrFile("CONJURE_POSTGRES_PASSWORD", "CONJURE_POSTGRES_PASSWORD_FILE"); v != "" {
		c.Storage.Postgres.Password = v
	}
	if v := readEnvOrFile("CONJURE_REDIS_PASSWORD", "CONJURE_REDIS_PASSWORD_FILE"); v != "" {
		c.Storage.Redis.Password = v
	}
	if v := readEnvOrFile("CONJURE_AUTH_JWT_SECRET", "CONJURE_AUTH_JWT_SECRET_FILE"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := readEnvOrFile("CONJURE_GENERATOR_API_KEY", "CONJURE_GENERATOR_API_KEY_FILE"); v != "" {
		c.Generator.APIKey = v
	}
}

// readEnvOrFile 从环境变量或文件读取配置值。
// 优先从 fileKey 指定的文件路径读取，文件不存在或读取失败时
// 回退到 envKey 指定的环境变量。
func readEnvOrFile(envKey, fileKey string) string {
	if filePath := strings.TrimSpace(os.Getenv(fileKey)); filePath != "" {
		if b, err := os.ReadFile(filePath); err == nil {
			return strings.TrimSpace(string(b))
		}
	}
	return strings.TrimSpace(os.Getenv(envKey))
}

// applyDefaults 应用默认配置值。
// 该方法为未设置的配置项填充合理的默认值，确保应用可以正常运行。
func (c *Config) applyDefaults() {
	// HTTP 端口默认为 8080
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	// 指标端口默认为 9091
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9091
	}
	// 请求超时默认为 60 秒
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 60 * time.Second
	}
	// 优雅关闭超时默认为 30 秒
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	// JWT 过期时间默认为 24 小时
	if c.Auth.JWTExpiration == 0 {
		c.Auth.JWTExpiration = 24 * time.Hour
	}
	// 生成请求超时默认为 60 秒
	if c.Generator.Timeout == 0 {
		c.Generator.Timeout = 60 * time.Second
	}
	// 沙箱执行超时默认为 5 秒
	if c.Sandbox.ExecutionTimeout == 0 {
		c.Sandbox.ExecutionTimeout = 5 * time.Second
	}
	// 源码大小上限默认为 256 KiB
	if c.Sandbox.MaxSourceSize == 0 {
		c.Sandbox.MaxSourceSize = 256 * 1024
	}
	// PostgreSQL TLS 模式默认为 disable
	if c.Storage.Postgres.SSLMode == "" {
		c.Storage.Postgres.SSLMode = "disable"
	}
	// 指标命名空间默认为 conjure
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "conjure"
	}
	// 遥测服务名称默认为 conjure-gateway
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "conjure-gateway"
	}
	// OTLP 端点默认为 tempo:4317
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "tempo:4317"
	}
	// 采样率默认为 10%
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = 0.1
	}
	// 环境标识默认为 development
	if c.Telemetry.Environment == "" {
		c.Telemetry.Environment = "development"
	}
	// MCP 监听地址默认为 :8082
	if c.MCP.ListenAddr == "" {
		c.MCP.ListenAddr = ":8082"
	}
}
