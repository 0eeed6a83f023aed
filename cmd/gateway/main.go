// Package main 是动态函数执行网关的入口点。
// 网关负责函数的注册管理、安全扫描、沙箱执行与遥测查询。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oriys/conjure/internal/api"
	"github.com/oriys/conjure/internal/auth"
	"github.com/oriys/conjure/internal/catalog"
	"github.com/oriys/conjure/internal/config"
	"github.com/oriys/conjure/internal/domain"
	"github.com/oriys/conjure/internal/events"
	"github.com/oriys/conjure/internal/generator"
	"github.com/oriys/conjure/internal/history"
	"github.com/oriys/conjure/internal/invoker"
	"github.com/oriys/conjure/internal/mcp"
	"github.com/oriys/conjure/internal/metrics"
	"github.com/oriys/conjure/internal/sandbox"
	"github.com/oriys/conjure/internal/scheduler"
	"github.com/oriys/conjure/internal/telemetry"
)

// main 初始化所有依赖组件并启动 HTTP 服务器
func main() {
	configPath := flag.String("config", "/etc/conjure/config.yaml", "Path to config file")
	flag.Parse()

	// JSON 格式日志，便于日志收集和分析
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}

	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(lvl)
	}
	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	logger.Info("Starting Conjure Gateway")

	// 初始化分布式追踪
	// 初始化失败不影响主服务运行，仅记录警告
	if cfg.Telemetry.Enabled {
		tel, err := telemetry.New(context.Background(), cfg.Telemetry)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize telemetry, continuing without tracing")
		} else {
			defer tel.Shutdown(context.Background())
			logger.AddHook(telemetry.NewLogrusHook())
			logger.WithFields(logrus.Fields{
				"endpoint":    cfg.Telemetry.Endpoint,
				"sample_rate": cfg.Telemetry.SampleRate,
			}).Info("Telemetry initialized")
		}
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	// 初始化函数目录存储
	store, err := catalog.NewPostgresStore(startCtx, cfg.Storage.Postgres.DSN())
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to PostgreSQL")
	}
	defer store.Close()

	// 存量记录补发调用令牌，必须在分发表构建之前完成
	if n, err := catalog.Migrate(startCtx, store, logger); err != nil {
		logger.WithError(err).Fatal("Catalog migration failed")
	} else if n > 0 {
		logger.WithField("count", n).Info("Issued tokens to legacy functions")
	}

	// 初始化 Redis，用于执行日志的持久化
	var rdb *redis.Client
	if cfg.Storage.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Address,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(startCtx).Err(); err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer rdb.Close()
	}

	// 初始化 Prometheus 指标收集器
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics(cfg.Metrics.Namespace)
	}

	// 初始化事件总线（多实例部署时同步目录变更）
	var bus *events.EventBus
	if cfg.Events.Enabled {
		bus, err = events.NewEventBus(cfg.Events.NatsURL, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to NATS")
		}
		defer bus.Close()
	}

	// 实时日志广播器；每条执行记录同时推给 WebSocket 订阅者
	// 和事件总线
	broadcaster := api.NewBroadcaster()
	broadcast := func(entry *domain.ExecutionLogEntry) {
		broadcaster.Broadcast(entry)
		if bus != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := bus.PublishInvocationCompleted(ctx, entry); err != nil {
				logger.WithError(err).Debug("Failed to publish invocation event")
			}
		}
	}

	// 执行遥测记录器
	recorder := history.New(logger, rdb, broadcast, m)
	defer recorder.Close()

	// 沙箱执行器与调用编排器，启动时全量构建分发表
	executor := sandbox.New(cfg.Sandbox.ExecutionTimeout)
	inv := invoker.New(logger, store, executor, recorder, m)
	if err := inv.Rebuild(startCtx); err != nil {
		logger.WithError(err).Fatal("Failed to build dispatch table")
	}

	// 后台定期刷新函数总数指标
	if m != nil {
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				fns, err := store.ListFunctions(context.Background())
				if err != nil {
					continue
				}
				m.UpdateFunctionsTotal(len(fns))
			}
		}()
	}

	// 订阅其他实例的目录变更，保持分发表同步
	if bus != nil {
		if err := bus.SubscribeCatalogChanges(context.Background(), inv); err != nil {
			logger.WithError(err).Fatal("Failed to subscribe catalog changes")
		}
	}

	// 定时任务管理器
	var cronMgr *scheduler.CronManager
	if cfg.Scheduler.Enabled {
		cronMgr = scheduler.NewCronManager(store, inv, logger)
		if err := cronMgr.Start(startCtx); err != nil {
			logger.WithError(err).Error("Failed to start cron manager")
		}
		defer cronMgr.Stop()
	}

	// MCP 服务器，把已注册函数暴露为 LLM 工具
	var mcpServer *mcp.Server
	if cfg.MCP.Enabled {
		mcpServer = mcp.New(store, inv, logger)
		if err := mcpServer.RegisterAll(startCtx); err != nil {
			logger.WithError(err).Fatal("Failed to register MCP tools")
		}
		go func() {
			if err := mcpServer.Start(cfg.MCP.ListenAddr); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("MCP server failed")
			}
		}()
	}

	// 管理接口认证
	jwtMgr := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration)
	authMw := auth.NewMiddleware(jwtMgr, cfg.Auth.Enabled)

	// API 处理器与路由
	handlerCfg := &api.HandlerConfig{
		Store:       store,
		Generator:   generator.New(cfg.Generator.BaseURL, cfg.Generator.APIKey, cfg.Generator.Timeout),
		Invoker:     inv,
		Recorder:    recorder,
		Events:      bus,
		Cron:        cronMgr,
		Metrics:     m,
		Broadcaster: broadcaster,
		Logger:      logger,
	}
	if mcpServer != nil {
		handlerCfg.Tools = mcpServer
	}
	handler := api.NewHandler(handlerCfg)

	router := api.NewRouter(&api.RouterConfig{
		Handler:        handler,
		Auth:           authMw,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	// 指标端口与主服务端口不同时单独启动指标服务器，
	// 避免把指标暴露在公开端口上
	var metricsServer *http.Server
	if cfg.Metrics.Enabled && cfg.Server.MetricsPort != cfg.Server.HTTPPort {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.MetricsPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.WithField("port", cfg.Server.MetricsPort).Info("Starting metrics server")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Fatal("Metrics server failed")
			}
		}()
	}

	// 主 HTTP 服务器
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second, // 沙箱执行可能较长
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.HTTPPort).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// 等待 SIGINT / SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("Metrics server shutdown error")
		}
	}
	if mcpServer != nil {
		if err := mcpServer.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("MCP server shutdown error")
		}
	}

	logger.Info("Server stopped")
}
