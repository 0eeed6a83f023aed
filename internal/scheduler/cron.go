// Package scheduler 提供基于 cron 表达式的函数定时触发能力。
// 带 cron_expression 的函数由调度器按表达式周期性调用，
// 触发时以空对象作为调用载荷，定时函数的入参需全部声明为可选。
package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/oriys/conjure/internal/catalog"
	"github.com/oriys/conjure/internal/domain"
)

// Invoker 是调度器触发函数所需的最小调用接口。
type Invoker interface {
	Invoke(ctx context.Context, name, token string, payload json.RawMessage) (*domain.InvokeResult, error)
}

// CronManager 管理定时任务触发器。
// 每个带 cron 表达式的函数对应一个 cron 条目，按函数名索引。
type CronManager struct {
	cron    *cron.Cron
	store   catalog.Store
	invoker Invoker
	logger  *logrus.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID // 函数名 -> cron 条目
}

// NewCronManager 创建定时任务管理器。
// 表达式使用标准 5 字段格式（分 时 日 月 星期）。
func NewCronManager(store catalog.Store, invoker Invoker, logger *logrus.Logger) *CronManager {
	return &CronManager{
		cron:    cron.New(),
		store:   store,
		invoker: invoker,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start 启动调度器并从目录加载现有定时任务。
func (cm *CronManager) Start(ctx context.Context) error {
	cm.cron.Start()
	cm.logger.Info("Cron manager started")
	return cm.ReloadAll(ctx)
}

// ReloadAll 从目录重新加载全部定时任务。
// 先清空现有条目再按当前目录状态重建。
func (cm *CronManager) ReloadAll(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for _, entryID := range cm.entries {
		cm.cron.Remove(entryID)
	}
	cm.entries = make(map[string]cron.EntryID)

	fns, err := cm.store.ListFunctions(ctx)
	if err != nil {
		return err
	}
	for _, fn := range fns {
		if fn.CronExpression != "" {
			cm.addFunction(fn)
		}
	}

	cm.logger.WithField("count", len(cm.entries)).Info("Loaded cron tasks from catalog")
	return nil
}

// AddOrUpdateFunction 添加或更新函数的定时任务。
// 函数不再携带 cron 表达式时条目被移除。
func (cm *CronManager) AddOrUpdateFunction(fn *domain.FunctionRecord) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if entryID, ok := cm.entries[fn.Name]; ok {
		cm.cron.Remove(entryID)
		delete(cm.entries, fn.Name)
	}

	if fn.CronExpression != "" {
		cm.addFunction(fn)
	}
}

// RemoveFunction 移除函数的定时任务。
func (cm *CronManager) RemoveFunction(name string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if entryID, ok := cm.entries[name]; ok {
		cm.cron.Remove(entryID)
		delete(cm.entries, name)
	}
}

// addFunction 将函数注册到 cron 调度器。
// 调用前必须持有 cm.mu。触发时闭包捕获函数名而非记录本身，
// 每次触发重读目录以拿到最新的令牌与表达式。
func (cm *CronManager) addFunction(fn *domain.FunctionRecord) {
	name := fn.Name
	entryID, err := cm.cron.AddFunc(fn.CronExpression, func() {
		cm.trigger(name)
	})
	if err != nil {
		cm.logger.WithError(err).WithFields(logrus.Fields{
			"function_name": name,
			"cron":          fn.CronExpression,
		}).Error("Failed to add cron function")
		return
	}

	cm.entries[name] = entryID
}

// trigger 执行一次定时触发。
func (cm *CronManager) trigger(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fn, err := cm.store.GetFunctionByName(ctx, name)
	if err != nil {
		cm.logger.WithError(err).WithField("function_name", name).Warn("Cron function missing from catalog")
		return
	}

	cm.logger.WithFields(logrus.Fields{
		"function_name": name,
		"cron":          fn.CronExpression,
	}).Info("Triggering cron function")

	// 契约未声明的字段会被入参校验拒绝，定时触发只传空载荷，
	// 定时函数的入参需全部声明为可选。
	payload := json.RawMessage(`{}`)

	if _, err := cm.invoker.Invoke(ctx, name, fn.Token, payload); err != nil {
		cm.logger.WithError(err).WithField("function_name", name).Error("Failed to invoke cron function")
	}
}

// Stop 停止调度器，已在执行中的触发会跑完。
func (cm *CronManager) Stop() {
	cm.cron.Stop()
	cm.logger.Info("Cron manager stopped")
}
