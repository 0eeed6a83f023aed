// Package invoker 提供函数调用的编排功能。
// 编排器维护一张名字到已编译处理器的分发表：
// 处理器在目录变更时构建（归一化、编译、契约校验器一次完成），
// 调用路径上只做查表、鉴权、校验、执行和记录。
// 分发表整体原子替换，读路径无锁。
package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oriys/conjure/internal/auth"
	"github.com/oriys/conjure/internal/catalog"
	"github.com/oriys/conjure/internal/domain"
	"github.com/oriys/conjure/internal/metrics"
	"github.com/oriys/conjure/internal/normalize"
	"github.com/oriys/conjure/internal/safety"
	"github.com/oriys/conjure/internal/sandbox"
	"github.com/oriys/conjure/internal/schema"
)

// handler 是单个函数的已编译处理器。
// 构建后只读：源码快照、编译产物和契约校验器绑定在一起，
// 目录再次变更时整个处理器被替换而非就地修改。
type handler struct {
	record    *domain.FunctionRecord
	program   *goja.Program
	validator *schema.Validator
}

// Invoker 是函数调用编排器
type Invoker struct {
	log        *logrus.Logger
	store      catalog.Store
	safety     *safety.Validator
	normalizer *normalize.Normalizer
	executor   *sandbox.Executor
	recorder   domain.ExecutionRecorder
	metrics    *metrics.Metrics

	// table 是名字到处理器的分发表，整体原子替换
	table atomic.Pointer[map[string]*handler]
	// rebuildMu 串行化分发表的重建与增量更新
	rebuildMu sync.Mutex
}

// New 创建调用编排器。分发表初始为空，需调用 Rebuild 装载目录。
func New(log *logrus.Logger, store catalog.Store, executor *sandbox.Executor, recorder domain.ExecutionRecorder, m *metrics.Metrics) *Invoker {
	inv := &Invoker{
		log:        log,
		store:      store,
		safety:     safety.New(),
		normalizer: normalize.New(),
		executor:   executor,
		recorder:   recorder,
		metrics:    m,
	}
	empty := make(map[string]*handler)
	inv.table.Store(&empty)
	return inv
}

// compile 将一条函数记录构建为处理器
func (inv *Invoker) compile(fn *domain.FunctionRecord) (*handler, error) {
	normalized := inv.normalizer.Normalize(fn.SourceCode)
	prog, err := sandbox.Compile(fn.Name, normalized)
	if err != nil {
		return nil, err
	}
	return &handler{
		record:    fn,
		program:   prog,
		validator: schema.Build(fn.Contract),
	}, nil
}

// Rebuild 从目录全量重建分发表。
// 编译失败的函数被跳过并告警，不拖垮其余函数的装载。
func (inv *Invoker) Rebuild(ctx context.Context) error {
	inv.rebuildMu.Lock()
	defer inv.rebuildMu.Unlock()

	fns, err := inv.store.ListFunctions(ctx)
	if err != nil {
		return fmt.Errorf("装载函数目录失败: %w", err)
	}

	table := make(map[string]*handler, len(fns))
	for _, fn := range fns {
		h, err := inv.compile(fn)
		if err != nil {
			inv.log.WithError(err).WithField("function", fn.Name).Warn("函数编译失败，跳过装载")
			continue
		}
		table[fn.Name] = h
	}

	inv.table.Store(&table)
	inv.metrics.UpdateFunctionsTotal(len(table))
	inv.log.WithField("count", len(table)).Info("函数分发表已重建")
	return nil
}

// Refresh 增量更新单个函数的处理器。
// 目录中已不存在的名字从分发表移除；更新以写时复制完成，
// 在途调用继续使用旧处理器跑完。
func (inv *Invoker) Refresh(ctx context.Context, name string) error {
	inv.rebuildMu.Lock()
	defer inv.rebuildMu.Unlock()

	old := *inv.table.Load()
	table := make(map[string]*handler, len(old)+1)
	for k, v := range old {
		table[k] = v
	}

	fn, err := inv.store.GetFunctionByName(ctx, name)
	switch {
	case errors.Is(err, domain.ErrFunctionNotFound):
		delete(table, name)
	case err != nil:
		return err
	default:
		h, err := inv.compile(fn)
		if err != nil {
			return fmt.Errorf("函数 %s 编译失败: %w", name, err)
		}
		// 函数可能被改名，旧名字不再指向任何记录时由目录事件
		// 触发另一次 Refresh 清理
		table[fn.Name] = h
	}

	inv.table.Store(&table)
	inv.metrics.UpdateFunctionsTotal(len(table))
	return nil
}

// Lookup 返回指定函数的记录快照，仅用于只读展示
func (inv *Invoker) Lookup(name string) (*domain.FunctionRecord, bool) {
	h, ok := (*inv.table.Load())[name]
	if !ok {
		return nil, false
	}
	return h.record, true
}

// Invoke 执行一次完整的函数调用编排：
// 查表 → 令牌鉴权 → 入参校验 → 安全复检 → 沙箱执行 → 记录。
// 无论执行成败，遥测记录总会发生，且不在响应路径上等待落盘。
func (inv *Invoker) Invoke(ctx context.Context, name, token string, payload json.RawMessage) (*domain.InvokeResult, error) {
	h, ok := (*inv.table.Load())[name]
	if !ok {
		return nil, domain.ErrFunctionNotFound
	}

	if err := auth.VerifyFunctionToken(token, h.record.Token); err != nil {
		inv.metrics.RecordAuthFailure("mismatch")
		return nil, err
	}

	inputs, err := h.validator.Parse(payload)
	if err != nil {
		return nil, err
	}

	// 执行前对存量源码复检：拒绝清单可能在函数入库后收紧
	if res := inv.safety.Check(h.record.SourceCode); !res.Safe {
		inv.metrics.RecordSafetyRejection("invoke", res.Reason)
		inv.recordOutcome(h.record.Name, payload, nil, 0, res.Reason)
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsafeCode, res.Reason)
	}

	start := time.Now()
	output, execErr := inv.executor.Execute(ctx, h.program, h.record.Name, inputs, h.validator.InputNames())
	durationMs := time.Since(start).Milliseconds()

	if execErr != nil {
		kind := string(domain.ExecRuntimeError)
		if ee := domain.AsExecutionError(execErr); ee != nil {
			kind = string(ee.Kind)
		}
		inv.metrics.RecordInvocation(h.record.Name, "error", float64(durationMs))
		inv.metrics.RecordInvocationError(h.record.Name, kind)
		inv.recordOutcome(h.record.Name, payload, nil, durationMs, execErr.Error())
		return nil, execErr
	}

	inv.metrics.RecordInvocation(h.record.Name, "success", float64(durationMs))
	inv.recordOutcome(h.record.Name, payload, output, durationMs, "")

	return &domain.InvokeResult{
		RequestID:  uuid.NewString(),
		Output:     output,
		DurationMs: durationMs,
	}, nil
}

// recordOutcome 组装并提交一条执行记录，绝不阻塞调用方
func (inv *Invoker) recordOutcome(name string, inputs json.RawMessage, output any, durationMs int64, errMsg string) {
	entry := &domain.ExecutionLogEntry{
		ID:           uuid.NewString(),
		FunctionName: name,
		Timestamp:    time.Now().UTC(),
		DurationMs:   durationMs,
		Status:       domain.ExecutionStatusSuccess,
		Inputs:       append(json.RawMessage(nil), inputs...),
	}
	if errMsg != "" {
		entry.Status = domain.ExecutionStatusError
		entry.Error = errMsg
	} else if output != nil {
		if data, err := json.Marshal(output); err == nil {
			entry.Output = data
		}
	}
	inv.recorder.Record(entry)
}
