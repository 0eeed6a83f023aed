// Package history 提供函数执行记录的采集、留存和聚合功能。
// 每个函数只保留最近的一段执行记录，新记录排在最前；
// 记录写入是异步的，调用路径上绝不因记录落盘而阻塞。
// 配置了 Redis 时记录同步持久化到 Redis 列表，重启后自动回载。
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oriys/conjure/internal/domain"
	"github.com/oriys/conjure/internal/metrics"
)

// queueDepth 是单个函数记录队列的容量。
// 队列满说明写入端持续落后，此时丢弃新记录并告警，绝不阻塞调用方。
const queueDepth = 256

// redisKeyPrefix 是 Redis 中执行记录列表的键前缀
const redisKeyPrefix = "conjure:logs:"

// Broadcaster 在每条记录落盘后被回调，用于实时日志推送。
// 回调在写入协程中执行，实现方必须自行保证不阻塞。
type Broadcaster func(entry *domain.ExecutionLogEntry)

// functionQueue 是单个函数的记录通道及其写入协程的句柄
type functionQueue struct {
	ch chan *domain.ExecutionLogEntry
}

// Recorder 是执行记录器。
// 每个函数持有独立的有界队列和专属写入协程，
// 函数之间的记录写入互不影响。
type Recorder struct {
	log       *logrus.Logger
	rdb       *redis.Client
	broadcast Broadcaster
	metrics   *metrics.Metrics

	mu     sync.RWMutex
	rings  map[string][]*domain.ExecutionLogEntry
	queues map[string]*functionQueue

	wg     sync.WaitGroup
	closed bool
}

// New 创建执行记录器。
// rdb 为 nil 时记录仅保存在内存中；broadcast 为 nil 时不做实时推送；
// m 为 nil 时不上报队列指标。
func New(log *logrus.Logger, rdb *redis.Client, broadcast Broadcaster, m *metrics.Metrics) *Recorder {
	return &Recorder{
		log:       log,
		rdb:       rdb,
		broadcast: broadcast,
		metrics:   m,
		rings:     make(map[string][]*domain.ExecutionLogEntry),
		queues:    make(map[string]*functionQueue),
	}
}

// Record 异步记录一次函数执行。
// 方法立即返回；记录进入该函数的专属队列，由写入协程落盘。
// 队列满时丢弃本条记录并输出告警日志。
func (r *Recorder) Record(entry *domain.ExecutionLogEntry) {
	q := r.queueFor(entry.FunctionName)
	if q == nil {
		return
	}
	// 持有读锁入队，与 Close 对通道的关闭互斥
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case q.ch <- entry:
	default:
		r.log.WithFields(logrus.Fields{
			"function": entry.FunctionName,
			"entry_id": entry.ID,
		}).Warn("执行记录队列已满，丢弃本条记录")
		r.metrics.RecordTelemetryDrop()
	}
}

// queueFor 返回指定函数的记录队列，首次访问时创建并启动写入协程。
// 首次创建时尝试从 Redis 回载历史记录。
func (r *Recorder) queueFor(name string) *functionQueue {
	r.mu.RLock()
	q, ok := r.queues[name]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil
	}
	if ok {
		return q
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if q, ok = r.queues[name]; ok {
		return q
	}

	q = &functionQueue{ch: make(chan *domain.ExecutionLogEntry, queueDepth)}
	r.queues[name] = q
	if _, seeded := r.rings[name]; !seeded {
		r.rings[name] = r.loadFromRedis(name)
	}

	r.wg.Add(1)
	go r.writeLoop(name, q)
	return q
}

// writeLoop 是单个函数的专属写入协程
func (r *Recorder) writeLoop(name string, q *functionQueue) {
	defer r.wg.Done()
	for entry := range q.ch {
		r.append(name, entry)
		r.persist(name, entry)
		if r.broadcast != nil {
			r.broadcast(entry)
		}
	}
}

// append 将记录插入内存环的最前端并裁剪到容量上限
func (r *Recorder) append(name string, entry *domain.ExecutionLogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ring := r.rings[name]
	ring = append([]*domain.ExecutionLogEntry{entry}, ring...)
	if len(ring) > domain.MaxLogEntriesPerFunction {
		ring = ring[:domain.MaxLogEntriesPerFunction]
	}
	r.rings[name] = ring
}

// persist 将记录推入 Redis 列表头部并裁剪列表长度。
// Redis 故障只影响持久化，不中断记录流程。
func (r *Recorder) persist(name string, entry *domain.ExecutionLogEntry) {
	if r.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	data, err := json.Marshal(entry)
	if err != nil {
		r.log.WithError(err).WithField("function", name).Error("执行记录序列化失败")
		return
	}
	key := redisKeyPrefix + name
	pipe := r.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(domain.MaxLogEntriesPerFunction-1))
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.WithError(err).WithField("function", name).Error("执行记录持久化失败")
	}
}

// loadFromRedis 回载指定函数已持久化的执行记录，最新的在最前。
// 调用方必须持有写锁。
func (r *Recorder) loadFromRedis(name string) []*domain.ExecutionLogEntry {
	if r.rdb == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	raw, err := r.rdb.LRange(ctx, redisKeyPrefix+name, 0, int64(domain.MaxLogEntriesPerFunction-1)).Result()
	if err != nil {
		if err != redis.Nil {
			r.log.WithError(err).WithField("function", name).Warn("执行记录回载失败")
		}
		return nil
	}
	ring := make([]*domain.ExecutionLogEntry, 0, len(raw))
	for _, item := range raw {
		entry := new(domain.ExecutionLogEntry)
		if err := json.Unmarshal([]byte(item), entry); err != nil {
			continue
		}
		ring = append(ring, entry)
	}
	return ring
}

// ListRecent 返回指定函数最近的执行记录，最新的在最前。
// limit 非正或超过留存上限时按留存上限处理。
func (r *Recorder) ListRecent(name string, limit int) ([]*domain.ExecutionLogEntry, error) {
	if limit <= 0 || limit > domain.MaxLogEntriesPerFunction {
		limit = domain.MaxLogEntriesPerFunction
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ring := r.rings[name]
	if len(ring) > limit {
		ring = ring[:limit]
	}
	out := make([]*domain.ExecutionLogEntry, len(ring))
	copy(out, ring)
	return out, nil
}

// Aggregate 基于留存的执行记录计算指定函数的统计快照。
// 日桶覆盖最近七个 UTC 自然日（含今天），无调用的日期补零，
// 日期从旧到新排列。
func (r *Recorder) Aggregate(name string) (*domain.AnalyticsSnapshot, error) {
	r.mu.RLock()
	ring := r.rings[name]
	entries := make([]*domain.ExecutionLogEntry, len(ring))
	copy(entries, ring)
	r.mu.RUnlock()

	snap := &domain.AnalyticsSnapshot{FunctionName: name}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	buckets := make(map[string]*domain.DayBucket, 7)
	snap.Daily = make([]domain.DayBucket, 0, 7)
	for i := 6; i >= 0; i-- {
		date := today.AddDate(0, 0, -i).Format("2006-01-02")
		snap.Daily = append(snap.Daily, domain.DayBucket{Date: date})
	}
	for i := range snap.Daily {
		buckets[snap.Daily[i].Date] = &snap.Daily[i]
	}

	var totalDuration int64
	for _, e := range entries {
		snap.TotalCalls++
		totalDuration += e.DurationMs
		if e.Status == domain.ExecutionStatusSuccess {
			snap.SuccessCount++
		} else {
			snap.ErrorCount++
		}
		if snap.LastCalledAt == nil || e.Timestamp.After(*snap.LastCalledAt) {
			ts := e.Timestamp
			snap.LastCalledAt = &ts
		}
		if b, ok := buckets[e.Timestamp.UTC().Format("2006-01-02")]; ok {
			b.Calls++
			if e.Status != domain.ExecutionStatusSuccess {
				b.Errors++
			}
		}
	}
	if snap.TotalCalls > 0 {
		snap.SuccessRate = float64(snap.SuccessCount) / float64(snap.TotalCalls)
		snap.AvgDurationMs = float64(totalDuration) / float64(snap.TotalCalls)
	}
	return snap, nil
}

// Forget 移除指定函数的全部留存记录，包括已持久化的部分。
// 在函数被删除时调用。队列与写入协程保持存活：
// 并发在途的调用仍可能产生尾随记录，关闭通道会使其崩溃。
func (r *Recorder) Forget(ctx context.Context, name string) error {
	r.mu.Lock()
	delete(r.rings, name)
	r.mu.Unlock()

	if r.rdb != nil {
		if err := r.rdb.Del(ctx, redisKeyPrefix+name).Err(); err != nil {
			return fmt.Errorf("清除 %s 的执行记录: %w", name, err)
		}
	}
	return nil
}

// Close 停止所有写入协程并等待队列排空
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for name, q := range r.queues {
		close(q.ch)
		delete(r.queues, name)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// 编译期断言：Recorder 实现 domain.ExecutionRecorder
var _ domain.ExecutionRecorder = (*Recorder)(nil)
