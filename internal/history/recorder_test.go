package history

import (
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oriys/conjure/internal/domain"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func makeEntry(fn string, i int, status domain.ExecutionStatus) *domain.ExecutionLogEntry {
	return &domain.ExecutionLogEntry{
		ID:           fmt.Sprintf("entry-%d", i),
		FunctionName: fn,
		Timestamp:    time.Now().UTC(),
		DurationMs:   int64(10 + i),
		Status:       status,
	}
}

// waitForCount 轮询等待异步写入完成
func waitForCount(t *testing.T, r *Recorder, fn string, want int) []*domain.ExecutionLogEntry {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := r.ListRecent(fn, domain.MaxLogEntriesPerFunction)
		if err != nil {
			t.Fatalf("ListRecent() error = %v", err)
		}
		if len(entries) >= want {
			return entries
		}
		time.Sleep(10 * time.Millisecond)
	}
	entries, _ := r.ListRecent(fn, domain.MaxLogEntriesPerFunction)
	t.Fatalf("等待 %d 条记录超时, 实际 %d 条", want, len(entries))
	return nil
}

// TestRecorder_Capped 测试超过留存上限时旧记录被裁剪
func TestRecorder_Capped(t *testing.T) {
	r := New(testLogger(), nil, nil, nil)
	defer r.Close()

	for i := 0; i < 150; i++ {
		r.Record(makeEntry("demo", i, domain.ExecutionStatusSuccess))
	}

	entries := waitForCount(t, r, "demo", domain.MaxLogEntriesPerFunction)
	if len(entries) != domain.MaxLogEntriesPerFunction {
		t.Fatalf("留存 %d 条, want %d", len(entries), domain.MaxLogEntriesPerFunction)
	}
	// 最新的记录在最前，最早的 50 条已被裁剪
	if entries[0].ID != "entry-149" {
		t.Errorf("首条记录 = %s, want entry-149", entries[0].ID)
	}
	if entries[len(entries)-1].ID != "entry-50" {
		t.Errorf("末条记录 = %s, want entry-50", entries[len(entries)-1].ID)
	}
}

// TestRecorder_ConcurrentRecord 测试并发记录不丢不重
func TestRecorder_ConcurrentRecord(t *testing.T) {
	r := New(testLogger(), nil, nil, nil)
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Record(makeEntry("concurrent", i, domain.ExecutionStatusSuccess))
		}(i)
	}
	wg.Wait()

	entries := waitForCount(t, r, "concurrent", 50)
	if len(entries) != 50 {
		t.Fatalf("留存 %d 条, want 50", len(entries))
	}
	seen := make(map[string]struct{}, 50)
	for _, e := range entries {
		if _, dup := seen[e.ID]; dup {
			t.Errorf("记录重复: %s", e.ID)
		}
		seen[e.ID] = struct{}{}
	}
}

// TestRecorder_ListRecentLimit 测试条数上限参数
func TestRecorder_ListRecentLimit(t *testing.T) {
	r := New(testLogger(), nil, nil, nil)
	defer r.Close()

	for i := 0; i < 20; i++ {
		r.Record(makeEntry("limited", i, domain.ExecutionStatusSuccess))
	}
	waitForCount(t, r, "limited", 20)

	entries, err := r.ListRecent("limited", 5)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("len = %d, want 5", len(entries))
	}
	// limit 非法时按留存上限处理
	entries, _ = r.ListRecent("limited", -1)
	if len(entries) != 20 {
		t.Errorf("len = %d, want 20", len(entries))
	}
}

// TestRecorder_Aggregate 测试统计快照的计算
func TestRecorder_Aggregate(t *testing.T) {
	r := New(testLogger(), nil, nil, nil)
	defer r.Close()

	for i := 0; i < 8; i++ {
		r.Record(makeEntry("stats", i, domain.ExecutionStatusSuccess))
	}
	for i := 8; i < 10; i++ {
		r.Record(makeEntry("stats", i, domain.ExecutionStatusError))
	}
	waitForCount(t, r, "stats", 10)

	snap, err := r.Aggregate("stats")
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if snap.TotalCalls != 10 || snap.SuccessCount != 8 || snap.ErrorCount != 2 {
		t.Errorf("计数 = %d/%d/%d, want 10/8/2", snap.TotalCalls, snap.SuccessCount, snap.ErrorCount)
	}
	if snap.SuccessRate != 0.8 {
		t.Errorf("SuccessRate = %v, want 0.8", snap.SuccessRate)
	}
	if snap.LastCalledAt == nil {
		t.Error("LastCalledAt 不应为 nil")
	}
	// 日桶固定覆盖七天，今天在最后且包含全部调用
	if len(snap.Daily) != 7 {
		t.Fatalf("日桶数 = %d, want 7", len(snap.Daily))
	}
	today := snap.Daily[6]
	if today.Date != time.Now().UTC().Format("2006-01-02") {
		t.Errorf("末桶日期 = %s, want 今天", today.Date)
	}
	if today.Calls != 10 || today.Errors != 2 {
		t.Errorf("今日桶 = %d/%d, want 10/2", today.Calls, today.Errors)
	}
	for i := 0; i < 6; i++ {
		if snap.Daily[i].Calls != 0 || snap.Daily[i].Errors != 0 {
			t.Errorf("历史桶 %s 应补零: %+v", snap.Daily[i].Date, snap.Daily[i])
		}
	}
}

// TestRecorder_AggregateEmpty 测试无记录函数的快照
func TestRecorder_AggregateEmpty(t *testing.T) {
	r := New(testLogger(), nil, nil, nil)
	defer r.Close()

	snap, err := r.Aggregate("ghost")
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if snap.TotalCalls != 0 || snap.SuccessRate != 0 || snap.LastCalledAt != nil {
		t.Errorf("空快照异常: %+v", snap)
	}
	if len(snap.Daily) != 7 {
		t.Errorf("日桶数 = %d, want 7", len(snap.Daily))
	}
}

// TestRecorder_Broadcast 测试落盘后的实时推送回调
func TestRecorder_Broadcast(t *testing.T) {
	received := make(chan *domain.ExecutionLogEntry, 10)
	r := New(testLogger(), nil, func(e *domain.ExecutionLogEntry) {
		received <- e
	}, nil)
	defer r.Close()

	r.Record(makeEntry("live", 1, domain.ExecutionStatusSuccess))

	select {
	case e := <-received:
		if e.FunctionName != "live" {
			t.Errorf("FunctionName = %s, want live", e.FunctionName)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("等待推送回调超时")
	}
}

// TestRecorder_Forget 测试删除函数时记录被清空
func TestRecorder_Forget(t *testing.T) {
	r := New(testLogger(), nil, nil, nil)
	defer r.Close()

	r.Record(makeEntry("gone", 1, domain.ExecutionStatusSuccess))
	waitForCount(t, r, "gone", 1)

	if err := r.Forget(t.Context(), "gone"); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	entries, _ := r.ListRecent("gone", 10)
	if len(entries) != 0 {
		t.Errorf("Forget 后仍有 %d 条记录", len(entries))
	}
}
