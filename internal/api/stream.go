// Package api 提供了动态函数执行平台的 HTTP API 处理程序。
// 本文件实现执行日志的实时推送：遥测记录器每落一条日志，
// 广播器就把它分发给所有 WebSocket 订阅者。
package api

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/oriys/conjure/internal/domain"
)

// Broadcaster 将执行日志条目分发给所有订阅通道。
// 订阅通道写满时条目被丢弃，慢消费者不拖慢记录路径。
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan *domain.ExecutionLogEntry]struct{}
}

// NewBroadcaster 创建日志广播器。
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan *domain.ExecutionLogEntry]struct{}),
	}
}

// Subscribe 注册订阅通道。
func (b *Broadcaster) Subscribe(ch chan *domain.ExecutionLogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[ch] = struct{}{}
}

// Unsubscribe 注销订阅通道。
func (b *Broadcaster) Unsubscribe(ch chan *domain.ExecutionLogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, ch)
}

// Broadcast 将条目发给全部订阅者，非阻塞。
// 该方法作为遥测记录器的回调挂载，不能在记录路径上等待。
func (b *Broadcaster) Broadcast(entry *domain.ExecutionLogEntry) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- entry:
		default:
			// 通道满了，丢弃
		}
	}
}

// upgrader 将 HTTP 连接升级为 WebSocket。
// 管理接口在网关内网暴露，来源检查放开。
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// LogStream 实时执行日志流 WebSocket。
// HTTP 端点: GET /api/v1/functions/{name}/logs/stream
// 只推送路径中指定函数的日志条目。
func (h *Handler) LogStream(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if h.broadcaster == nil {
		writeError(w, r, http.StatusNotImplemented, "log streaming is not enabled")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	logChan := make(chan *domain.ExecutionLogEntry, 100)
	h.broadcaster.Subscribe(logChan)
	defer h.broadcaster.Unsubscribe(logChan)

	// 监听客户端关闭
	done := make(chan struct{})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(done)
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case entry := <-logChan:
			if entry.FunctionName != name {
				continue
			}
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		}
	}
}
