// Package events 提供平台事件总线。
// 当前实现基于 NATS JetStream，用于在多实例部署下广播目录变更
// （创建/更新/删除），收到变更的实例刷新本地函数分发表；
// 同时对外发布调用完成事件供下游消费。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/oriys/conjure/internal/domain"
)

// 目录变更事件类型
const (
	TypeFunctionCreated = "function.created"
	TypeFunctionUpdated = "function.updated"
	TypeFunctionDeleted = "function.deleted"
)

// Event 表示平台内部事件（JSON 格式）
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Subject   string          `json:"subject"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// catalogChange 是目录变更事件的载荷
type catalogChange struct {
	FunctionName string `json:"function_name"`
	// OldName 在改名时携带旧名字，订阅方需要把两个名字都刷新
	OldName string `json:"old_name,omitempty"`
}

// EventHandler 定义事件处理回调
type EventHandler func(event *Event) error

// EventBus 封装 NATS/JetStream 连接与常用发布/订阅操作。
// instanceID 标记事件来源实例，订阅方据此跳过自己发出的变更
// （本地分发表在发布前已经刷新过）。
type EventBus struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	instanceID string
	logger     *logrus.Logger
}

// NewEventBus 创建 EventBus 并初始化所需的 JetStream Stream
func NewEventBus(natsURL string, logger *logrus.Logger) (*EventBus, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// 为目录变更/调用事件初始化 Stream（不存在则创建，存在则尝试更新配置）
	streams := []nats.StreamConfig{
		{
			Name:     "FUNCTION_EVENTS",
			Subjects: []string{"function.>"},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour * 7, // 保留 7 天
		},
		{
			Name:     "INVOCATIONS",
			Subjects: []string{"invocation.>"},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour, // 保留 1 天
		},
	}
	for _, cfg := range streams {
		_, err := js.AddStream(&cfg)
		if err != nil && err != nats.ErrStreamNameAlreadyInUse {
			js.UpdateStream(&cfg)
		}
	}

	return &EventBus{
		conn:       nc,
		js:         js,
		instanceID: uuid.NewString(),
		logger:     logger,
	}, nil
}

// Close 关闭底层 NATS 连接
func (eb *EventBus) Close() error {
	eb.conn.Close()
	return nil
}

// Publish 发布事件到指定 subject
func (eb *EventBus) Publish(ctx context.Context, subject string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := eb.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.WithFields(logrus.Fields{
		"subject":  subject,
		"event_id": event.ID,
		"type":     event.Type,
	}).Debug("事件已发布")
	return nil
}

// Subscribe 订阅匹配 subject 的事件（支持通配符）。
// 订阅是各实例独立的：目录变更需要广播到每个实例。
// ctx 取消时自动退订。
func (eb *EventBus) Subscribe(ctx context.Context, subject string, handler EventHandler) error {
	sub, err := eb.js.Subscribe(subject, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			eb.logger.WithError(err).Error("事件反序列化失败")
			msg.Nak()
			return
		}
		if err := handler(&event); err != nil {
			eb.logger.WithError(err).WithField("event_id", event.ID).Error("事件处理失败")
			msg.Nak()
			return
		}
		msg.Ack()
	}, nats.ManualAck(), nats.DeliverNew())
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()
	return nil
}

// publishCatalogChange 发布一条目录变更事件
func (eb *EventBus) publishCatalogChange(ctx context.Context, eventType, name, oldName string) error {
	data, _ := json.Marshal(&catalogChange{FunctionName: name, OldName: oldName})
	event := &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    eb.instanceID,
		Subject:   eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	return eb.Publish(ctx, eventType, event)
}

// PublishFunctionCreated 发布“函数创建”事件
func (eb *EventBus) PublishFunctionCreated(ctx context.Context, name string) error {
	return eb.publishCatalogChange(ctx, TypeFunctionCreated, name, "")
}

// PublishFunctionUpdated 发布“函数更新”事件。
// oldName 在改名时传旧名字，未改名时传空。
func (eb *EventBus) PublishFunctionUpdated(ctx context.Context, name, oldName string) error {
	return eb.publishCatalogChange(ctx, TypeFunctionUpdated, name, oldName)
}

// PublishFunctionDeleted 发布“函数删除”事件
func (eb *EventBus) PublishFunctionDeleted(ctx context.Context, name string) error {
	return eb.publishCatalogChange(ctx, TypeFunctionDeleted, name, "")
}

// PublishInvocationCompleted 发布“调用完成”事件
func (eb *EventBus) PublishInvocationCompleted(ctx context.Context, entry *domain.ExecutionLogEntry) error {
	data, _ := json.Marshal(entry)
	event := &Event{
		ID:        entry.ID,
		Type:      "invocation.completed",
		Source:    eb.instanceID,
		Subject:   fmt.Sprintf("invocation.%s.completed", entry.FunctionName),
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	return eb.Publish(ctx, event.Subject, event)
}

// Refresher 定义目录变更订阅方所需的最小刷新能力
type Refresher interface {
	Refresh(ctx context.Context, name string) error
}

// SubscribeCatalogChanges 订阅目录变更并刷新本地分发表。
// 本实例发出的事件被跳过：发布前本地已经刷新。
func (eb *EventBus) SubscribeCatalogChanges(ctx context.Context, refresher Refresher) error {
	return eb.Subscribe(ctx, "function.>", func(event *Event) error {
		if event.Source == eb.instanceID {
			return nil
		}
		var change catalogChange
		if err := json.Unmarshal(event.Data, &change); err != nil {
			return fmt.Errorf("目录变更载荷反序列化失败: %w", err)
		}
		if change.OldName != "" && change.OldName != change.FunctionName {
			if err := refresher.Refresh(ctx, change.OldName); err != nil {
				return err
			}
		}
		return refresher.Refresh(ctx, change.FunctionName)
	})
}
