package store

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anthonyadame/DeepResearchAgent-sub002/internal/metrics"
	"github.com/anthonyadame/DeepResearchAgent-sub002/state"
)

// EventKind 状态变更事件类型
type EventKind string

const (
	EventCreated         EventKind = "created"
	EventUpdated         EventKind = "updated"
	EventDeleted         EventKind = "deleted"
	EventStatusChanged   EventKind = "status_changed"
	EventProgressUpdated EventKind = "progress_updated"
)

// StateChangeEvent 每次成功 Set 后发布的变更事件，携带新旧快照，
// 供下游失效/审计消费
type StateChangeEvent struct {
	ID         string           `json:"id"`
	Kind       EventKind        `json:"kind"`
	EntityType state.EntityType `json:"entity_type"`
	EntityID   string           `json:"entity_id"`
	Version    int64            `json:"version"`
	OldValue   json.RawMessage  `json:"old_value,omitempty"`
	NewValue   json.RawMessage  `json:"new_value"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// EventBus 非阻塞的事件广播。订阅者缓冲满时丢弃事件并计数，
// 慢消费者不会拖住写路径。
type EventBus struct {
	mu      sync.RWMutex
	subs    map[int]chan StateChangeEvent
	nextID  int
	closed  bool
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewEventBus 创建事件总线
func NewEventBus(logger *zap.Logger, collector *metrics.Collector) *EventBus {
	return &EventBus{
		subs:    make(map[int]chan StateChangeEvent),
		logger:  logger.With(zap.String("component", "event_bus")),
		metrics: collector,
	}
}

// Subscribe 注册订阅者，返回事件通道和取消函数。
// buffer <= 0 时使用 16。
func (b *EventBus) Subscribe(buffer int) (<-chan StateChangeEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan StateChangeEvent)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	ch := make(chan StateChangeEvent, buffer)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

// Publish 向所有订阅者非阻塞投递
func (b *EventBus) Publish(ev StateChangeEvent) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			if b.metrics != nil {
				b.metrics.RecordEventDrop()
			}
			b.logger.Warn("event dropped, subscriber buffer full",
				zap.String("entity_type", string(ev.EntityType)),
				zap.String("entity_id", ev.EntityID),
			)
		}
	}
}

// Close 关闭总线并关闭所有订阅通道
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
