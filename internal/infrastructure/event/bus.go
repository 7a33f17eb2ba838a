package event

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/shopflow/backend/internal/domain/shared"
)

// InMemoryBus is a synchronous in-process event bus. Handler errors are
// logged, never propagated to the publisher.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]shared.EventHandler
	all      []shared.EventHandler
	logger   *zap.Logger
}

var _ shared.EventBus = (*InMemoryBus)(nil)

// NewInMemoryBus creates an empty bus
func NewInMemoryBus(logger *zap.Logger) *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]shared.EventHandler),
		logger:   logger,
	}
}

// Subscribe registers a handler for specific event types. With no types
// given, the handler's own EventTypes() applies; if that is also empty
// the handler receives all events.
func (b *InMemoryBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	if len(eventTypes) == 0 {
		b.all = append(b.all, handler)
		return
	}
	for _, t := range eventTypes {
		b.handlers[t] = append(b.handlers[t], handler)
	}
}

// Publish delivers events to all matching handlers
func (b *InMemoryBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ev := range events {
		for _, h := range b.all {
			b.deliver(ctx, h, ev)
		}
		for _, h := range b.handlers[ev.EventType()] {
			b.deliver(ctx, h, ev)
		}
	}
	return nil
}

func (b *InMemoryBus) deliver(ctx context.Context, h shared.EventHandler, ev shared.DomainEvent) {
	if err := h.Handle(ctx, ev); err != nil {
		b.logger.Error("event handler failed",
			zap.String("event_type", ev.EventType()),
			zap.String("event_id", ev.EventID().String()),
			zap.Error(err),
		)
	}
}
