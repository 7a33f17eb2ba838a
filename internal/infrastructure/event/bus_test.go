package event

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/shared"
)

type recordingHandler struct {
	types []string
	seen  []shared.DomainEvent
	err   error
}

func (h *recordingHandler) Handle(_ context.Context, ev shared.DomainEvent) error {
	h.seen = append(h.seen, ev)
	return h.err
}

func (h *recordingHandler) EventTypes() []string { return h.types }

func TestInMemoryBus(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers to type-matched handlers only", func(t *testing.T) {
		bus := NewInMemoryBus(zap.NewNop())
		lowStock := &recordingHandler{types: []string{TypeLowStockDetected}}
		claims := &recordingHandler{types: []string{TypeClaimOpened}}
		bus.Subscribe(lowStock)
		bus.Subscribe(claims)

		ev := NewLowStockDetected(uuid.New(), "TMB-001", 3, 10)
		require.NoError(t, bus.Publish(ctx, ev))

		require.Len(t, lowStock.seen, 1)
		assert.Equal(t, TypeLowStockDetected, lowStock.seen[0].EventType())
		assert.Empty(t, claims.seen)
	})

	t.Run("untyped handler receives everything", func(t *testing.T) {
		bus := NewInMemoryBus(zap.NewNop())
		audit := &recordingHandler{}
		bus.Subscribe(audit)

		require.NoError(t, bus.Publish(ctx,
			NewBatchRunCompleted(uuid.New(), 1, "2026-08-28", 5, 0),
			NewClaimOpened(uuid.New(), uuid.New(), channel.CodeNaver, channel.ClaimReturn),
		))
		assert.Len(t, audit.seen, 2)
	})

	t.Run("handler error does not block delivery", func(t *testing.T) {
		bus := NewInMemoryBus(zap.NewNop())
		failing := &recordingHandler{types: []string{TypeOrderShipped}, err: errors.New("boom")}
		ok := &recordingHandler{types: []string{TypeOrderShipped}}
		bus.Subscribe(failing)
		bus.Subscribe(ok)

		require.NoError(t, bus.Publish(ctx, NewOrderShipped(uuid.New(), "NAVER-1", "366812345670")))
		assert.Len(t, failing.seen, 1)
		assert.Len(t, ok.seen, 1)
	})
}
