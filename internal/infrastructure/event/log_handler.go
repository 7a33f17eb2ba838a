package event

import (
	"context"

	"go.uber.org/zap"

	"github.com/shopflow/backend/internal/domain/shared"
)

// LogHandler writes every published event to the application log. It
// subscribes to all event types and is the audit trail of the pipeline.
type LogHandler struct {
	logger *zap.Logger
}

var _ shared.EventHandler = (*LogHandler)(nil)

// NewLogHandler creates a LogHandler
func NewLogHandler(logger *zap.Logger) *LogHandler {
	return &LogHandler{logger: logger.Named("events")}
}

// Handle logs the event
func (h *LogHandler) Handle(_ context.Context, ev shared.DomainEvent) error {
	h.logger.Info("domain event",
		zap.String("event_type", ev.EventType()),
		zap.String("event_id", ev.EventID().String()),
		zap.String("aggregate_id", ev.AggregateID().String()),
	)
	return nil
}

// EventTypes returns nil so the handler receives all events
func (h *LogHandler) EventTypes() []string {
	return nil
}
