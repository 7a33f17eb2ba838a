// Package tracking moves registered orders to SHIPPED based on carrier
// movement, either pushed by an external tracker or polled.
package tracking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shopflow/backend/internal/domain/carrier"
	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/fulfillment"
	"github.com/shopflow/backend/internal/domain/shared"
	"github.com/shopflow/backend/internal/infrastructure/event"
	"github.com/shopflow/backend/internal/infrastructure/keymutex"
	"github.com/shopflow/backend/internal/infrastructure/retry"
)

// Service applies shipment movement to orders
type Service struct {
	carriers  carrier.Registry
	orders    fulfillment.OrderRepository
	retry     *retry.Policy
	locks     *keymutex.KeyMutex
	publisher shared.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a tracking service
func NewService(
	carriers carrier.Registry,
	orders fulfillment.OrderRepository,
	retryPolicy *retry.Policy,
	locks *keymutex.KeyMutex,
	publisher shared.EventPublisher,
	logger *zap.Logger,
) *Service {
	return &Service{
		carriers:  carriers,
		orders:    orders,
		retry:     retryPolicy,
		locks:     locks,
		publisher: publisher,
		logger:    logger.Named("tracking"),
		now:       time.Now,
	}
}

// MarkShipped is the entry point for the external shipment tracker.
// The order reference is the "CHANNEL-id" form; the carrier event is
// applied only when it reports actual movement.
func (s *Service) MarkShipped(ctx context.Context, orderRef string, ev carrier.TrackingEvent) (*fulfillment.Order, error) {
	code, channelOrderID, err := parseRef(orderRef)
	if err != nil {
		return nil, err
	}
	if !moved(ev.Status) {
		return nil, fmt.Errorf("%w: tracking status %q is not movement", shared.ErrInvalidInput, ev.Status)
	}

	var shipped *fulfillment.Order
	key := "order:" + code.String() + ":" + channelOrderID
	err = s.locks.WithLock(key, func() error {
		order, err := s.orders.FindByChannelOrderID(ctx, code, channelOrderID)
		if err != nil {
			return err
		}
		if order.Status == fulfillment.StatusShipped {
			shipped = order
			return nil
		}
		at := ev.OccurredAt
		if at.IsZero() {
			at = s.now()
		}
		if err := order.MarkShipped(at); err != nil {
			return err
		}
		if err := s.orders.Update(ctx, order); err != nil {
			return err
		}
		shipped = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if shipped.Invoice != nil {
		s.publish(ctx, event.NewOrderShipped(shipped.ID, shipped.Ref(), shipped.Invoice.TrackingNumber))
	}
	s.logger.Info("order shipped",
		zap.String("order_ref", shipped.Ref()),
		zap.String("status", string(ev.Status)))
	return shipped, nil
}

// RefreshTracking polls the carriers for every INVOICE_REGISTERED
// order and ships those with movement. Returns how many orders moved.
func (s *Service) RefreshTracking(ctx context.Context) (int, error) {
	orders, err := s.orders.ListBatchable(ctx, fulfillment.StatusInvoiceRegistered)
	if err != nil {
		return 0, err
	}

	shipped := 0
	for _, order := range orders {
		if order.Invoice == nil {
			continue
		}
		adapter, err := s.carriers.Get(order.Invoice.Carrier)
		if err != nil {
			s.logger.Warn("no adapter for carrier",
				zap.String("carrier", order.Invoice.Carrier.String()))
			continue
		}

		var events []carrier.TrackingEvent
		err = s.retry.Execute(ctx, func(ctx context.Context) error {
			var trackErr error
			events, trackErr = adapter.TrackShipment(ctx, order.Invoice.TrackingNumber)
			return trackErr
		})
		if err != nil {
			s.logger.Warn("tracking poll failed",
				zap.String("order_ref", order.Ref()),
				zap.Error(err))
			continue
		}

		latest, ok := latestMovement(events)
		if !ok {
			continue
		}
		if _, err := s.MarkShipped(ctx, order.Ref(), latest); err != nil {
			s.logger.Warn("failed to mark order shipped",
				zap.String("order_ref", order.Ref()),
				zap.Error(err))
			continue
		}
		shipped++
	}

	if shipped > 0 {
		s.logger.Info("tracking refresh shipped orders", zap.Int("count", shipped))
	}
	return shipped, nil
}

func (s *Service) publish(ctx context.Context, ev shared.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish event", zap.String("event_type", ev.EventType()), zap.Error(err))
	}
}

// moved reports whether the delivery status implies the parcel left
// the seller
func moved(status carrier.DeliveryStatus) bool {
	switch status {
	case carrier.StatusPickedUp, carrier.StatusInTransit, carrier.StatusOutForDelivery, carrier.StatusDelivered:
		return true
	}
	return false
}

// latestMovement returns the newest event that shows movement
func latestMovement(events []carrier.TrackingEvent) (carrier.TrackingEvent, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if moved(events[i].Status) {
			return events[i], true
		}
	}
	return carrier.TrackingEvent{}, false
}

// parseRef splits a "CHANNEL-id" order reference
func parseRef(ref string) (channel.Code, string, error) {
	parts := strings.SplitN(ref, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: malformed order ref %q", shared.ErrInvalidInput, ref)
	}
	code := channel.Code(strings.ToLower(parts[0]))
	if !code.IsValid() {
		return "", "", fmt.Errorf("%w: unknown channel in ref %q", shared.ErrInvalidInput, ref)
	}
	return code, parts[1], nil
}
