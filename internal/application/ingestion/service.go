// Package ingestion pulls new orders from every enabled sales channel
// into the local store.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/fulfillment"
	"github.com/shopflow/backend/internal/domain/shared"
	"github.com/shopflow/backend/internal/infrastructure/keymutex"
	"github.com/shopflow/backend/internal/infrastructure/retry"
)

// ChannelResult is the per-channel outcome of a collection run
type ChannelResult struct {
	Channel    channel.Code `json:"channel"`
	Fetched    int          `json:"fetched"`
	New        int          `json:"new"`
	Duplicates int          `json:"duplicates"`
	Error      string       `json:"error,omitempty"`
}

// Failed reports whether the channel pull did not complete
func (r ChannelResult) Failed() bool {
	return r.Error != ""
}

// Summary is the result of one collection run across all channels
type Summary struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Channels   []ChannelResult `json:"channels"`
}

// TotalNew sums newly stored orders across channels
func (s *Summary) TotalNew() int {
	total := 0
	for _, c := range s.Channels {
		total += c.New
	}
	return total
}

// Service collects orders from the registered channels
type Service struct {
	registry channel.Registry
	orders   fulfillment.OrderRepository
	cursors  fulfillment.CursorRepository
	retry    *retry.Policy
	locks    *keymutex.KeyMutex
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates an ingestion service
func NewService(
	registry channel.Registry,
	orders fulfillment.OrderRepository,
	cursors fulfillment.CursorRepository,
	retryPolicy *retry.Policy,
	locks *keymutex.KeyMutex,
	logger *zap.Logger,
) *Service {
	return &Service{
		registry: registry,
		orders:   orders,
		cursors:  cursors,
		retry:    retryPolicy,
		locks:    locks,
		logger:   logger.Named("ingestion"),
		now:      time.Now,
	}
}

// CollectNewOrders pulls new orders from every channel concurrently.
// Channels are independent: one failing channel never blocks the
// others, and a failed channel keeps its cursor so the next run
// resumes from the same position.
func (s *Service) CollectNewOrders(ctx context.Context) (*Summary, error) {
	adapters := s.registry.All()
	summary := &Summary{
		StartedAt: s.now(),
		Channels:  make([]ChannelResult, len(adapters)),
	}

	var wg sync.WaitGroup
	for i, adapter := range adapters {
		wg.Add(1)
		go func(i int, adapter channel.Adapter) {
			defer wg.Done()
			summary.Channels[i] = s.collectChannel(ctx, adapter)
		}(i, adapter)
	}
	wg.Wait()

	summary.FinishedAt = s.now()
	s.logger.Info("collection run finished",
		zap.Int("channels", len(adapters)),
		zap.Int("new_orders", summary.TotalNew()))
	return summary, nil
}

func (s *Service) collectChannel(ctx context.Context, adapter channel.Adapter) ChannelResult {
	code := adapter.Code()
	result := ChannelResult{Channel: code}

	stored, err := s.cursors.Get(ctx, code)
	if err != nil {
		result.Error = fmt.Sprintf("load cursor: %v", err)
		return result
	}

	var (
		orders     []channel.Order
		nextCursor string
	)
	err = s.retry.Execute(ctx, func(ctx context.Context) error {
		var listErr error
		orders, nextCursor, listErr = adapter.ListNewOrders(ctx, stored.Cursor)
		return listErr
	})
	if err != nil {
		s.logger.Warn("channel pull failed, cursor kept",
			zap.String("channel", code.String()),
			zap.Error(err))
		result.Error = err.Error()
		return result
	}
	result.Fetched = len(orders)

	insertFailed := false
	for _, src := range orders {
		switch err := s.storeOrder(ctx, code, src); {
		case err == nil:
			result.New++
		case errors.Is(err, shared.ErrAlreadyExists):
			result.Duplicates++
		default:
			s.logger.Error("failed to store order",
				zap.String("channel", code.String()),
				zap.String("channel_order_id", src.ChannelOrderID),
				zap.Error(err))
			insertFailed = true
			if result.Error == "" {
				result.Error = fmt.Sprintf("store order %s: %v", src.ChannelOrderID, err)
			}
		}
	}

	// Advancing past an order that failed to store would lose it, so
	// the cursor only moves when every fetched order landed.
	if insertFailed {
		return result
	}
	if err := s.cursors.Put(ctx, &fulfillment.SyncCursor{
		Channel:  code,
		Cursor:   nextCursor,
		SyncedAt: s.now(),
	}); err != nil {
		result.Error = fmt.Sprintf("persist cursor: %v", err)
		return result
	}

	s.logger.Info("channel pulled",
		zap.String("channel", code.String()),
		zap.Int("fetched", result.Fetched),
		zap.Int("new", result.New),
		zap.Int("duplicates", result.Duplicates))
	return result
}

func (s *Service) storeOrder(ctx context.Context, code channel.Code, src channel.Order) error {
	order, err := fulfillment.CollectOrder(code, src)
	if err != nil {
		return err
	}
	key := orderKey(code, src.ChannelOrderID)
	return s.locks.WithLock(key, func() error {
		return s.orders.Save(ctx, order)
	})
}

func orderKey(code channel.Code, channelOrderID string) string {
	return "order:" + code.String() + ":" + channelOrderID
}
