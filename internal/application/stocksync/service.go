// Package stocksync pushes local stock quantities to every linked
// channel listing.
package stocksync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shopflow/backend/internal/domain/catalog"
	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/shared"
	"github.com/shopflow/backend/internal/infrastructure/event"
	"github.com/shopflow/backend/internal/infrastructure/keymutex"
	"github.com/shopflow/backend/internal/infrastructure/retry"
)

// ItemResult is the outcome of one stock push
type ItemResult struct {
	ProductID    uuid.UUID    `json:"product_id"`
	SKU          string       `json:"sku"`
	Channel      channel.Code `json:"channel"`
	RemoteItemID string       `json:"remote_item_id"`
	Quantity     int          `json:"quantity"`
	LowStock     bool         `json:"low_stock,omitempty"`
	Threshold    int          `json:"low_stock_threshold,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// Summary is the result of one sync run
type Summary struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Pushed     int          `json:"pushed"`
	Failed     int          `json:"failed"`
	LowStock   int          `json:"low_stock"`
	Items      []ItemResult `json:"items"`
}

// Service synchronizes stock to the sales channels
type Service struct {
	registry    channel.Registry
	products    catalog.Repository
	retry       *retry.Policy
	locks       *keymutex.KeyMutex
	publisher   shared.EventPublisher
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a stock sync service. Concurrency bounds the
// simultaneous pushes per channel.
func NewService(
	registry channel.Registry,
	products catalog.Repository,
	retryPolicy *retry.Policy,
	locks *keymutex.KeyMutex,
	publisher shared.EventPublisher,
	concurrency int,
	logger *zap.Logger,
) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		registry:    registry,
		products:    products,
		retry:       retryPolicy,
		locks:       locks,
		publisher:   publisher,
		concurrency: concurrency,
		logger:      logger.Named("stocksync"),
		now:         time.Now,
	}
}

// SyncAll pushes the current stock of every linked product to every
// channel it is listed on. Pushes are independent: a failure on one
// channel for one product never blocks the rest. Repeated runs with
// unchanged stock push the same quantities again, which keeps remote
// numbers honest even after silent drift.
func (s *Service) SyncAll(ctx context.Context) (*Summary, error) {
	summary := &Summary{StartedAt: s.now()}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, adapter := range s.registry.All() {
		wg.Add(1)
		go func(adapter channel.Adapter) {
			defer wg.Done()
			results := s.syncChannel(ctx, adapter)
			mu.Lock()
			summary.Items = append(summary.Items, results...)
			mu.Unlock()
		}(adapter)
	}
	wg.Wait()

	// Low stock is flagged once per product even when it is linked to
	// several channels. Alerting never blocks syncing.
	flagged := make(map[uuid.UUID]bool)
	for _, item := range summary.Items {
		if item.Error == "" {
			summary.Pushed++
		} else {
			summary.Failed++
		}
		if item.LowStock && !flagged[item.ProductID] {
			flagged[item.ProductID] = true
			summary.LowStock++
			s.publish(ctx, event.NewLowStockDetected(item.ProductID, item.SKU, item.Quantity, item.Threshold))
		}
	}
	summary.FinishedAt = s.now()

	s.logger.Info("stock sync finished",
		zap.Int("pushed", summary.Pushed),
		zap.Int("failed", summary.Failed),
		zap.Int("low_stock", summary.LowStock))
	return summary, nil
}

// syncChannel pushes every linked product to one channel, bounded by
// the per-channel concurrency limit
func (s *Service) syncChannel(ctx context.Context, adapter channel.Adapter) []ItemResult {
	code := adapter.Code()
	products, err := s.products.ListLinked(ctx, code)
	if err != nil {
		s.logger.Error("failed to list linked products",
			zap.String("channel", code.String()),
			zap.Error(err))
		return []ItemResult{{Channel: code, Error: fmt.Sprintf("list products: %v", err)}}
	}

	results := make([]ItemResult, len(products))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for i, product := range products {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, product *catalog.Product) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = s.pushProduct(ctx, adapter, product)
		}(i, product)
	}
	wg.Wait()
	return results
}

func (s *Service) pushProduct(ctx context.Context, adapter channel.Adapter, product *catalog.Product) ItemResult {
	code := adapter.Code()
	remoteItemID, _ := product.RemoteItemID(code)
	result := ItemResult{
		ProductID:    product.ID,
		SKU:          product.SKU,
		Channel:      code,
		RemoteItemID: remoteItemID,
		Quantity:     product.StockQuantity,
		LowStock:     product.IsLowStock(),
		Threshold:    product.LowStockThreshold,
	}

	err := s.retry.Execute(ctx, func(ctx context.Context) error {
		return adapter.UpdateStock(ctx, remoteItemID, product.StockQuantity)
	})
	if err != nil {
		s.logger.Warn("stock push failed",
			zap.String("channel", code.String()),
			zap.String("sku", product.SKU),
			zap.Error(err))
		result.Error = err.Error()
	}
	return result
}

// AdjustStock applies a manual stock correction and immediately pushes
// the new quantity to every linked channel
func (s *Service) AdjustStock(ctx context.Context, productID uuid.UUID, delta int, note string) (*catalog.Product, error) {
	var adjusted *catalog.Product
	err := s.locks.WithLock("product:"+productID.String(), func() error {
		product, err := s.products.FindByID(ctx, productID)
		if err != nil {
			return err
		}
		movement, err := product.ApplyMovement(delta, catalog.ReasonAdjustment, note)
		if err != nil {
			return err
		}
		if err := s.products.SaveMovement(ctx, movement); err != nil {
			return err
		}
		if err := s.products.Update(ctx, product); err != nil {
			return err
		}
		adjusted = product
		return nil
	})
	if err != nil {
		return nil, err
	}

	if adjusted.IsLowStock() {
		s.publish(ctx, event.NewLowStockDetected(adjusted.ID, adjusted.SKU, adjusted.StockQuantity, adjusted.LowStockThreshold))
	}
	s.pushToLinkedChannels(ctx, adjusted)

	s.logger.Info("stock adjusted",
		zap.String("sku", adjusted.SKU),
		zap.Int("delta", delta),
		zap.Int("quantity", adjusted.StockQuantity))
	return adjusted, nil
}

func (s *Service) pushToLinkedChannels(ctx context.Context, product *catalog.Product) {
	for _, link := range product.Links {
		adapter, err := s.registry.Get(link.Channel)
		if err != nil {
			continue
		}
		if result := s.pushProduct(ctx, adapter, product); result.Error != "" {
			s.logger.Warn("post-adjustment push failed",
				zap.String("channel", link.Channel.String()),
				zap.String("sku", product.SKU),
				zap.String("error", result.Error))
		}
	}
}

func (s *Service) publish(ctx context.Context, ev shared.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish event", zap.String("event_type", ev.EventType()), zap.Error(err))
	}
}
