// Package claimsync pulls buyer claims from the sales channels and
// suspends or resumes the affected orders.
package claimsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shopflow/backend/internal/domain/catalog"
	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/fulfillment"
	"github.com/shopflow/backend/internal/domain/shared"
	"github.com/shopflow/backend/internal/infrastructure/event"
	"github.com/shopflow/backend/internal/infrastructure/keymutex"
	"github.com/shopflow/backend/internal/infrastructure/retry"
)

// ChannelResult is the per-channel outcome of a claim sync run
type ChannelResult struct {
	Channel  channel.Code `json:"channel"`
	Fetched  int          `json:"fetched"`
	New      int          `json:"new"`
	Updated  int          `json:"updated"`
	Resolved int          `json:"resolved"`
	Skipped  int          `json:"skipped"`
	Error    string       `json:"error,omitempty"`
}

// Summary is the result of one claim sync run
type Summary struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Channels   []ChannelResult `json:"channels"`
}

// Service synchronizes claims from the registered channels
type Service struct {
	registry  channel.Registry
	claims    fulfillment.ClaimRepository
	orders    fulfillment.OrderRepository
	products  catalog.Repository
	retry     *retry.Policy
	locks     *keymutex.KeyMutex
	publisher shared.EventPublisher
	lookback  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a claim sync service. Lookback bounds how far
// back claims are pulled on each run.
func NewService(
	registry channel.Registry,
	claims fulfillment.ClaimRepository,
	orders fulfillment.OrderRepository,
	products catalog.Repository,
	retryPolicy *retry.Policy,
	locks *keymutex.KeyMutex,
	publisher shared.EventPublisher,
	lookback time.Duration,
	logger *zap.Logger,
) *Service {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &Service{
		registry:  registry,
		claims:    claims,
		orders:    orders,
		products:  products,
		retry:     retryPolicy,
		locks:     locks,
		publisher: publisher,
		lookback:  lookback,
		logger:    logger.Named("claimsync"),
		now:       time.Now,
	}
}

// SyncClaims pulls recent claims from every channel and applies them
// to the local store. Channels are independent; one failing channel
// does not block the others.
func (s *Service) SyncClaims(ctx context.Context) (*Summary, error) {
	summary := &Summary{StartedAt: s.now()}
	since := s.now().Add(-s.lookback)

	for _, adapter := range s.registry.All() {
		summary.Channels = append(summary.Channels, s.syncChannel(ctx, adapter, since))
	}

	summary.FinishedAt = s.now()
	return summary, nil
}

func (s *Service) syncChannel(ctx context.Context, adapter channel.Adapter, since time.Time) ChannelResult {
	code := adapter.Code()
	result := ChannelResult{Channel: code}

	var claims []channel.Claim
	err := s.retry.Execute(ctx, func(ctx context.Context) error {
		var listErr error
		claims, listErr = adapter.ListClaims(ctx, since)
		return listErr
	})
	if err != nil {
		s.logger.Warn("claim pull failed",
			zap.String("channel", code.String()),
			zap.Error(err))
		result.Error = err.Error()
		return result
	}
	result.Fetched = len(claims)

	for _, src := range claims {
		if err := s.applyClaim(ctx, code, src, &result); err != nil {
			s.logger.Error("failed to apply claim",
				zap.String("channel", code.String()),
				zap.String("channel_claim_id", src.ChannelClaimID),
				zap.Error(err))
			if result.Error == "" {
				result.Error = fmt.Sprintf("claim %s: %v", src.ChannelClaimID, err)
			}
		}
	}
	return result
}

// applyClaim upserts one claim and adjusts the referenced order
func (s *Service) applyClaim(ctx context.Context, code channel.Code, src channel.Claim, result *ChannelResult) error {
	order, err := s.orders.FindByChannelOrderID(ctx, code, src.ChannelOrderID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// Claim for an order we never collected; nothing to suspend.
			result.Skipped++
			return nil
		}
		return err
	}

	status := normalizeStatus(src.Status)
	existing, err := s.claims.FindByChannelClaimID(ctx, code, src.ChannelClaimID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		claim, err := fulfillment.NewClaim(order.ID, code, src, status)
		if err != nil {
			return err
		}
		if err := s.claims.Save(ctx, claim); err != nil {
			if errors.Is(err, shared.ErrAlreadyExists) {
				return nil
			}
			return err
		}
		result.New++
		if status.IsOpen() {
			s.publish(ctx, event.NewClaimOpened(claim.ID, order.ID, code, claim.Type))
		}
		existing = claim
	case err != nil:
		return err
	default:
		wasResolved := !existing.Status.IsOpen()
		if err := existing.UpdateStatus(status, s.now()); err != nil {
			return err
		}
		if err := s.claims.Update(ctx, existing); err != nil {
			return err
		}
		result.Updated++
		if wasResolved && status.IsOpen() {
			s.publish(ctx, event.NewClaimOpened(existing.ID, order.ID, code, existing.Type))
		}
	}

	if err := s.applyToOrder(ctx, order, existing, result); err != nil {
		return err
	}
	if existing.Type == channel.ClaimReturn && existing.Status == fulfillment.ClaimCompleted {
		s.restoreStock(ctx, order, existing)
	}
	return nil
}

// applyToOrder suspends or resumes the order depending on whether any
// claim still blocks it. The order key lock serializes this against a
// concurrent batch run touching the same order.
func (s *Service) applyToOrder(ctx context.Context, order *fulfillment.Order, claim *fulfillment.Claim, result *ChannelResult) error {
	key := "order:" + order.Channel.String() + ":" + order.ChannelOrderID
	return s.locks.WithLock(key, func() error {
		fresh, err := s.orders.FindByID(ctx, order.ID)
		if err != nil {
			return err
		}

		if claim.Status.IsOpen() {
			if fresh.Status == fulfillment.StatusClaimed {
				return nil
			}
			if err := fresh.MarkClaimed(); err != nil {
				// Terminal orders cannot be suspended; the claim record
				// alone carries the information.
				s.logger.Warn("order not suspendable for claim",
					zap.String("order_ref", fresh.Ref()),
					zap.String("status", fresh.Status.String()))
				return nil
			}
			return s.orders.Update(ctx, fresh)
		}

		// Claim resolved: resume only when nothing else blocks the order.
		if fresh.Status != fulfillment.StatusClaimed {
			return nil
		}
		open, err := s.claims.HasOpenClaim(ctx, fresh.ID)
		if err != nil {
			return err
		}
		if open {
			return nil
		}
		if err := fresh.Resume(); err != nil {
			return err
		}
		if err := s.orders.Update(ctx, fresh); err != nil {
			return err
		}
		result.Resolved++
		s.logger.Info("order resumed after claim resolution",
			zap.String("order_ref", fresh.Ref()),
			zap.String("status", fresh.Status.String()))
		return nil
	})
}

// restoreStock books returned quantities back into local stock
func (s *Service) restoreStock(ctx context.Context, order *fulfillment.Order, claim *fulfillment.Claim) {
	note := fmt.Sprintf("return %s claim %s", order.Ref(), claim.ChannelClaimID)
	for _, item := range order.Items {
		product, err := s.products.FindByChannelLink(ctx, order.Channel, item.RemoteItemID)
		if err != nil {
			continue
		}
		err = s.locks.WithLock("product:"+product.ID.String(), func() error {
			fresh, err := s.products.FindByID(ctx, product.ID)
			if err != nil {
				return err
			}
			// A completed return restores stock exactly once.
			movements, err := s.products.ListMovements(ctx, fresh.ID, shared.DefaultFilter())
			if err == nil {
				for _, m := range movements.Items {
					if m.Reason == catalog.ReasonReturn && m.Note == note {
						return nil
					}
				}
			}
			movement, err := fresh.ApplyMovement(item.Quantity, catalog.ReasonReturn, note)
			if err != nil {
				return err
			}
			if err := s.products.SaveMovement(ctx, movement); err != nil {
				return err
			}
			return s.products.Update(ctx, fresh)
		})
		if err != nil {
			s.logger.Error("failed to restore stock for return",
				zap.String("order_ref", order.Ref()),
				zap.String("remote_item_id", item.RemoteItemID),
				zap.Error(err))
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

// normalizeStatus maps raw channel claim statuses onto the local
// lifecycle. Unknown values stay open, which errs on the side of
// holding the order back.
func normalizeStatus(raw string) fulfillment.ClaimStatus {
	switch strings.ToUpper(raw) {
	case "REQUEST", "REQUESTED", "CLAIM_REQUEST", "RECEIPT", "PROGRESS":
		return fulfillment.ClaimRequested
	case "APPROVED", "ACCEPT", "COLLECTING", "COLLECT_DONE":
		return fulfillment.ClaimApproved
	case "REJECT", "REJECTED", "WITHDRAW", "WITHDRAWN":
		return fulfillment.ClaimRejected
	case "DONE", "COMPLETE", "COMPLETED", "RETURN_DONE", "CANCEL_DONE", "EXCHANGE_DONE":
		return fulfillment.ClaimCompleted
	default:
		return fulfillment.ClaimRequested
	}
}
