package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/shared"
)

// OrderFilter narrows order listings
type OrderFilter struct {
	shared.Filter
	Channel channel.Code
	Status  OrderStatus
}

// OrderRepository persists collected orders
type OrderRepository interface {
	// Save inserts a new order. A duplicate (channel, channel order id)
	// pair returns shared.ErrAlreadyExists.
	Save(ctx context.Context, order *Order) error
	Update(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	FindByChannelOrderID(ctx context.Context, code channel.Code, channelOrderID string) (*Order, error)
	List(ctx context.Context, filter OrderFilter) (shared.Page[*Order], error)
	// ListBatchable returns orders in the given status with no open
	// claim, oldest first
	ListBatchable(ctx context.Context, status OrderStatus) ([]*Order, error)
}

// ClaimRepository persists synced claims
type ClaimRepository interface {
	Save(ctx context.Context, claim *Claim) error
	Update(ctx context.Context, claim *Claim) error
	FindByChannelClaimID(ctx context.Context, code channel.Code, channelClaimID string) (*Claim, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Claim, error)
	List(ctx context.Context, filter shared.Filter) (shared.Page[*Claim], error)
	// HasOpenClaim reports whether any claim still blocks the order
	HasOpenClaim(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// BatchRunRepository persists batch run records
type BatchRunRepository interface {
	Save(ctx context.Context, run *BatchRun) error
	Update(ctx context.Context, run *BatchRun) error
	FindByID(ctx context.Context, id uuid.UUID) (*BatchRun, error)
	// FindByBatch returns the most recent run for a (date, number) pair
	FindByBatch(ctx context.Context, batchDate string, batchNumber int) (*BatchRun, error)
	List(ctx context.Context, filter shared.Filter) (shared.Page[*BatchRun], error)
}

// SyncCursor remembers per-channel ingestion positions
type SyncCursor struct {
	Channel  channel.Code
	Cursor   string
	SyncedAt time.Time
}

// CursorRepository persists ingestion cursors
type CursorRepository interface {
	Get(ctx context.Context, code channel.Code) (*SyncCursor, error)
	Put(ctx context.Context, cursor *SyncCursor) error
}
