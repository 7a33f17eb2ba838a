// Package event carries the pipeline's domain events and an in-memory
// bus for delivering them.
package event

import (
	"github.com/google/uuid"

	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/shared"
)

// Event type names
const (
	TypeBatchRunCompleted = "fulfillment.batch_run.completed"
	TypeLowStockDetected  = "catalog.stock.low"
	TypeClaimOpened       = "fulfillment.claim.opened"
	TypeOrderShipped      = "fulfillment.order.shipped"
)

// BatchRunCompleted fires when an invoice batch finishes
type BatchRunCompleted struct {
	shared.BaseDomainEvent
	BatchNumber int    `json:"batch_number"`
	BatchDate   string `json:"batch_date"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
}

// NewBatchRunCompleted creates a BatchRunCompleted event
func NewBatchRunCompleted(runID uuid.UUID, batchNumber int, batchDate string, succeeded, failed int) *BatchRunCompleted {
	return &BatchRunCompleted{
		BaseDomainEvent: shared.NewBaseDomainEvent(TypeBatchRunCompleted, runID),
		BatchNumber:     batchNumber,
		BatchDate:       batchDate,
		Succeeded:       succeeded,
		Failed:          failed,
	}
}

// LowStockDetected fires when a stock movement drops a product to or
// below its threshold
type LowStockDetected struct {
	shared.BaseDomainEvent
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	Threshold int    `json:"threshold"`
}

// NewLowStockDetected creates a LowStockDetected event
func NewLowStockDetected(productID uuid.UUID, sku string, quantity, threshold int) *LowStockDetected {
	return &LowStockDetected{
		BaseDomainEvent: shared.NewBaseDomainEvent(TypeLowStockDetected, productID),
		SKU:             sku,
		Quantity:        quantity,
		Threshold:       threshold,
	}
}

// ClaimOpened fires when claim sync finds a newly opened claim
type ClaimOpened struct {
	shared.BaseDomainEvent
	OrderID   uuid.UUID         `json:"order_id"`
	Channel   channel.Code      `json:"channel"`
	ClaimType channel.ClaimType `json:"claim_type"`
}

// NewClaimOpened creates a ClaimOpened event
func NewClaimOpened(claimID, orderID uuid.UUID, code channel.Code, claimType channel.ClaimType) *ClaimOpened {
	return &ClaimOpened{
		BaseDomainEvent: shared.NewBaseDomainEvent(TypeClaimOpened, claimID),
		OrderID:         orderID,
		Channel:         code,
		ClaimType:       claimType,
	}
}

// OrderShipped fires when tracking confirms carrier pickup
type OrderShipped struct {
	shared.BaseDomainEvent
	OrderRef       string `json:"order_ref"`
	TrackingNumber string `json:"tracking_number"`
}

// NewOrderShipped creates an OrderShipped event
func NewOrderShipped(orderID uuid.UUID, orderRef, trackingNumber string) *OrderShipped {
	return &OrderShipped{
		BaseDomainEvent: shared.NewBaseDomainEvent(TypeOrderShipped, orderID),
		OrderRef:        orderRef,
		TrackingNumber:  trackingNumber,
	}
}
