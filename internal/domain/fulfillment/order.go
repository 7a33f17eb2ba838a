// Package fulfillment contains the order aggregate, claims and batch
// runs that drive the shipping pipeline.
package fulfillment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopflow/backend/internal/domain/carrier"
	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/shared"
)

// Order is an order collected from a sales channel and moved through
// the fulfillment pipeline
type Order struct {
	shared.BaseEntity
	Channel        channel.Code
	ChannelOrderID string
	Status         OrderStatus
	// PriorStatus holds the status an order had before entering CLAIMED
	// or FAILED, so it can be restored
	PriorStatus OrderStatus
	OrderedAt   time.Time
	BuyerName   string
	Recipient   Recipient
	Items       []OrderItem
	TotalAmount decimal.Decimal
	Memo        string

	ConfirmedAt *time.Time
	Invoice     *Invoice

	// BatchNumber and BatchDate record which daily batch processed the
	// order, for reconciliation
	BatchNumber int
	BatchDate   string

	FailureReason string
	FailedAt      *time.Time
	ShippedAt     *time.Time
}

// OrderItem is a purchased line item
type OrderItem struct {
	RemoteItemID string
	ProductID    *uuid.UUID
	ProductName  string
	Option       string
	Quantity     int
	UnitPrice    decimal.Decimal
}

// Recipient holds the shipping destination
type Recipient struct {
	Name     string
	Phone    string
	Zip      string
	Address1 string
	Address2 string
	Message  string
}

// Invoice is the shipping invoice issued by a carrier for an order
type Invoice struct {
	Carrier        carrier.Code
	TrackingNumber string
	IssuedAt       time.Time
	RegisteredAt   *time.Time
}

// CollectOrder builds a local order from a channel order in COLLECTED state
func CollectOrder(code channel.Code, src channel.Order) (*Order, error) {
	if !code.IsValid() {
		return nil, fmt.Errorf("%w: unknown channel %q", shared.ErrInvalidInput, code)
	}
	if src.ChannelOrderID == "" {
		return nil, fmt.Errorf("%w: channel order id is required", shared.ErrInvalidInput)
	}
	if len(src.Items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", shared.ErrInvalidInput)
	}
	items := make([]OrderItem, 0, len(src.Items))
	for _, it := range src.Items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %q has non-positive quantity", shared.ErrInvalidInput, it.RemoteItemID)
		}
		items = append(items, OrderItem{
			RemoteItemID: it.RemoteItemID,
			ProductName:  it.ProductName,
			Option:       it.Option,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
		})
	}
	return &Order{
		BaseEntity:     shared.NewBaseEntity(),
		Channel:        code,
		ChannelOrderID: src.ChannelOrderID,
		Status:         StatusCollected,
		OrderedAt:      src.OrderedAt,
		BuyerName:      src.BuyerName,
		Recipient: Recipient{
			Name:     src.Recipient.Name,
			Phone:    src.Recipient.Phone,
			Zip:      src.Recipient.Zip,
			Address1: src.Recipient.Address1,
			Address2: src.Recipient.Address2,
			Message:  src.Recipient.Message,
		},
		Items:       items,
		TotalAmount: src.TotalAmount,
		Memo:        src.Memo,
	}, nil
}

func (o *Order) transition(target OrderStatus) error {
	if !o.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: cannot move order from %s to %s", shared.ErrInvalidState, o.Status, target)
	}
	o.Status = target
	o.Touch()
	return nil
}

// MarkConfirmed records that the order was acknowledged on its channel
func (o *Order) MarkConfirmed(at time.Time) {
	if o.ConfirmedAt == nil {
		o.ConfirmedAt = &at
		o.Touch()
	}
}

// AttachInvoice moves the order to INVOICE_ISSUED with the carrier's
// tracking number
func (o *Order) AttachInvoice(code carrier.Code, trackingNumber string, issuedAt time.Time) error {
	if !code.IsValid() {
		return fmt.Errorf("%w: unknown carrier %q", shared.ErrInvalidInput, code)
	}
	if trackingNumber == "" {
		return fmt.Errorf("%w: tracking number is required", shared.ErrInvalidInput)
	}
	if err := o.transition(StatusInvoiceIssued); err != nil {
		return err
	}
	o.Invoice = &Invoice{
		Carrier:        code,
		TrackingNumber: trackingNumber,
		IssuedAt:       issuedAt,
	}
	return nil
}

// MarkRegistered moves the order to INVOICE_REGISTERED after the
// tracking number was reported to the channel
func (o *Order) MarkRegistered(at time.Time) error {
	if o.Invoice == nil {
		return fmt.Errorf("%w: order has no invoice", shared.ErrInvalidState)
	}
	if err := o.transition(StatusInvoiceRegistered); err != nil {
		return err
	}
	o.Invoice.RegisteredAt = &at
	return nil
}

// MarkShipped moves the order to SHIPPED once the carrier picked it up
func (o *Order) MarkShipped(at time.Time) error {
	if err := o.transition(StatusShipped); err != nil {
		return err
	}
	o.ShippedAt = &at
	return nil
}

// MarkClaimed suspends fulfillment, remembering the current status so
// the order can resume if the claim is rejected
func (o *Order) MarkClaimed() error {
	if o.Status == StatusClaimed {
		return nil
	}
	if !o.Status.CanTransitionTo(StatusClaimed) {
		return fmt.Errorf("%w: cannot claim order in status %s", shared.ErrInvalidState, o.Status)
	}
	o.PriorStatus = o.Status
	o.Status = StatusClaimed
	o.Touch()
	return nil
}

// Resume restores the pre-claim status after a claim was rejected
func (o *Order) Resume() error {
	if o.Status != StatusClaimed {
		return fmt.Errorf("%w: order is not claimed", shared.ErrInvalidState)
	}
	if o.PriorStatus == "" {
		return fmt.Errorf("%w: no status to resume to", shared.ErrInvalidState)
	}
	o.Status = o.PriorStatus
	o.PriorStatus = ""
	o.Touch()
	return nil
}

// Fail marks the order FAILED with a reason, remembering the current
// status so a manual retry can restore it
func (o *Order) Fail(reason string, at time.Time) error {
	if !o.Status.CanTransitionTo(StatusFailed) {
		return fmt.Errorf("%w: cannot fail order in status %s", shared.ErrInvalidState, o.Status)
	}
	o.PriorStatus = o.Status
	o.Status = StatusFailed
	o.FailureReason = reason
	o.FailedAt = &at
	o.Touch()
	return nil
}

// Retry restores a FAILED order to the status it failed from so the
// next batch picks it up again
func (o *Order) Retry() error {
	if o.Status != StatusFailed {
		return fmt.Errorf("%w: order is not failed", shared.ErrInvalidState)
	}
	target := o.PriorStatus
	if target == "" {
		target = StatusCollected
	}
	o.Status = target
	o.PriorStatus = ""
	o.FailureReason = ""
	o.FailedAt = nil
	o.Touch()
	return nil
}

// StampBatch records the daily batch that processed the order
func (o *Order) StampBatch(batchNumber int, batchDate string) {
	o.BatchNumber = batchNumber
	o.BatchDate = batchDate
	o.Touch()
}

// ItemSummary renders a short description of the order contents for
// carrier invoices
func (o *Order) ItemSummary() string {
	if len(o.Items) == 0 {
		return ""
	}
	first := o.Items[0].ProductName
	if o.Items[0].Option != "" {
		first += " " + o.Items[0].Option
	}
	total := 0
	for _, it := range o.Items {
		total += it.Quantity
	}
	if len(o.Items) == 1 {
		return fmt.Sprintf("%s x%d", first, total)
	}
	return fmt.Sprintf("%s 외 %d건 (총 %d개)", first, len(o.Items)-1, total)
}

// Ref returns a stable human readable reference for the order
func (o *Order) Ref() string {
	return strings.ToUpper(o.Channel.String()) + "-" + o.ChannelOrderID
}
