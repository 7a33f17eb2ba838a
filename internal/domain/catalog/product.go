// Package catalog holds products, their channel listings and stock
// movement history.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/shared"
)

var (
	ErrInsufficientStock = errors.New("catalog: insufficient stock")
	ErrDuplicateLink     = errors.New("catalog: channel link already exists")
)

// Product is a sellable item with locally managed stock
type Product struct {
	shared.BaseEntity
	SKU               string
	Name              string
	Price             decimal.Decimal
	StockQuantity     int
	LowStockThreshold int
	Links             []ChannelLink
}

// ChannelLink binds a product to a listing on a sales channel
type ChannelLink struct {
	Channel      channel.Code
	RemoteItemID string
}

// NewProduct creates a product after validating its fields
func NewProduct(sku, name string, price decimal.Decimal, stock, lowStockThreshold int) (*Product, error) {
	if sku == "" {
		return nil, fmt.Errorf("%w: sku is required", shared.ErrInvalidInput)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", shared.ErrInvalidInput)
	}
	if price.IsNegative() {
		return nil, fmt.Errorf("%w: price cannot be negative", shared.ErrInvalidInput)
	}
	if stock < 0 {
		return nil, fmt.Errorf("%w: stock cannot be negative", shared.ErrInvalidInput)
	}
	if lowStockThreshold < 0 {
		return nil, fmt.Errorf("%w: low stock threshold cannot be negative", shared.ErrInvalidInput)
	}
	return &Product{
		BaseEntity:        shared.NewBaseEntity(),
		SKU:               sku,
		Name:              name,
		Price:             price,
		StockQuantity:     stock,
		LowStockThreshold: lowStockThreshold,
	}, nil
}

// LinkChannel registers a channel listing for the product
func (p *Product) LinkChannel(code channel.Code, remoteItemID string) error {
	if !code.IsValid() {
		return fmt.Errorf("%w: unknown channel %q", shared.ErrInvalidInput, code)
	}
	if remoteItemID == "" {
		return fmt.Errorf("%w: remote item id is required", shared.ErrInvalidInput)
	}
	for _, l := range p.Links {
		if l.Channel == code {
			return ErrDuplicateLink
		}
	}
	p.Links = append(p.Links, ChannelLink{Channel: code, RemoteItemID: remoteItemID})
	p.Touch()
	return nil
}

// RemoteItemID returns the listing id for the given channel, if linked
func (p *Product) RemoteItemID(code channel.Code) (string, bool) {
	for _, l := range p.Links {
		if l.Channel == code {
			return l.RemoteItemID, true
		}
	}
	return "", false
}

// ApplyMovement changes stock by delta and returns the recorded movement.
// Stock never goes negative.
func (p *Product) ApplyMovement(delta int, reason MovementReason, note string) (*StockMovement, error) {
	if !reason.IsValid() {
		return nil, fmt.Errorf("%w: unknown movement reason %q", shared.ErrInvalidInput, reason)
	}
	before := p.StockQuantity
	after := before + delta
	if after < 0 {
		return nil, fmt.Errorf("%w: have %d, requested %d", ErrInsufficientStock, before, -delta)
	}
	p.StockQuantity = after
	p.Touch()
	return &StockMovement{
		BaseEntity:     shared.NewBaseEntity(),
		ProductID:      p.ID,
		QuantityBefore: before,
		QuantityChange: delta,
		QuantityAfter:  after,
		Reason:         reason,
		Note:           note,
	}, nil
}

// IsLowStock reports whether the product is at or below its threshold
func (p *Product) IsLowStock() bool {
	return p.LowStockThreshold > 0 && p.StockQuantity <= p.LowStockThreshold
}

// MovementReason categorizes stock changes
type MovementReason string

const (
	ReasonOrder      MovementReason = "order"
	ReasonReturn     MovementReason = "return"
	ReasonAdjustment MovementReason = "adjustment"
	ReasonIncoming   MovementReason = "incoming"
)

// IsValid checks if the movement reason is supported
func (r MovementReason) IsValid() bool {
	switch r {
	case ReasonOrder, ReasonReturn, ReasonAdjustment, ReasonIncoming:
		return true
	}
	return false
}

// StockMovement records a single stock change with before and after values
type StockMovement struct {
	shared.BaseEntity
	ProductID      uuid.UUID
	QuantityBefore int
	QuantityChange int
	QuantityAfter  int
	Reason         MovementReason
	Note           string
}

// Repository persists products and their stock movements
type Repository interface {
	Save(ctx context.Context, product *Product) error
	Update(ctx context.Context, product *Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)
	FindBySKU(ctx context.Context, sku string) (*Product, error)
	FindByChannelLink(ctx context.Context, code channel.Code, remoteItemID string) (*Product, error)
	List(ctx context.Context, filter shared.Filter) (shared.Page[*Product], error)
	ListLinked(ctx context.Context, code channel.Code) ([]*Product, error)

	SaveMovement(ctx context.Context, movement *StockMovement) error
	ListMovements(ctx context.Context, productID uuid.UUID, filter shared.Filter) (shared.Page[*StockMovement], error)
}
