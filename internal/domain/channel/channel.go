// Package channel defines the sales channel port and the value objects
// exchanged with external marketplaces.
package channel

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Code identifies a sales channel
type Code string

const (
	CodeNaver   Code = "naver"
	CodeCoupang Code = "coupang"
)

// AllCodes lists every supported channel code
func AllCodes() []Code {
	return []Code{CodeNaver, CodeCoupang}
}

// IsValid checks if the channel code is supported
func (c Code) IsValid() bool {
	switch c {
	case CodeNaver, CodeCoupang:
		return true
	}
	return false
}

func (c Code) String() string {
	return string(c)
}

// DisplayName returns the human readable channel name
func (c Code) DisplayName() string {
	switch c {
	case CodeNaver:
		return "Naver Smart Store"
	case CodeCoupang:
		return "Coupang"
	default:
		return string(c)
	}
}

// Order is an order as reported by a sales channel
type Order struct {
	ChannelOrderID string
	OrderedAt      time.Time
	BuyerName      string
	Recipient      Recipient
	Items          []OrderItem
	TotalAmount    decimal.Decimal
	Memo           string
}

// OrderItem is a line item of a channel order
type OrderItem struct {
	RemoteItemID string
	ProductName  string
	Option       string
	Quantity     int
	UnitPrice    decimal.Decimal
}

// Recipient holds shipping destination details
type Recipient struct {
	Name     string
	Phone    string
	Zip      string
	Address1 string
	Address2 string
	Message  string
}

// ClaimType categorizes buyer-initiated claims
type ClaimType string

const (
	ClaimReturn   ClaimType = "return"
	ClaimExchange ClaimType = "exchange"
	ClaimCancel   ClaimType = "cancel"
)

// IsValid checks if the claim type is supported
func (t ClaimType) IsValid() bool {
	switch t {
	case ClaimReturn, ClaimExchange, ClaimCancel:
		return true
	}
	return false
}

// Claim is a claim as reported by a sales channel
type Claim struct {
	ChannelClaimID string
	ChannelOrderID string
	Type           ClaimType
	Status         string
	Reason         string
	RequestedAt    time.Time
}

// Adapter is the port every sales channel integration implements.
// Implementations translate marketplace APIs into these operations and
// classify failures with the sentinel errors in errors.go.
type Adapter interface {
	// Code returns the channel this adapter serves
	Code() Code

	// ListNewOrders fetches paid orders created after the cursor position.
	// It returns the orders, the cursor to persist for the next call, and
	// an error. On error the returned cursor must equal the input cursor.
	ListNewOrders(ctx context.Context, cursor string) ([]Order, string, error)

	// GetOrder fetches a single order by its channel order id
	GetOrder(ctx context.Context, channelOrderID string) (*Order, error)

	// ConfirmOrder acknowledges the order on the channel so the
	// marketplace marks it as accepted by the seller
	ConfirmOrder(ctx context.Context, channelOrderID string) error

	// RegisterTracking reports the carrier and tracking number for an
	// order. Implementations must be idempotent: registering the same
	// tracking number twice succeeds without side effects.
	RegisterTracking(ctx context.Context, channelOrderID, carrierCode, trackingNumber string) error

	// UpdateStock pushes the available quantity for a channel listing
	UpdateStock(ctx context.Context, remoteItemID string, quantity int) error

	// ListClaims fetches claims updated since the given time
	ListClaims(ctx context.Context, since time.Time) ([]Claim, error)
}

// Registry resolves adapters by channel code
type Registry interface {
	Get(code Code) (Adapter, error)
	All() []Adapter
}
