// Package carrier defines the shipping carrier port used to issue
// invoices and track shipments.
package carrier

import (
	"context"
	"errors"
	"time"
)

// Code identifies a shipping carrier
type Code string

const (
	CodeCJ     Code = "cj"
	CodeHanjin Code = "hanjin"
	CodeLotte  Code = "lotte"
	CodeLogen  Code = "logen"
	CodeEpost  Code = "epost"
)

// AllCodes lists every supported carrier code
func AllCodes() []Code {
	return []Code{CodeCJ, CodeHanjin, CodeLotte, CodeLogen, CodeEpost}
}

// IsValid checks if the carrier code is supported
func (c Code) IsValid() bool {
	switch c {
	case CodeCJ, CodeHanjin, CodeLotte, CodeLogen, CodeEpost:
		return true
	}
	return false
}

func (c Code) String() string {
	return string(c)
}

// DisplayName returns the human readable carrier name
func (c Code) DisplayName() string {
	switch c {
	case CodeCJ:
		return "CJ Logistics"
	case CodeHanjin:
		return "Hanjin Express"
	case CodeLotte:
		return "Lotte Global Logistics"
	case CodeLogen:
		return "Logen"
	case CodeEpost:
		return "Korea Post"
	default:
		return string(c)
	}
}

// MarketplaceCode returns the identifier marketplaces expect when a
// tracking number is registered against this carrier
func (c Code) MarketplaceCode() string {
	switch c {
	case CodeCJ:
		return "CJGLS"
	case CodeHanjin:
		return "HANJIN"
	case CodeLotte:
		return "LOTTE"
	case CodeLogen:
		return "LOGEN"
	case CodeEpost:
		return "EPOST"
	default:
		return ""
	}
}

// Carrier failure classes, mirroring the channel taxonomy
var (
	ErrAuthFailed    = errors.New("carrier: authentication failed")
	ErrRateLimited   = errors.New("carrier: rate limited")
	ErrTransient     = errors.New("carrier: transient failure")
	ErrValidation    = errors.New("carrier: request rejected")
	ErrNotRegistered = errors.New("carrier: adapter not registered")
)

// IsRetryable reports whether the operation may succeed on a later attempt
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}

// InvoiceRequest asks a carrier to issue a shipping invoice
type InvoiceRequest struct {
	Reference     string
	SenderName    string
	SenderPhone   string
	SenderZip     string
	SenderAddress string
	RecipientName string
	Phone         string
	Zip           string
	Address1      string
	Address2      string
	ItemSummary   string
	BoxCount      int
	Message       string
}

// InvoiceResult is the carrier's answer to an invoice request
type InvoiceResult struct {
	Reference      string
	TrackingNumber string
	IssuedAt       time.Time
	Err            error
}

// DeliveryStatus is the normalized shipment state
type DeliveryStatus string

const (
	StatusReady          DeliveryStatus = "ready"
	StatusPickedUp       DeliveryStatus = "picked_up"
	StatusInTransit      DeliveryStatus = "in_transit"
	StatusOutForDelivery DeliveryStatus = "out_for_delivery"
	StatusDelivered      DeliveryStatus = "delivered"
	StatusFailed         DeliveryStatus = "failed"
)

// IsValid checks if the delivery status is known
func (s DeliveryStatus) IsValid() bool {
	switch s {
	case StatusReady, StatusPickedUp, StatusInTransit, StatusOutForDelivery, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the shipment will receive no further updates
func (s DeliveryStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// TrackingEvent is one step of a shipment's journey
type TrackingEvent struct {
	Status     DeliveryStatus
	Location   string
	Note       string
	OccurredAt time.Time
}

// Adapter is the port every carrier integration implements
type Adapter interface {
	// Code returns the carrier this adapter serves
	Code() Code

	// IssueInvoice issues a single shipping invoice and returns the
	// assigned tracking number
	IssueInvoice(ctx context.Context, req InvoiceRequest) (*InvoiceResult, error)

	// IssueInvoices issues invoices for a batch of requests. Results are
	// returned in request order. A partial failure is reported per entry
	// through InvoiceResult.Err, not as a call-level error.
	IssueInvoices(ctx context.Context, reqs []InvoiceRequest) ([]InvoiceResult, error)

	// TrackShipment fetches tracking events for an issued invoice,
	// newest last
	TrackShipment(ctx context.Context, trackingNumber string) ([]TrackingEvent, error)
}

// Registry resolves adapters by carrier code
type Registry interface {
	Get(code Code) (Adapter, error)
	Default() Adapter
	All() []Adapter
}
