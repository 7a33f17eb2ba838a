package fulfillment

// OrderStatus is the fulfillment state of an order
type OrderStatus string

const (
	// StatusNew means the order was seen on a channel but not yet stored
	StatusNew OrderStatus = "NEW"
	// StatusCollected means the order is stored locally and awaits a batch
	StatusCollected OrderStatus = "COLLECTED"
	// StatusInvoiceIssued means a carrier assigned a tracking number
	StatusInvoiceIssued OrderStatus = "INVOICE_ISSUED"
	// StatusInvoiceRegistered means the tracking number was reported back
	// to the channel
	StatusInvoiceRegistered OrderStatus = "INVOICE_REGISTERED"
	// StatusShipped means the carrier picked up the parcel
	StatusShipped OrderStatus = "SHIPPED"
	// StatusClaimed means an open claim suspends fulfillment
	StatusClaimed OrderStatus = "CLAIMED"
	// StatusFailed means fulfillment stopped after exhausting retries
	StatusFailed OrderStatus = "FAILED"
)

// IsValid checks if the status is known
func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusNew, StatusCollected, StatusInvoiceIssued, StatusInvoiceRegistered,
		StatusShipped, StatusClaimed, StatusFailed:
		return true
	}
	return false
}

func (s OrderStatus) String() string {
	return string(s)
}

// CanTransitionTo checks if the status transition is allowed
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	switch s {
	case StatusNew:
		return target == StatusCollected
	case StatusCollected:
		return target == StatusInvoiceIssued || target == StatusClaimed || target == StatusFailed
	case StatusInvoiceIssued:
		return target == StatusInvoiceRegistered || target == StatusClaimed || target == StatusFailed
	case StatusInvoiceRegistered:
		return target == StatusShipped || target == StatusClaimed || target == StatusFailed
	case StatusShipped:
		return target == StatusClaimed
	case StatusClaimed:
		// resolved via Resume, which restores the pre-claim status
		return false
	case StatusFailed:
		return target == StatusCollected || target == StatusInvoiceIssued
	}
	return false
}

// IsTerminal reports whether fulfillment work is finished for this status
func (s OrderStatus) IsTerminal() bool {
	return s == StatusShipped
}
