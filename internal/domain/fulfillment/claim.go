package fulfillment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/shared"
)

// ClaimStatus is the lifecycle state of a claim
type ClaimStatus string

const (
	ClaimRequested ClaimStatus = "requested"
	ClaimApproved  ClaimStatus = "approved"
	ClaimRejected  ClaimStatus = "rejected"
	ClaimCompleted ClaimStatus = "completed"
)

// IsValid checks if the claim status is known
func (s ClaimStatus) IsValid() bool {
	switch s {
	case ClaimRequested, ClaimApproved, ClaimRejected, ClaimCompleted:
		return true
	}
	return false
}

// IsOpen reports whether the claim still blocks fulfillment
func (s ClaimStatus) IsOpen() bool {
	return s == ClaimRequested || s == ClaimApproved
}

// Claim is a buyer-initiated return, exchange or cancellation synced
// from a sales channel
type Claim struct {
	shared.BaseEntity
	OrderID        uuid.UUID
	Channel        channel.Code
	ChannelClaimID string
	Type           channel.ClaimType
	Status         ClaimStatus
	Reason         string
	RequestedAt    time.Time
	ResolvedAt     *time.Time
}

// NewClaim creates a claim in its channel-reported state
func NewClaim(orderID uuid.UUID, code channel.Code, src channel.Claim, status ClaimStatus) (*Claim, error) {
	if !src.Type.IsValid() {
		return nil, fmt.Errorf("%w: unknown claim type %q", shared.ErrInvalidInput, src.Type)
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown claim status %q", shared.ErrInvalidInput, status)
	}
	if src.ChannelClaimID == "" {
		return nil, fmt.Errorf("%w: channel claim id is required", shared.ErrInvalidInput)
	}
	return &Claim{
		BaseEntity:     shared.NewBaseEntity(),
		OrderID:        orderID,
		Channel:        code,
		ChannelClaimID: src.ChannelClaimID,
		Type:           src.Type,
		Status:         status,
		Reason:         src.Reason,
		RequestedAt:    src.RequestedAt,
	}, nil
}

// UpdateStatus applies a status reported by the channel. Resolution
// timestamps are set when the claim leaves its open states.
func (c *Claim) UpdateStatus(status ClaimStatus, at time.Time) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: unknown claim status %q", shared.ErrInvalidInput, status)
	}
	if c.Status == status {
		return nil
	}
	c.Status = status
	if !status.IsOpen() && c.ResolvedAt == nil {
		c.ResolvedAt = &at
	}
	c.Touch()
	return nil
}
