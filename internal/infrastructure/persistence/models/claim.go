package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/fulfillment"
)

// ClaimModel is the persistence model for a Claim entity.
type ClaimModel struct {
	BaseModel
	OrderID        uuid.UUID               `gorm:"type:uuid;not null;index"`
	Channel        channel.Code            `gorm:"type:varchar(20);not null;uniqueIndex:idx_claims_channel_claim,priority:1"`
	ChannelClaimID string                  `gorm:"type:varchar(100);not null;uniqueIndex:idx_claims_channel_claim,priority:2"`
	Type           channel.ClaimType       `gorm:"type:varchar(20);not null"`
	Status         fulfillment.ClaimStatus `gorm:"type:varchar(20);not null;index"`
	Reason         string                  `gorm:"type:varchar(500)"`
	RequestedAt    time.Time               `gorm:"not null"`
	ResolvedAt     *time.Time
}

// TableName returns the table name for GORM
func (ClaimModel) TableName() string {
	return "claims"
}

// ToDomain converts the persistence model to a domain Claim entity.
func (m *ClaimModel) ToDomain() *fulfillment.Claim {
	return &fulfillment.Claim{
		BaseEntity:     m.BaseModel.ToDomain(),
		OrderID:        m.OrderID,
		Channel:        m.Channel,
		ChannelClaimID: m.ChannelClaimID,
		Type:           m.Type,
		Status:         m.Status,
		Reason:         m.Reason,
		RequestedAt:    m.RequestedAt,
		ResolvedAt:     m.ResolvedAt,
	}
}

// FromDomain populates the persistence model from a domain Claim entity.
func (m *ClaimModel) FromDomain(c *fulfillment.Claim) {
	m.FromDomainBaseEntity(c.BaseEntity)
	m.OrderID = c.OrderID
	m.Channel = c.Channel
	m.ChannelClaimID = c.ChannelClaimID
	m.Type = c.Type
	m.Status = c.Status
	m.Reason = c.Reason
	m.RequestedAt = c.RequestedAt
	m.ResolvedAt = c.ResolvedAt
}

// ClaimModelFromDomain creates a new persistence model from a domain Claim entity.
func ClaimModelFromDomain(c *fulfillment.Claim) *ClaimModel {
	m := &ClaimModel{}
	m.FromDomain(c)
	return m
}
