package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopflow/backend/internal/domain/catalog"
	"github.com/shopflow/backend/internal/domain/channel"
)

// ProductModel is the persistence model for the Product aggregate root.
type ProductModel struct {
	BaseModel
	SKU               string             `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name              string             `gorm:"type:varchar(200);not null"`
	Price             decimal.Decimal    `gorm:"type:decimal(18,2);not null;default:0"`
	StockQuantity     int                `gorm:"not null;default:0"`
	LowStockThreshold int                `gorm:"not null;default:0"`
	Links             []ChannelLinkModel `gorm:"foreignKey:ProductID;references:ID"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product entity.
func (m *ProductModel) ToDomain() *catalog.Product {
	p := &catalog.Product{
		BaseEntity:        m.BaseModel.ToDomain(),
		SKU:               m.SKU,
		Name:              m.Name,
		Price:             m.Price,
		StockQuantity:     m.StockQuantity,
		LowStockThreshold: m.LowStockThreshold,
		Links:             make([]catalog.ChannelLink, len(m.Links)),
	}
	for i, l := range m.Links {
		p.Links[i] = catalog.ChannelLink{Channel: l.Channel, RemoteItemID: l.RemoteItemID}
	}
	return p
}

// FromDomain populates the persistence model from a domain Product entity.
func (m *ProductModel) FromDomain(p *catalog.Product) {
	m.FromDomainBaseEntity(p.BaseEntity)
	m.SKU = p.SKU
	m.Name = p.Name
	m.Price = p.Price
	m.StockQuantity = p.StockQuantity
	m.LowStockThreshold = p.LowStockThreshold
	m.Links = make([]ChannelLinkModel, len(p.Links))
	for i, l := range p.Links {
		m.Links[i] = ChannelLinkModel{
			ID:           uuid.New(),
			ProductID:    p.ID,
			Channel:      l.Channel,
			RemoteItemID: l.RemoteItemID,
		}
	}
}

// ProductModelFromDomain creates a new persistence model from a domain Product entity.
func ProductModelFromDomain(p *catalog.Product) *ProductModel {
	m := &ProductModel{}
	m.FromDomain(p)
	return m
}

// ChannelLinkModel binds a product row to a marketplace listing.
type ChannelLinkModel struct {
	ID           uuid.UUID    `gorm:"type:uuid;primary_key"`
	ProductID    uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_channel_links_product_channel,priority:1"`
	Channel      channel.Code `gorm:"type:varchar(20);not null;uniqueIndex:idx_channel_links_product_channel,priority:2;uniqueIndex:idx_channel_links_remote,priority:1"`
	RemoteItemID string       `gorm:"type:varchar(100);not null;uniqueIndex:idx_channel_links_remote,priority:2"`
}

// TableName returns the table name for GORM
func (ChannelLinkModel) TableName() string {
	return "product_channel_links"
}

// StockMovementModel is the persistence model for a stock movement record.
type StockMovementModel struct {
	BaseModel
	ProductID      uuid.UUID              `gorm:"type:uuid;not null;index"`
	QuantityBefore int                    `gorm:"not null"`
	QuantityChange int                    `gorm:"not null"`
	QuantityAfter  int                    `gorm:"not null"`
	Reason         catalog.MovementReason `gorm:"type:varchar(20);not null"`
	Note           string                 `gorm:"type:varchar(300)"`
}

// TableName returns the table name for GORM
func (StockMovementModel) TableName() string {
	return "stock_movements"
}

// ToDomain converts the persistence model to a domain StockMovement.
func (m *StockMovementModel) ToDomain() *catalog.StockMovement {
	return &catalog.StockMovement{
		BaseEntity:     m.BaseModel.ToDomain(),
		ProductID:      m.ProductID,
		QuantityBefore: m.QuantityBefore,
		QuantityChange: m.QuantityChange,
		QuantityAfter:  m.QuantityAfter,
		Reason:         m.Reason,
		Note:           m.Note,
	}
}

// StockMovementModelFromDomain creates a persistence model from a domain StockMovement.
func StockMovementModelFromDomain(mv *catalog.StockMovement) *StockMovementModel {
	m := &StockMovementModel{
		ProductID:      mv.ProductID,
		QuantityBefore: mv.QuantityBefore,
		QuantityChange: mv.QuantityChange,
		QuantityAfter:  mv.QuantityAfter,
		Reason:         mv.Reason,
		Note:           mv.Note,
	}
	m.FromDomainBaseEntity(mv.BaseEntity)
	return m
}
