package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopflow/backend/internal/domain/carrier"
	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/fulfillment"
)

// OrderModel is the persistence model for the Order aggregate root.
type OrderModel struct {
	BaseModel
	Channel        channel.Code            `gorm:"type:varchar(20);not null;uniqueIndex:idx_orders_channel_order,priority:1"`
	ChannelOrderID string                  `gorm:"type:varchar(100);not null;uniqueIndex:idx_orders_channel_order,priority:2"`
	Status         fulfillment.OrderStatus `gorm:"type:varchar(30);not null;index"`
	PriorStatus    fulfillment.OrderStatus `gorm:"type:varchar(30)"`
	OrderedAt      time.Time               `gorm:"not null;index"`
	BuyerName      string                  `gorm:"type:varchar(100);not null"`

	RecipientName     string `gorm:"type:varchar(100);not null"`
	RecipientPhone    string `gorm:"type:varchar(30);not null"`
	RecipientZip      string `gorm:"type:varchar(10);not null"`
	RecipientAddress1 string `gorm:"type:varchar(300);not null"`
	RecipientAddress2 string `gorm:"type:varchar(300)"`
	RecipientMessage  string `gorm:"type:varchar(500)"`

	Items       []OrderItemModel `gorm:"foreignKey:OrderID;references:ID"`
	TotalAmount decimal.Decimal  `gorm:"type:decimal(18,2);not null;default:0"`
	Memo        string           `gorm:"type:text"`

	ConfirmedAt *time.Time

	InvoiceCarrier      carrier.Code `gorm:"type:varchar(20)"`
	TrackingNumber      string       `gorm:"type:varchar(50);index"`
	InvoiceIssuedAt     *time.Time
	InvoiceRegisteredAt *time.Time

	BatchNumber int    `gorm:"not null;default:0"`
	BatchDate   string `gorm:"type:varchar(10);index"`

	FailureReason string `gorm:"type:varchar(500)"`
	FailedAt      *time.Time
	ShippedAt     *time.Time
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain Order entity.
func (m *OrderModel) ToDomain() *fulfillment.Order {
	order := &fulfillment.Order{
		BaseEntity:     m.BaseModel.ToDomain(),
		Channel:        m.Channel,
		ChannelOrderID: m.ChannelOrderID,
		Status:         m.Status,
		PriorStatus:    m.PriorStatus,
		OrderedAt:      m.OrderedAt,
		BuyerName:      m.BuyerName,
		Recipient: fulfillment.Recipient{
			Name:     m.RecipientName,
			Phone:    m.RecipientPhone,
			Zip:      m.RecipientZip,
			Address1: m.RecipientAddress1,
			Address2: m.RecipientAddress2,
			Message:  m.RecipientMessage,
		},
		TotalAmount:   m.TotalAmount,
		Memo:          m.Memo,
		ConfirmedAt:   m.ConfirmedAt,
		BatchNumber:   m.BatchNumber,
		BatchDate:     m.BatchDate,
		FailureReason: m.FailureReason,
		FailedAt:      m.FailedAt,
		ShippedAt:     m.ShippedAt,
		Items:         make([]fulfillment.OrderItem, len(m.Items)),
	}
	if m.TrackingNumber != "" && m.InvoiceIssuedAt != nil {
		order.Invoice = &fulfillment.Invoice{
			Carrier:        m.InvoiceCarrier,
			TrackingNumber: m.TrackingNumber,
			IssuedAt:       *m.InvoiceIssuedAt,
			RegisteredAt:   m.InvoiceRegisteredAt,
		}
	}
	for i, item := range m.Items {
		order.Items[i] = item.ToDomain()
	}
	return order
}

// FromDomain populates the persistence model from a domain Order entity.
func (m *OrderModel) FromDomain(o *fulfillment.Order) {
	m.FromDomainBaseEntity(o.BaseEntity)
	m.Channel = o.Channel
	m.ChannelOrderID = o.ChannelOrderID
	m.Status = o.Status
	m.PriorStatus = o.PriorStatus
	m.OrderedAt = o.OrderedAt
	m.BuyerName = o.BuyerName
	m.RecipientName = o.Recipient.Name
	m.RecipientPhone = o.Recipient.Phone
	m.RecipientZip = o.Recipient.Zip
	m.RecipientAddress1 = o.Recipient.Address1
	m.RecipientAddress2 = o.Recipient.Address2
	m.RecipientMessage = o.Recipient.Message
	m.TotalAmount = o.TotalAmount
	m.Memo = o.Memo
	m.ConfirmedAt = o.ConfirmedAt
	m.BatchNumber = o.BatchNumber
	m.BatchDate = o.BatchDate
	m.FailureReason = o.FailureReason
	m.FailedAt = o.FailedAt
	m.ShippedAt = o.ShippedAt
	if o.Invoice != nil {
		m.InvoiceCarrier = o.Invoice.Carrier
		m.TrackingNumber = o.Invoice.TrackingNumber
		issuedAt := o.Invoice.IssuedAt
		m.InvoiceIssuedAt = &issuedAt
		m.InvoiceRegisteredAt = o.Invoice.RegisteredAt
	} else {
		m.InvoiceCarrier = ""
		m.TrackingNumber = ""
		m.InvoiceIssuedAt = nil
		m.InvoiceRegisteredAt = nil
	}
	m.Items = make([]OrderItemModel, len(o.Items))
	for i, item := range o.Items {
		m.Items[i] = OrderItemModelFromDomain(o.ID, item)
	}
}

// OrderModelFromDomain creates a new persistence model from a domain Order entity.
func OrderModelFromDomain(o *fulfillment.Order) *OrderModel {
	m := &OrderModel{}
	m.FromDomain(o)
	return m
}

// OrderItemModel is the persistence model for an order line item.
type OrderItemModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key"`
	OrderID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	RemoteItemID string          `gorm:"type:varchar(100);not null"`
	ProductID    *uuid.UUID      `gorm:"type:uuid;index"`
	ProductName  string          `gorm:"type:varchar(200);not null"`
	Option       string          `gorm:"type:varchar(200)"`
	Quantity     int             `gorm:"not null"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}

// ToDomain converts the persistence model to a domain OrderItem.
func (m *OrderItemModel) ToDomain() fulfillment.OrderItem {
	return fulfillment.OrderItem{
		RemoteItemID: m.RemoteItemID,
		ProductID:    m.ProductID,
		ProductName:  m.ProductName,
		Option:       m.Option,
		Quantity:     m.Quantity,
		UnitPrice:    m.UnitPrice,
	}
}

// OrderItemModelFromDomain creates a persistence model from a domain OrderItem.
func OrderItemModelFromDomain(orderID uuid.UUID, item fulfillment.OrderItem) OrderItemModel {
	return OrderItemModel{
		ID:           uuid.New(),
		OrderID:      orderID,
		RemoteItemID: item.RemoteItemID,
		ProductID:    item.ProductID,
		ProductName:  item.ProductName,
		Option:       item.Option,
		Quantity:     item.Quantity,
		UnitPrice:    item.UnitPrice,
	}
}
