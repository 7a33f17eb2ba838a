package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shopflow/backend/internal/application/ingestion"
	"github.com/shopflow/backend/internal/application/invoicing"
	"github.com/shopflow/backend/internal/application/tracking"
	"github.com/shopflow/backend/internal/domain/carrier"
	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/fulfillment"
	"github.com/shopflow/backend/internal/domain/shared"
	"github.com/shopflow/backend/internal/interfaces/http/dto"
)

// OrderHandler serves collected orders and their pipeline actions
type OrderHandler struct {
	BaseHandler
	orders    fulfillment.OrderRepository
	claims    fulfillment.ClaimRepository
	ingestor  *ingestion.Service
	processor *invoicing.BatchProcessor
	tracker   *tracking.Service
}

// NewOrderHandler creates an OrderHandler
func NewOrderHandler(
	orders fulfillment.OrderRepository,
	claims fulfillment.ClaimRepository,
	ingestor *ingestion.Service,
	processor *invoicing.BatchProcessor,
	tracker *tracking.Service,
) *OrderHandler {
	return &OrderHandler{
		orders:    orders,
		claims:    claims,
		ingestor:  ingestor,
		processor: processor,
		tracker:   tracker,
	}
}

// RegisterRoutes registers order routes
func (h *OrderHandler) RegisterRoutes(rg *gin.RouterGroup) {
	orders := rg.Group("/orders")
	{
		orders.GET("", h.List)
		orders.POST("/collect", h.Collect)
		orders.GET("/:id", h.Get)
		orders.GET("/:id/claims", h.ListClaims)
		orders.POST("/:id/retry", h.Retry)
		orders.POST("/:id/shipped", h.MarkShipped)
	}
	rg.POST("/tracking/refresh", h.RefreshTracking)
}

// OrderResponse represents an order in API responses
type OrderResponse struct {
	ID             string              `json:"id"`
	Ref            string              `json:"ref"`
	Channel        string              `json:"channel"`
	ChannelOrderID string              `json:"channel_order_id"`
	Status         string              `json:"status"`
	OrderedAt      time.Time           `json:"ordered_at"`
	BuyerName      string              `json:"buyer_name"`
	Recipient      RecipientResponse   `json:"recipient"`
	Items          []OrderItemResponse `json:"items"`
	TotalAmount    string              `json:"total_amount"`
	Memo           string              `json:"memo,omitempty"`
	ConfirmedAt    *time.Time          `json:"confirmed_at,omitempty"`
	Invoice        *InvoiceResponse    `json:"invoice,omitempty"`
	BatchNumber    int                 `json:"batch_number,omitempty"`
	BatchDate      string              `json:"batch_date,omitempty"`
	FailureReason  string              `json:"failure_reason,omitempty"`
	FailedAt       *time.Time          `json:"failed_at,omitempty"`
	ShippedAt      *time.Time          `json:"shipped_at,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// RecipientResponse is the shipping destination in API responses
type RecipientResponse struct {
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	Zip      string `json:"zip,omitempty"`
	Address1 string `json:"address1,omitempty"`
	Address2 string `json:"address2,omitempty"`
	Message  string `json:"message,omitempty"`
}

// OrderItemResponse is a purchased line item in API responses
type OrderItemResponse struct {
	RemoteItemID string `json:"remote_item_id"`
	ProductID    string `json:"product_id,omitempty"`
	ProductName  string `json:"product_name"`
	Option       string `json:"option,omitempty"`
	Quantity     int    `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
}

// InvoiceResponse is the carrier invoice in API responses
type InvoiceResponse struct {
	Carrier        string     `json:"carrier"`
	TrackingNumber string     `json:"tracking_number"`
	IssuedAt       time.Time  `json:"issued_at"`
	RegisteredAt   *time.Time `json:"registered_at,omitempty"`
}

func toOrderResponse(order *fulfillment.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(order.Items))
	for _, it := range order.Items {
		item := OrderItemResponse{
			RemoteItemID: it.RemoteItemID,
			ProductName:  it.ProductName,
			Option:       it.Option,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice.String(),
		}
		if it.ProductID != nil {
			item.ProductID = it.ProductID.String()
		}
		items = append(items, item)
	}
	resp := OrderResponse{
		ID:             order.ID.String(),
		Ref:            order.Ref(),
		Channel:        order.Channel.String(),
		ChannelOrderID: order.ChannelOrderID,
		Status:         string(order.Status),
		OrderedAt:      order.OrderedAt,
		BuyerName:      order.BuyerName,
		Recipient: RecipientResponse{
			Name:     order.Recipient.Name,
			Phone:    order.Recipient.Phone,
			Zip:      order.Recipient.Zip,
			Address1: order.Recipient.Address1,
			Address2: order.Recipient.Address2,
			Message:  order.Recipient.Message,
		},
		Items:         items,
		TotalAmount:   order.TotalAmount.String(),
		Memo:          order.Memo,
		ConfirmedAt:   order.ConfirmedAt,
		BatchNumber:   order.BatchNumber,
		BatchDate:     order.BatchDate,
		FailureReason: order.FailureReason,
		FailedAt:      order.FailedAt,
		ShippedAt:     order.ShippedAt,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
	if order.Invoice != nil {
		resp.Invoice = &InvoiceResponse{
			Carrier:        order.Invoice.Carrier.String(),
			TrackingNumber: order.Invoice.TrackingNumber,
			IssuedAt:       order.Invoice.IssuedAt,
			RegisteredAt:   order.Invoice.RegisteredAt,
		}
	}
	return resp
}

// ListOrdersRequest holds order listing query parameters
type ListOrdersRequest struct {
	dto.ListRequest
	Channel string `form:"channel"`
	Status  string `form:"status"`
}

// List returns collected orders, optionally filtered by channel and
// status
func (h *OrderHandler) List(c *gin.Context) {
	var req ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := fulfillment.OrderFilter{
		Filter: shared.Filter{
			Limit:   req.Limit,
			Offset:  req.Offset,
			OrderBy: req.OrderBy,
		}.Normalize(),
	}
	if req.Desc != nil {
		filter.Desc = *req.Desc
	} else {
		filter.Desc = true
	}
	if req.Channel != "" {
		code := channel.Code(req.Channel)
		if !code.IsValid() {
			h.BadRequest(c, "unknown channel "+req.Channel)
			return
		}
		filter.Channel = code
	}
	if req.Status != "" {
		status := fulfillment.OrderStatus(req.Status)
		if !status.IsValid() {
			h.BadRequest(c, "unknown order status "+req.Status)
			return
		}
		filter.Status = status
	}

	page, err := h.orders.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]OrderResponse, 0, len(page.Items))
	for _, order := range page.Items {
		out = append(out, toOrderResponse(order))
	}
	h.SuccessWithMeta(c, out, page.Total, filter.Limit, filter.Offset)
}

// Get returns a single order by id
func (h *OrderHandler) Get(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid order id")
		return
	}
	order, err := h.orders.FindByID(c.Request.Context(), orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toOrderResponse(order))
}

// ListClaims returns the claims synced for an order
func (h *OrderHandler) ListClaims(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid order id")
		return
	}
	claims, err := h.claims.ListByOrder(c.Request.Context(), orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]ClaimResponse, 0, len(claims))
	for _, claim := range claims {
		out = append(out, toClaimResponse(claim))
	}
	h.Success(c, out)
}

// Collect pulls new orders from all registered channels
func (h *OrderHandler) Collect(c *gin.Context) {
	summary, err := h.ingestor.CollectNewOrders(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// Retry moves a FAILED order back to the status it failed from
func (h *OrderHandler) Retry(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid order id")
		return
	}
	order, err := h.processor.RetryOrder(c.Request.Context(), orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toOrderResponse(order))
}

// MarkShippedRequest is the carrier movement event reported by the
// external shipment tracker
type MarkShippedRequest struct {
	Status     string     `json:"status" binding:"required"`
	OccurredAt *time.Time `json:"occurred_at"`
	Location   string     `json:"location"`
}

// MarkShipped applies a carrier movement event to an order. The path
// parameter accepts either the order id or its CHANNEL-id reference.
func (h *OrderHandler) MarkShipped(c *gin.Context) {
	var req MarkShippedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	ref := c.Param("id")
	if orderID, err := uuid.Parse(ref); err == nil {
		order, err := h.orders.FindByID(c.Request.Context(), orderID)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		ref = order.Ref()
	}

	ev := carrier.TrackingEvent{
		Status:   carrier.DeliveryStatus(req.Status),
		Location: req.Location,
	}
	if req.OccurredAt != nil {
		ev.OccurredAt = *req.OccurredAt
	}

	order, err := h.tracker.MarkShipped(c.Request.Context(), ref, ev)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toOrderResponse(order))
}

// RefreshTracking polls carriers for registered orders and ships the
// ones that moved
func (h *OrderHandler) RefreshTracking(c *gin.Context) {
	shipped, err := h.tracker.RefreshTracking(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"shipped": shipped})
}
