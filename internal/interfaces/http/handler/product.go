package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopflow/backend/internal/application/stocksync"
	"github.com/shopflow/backend/internal/domain/catalog"
	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/shared"
	"github.com/shopflow/backend/internal/interfaces/http/dto"
)

// ProductHandler serves the product catalog and stock operations
type ProductHandler struct {
	BaseHandler
	products catalog.Repository
	stock    *stocksync.Service
}

// NewProductHandler creates a ProductHandler
func NewProductHandler(products catalog.Repository, stock *stocksync.Service) *ProductHandler {
	return &ProductHandler{products: products, stock: stock}
}

// RegisterRoutes registers product and stock routes
func (h *ProductHandler) RegisterRoutes(rg *gin.RouterGroup) {
	products := rg.Group("/products")
	{
		products.GET("", h.List)
		products.POST("", h.Create)
		products.GET("/:id", h.Get)
		products.POST("/:id/links", h.LinkChannel)
		products.POST("/:id/adjust", h.AdjustStock)
		products.GET("/:id/movements", h.ListMovements)
	}
	rg.POST("/stock/sync", h.SyncStock)
}

// ProductResponse represents a product in API responses
type ProductResponse struct {
	ID                string                `json:"id"`
	SKU               string                `json:"sku"`
	Name              string                `json:"name"`
	Price             string                `json:"price"`
	StockQuantity     int                   `json:"stock_quantity"`
	LowStockThreshold int                   `json:"low_stock_threshold"`
	LowStock          bool                  `json:"low_stock"`
	Links             []ChannelLinkResponse `json:"links,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// ChannelLinkResponse is a channel listing binding in API responses
type ChannelLinkResponse struct {
	Channel      string `json:"channel"`
	RemoteItemID string `json:"remote_item_id"`
}

func toProductResponse(product *catalog.Product) ProductResponse {
	resp := ProductResponse{
		ID:                product.ID.String(),
		SKU:               product.SKU,
		Name:              product.Name,
		Price:             product.Price.String(),
		StockQuantity:     product.StockQuantity,
		LowStockThreshold: product.LowStockThreshold,
		LowStock:          product.IsLowStock(),
		CreatedAt:         product.CreatedAt,
		UpdatedAt:         product.UpdatedAt,
	}
	for _, link := range product.Links {
		resp.Links = append(resp.Links, ChannelLinkResponse{
			Channel:      link.Channel.String(),
			RemoteItemID: link.RemoteItemID,
		})
	}
	return resp
}

// StockMovementResponse represents a stock movement in API responses
type StockMovementResponse struct {
	ID             string    `json:"id"`
	ProductID      string    `json:"product_id"`
	QuantityBefore int       `json:"quantity_before"`
	QuantityChange int       `json:"quantity_change"`
	QuantityAfter  int       `json:"quantity_after"`
	Reason         string    `json:"reason"`
	Note           string    `json:"note,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func toMovementResponse(m *catalog.StockMovement) StockMovementResponse {
	return StockMovementResponse{
		ID:             m.ID.String(),
		ProductID:      m.ProductID.String(),
		QuantityBefore: m.QuantityBefore,
		QuantityChange: m.QuantityChange,
		QuantityAfter:  m.QuantityAfter,
		Reason:         string(m.Reason),
		Note:           m.Note,
		CreatedAt:      m.CreatedAt,
	}
}

// CreateProductRequest is the payload for creating a product
type CreateProductRequest struct {
	SKU               string `json:"sku" binding:"required"`
	Name              string `json:"name" binding:"required"`
	Price             string `json:"price" binding:"required"`
	StockQuantity     int    `json:"stock_quantity" binding:"min=0"`
	LowStockThreshold int    `json:"low_stock_threshold" binding:"min=0"`
}

// Create registers a new product
func (h *ProductHandler) Create(c *gin.Context) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		h.BadRequest(c, "invalid price "+req.Price)
		return
	}
	product, err := catalog.NewProduct(req.SKU, req.Name, price, req.StockQuantity, req.LowStockThreshold)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if err := h.products.Save(c.Request.Context(), product); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toProductResponse(product))
}

// List returns catalog products
func (h *ProductHandler) List(c *gin.Context) {
	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	filter := shared.Filter{
		Limit:   req.Limit,
		Offset:  req.Offset,
		OrderBy: req.OrderBy,
	}.Normalize()
	if req.Desc != nil {
		filter.Desc = *req.Desc
	}

	page, err := h.products.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]ProductResponse, 0, len(page.Items))
	for _, product := range page.Items {
		out = append(out, toProductResponse(product))
	}
	h.SuccessWithMeta(c, out, page.Total, filter.Limit, filter.Offset)
}

// Get returns a single product
func (h *ProductHandler) Get(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid product id")
		return
	}
	product, err := h.products.FindByID(c.Request.Context(), productID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toProductResponse(product))
}

// LinkChannelRequest binds a product to a channel listing
type LinkChannelRequest struct {
	Channel      string `json:"channel" binding:"required"`
	RemoteItemID string `json:"remote_item_id" binding:"required"`
}

// LinkChannel registers a channel listing for a product
func (h *ProductHandler) LinkChannel(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid product id")
		return
	}
	var req LinkChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	product, err := h.products.FindByID(c.Request.Context(), productID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if err := product.LinkChannel(channel.Code(req.Channel), req.RemoteItemID); err != nil {
		h.HandleError(c, err)
		return
	}
	if err := h.products.Update(c.Request.Context(), product); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toProductResponse(product))
}

// AdjustStockRequest is a manual stock correction
type AdjustStockRequest struct {
	Delta int    `json:"delta" binding:"required"`
	Note  string `json:"note" binding:"required"`
}

// AdjustStock applies a manual stock adjustment and pushes the new
// quantity to linked channels
func (h *ProductHandler) AdjustStock(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid product id")
		return
	}
	var req AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	product, err := h.stock.AdjustStock(c.Request.Context(), productID, req.Delta, req.Note)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toProductResponse(product))
}

// ListMovements returns a product's stock movement history, newest
// first
func (h *ProductHandler) ListMovements(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid product id")
		return
	}
	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	filter := shared.Filter{
		Limit:  req.Limit,
		Offset: req.Offset,
	}.Normalize()
	filter.Desc = true

	page, err := h.products.ListMovements(c.Request.Context(), productID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]StockMovementResponse, 0, len(page.Items))
	for _, m := range page.Items {
		out = append(out, toMovementResponse(m))
	}
	h.SuccessWithMeta(c, out, page.Total, filter.Limit, filter.Offset)
}

// SyncStock pushes current stock to every linked channel listing
func (h *ProductHandler) SyncStock(c *gin.Context) {
	summary, err := h.stock.SyncAll(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}
