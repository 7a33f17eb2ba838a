package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shopflow/backend/internal/application/claimsync"
	"github.com/shopflow/backend/internal/domain/fulfillment"
	"github.com/shopflow/backend/internal/domain/shared"
	"github.com/shopflow/backend/internal/interfaces/http/dto"
)

// ClaimHandler serves synced claims
type ClaimHandler struct {
	BaseHandler
	claims fulfillment.ClaimRepository
	syncer *claimsync.Service
}

// NewClaimHandler creates a ClaimHandler
func NewClaimHandler(claims fulfillment.ClaimRepository, syncer *claimsync.Service) *ClaimHandler {
	return &ClaimHandler{claims: claims, syncer: syncer}
}

// RegisterRoutes registers claim routes
func (h *ClaimHandler) RegisterRoutes(rg *gin.RouterGroup) {
	claims := rg.Group("/claims")
	{
		claims.GET("", h.List)
		claims.POST("/sync", h.Sync)
	}
}

// ClaimResponse represents a claim in API responses
type ClaimResponse struct {
	ID             string     `json:"id"`
	OrderID        string     `json:"order_id"`
	Channel        string     `json:"channel"`
	ChannelClaimID string     `json:"channel_claim_id"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	Reason         string     `json:"reason,omitempty"`
	RequestedAt    time.Time  `json:"requested_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toClaimResponse(claim *fulfillment.Claim) ClaimResponse {
	return ClaimResponse{
		ID:             claim.ID.String(),
		OrderID:        claim.OrderID.String(),
		Channel:        claim.Channel.String(),
		ChannelClaimID: claim.ChannelClaimID,
		Type:           string(claim.Type),
		Status:         string(claim.Status),
		Reason:         claim.Reason,
		RequestedAt:    claim.RequestedAt,
		ResolvedAt:     claim.ResolvedAt,
		CreatedAt:      claim.CreatedAt,
		UpdatedAt:      claim.UpdatedAt,
	}
}

// List returns synced claims, newest first
func (h *ClaimHandler) List(c *gin.Context) {
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
	} else {
		filter.Desc = true
	}

	page, err := h.claims.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]ClaimResponse, 0, len(page.Items))
	for _, claim := range page.Items {
		out = append(out, toClaimResponse(claim))
	}
	h.SuccessWithMeta(c, out, page.Total, filter.Limit, filter.Offset)
}

// Sync pulls recent claims from all registered channels and applies
// them to their orders
func (h *ClaimHandler) Sync(c *gin.Context) {
	summary, err := h.syncer.SyncClaims(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}
