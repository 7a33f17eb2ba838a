package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shopflow/backend/internal/application/invoicing"
	"github.com/shopflow/backend/internal/domain/fulfillment"
	"github.com/shopflow/backend/internal/domain/shared"
	"github.com/shopflow/backend/internal/interfaces/http/dto"
)

// BatchHandler serves invoice batch runs
type BatchHandler struct {
	BaseHandler
	runs      fulfillment.BatchRunRepository
	processor *invoicing.BatchProcessor
}

// NewBatchHandler creates a BatchHandler
func NewBatchHandler(runs fulfillment.BatchRunRepository, processor *invoicing.BatchProcessor) *BatchHandler {
	return &BatchHandler{runs: runs, processor: processor}
}

// RegisterRoutes registers batch routes
func (h *BatchHandler) RegisterRoutes(rg *gin.RouterGroup) {
	batches := rg.Group("/batches")
	{
		batches.GET("", h.List)
		batches.POST("/run", h.Run)
		batches.GET("/:id", h.Get)
	}
}

// BatchRunResponse represents a batch run in API responses
type BatchRunResponse struct {
	ID          string                 `json:"id"`
	BatchNumber int                    `json:"batch_number"`
	BatchDate   string                 `json:"batch_date"`
	Status      string                 `json:"status"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty"`
	TotalOrders int                    `json:"total_orders"`
	Succeeded   int                    `json:"succeeded"`
	Failed      int                    `json:"failed"`
	Failures    []BatchFailureResponse `json:"failures,omitempty"`
}

// BatchFailureResponse is a per-order failure in a batch run
type BatchFailureResponse struct {
	OrderID  string `json:"order_id"`
	OrderRef string `json:"order_ref"`
	Stage    string `json:"stage"`
	Reason   string `json:"reason"`
}

func toBatchRunResponse(run *fulfillment.BatchRun) BatchRunResponse {
	resp := BatchRunResponse{
		ID:          run.ID.String(),
		BatchNumber: run.BatchNumber,
		BatchDate:   run.BatchDate,
		Status:      string(run.Status),
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
		TotalOrders: run.TotalOrders,
		Succeeded:   run.Succeeded,
		Failed:      run.Failed,
	}
	for _, f := range run.Failures {
		resp.Failures = append(resp.Failures, BatchFailureResponse{
			OrderID:  f.OrderID.String(),
			OrderRef: f.OrderRef,
			Stage:    f.Stage,
			Reason:   f.Reason,
		})
	}
	return resp
}

// RunBatchRequest selects which daily batch to run
type RunBatchRequest struct {
	BatchNumber int `json:"batch_number" binding:"required,oneof=1 2"`
}

// Run triggers an invoice batch run manually
func (h *BatchHandler) Run(c *gin.Context) {
	var req RunBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	run, err := h.processor.Run(c.Request.Context(), req.BatchNumber)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toBatchRunResponse(run))
}

// List returns recorded batch runs, newest first
func (h *BatchHandler) List(c *gin.Context) {
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
	filter.Desc = true

	page, err := h.runs.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]BatchRunResponse, 0, len(page.Items))
	for _, run := range page.Items {
		out = append(out, toBatchRunResponse(run))
	}
	h.SuccessWithMeta(c, out, page.Total, filter.Limit, filter.Offset)
}

// Get returns a single batch run with its failure details
func (h *BatchHandler) Get(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid batch run id")
		return
	}
	run, err := h.runs.FindByID(c.Request.Context(), runID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toBatchRunResponse(run))
}
