package fulfillment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shopflow/backend/internal/domain/shared"
)

// BatchRunStatus is the outcome of an invoice batch run
type BatchRunStatus string

const (
	BatchRunning             BatchRunStatus = "running"
	BatchCompleted           BatchRunStatus = "completed"
	BatchCompletedWithErrors BatchRunStatus = "completed_with_errors"
)

// BatchRun records one execution of the invoice batch
type BatchRun struct {
	shared.BaseEntity
	BatchNumber int
	BatchDate   string
	Status      BatchRunStatus
	StartedAt   time.Time
	FinishedAt  *time.Time
	TotalOrders int
	Succeeded   int
	Failed      int
	Failures    []BatchFailure
}

// BatchFailure records a single order that the batch could not process
type BatchFailure struct {
	OrderID  uuid.UUID
	OrderRef string
	Stage    string
	Reason   string
	FailedAt time.Time
}

// StartBatchRun opens a batch run record in running state
func StartBatchRun(batchNumber int, batchDate string, now time.Time) (*BatchRun, error) {
	if batchNumber != 1 && batchNumber != 2 {
		return nil, fmt.Errorf("%w: batch number must be 1 or 2", shared.ErrInvalidInput)
	}
	if batchDate == "" {
		return nil, fmt.Errorf("%w: batch date is required", shared.ErrInvalidInput)
	}
	return &BatchRun{
		BaseEntity:  shared.NewBaseEntity(),
		BatchNumber: batchNumber,
		BatchDate:   batchDate,
		Status:      BatchRunning,
		StartedAt:   now,
	}, nil
}

// RecordFailure adds a per-order failure to the run
func (b *BatchRun) RecordFailure(orderID uuid.UUID, orderRef, stage, reason string, at time.Time) {
	b.Failed++
	b.Failures = append(b.Failures, BatchFailure{
		OrderID:  orderID,
		OrderRef: orderRef,
		Stage:    stage,
		Reason:   reason,
		FailedAt: at,
	})
	b.Touch()
}

// RecordSuccess counts one successfully processed order
func (b *BatchRun) RecordSuccess() {
	b.Succeeded++
	b.Touch()
}

// Finish closes the run. The status reflects whether any order failed.
func (b *BatchRun) Finish(now time.Time) {
	b.FinishedAt = &now
	if b.Failed > 0 {
		b.Status = BatchCompletedWithErrors
	} else {
		b.Status = BatchCompleted
	}
	b.Touch()
}
