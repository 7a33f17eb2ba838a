package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/fulfillment"
)

// BatchRunModel is the persistence model for a BatchRun record.
type BatchRunModel struct {
	BaseModel
	BatchNumber int                        `gorm:"not null;index:idx_batch_runs_date_number,priority:2"`
	BatchDate   string                     `gorm:"type:varchar(10);not null;index:idx_batch_runs_date_number,priority:1"`
	Status      fulfillment.BatchRunStatus `gorm:"type:varchar(30);not null"`
	StartedAt   time.Time                  `gorm:"not null"`
	FinishedAt  *time.Time
	TotalOrders int                 `gorm:"not null;default:0"`
	Succeeded   int                 `gorm:"not null;default:0"`
	Failed      int                 `gorm:"not null;default:0"`
	Failures    []BatchFailureModel `gorm:"foreignKey:BatchRunID;references:ID"`
}

// TableName returns the table name for GORM
func (BatchRunModel) TableName() string {
	return "batch_runs"
}

// ToDomain converts the persistence model to a domain BatchRun.
func (m *BatchRunModel) ToDomain() *fulfillment.BatchRun {
	run := &fulfillment.BatchRun{
		BaseEntity:  m.BaseModel.ToDomain(),
		BatchNumber: m.BatchNumber,
		BatchDate:   m.BatchDate,
		Status:      m.Status,
		StartedAt:   m.StartedAt,
		FinishedAt:  m.FinishedAt,
		TotalOrders: m.TotalOrders,
		Succeeded:   m.Succeeded,
		Failed:      m.Failed,
		Failures:    make([]fulfillment.BatchFailure, len(m.Failures)),
	}
	for i, f := range m.Failures {
		run.Failures[i] = fulfillment.BatchFailure{
			OrderID:  f.OrderID,
			OrderRef: f.OrderRef,
			Stage:    f.Stage,
			Reason:   f.Reason,
			FailedAt: f.FailedAt,
		}
	}
	return run
}

// FromDomain populates the persistence model from a domain BatchRun.
func (m *BatchRunModel) FromDomain(r *fulfillment.BatchRun) {
	m.FromDomainBaseEntity(r.BaseEntity)
	m.BatchNumber = r.BatchNumber
	m.BatchDate = r.BatchDate
	m.Status = r.Status
	m.StartedAt = r.StartedAt
	m.FinishedAt = r.FinishedAt
	m.TotalOrders = r.TotalOrders
	m.Succeeded = r.Succeeded
	m.Failed = r.Failed
	m.Failures = make([]BatchFailureModel, len(r.Failures))
	for i, f := range r.Failures {
		m.Failures[i] = BatchFailureModel{
			ID:         uuid.New(),
			BatchRunID: r.ID,
			OrderID:    f.OrderID,
			OrderRef:   f.OrderRef,
			Stage:      f.Stage,
			Reason:     f.Reason,
			FailedAt:   f.FailedAt,
		}
	}
}

// BatchRunModelFromDomain creates a new persistence model from a domain BatchRun.
func BatchRunModelFromDomain(r *fulfillment.BatchRun) *BatchRunModel {
	m := &BatchRunModel{}
	m.FromDomain(r)
	return m
}

// BatchFailureModel records one failed order within a batch run.
type BatchFailureModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	BatchRunID uuid.UUID `gorm:"type:uuid;not null;index"`
	OrderID    uuid.UUID `gorm:"type:uuid;not null"`
	OrderRef   string    `gorm:"type:varchar(120);not null"`
	Stage      string    `gorm:"type:varchar(50);not null"`
	Reason     string    `gorm:"type:varchar(500)"`
	FailedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BatchFailureModel) TableName() string {
	return "batch_run_failures"
}

// SyncCursorModel stores the per-channel ingestion position.
type SyncCursorModel struct {
	Channel   channel.Code `gorm:"type:varchar(20);primary_key"`
	Cursor    string       `gorm:"type:varchar(200);not null"`
	SyncedAt  time.Time    `gorm:"not null"`
	UpdatedAt time.Time    `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncCursorModel) TableName() string {
	return "sync_cursors"
}
