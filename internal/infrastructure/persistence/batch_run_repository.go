package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/fulfillment"
	"github.com/shopflow/backend/internal/domain/shared"
	"github.com/shopflow/backend/internal/infrastructure/persistence/models"
)

// GormBatchRunRepository implements fulfillment.BatchRunRepository using GORM
type GormBatchRunRepository struct {
	db *gorm.DB
}

var _ fulfillment.BatchRunRepository = (*GormBatchRunRepository)(nil)

// NewGormBatchRunRepository creates a new GormBatchRunRepository
func NewGormBatchRunRepository(db *gorm.DB) *GormBatchRunRepository {
	return &GormBatchRunRepository{db: db}
}

// Save inserts a new batch run. A slot may be run more than once, so
// the same (date, number) pair can appear on several rows.
func (r *GormBatchRunRepository) Save(ctx context.Context, run *fulfillment.BatchRun) error {
	if err := r.db.WithContext(ctx).Create(models.BatchRunModelFromDomain(run)).Error; err != nil {
		if isDuplicateKey(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Update persists changes to an existing run. Failure rows are replaced.
func (r *GormBatchRunRepository) Update(ctx context.Context, run *fulfillment.BatchRun) error {
	model := models.BatchRunModelFromDomain(run)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("batch_run_id = ?", run.ID).Delete(&models.BatchFailureModel{}).Error; err != nil {
			return err
		}
		return tx.Save(model).Error
	})
}

// FindByID finds a batch run by its ID
func (r *GormBatchRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.BatchRun, error) {
	var model models.BatchRunModel
	if err := r.db.WithContext(ctx).
		Preload("Failures").
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByBatch returns the most recent run for a (date, number) pair
func (r *GormBatchRunRepository) FindByBatch(ctx context.Context, batchDate string, batchNumber int) (*fulfillment.BatchRun, error) {
	var model models.BatchRunModel
	if err := r.db.WithContext(ctx).
		Preload("Failures").
		Where("batch_date = ? AND batch_number = ?", batchDate, batchNumber).
		Order("started_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns batch runs matching the filter with a total count
func (r *GormBatchRunRepository) List(ctx context.Context, filter shared.Filter) (shared.Page[*fulfillment.BatchRun], error) {
	f := filter.Normalize()
	query := r.db.WithContext(ctx).Model(&models.BatchRunModel{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return shared.Page[*fulfillment.BatchRun]{}, err
	}

	order := f.OrderBy
	if f.Desc {
		order += " DESC"
	}
	var rows []models.BatchRunModel
	if err := query.Preload("Failures").Order(order).Limit(f.Limit).Offset(f.Offset).Find(&rows).Error; err != nil {
		return shared.Page[*fulfillment.BatchRun]{}, err
	}

	page := shared.Page[*fulfillment.BatchRun]{Total: total, Items: make([]*fulfillment.BatchRun, len(rows))}
	for i := range rows {
		page.Items[i] = rows[i].ToDomain()
	}
	return page, nil
}

// GormCursorRepository implements fulfillment.CursorRepository using GORM
type GormCursorRepository struct {
	db *gorm.DB
}

var _ fulfillment.CursorRepository = (*GormCursorRepository)(nil)

// NewGormCursorRepository creates a new GormCursorRepository
func NewGormCursorRepository(db *gorm.DB) *GormCursorRepository {
	return &GormCursorRepository{db: db}
}

// Get returns the stored cursor for a channel. A missing row yields an
// empty cursor, not an error.
func (r *GormCursorRepository) Get(ctx context.Context, code channel.Code) (*fulfillment.SyncCursor, error) {
	var model models.SyncCursorModel
	if err := r.db.WithContext(ctx).First(&model, "channel = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &fulfillment.SyncCursor{Channel: code}, nil
		}
		return nil, err
	}
	return &fulfillment.SyncCursor{
		Channel:  model.Channel,
		Cursor:   model.Cursor,
		SyncedAt: model.SyncedAt,
	}, nil
}

// Put upserts the cursor for a channel
func (r *GormCursorRepository) Put(ctx context.Context, cursor *fulfillment.SyncCursor) error {
	model := models.SyncCursorModel{
		Channel:   cursor.Channel,
		Cursor:    cursor.Cursor,
		SyncedAt:  cursor.SyncedAt,
		UpdatedAt: time.Now(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel"}},
		DoUpdates: clause.AssignmentColumns([]string{"cursor", "synced_at", "updated_at"}),
	}).Create(&model).Error
}
