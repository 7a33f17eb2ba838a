package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/fulfillment"
	"github.com/shopflow/backend/internal/domain/shared"
	"github.com/shopflow/backend/internal/infrastructure/persistence/models"
)

// GormOrderRepository implements fulfillment.OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

var _ fulfillment.OrderRepository = (*GormOrderRepository)(nil)

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Save inserts a new order with its items
func (r *GormOrderRepository) Save(ctx context.Context, order *fulfillment.Order) error {
	model := models.OrderModelFromDomain(order)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Update persists changes to an existing order. Items are replaced.
func (r *GormOrderRepository) Update(ctx context.Context, order *fulfillment.Order) error {
	model := models.OrderModelFromDomain(order)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderItemModel{}).Error; err != nil {
			return err
		}
		return tx.Save(model).Error
	})
}

// FindByID finds an order by its ID
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Order, error) {
	var model models.OrderModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByChannelOrderID finds an order by its channel identity
func (r *GormOrderRepository) FindByChannelOrderID(ctx context.Context, code channel.Code, channelOrderID string) (*fulfillment.Order, error) {
	var model models.OrderModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("channel = ? AND channel_order_id = ?", code, channelOrderID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns orders matching the filter with a total count
func (r *GormOrderRepository) List(ctx context.Context, filter fulfillment.OrderFilter) (shared.Page[*fulfillment.Order], error) {
	f := filter.Normalize()
	query := r.db.WithContext(ctx).Model(&models.OrderModel{})
	if filter.Channel != "" {
		query = query.Where("channel = ?", filter.Channel)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return shared.Page[*fulfillment.Order]{}, err
	}

	order := f.OrderBy
	if f.Desc {
		order += " DESC"
	}
	var rows []models.OrderModel
	if err := query.Preload("Items").
		Order(order).
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&rows).Error; err != nil {
		return shared.Page[*fulfillment.Order]{}, err
	}

	page := shared.Page[*fulfillment.Order]{Total: total, Items: make([]*fulfillment.Order, len(rows))}
	for i := range rows {
		page.Items[i] = rows[i].ToDomain()
	}
	return page, nil
}

// ListBatchable returns orders in the given status with no open claim,
// oldest first
func (r *GormOrderRepository) ListBatchable(ctx context.Context, status fulfillment.OrderStatus) ([]*fulfillment.Order, error) {
	var rows []models.OrderModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("status = ?", status).
		Where("id NOT IN (?)", r.db.Model(&models.ClaimModel{}).
			Select("order_id").
			Where("status IN ?", []fulfillment.ClaimStatus{fulfillment.ClaimRequested, fulfillment.ClaimApproved})).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*fulfillment.Order, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// isDuplicateKey recognizes unique constraint violations across the
// postgres and sqlite drivers
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}
