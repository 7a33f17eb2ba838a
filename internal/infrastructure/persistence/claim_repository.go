package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/fulfillment"
	"github.com/shopflow/backend/internal/domain/shared"
	"github.com/shopflow/backend/internal/infrastructure/persistence/models"
)

// GormClaimRepository implements fulfillment.ClaimRepository using GORM
type GormClaimRepository struct {
	db *gorm.DB
}

var _ fulfillment.ClaimRepository = (*GormClaimRepository)(nil)

// NewGormClaimRepository creates a new GormClaimRepository
func NewGormClaimRepository(db *gorm.DB) *GormClaimRepository {
	return &GormClaimRepository{db: db}
}

// Save inserts a new claim
func (r *GormClaimRepository) Save(ctx context.Context, claim *fulfillment.Claim) error {
	if err := r.db.WithContext(ctx).Create(models.ClaimModelFromDomain(claim)).Error; err != nil {
		if isDuplicateKey(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Update persists changes to an existing claim
func (r *GormClaimRepository) Update(ctx context.Context, claim *fulfillment.Claim) error {
	return r.db.WithContext(ctx).Save(models.ClaimModelFromDomain(claim)).Error
}

// FindByChannelClaimID finds a claim by its channel identity
func (r *GormClaimRepository) FindByChannelClaimID(ctx context.Context, code channel.Code, channelClaimID string) (*fulfillment.Claim, error) {
	var model models.ClaimModel
	if err := r.db.WithContext(ctx).
		Where("channel = ? AND channel_claim_id = ?", code, channelClaimID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListByOrder returns all claims against an order
func (r *GormClaimRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*fulfillment.Claim, error) {
	var rows []models.ClaimModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("requested_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*fulfillment.Claim, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// List returns claims matching the filter with a total count
func (r *GormClaimRepository) List(ctx context.Context, filter shared.Filter) (shared.Page[*fulfillment.Claim], error) {
	f := filter.Normalize()
	query := r.db.WithContext(ctx).Model(&models.ClaimModel{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return shared.Page[*fulfillment.Claim]{}, err
	}

	order := f.OrderBy
	if f.Desc {
		order += " DESC"
	}
	var rows []models.ClaimModel
	if err := query.Order(order).Limit(f.Limit).Offset(f.Offset).Find(&rows).Error; err != nil {
		return shared.Page[*fulfillment.Claim]{}, err
	}

	page := shared.Page[*fulfillment.Claim]{Total: total, Items: make([]*fulfillment.Claim, len(rows))}
	for i := range rows {
		page.Items[i] = rows[i].ToDomain()
	}
	return page, nil
}

// HasOpenClaim reports whether any claim still blocks the order
func (r *GormClaimRepository) HasOpenClaim(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ClaimModel{}).
		Where("order_id = ? AND status IN ?", orderID,
			[]fulfillment.ClaimStatus{fulfillment.ClaimRequested, fulfillment.ClaimApproved}).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
