package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopflow/backend/internal/domain/catalog"
	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/shared"
	"github.com/shopflow/backend/internal/infrastructure/persistence/models"
)

// GormProductRepository implements catalog.Repository using GORM
type GormProductRepository struct {
	db *gorm.DB
}

var _ catalog.Repository = (*GormProductRepository)(nil)

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// Save inserts a new product with its channel links
func (r *GormProductRepository) Save(ctx context.Context, product *catalog.Product) error {
	model := models.ProductModelFromDomain(product)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Update persists changes to an existing product. Links are replaced.
func (r *GormProductRepository) Update(ctx context.Context, product *catalog.Product) error {
	model := models.ProductModelFromDomain(product)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", product.ID).Delete(&models.ChannelLinkModel{}).Error; err != nil {
			return err
		}
		if err := tx.Save(model).Error; err != nil {
			if isDuplicateKey(err) {
				return shared.ErrAlreadyExists
			}
			return err
		}
		return nil
	})
}

// FindByID finds a product by its ID
func (r *GormProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).
		Preload("Links").
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindBySKU finds a product by its SKU
func (r *GormProductRepository) FindBySKU(ctx context.Context, sku string) (*catalog.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).
		Preload("Links").
		Where("sku = ?", sku).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByChannelLink finds the product mapped to a marketplace listing
func (r *GormProductRepository) FindByChannelLink(ctx context.Context, code channel.Code, remoteItemID string) (*catalog.Product, error) {
	var link models.ChannelLinkModel
	if err := r.db.WithContext(ctx).
		Where("channel = ? AND remote_item_id = ?", code, remoteItemID).
		First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return r.FindByID(ctx, link.ProductID)
}

// List returns products matching the filter with a total count
func (r *GormProductRepository) List(ctx context.Context, filter shared.Filter) (shared.Page[*catalog.Product], error) {
	f := filter.Normalize()
	query := r.db.WithContext(ctx).Model(&models.ProductModel{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return shared.Page[*catalog.Product]{}, err
	}

	order := f.OrderBy
	if f.Desc {
		order += " DESC"
	}
	var rows []models.ProductModel
	if err := query.Preload("Links").
		Order(order).
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&rows).Error; err != nil {
		return shared.Page[*catalog.Product]{}, err
	}

	page := shared.Page[*catalog.Product]{Total: total, Items: make([]*catalog.Product, len(rows))}
	for i := range rows {
		page.Items[i] = rows[i].ToDomain()
	}
	return page, nil
}

// ListLinked returns every product with a listing on the given channel
func (r *GormProductRepository) ListLinked(ctx context.Context, code channel.Code) ([]*catalog.Product, error) {
	var rows []models.ProductModel
	if err := r.db.WithContext(ctx).
		Preload("Links").
		Where("id IN (?)", r.db.Model(&models.ChannelLinkModel{}).
			Select("product_id").
			Where("channel = ?", code)).
		Order("sku ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*catalog.Product, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// SaveMovement inserts a stock movement record
func (r *GormProductRepository) SaveMovement(ctx context.Context, movement *catalog.StockMovement) error {
	return r.db.WithContext(ctx).Create(models.StockMovementModelFromDomain(movement)).Error
}

// ListMovements returns movements for a product, newest first
func (r *GormProductRepository) ListMovements(ctx context.Context, productID uuid.UUID, filter shared.Filter) (shared.Page[*catalog.StockMovement], error) {
	f := filter.Normalize()
	query := r.db.WithContext(ctx).Model(&models.StockMovementModel{}).Where("product_id = ?", productID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return shared.Page[*catalog.StockMovement]{}, err
	}

	order := f.OrderBy
	if f.Desc {
		order += " DESC"
	}
	var rows []models.StockMovementModel
	if err := query.Order(order).Limit(f.Limit).Offset(f.Offset).Find(&rows).Error; err != nil {
		return shared.Page[*catalog.StockMovement]{}, err
	}

	page := shared.Page[*catalog.StockMovement]{Total: total, Items: make([]*catalog.StockMovement, len(rows))}
	for i := range rows {
		page.Items[i] = rows[i].ToDomain()
	}
	return page, nil
}
