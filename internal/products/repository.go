package product

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"

	"github.com/angelmondragon/scentmarket-backend/internal/repo"
)

// ErrStockUnderflow is returned when a guarded decrement would drive stock negative.
var ErrStockUnderflow = errors.New("stock decrement would go negative")

// VariantRepository is the catalog surface used by cart and checkout.
type VariantRepository interface {
	WithTx(tx *gorm.DB) VariantRepository
	FindVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error)
	ListVariants(ctx context.Context, productID uuid.UUID) ([]models.ProductVariant, error)
	LockVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error)
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) error
}

// Repository wraps product and variant persistence.
type Repository struct {
	repo.Base
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) VariantRepository {
	return &Repository{Base: r.Base.With(tx)}
}

// FindProduct loads a product with variants (smallest size first) and images
// (display order).
func (r *Repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.DB(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB {
			return db.Order("size_ml ASC")
		}).
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order ASC")
		}).
		First(&product, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindVariant performs a plain (non-locking) read.
func (r *Repository) FindVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.DB(ctx).First(&variant, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

// ListVariants returns a product's variants ordered by size.
func (r *Repository) ListVariants(ctx context.Context, productID uuid.UUID) ([]models.ProductVariant, error) {
	var rows []models.ProductVariant
	if err := r.DB(ctx).
		Where("product_id = ?", productID).
		Order("size_ml ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// LockVariant reads the variant with SELECT ... FOR UPDATE. The lock is held
// until the surrounding transaction ends, so callers must use a tx-bound repository.
func (r *Repository) LockVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.Locked(ctx).
		Where("id = ?", id).
		First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

// DecrementStock subtracts qty only while enough stock remains.
func (r *Repository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	if qty <= 0 {
		return errors.New("decrement quantity must be positive")
	}
	res := r.DB(ctx).
		Model(&models.ProductVariant{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStockUnderflow
	}
	return nil
}
