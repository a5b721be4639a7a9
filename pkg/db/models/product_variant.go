package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductVariant is a purchasable size of a product with its own price and stock.
type ProductVariant struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	SizeML    int             `gorm:"column:size_ml;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Stock     int             `gorm:"column:stock;not null;default:0;check:stock >= 0"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (ProductVariant) TableName() string { return "product_variants" }

// VariantLabel renders the human readable "<name> (<size>ml)" label.
func VariantLabel(productName string, sizeML int) string {
	return fmt.Sprintf("%s (%dml)", productName, sizeML)
}
