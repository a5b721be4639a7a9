package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the catalog entry; sellable units are its variants.
type Product struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Name        string           `gorm:"column:name;type:text;not null"`
	Brand       string           `gorm:"column:brand;type:text;not null;default:''"`
	Description *string          `gorm:"column:description;type:text"`
	IsActive    bool             `gorm:"column:is_active;not null;default:true"`
	Variants    []ProductVariant `gorm:"foreignKey:ProductID;references:ID"`
	Images      []ProductImage   `gorm:"foreignKey:ProductID;references:ID"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

// ProductImage orders gallery images; the lowest display_order is primary.
type ProductImage struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	URL          string    `gorm:"column:url;type:text;not null"`
	DisplayOrder int       `gorm:"column:display_order;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ProductImage) TableName() string { return "product_images" }
