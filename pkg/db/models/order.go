package models

import (
	"time"

	"github.com/angelmondragon/scentmarket-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the durable record of a completed checkout.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Total           decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	ShippingAddress string            `gorm:"column:shipping_address;type:text;not null"`
	PaymentIntentID *string           `gorm:"column:payment_intent_id;type:text"`
	Status          enums.OrderStatus `gorm:"column:status;type:text;not null;default:'Processing'"`
	Items           []OrderItem       `gorm:"foreignKey:OrderID;references:ID"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

// OrderItem freezes price and label as they were when the order was placed.
type OrderItem struct {
	ID                     uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID                uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	VariantID              uuid.UUID       `gorm:"column:variant_id;type:uuid;not null"`
	Quantity               int             `gorm:"column:quantity;not null"`
	PriceAtPurchase        decimal.Decimal `gorm:"column:price_at_purchase;type:numeric(12,2);not null"`
	ProductLabelAtPurchase string          `gorm:"column:product_label_at_purchase;type:text;not null"`
	// LineNo is the 1-based position of the line in the cart at checkout.
	LineNo    int       `gorm:"column:line_no;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (OrderItem) TableName() string { return "order_items" }

// LineTotal returns price × quantity without rounding.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
