package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"
	"github.com/angelmondragon/scentmarket-backend/pkg/enums"
	"github.com/angelmondragon/scentmarket-backend/pkg/pagination"
)

// ItemDTO is a frozen order line as returned to clients.
type ItemDTO struct {
	ID              uuid.UUID       `json:"id"`
	VariantID       uuid.UUID       `json:"variant_id"`
	ProductLabel    string          `json:"product_label"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
	LineTotal       decimal.Decimal `json:"line_total"`
}

// OrderDetail is the full order view shared by checkout and order reads.
type OrderDetail struct {
	ID              uuid.UUID         `json:"order_id"`
	UserID          uuid.UUID         `json:"user_id"`
	Total           decimal.Decimal   `json:"total"`
	Status          enums.OrderStatus `json:"status"`
	ShippingAddress string            `json:"shipping_address"`
	PaymentIntentID *string           `json:"payment_intent_id"`
	Items           []ItemDTO         `json:"items"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewOrderDetail maps a persisted order (with items loaded) to its API shape.
func NewOrderDetail(order *models.Order) *OrderDetail {
	if order == nil {
		return nil
	}
	items := make([]ItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, ItemDTO{
			ID:              item.ID,
			VariantID:       item.VariantID,
			ProductLabel:    item.ProductLabelAtPurchase,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtPurchase,
			LineTotal:       item.LineTotal(),
		})
	}
	return &OrderDetail{
		ID:              order.ID,
		UserID:          order.UserID,
		Total:           order.Total,
		Status:          order.Status,
		ShippingAddress: order.ShippingAddress,
		PaymentIntentID: order.PaymentIntentID,
		Items:           items,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

// OrderList is a page of a customer's orders.
type OrderList struct {
	Orders     []OrderDetail `json:"orders"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// AdminFilters narrow the admin order listing.
type AdminFilters struct {
	Status *enums.OrderStatus
}

// AdminOrderSummary is one row of the admin order listing.
type AdminOrderSummary struct {
	ID           uuid.UUID         `json:"order_id"`
	UserID       uuid.UUID         `json:"user_id"`
	CustomerName string            `json:"customer_name"`
	Total        decimal.Decimal   `json:"total"`
	Status       enums.OrderStatus `json:"status"`
	TotalItems   int               `json:"total_items"`
	CreatedAt    time.Time         `json:"created_at"`
}

// AdminOrderList is a page of the admin order listing.
type AdminOrderList struct {
	Orders     []AdminOrderSummary `json:"orders"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

// SalesSummary aggregates non-cancelled orders placed within Period.
// Since is nil for the unbounded period.
type SalesSummary struct {
	Period     enums.SalesPeriod           `json:"period"`
	Since      *time.Time                  `json:"since,omitempty"`
	OrderCount int64                       `json:"order_count"`
	Revenue    decimal.Decimal             `json:"revenue"`
	UnitsSold  int64                       `json:"units_sold"`
	ByStatus   map[enums.OrderStatus]int64 `json:"by_status"`
	Brands     []BrandSales                `json:"brands"`
}

// BrandSales is one brand's share of the summary, ranked by units sold.
// Lines whose variant no longer resolves to a product fall under an empty brand.
type BrandSales struct {
	Brand     string          `json:"brand"`
	UnitsSold int64           `json:"units_sold"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// UpdateStatusInput carries an admin status change.
type UpdateStatusInput struct {
	OrderID     uuid.UUID
	Status      enums.OrderStatus
	ActorUserID uuid.UUID
	ActorRole   string
}

// ListQuery is the repository form of a cursor page request. Limit already
// includes the one-row lookahead.
type ListQuery struct {
	Limit  int
	Cursor *pagination.Cursor
}
