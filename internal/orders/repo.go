package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/scentmarket-backend/internal/repo"
	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"
	"github.com/angelmondragon/scentmarket-backend/pkg/enums"
)

type repository struct {
	repo.Base
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.With(tx)}
}

// Create inserts the order together with its items. Items are numbered in
// slice order, which is the order reads return them in.
func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Status == "" {
		order.Status = enums.OrderStatusProcessing
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
		order.Items[i].LineNo = i + 1
	}
	if err := r.DB(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func itemsInLineOrder(db *gorm.DB) *gorm.DB {
	return db.Order("line_no ASC, id ASC")
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).
		Preload("Items", itemsInLineOrder).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LockByID loads the order row FOR UPDATE; only meaningful on a tx-bound repository.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.Locked(ctx).
		Where("id = ?", id).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, query ListQuery) ([]models.Order, error) {
	q := r.DB(ctx).
		Model(&models.Order{}).
		Preload("Items", itemsInLineOrder).
		Where("user_id = ?", userID)
	if query.Cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", query.Cursor.CreatedAt, query.Cursor.CreatedAt, query.Cursor.ID)
	}

	var rows []models.Order
	if err := q.Order("created_at DESC").Order("id DESC").Limit(query.Limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListAll(ctx context.Context, filters AdminFilters, query ListQuery) ([]AdminOrderSummary, error) {
	q := r.DB(ctx).
		Table("orders AS o").
		Select(`o.id, o.user_id, u.username AS customer_name, o.total, o.status, o.created_at,
			(SELECT COALESCE(SUM(oi.quantity), 0) FROM order_items oi WHERE oi.order_id = o.id) AS total_items`).
		Joins("JOIN users u ON u.id = o.user_id")
	if filters.Status != nil {
		q = q.Where("o.status = ?", *filters.Status)
	}
	if query.Cursor != nil {
		q = q.Where("(o.created_at < ?) OR (o.created_at = ? AND o.id < ?)", query.Cursor.CreatedAt, query.Cursor.CreatedAt, query.Cursor.ID)
	}

	var rows []AdminOrderSummary
	if err := q.Order("o.created_at DESC").Order("o.id DESC").Limit(query.Limit).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error {
	res := r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type statusCount struct {
	Status enums.OrderStatus
	Count  int64
}

type salesTotals struct {
	OrderCount int64
	Revenue    decimal.Decimal
}

// SalesSummary reports revenue and units across every order that was not
// cancelled. A non-nil since limits every figure to orders created at or after it.
func (r *repository) SalesSummary(ctx context.Context, since *time.Time) (*SalesSummary, error) {
	db := r.DB(ctx)

	var totals salesTotals
	if err := db.Model(&models.Order{}).
		Scopes(notCancelled("orders"), createdSince("orders", since)).
		Select("COUNT(*) AS order_count, COALESCE(SUM(total), 0) AS revenue").
		Scan(&totals).Error; err != nil {
		return nil, err
	}

	var units int64
	if err := soldLines(db).
		Scopes(notCancelled("o"), createdSince("o", since)).
		Select("COALESCE(SUM(oi.quantity), 0)").
		Scan(&units).Error; err != nil {
		return nil, err
	}

	var counts []statusCount
	if err := db.Model(&models.Order{}).
		Scopes(createdSince("orders", since)).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&counts).Error; err != nil {
		return nil, err
	}

	var brands []BrandSales
	if err := soldLines(db).
		Joins("LEFT JOIN product_variants pv ON pv.id = oi.variant_id").
		Joins("LEFT JOIN products p ON p.id = pv.product_id").
		Scopes(notCancelled("o"), createdSince("o", since)).
		Select("COALESCE(p.brand, '') AS brand, SUM(oi.quantity) AS units_sold, COALESCE(SUM(oi.price_at_purchase * oi.quantity), 0) AS revenue").
		Group("COALESCE(p.brand, '')").
		Order("units_sold DESC, revenue DESC, brand ASC").
		Scan(&brands).Error; err != nil {
		return nil, err
	}

	summary := &SalesSummary{
		OrderCount: totals.OrderCount,
		Revenue:    totals.Revenue.Round(2),
		UnitsSold:  units,
		ByStatus:   make(map[enums.OrderStatus]int64, len(counts)),
		Brands:     make([]BrandSales, 0, len(brands)),
	}
	for _, c := range counts {
		summary.ByStatus[c.Status] = c.Count
	}
	for _, b := range brands {
		b.Revenue = b.Revenue.Round(2)
		summary.Brands = append(summary.Brands, b)
	}
	return summary, nil
}

func soldLines(db *gorm.DB) *gorm.DB {
	return db.Table("order_items oi").Joins("JOIN orders o ON o.id = oi.order_id")
}

func notCancelled(table string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(table+".status <> ?", enums.OrderStatusCancelled)
	}
}

func createdSince(table string, since *time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if since == nil {
			return db
		}
		return db.Where(table+".created_at >= ?", since.UTC())
	}
}
