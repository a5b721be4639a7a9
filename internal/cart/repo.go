package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/scentmarket-backend/internal/repo"
	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"
)

// Repository exposes persistence operations for carts and their lines.
type Repository struct {
	repo.Base
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	return &Repository{Base: r.Base.With(tx)}
}

// FindOrCreate returns the user's cart, creating it on first access. Creation
// uses ON CONFLICT DO NOTHING so a concurrent first access never aborts the
// surrounding transaction.
func (r *Repository) FindOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	db := r.DB(ctx)
	candidate := models.Cart{ID: uuid.New(), UserID: userID}
	if err := db.
		Omit("Items").
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&candidate).Error; err != nil {
		return nil, err
	}

	var cart models.Cart
	if err := db.Where("user_id = ?", userID).First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddItem inserts a line or, when the variant is already present, adds qty to it.
func (r *Repository) AddItem(ctx context.Context, cartID, variantID uuid.UUID, qty int) (*models.CartItem, error) {
	db := r.DB(ctx)
	item := models.CartItem{
		ID:        uuid.New(),
		CartID:    cartID,
		VariantID: variantID,
		Quantity:  qty,
	}
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cart_id"}, {Name: "variant_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"quantity":   gorm.Expr("cart_items.quantity + excluded.quantity"),
			"updated_at": gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&item).Error
	if err != nil {
		return nil, err
	}
	return r.FindItemByVariant(ctx, cartID, variantID)
}

const contentsQuery = `
SELECT ci.id AS item_id,
       ci.variant_id,
       ci.quantity,
       v.product_id,
       v.size_ml,
       v.price AS unit_price,
       v.stock,
       p.name AS product_name,
       p.brand,
       (SELECT pi.url
          FROM product_images pi
         WHERE pi.product_id = p.id
         ORDER BY pi.display_order ASC
         LIMIT 1) AS image_url
FROM cart_items ci
JOIN product_variants v ON v.id = ci.variant_id
JOIN products p ON p.id = v.product_id
WHERE ci.cart_id = ?
ORDER BY ci.created_at ASC, ci.id ASC
`

type contentsRow struct {
	ItemID      uuid.UUID
	VariantID   uuid.UUID
	Quantity    int
	ProductID   uuid.UUID
	SizeML      int
	UnitPrice   decimal.Decimal
	Stock       int
	ProductName string
	Brand       string
	ImageURL    *string
}

// ListContents returns the cart lines with pricing detail, oldest line first.
func (r *Repository) ListContents(ctx context.Context, cartID uuid.UUID) ([]ItemView, error) {
	var rows []contentsRow
	if err := r.DB(ctx).Raw(contentsQuery, cartID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]ItemView, 0, len(rows))
	for _, row := range rows {
		items = append(items, ItemView{
			ItemID:      row.ItemID,
			VariantID:   row.VariantID,
			ProductID:   row.ProductID,
			ProductName: row.ProductName,
			Brand:       row.Brand,
			SizeML:      row.SizeML,
			UnitPrice:   row.UnitPrice,
			Quantity:    row.Quantity,
			Stock:       row.Stock,
			ImageURL:    row.ImageURL,
			LineTotal:   row.UnitPrice.Mul(decimal.NewFromInt(int64(row.Quantity))),
		})
	}
	return items, nil
}

// FindItem loads a single cart line.
func (r *Repository) FindItem(ctx context.Context, itemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	if err := r.DB(ctx).First(&item, "id = ?", itemID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindItemByVariant loads the line for a variant in the cart.
func (r *Repository) FindItemByVariant(ctx context.Context, cartID, variantID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	if err := r.DB(ctx).
		Where("cart_id = ? AND variant_id = ?", cartID, variantID).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateQuantity sets the line quantity; a quantity of zero or less removes the line.
func (r *Repository) UpdateQuantity(ctx context.Context, itemID uuid.UUID, qty int) error {
	if qty <= 0 {
		return r.RemoveItem(ctx, itemID)
	}
	res := r.DB(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Updates(map[string]any{"quantity": qty})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RemoveItem deletes a single line.
func (r *Repository) RemoveItem(ctx context.Context, itemID uuid.UUID) error {
	res := r.DB(ctx).Where("id = ?", itemID).Delete(&models.CartItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IsOwner reports whether the line belongs to the user's cart.
func (r *Repository) IsOwner(ctx context.Context, itemID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Table("cart_items AS ci").
		Joins("JOIN carts c ON c.id = ci.cart_id").
		Where("ci.id = ? AND c.user_id = ?", itemID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ClearItems deletes every line of the cart. The cart row itself remains.
func (r *Repository) ClearItems(ctx context.Context, cartID uuid.UUID) (int64, error) {
	res := r.DB(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}
