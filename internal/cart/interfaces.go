package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"
)

// CartRepository defines the persistence surface required by the cart service
// and the checkout engine.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	AddItem(ctx context.Context, cartID, variantID uuid.UUID, qty int) (*models.CartItem, error)
	ListContents(ctx context.Context, cartID uuid.UUID) ([]ItemView, error)
	FindItem(ctx context.Context, itemID uuid.UUID) (*models.CartItem, error)
	FindItemByVariant(ctx context.Context, cartID, variantID uuid.UUID) (*models.CartItem, error)
	UpdateQuantity(ctx context.Context, itemID uuid.UUID, qty int) error
	RemoveItem(ctx context.Context, itemID uuid.UUID) error
	IsOwner(ctx context.Context, itemID, userID uuid.UUID) (bool, error)
	ClearItems(ctx context.Context, cartID uuid.UUID) (int64, error)
}
