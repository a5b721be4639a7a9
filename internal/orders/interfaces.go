package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"
	"github.com/angelmondragon/scentmarket-backend/pkg/enums"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, query ListQuery) ([]models.Order, error)
	ListAll(ctx context.Context, filters AdminFilters, query ListQuery) ([]AdminOrderSummary, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus) error
	SalesSummary(ctx context.Context, since *time.Time) (*SalesSummary, error)
}
