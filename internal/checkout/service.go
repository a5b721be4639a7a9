package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/scentmarket-backend/internal/cart"
	"github.com/angelmondragon/scentmarket-backend/internal/orders"
	product "github.com/angelmondragon/scentmarket-backend/internal/products"
	"github.com/angelmondragon/scentmarket-backend/pkg/config"
	dbpkg "github.com/angelmondragon/scentmarket-backend/pkg/db"
	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"
	"github.com/angelmondragon/scentmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/scentmarket-backend/pkg/errors"
	"github.com/angelmondragon/scentmarket-backend/pkg/logger"
	"github.com/angelmondragon/scentmarket-backend/pkg/metrics"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service converts a user's cart into an order.
type Service interface {
	Execute(ctx context.Context, input Input) (*Result, error)
}

// Input is what the caller supplies for a checkout.
type Input struct {
	UserID          uuid.UUID
	ShippingAddress string
	PaymentIntentID *string
}

// Result carries the committed order.
type Result struct {
	Order *orders.OrderDetail
}

// ServiceParams groups the checkout dependencies. Metrics and Logger are optional.
type ServiceParams struct {
	Tx       txRunner
	Users    userFinder
	Carts    cart.CartRepository
	Variants product.VariantRepository
	Orders   orders.Repository
	Outbox   outboxPublisher
	Metrics  *metrics.CheckoutMetrics
	Logger   *logger.Logger
	Config   config.CheckoutConfig
}

type service struct {
	tx       txRunner
	users    userFinder
	carts    cart.CartRepository
	variants product.VariantRepository
	orders   orders.Repository
	outbox   outboxPublisher
	metrics  *metrics.CheckoutMetrics
	logg     *logger.Logger
	cfg      config.CheckoutConfig
}

// NewService builds the checkout engine.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user finder required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Variants == nil {
		return nil, fmt.Errorf("variant repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:       params.Tx,
		users:    params.Users,
		carts:    params.Carts,
		variants: params.Variants,
		orders:   params.Orders,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     logg,
		cfg:      params.Config,
	}, nil
}

// lockedLine is a cart line after its variant row has been locked.
type lockedLine struct {
	variantID uuid.UUID
	quantity  int
	price     decimal.Decimal
	label     string
}

func (s *service) Execute(ctx context.Context, input Input) (*Result, error) {
	started := time.Now()
	result, err := s.execute(ctx, input)
	err = settled(err)
	s.metrics.Observe(outcomeOf(err), time.Since(started))
	if err != nil {
		s.logFailure(ctx, input.UserID, err)
		return nil, toAPIError(err)
	}
	return result, nil
}

func (s *service) execute(ctx context.Context, input Input) (*Result, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	address := strings.TrimSpace(input.ShippingAddress)
	if address == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}
	paymentIntentID := input.PaymentIntentID
	if paymentIntentID != nil && strings.TrimSpace(*paymentIntentID) == "" {
		paymentIntentID = nil
	}

	user, err := s.users.FindByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, persistenceFailure("load user", err)
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}

	var (
		created   *models.Order
		unitsSold int
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := dbpkg.SetLocalLockTimeout(tx, s.cfg.LockTimeout); err != nil {
			return persistenceFailure("set lock timeout", err)
		}

		carts := s.carts.WithTx(tx)
		variants := s.variants.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)

		record, err := carts.FindOrCreate(ctx, user.ID)
		if err != nil {
			return persistenceFailure("load cart", err)
		}
		contents, err := carts.ListContents(ctx, record.ID)
		if err != nil {
			return persistenceFailure("read cart contents", err)
		}
		if len(contents) == 0 {
			return ErrEmptyCart
		}
		if s.cfg.MaxLineItems > 0 && len(contents) > s.cfg.MaxLineItems {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart has too many lines").
				WithDetails(map[string]any{"max_line_items": s.cfg.MaxLineItems, "lines": len(contents)})
		}

		lines, err := lockLines(ctx, variants, contents)
		if err != nil {
			return err
		}

		total := decimal.Zero
		order := &models.Order{
			ID:              uuid.New(),
			UserID:          user.ID,
			ShippingAddress: input.ShippingAddress,
			PaymentIntentID: paymentIntentID,
			Status:          enums.OrderStatusProcessing,
			Items:           make([]models.OrderItem, 0, len(lines)),
		}
		eventLines := make([]payloads.OrderLine, 0, len(lines))
		units := 0
		for _, line := range lines {
			total = total.Add(line.price.Mul(decimal.NewFromInt(int64(line.quantity))))
			units += line.quantity
			order.Items = append(order.Items, models.OrderItem{
				ID:                     uuid.New(),
				VariantID:              line.variantID,
				Quantity:               line.quantity,
				PriceAtPurchase:        line.price,
				ProductLabelAtPurchase: line.label,
			})
			eventLines = append(eventLines, payloads.OrderLine{
				VariantID:    line.variantID,
				Quantity:     line.quantity,
				UnitPrice:    line.price,
				ProductLabel: line.label,
			})
		}
		order.Total = total.Round(2)

		saved, err := ordersRepo.Create(ctx, order)
		if err != nil {
			return persistenceFailure("insert order", err)
		}

		for _, line := range lines {
			if err := variants.DecrementStock(ctx, line.variantID, line.quantity); err != nil {
				return persistenceFailure("decrement stock", err)
			}
		}

		if _, err := carts.ClearItems(ctx, record.ID); err != nil {
			return persistenceFailure("clear cart", err)
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   saved.ID,
			Actor:         &outbox.ActorRef{UserID: user.ID, Role: string(user.Role)},
			Data: payloads.OrderCreatedEvent{
				OrderID:   saved.ID,
				UserID:    user.ID,
				Total:     saved.Total,
				ItemCount: units,
				Lines:     eventLines,
			},
			Version: 1,
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return persistenceFailure("emit order_created", err)
		}

		created = saved
		unitsSold = units
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AddUnitsSold(unitsSold)
	logCtx := s.logg.WithOrderID(ctx, created.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"user_id":    created.UserID.String(),
		"total":      created.Total.StringFixed(2),
		"line_count": len(created.Items),
		"units":      unitsSold,
	})
	s.logg.Info(logCtx, "checkout completed")

	return &Result{Order: orders.NewOrderDetail(created)}, nil
}

// lockLines locks every variant row in cart-contents order and verifies stock
// against the locked values. The first shortfall aborts the checkout.
func lockLines(ctx context.Context, variants product.VariantRepository, contents []cart.ItemView) ([]lockedLine, error) {
	lines := make([]lockedLine, 0, len(contents))
	for _, item := range contents {
		variant, err := variants.LockVariant(ctx, item.VariantID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, &InsufficientStockError{
					ProductLabel: item.Label(),
					VariantID:    item.VariantID,
					Requested:    item.Quantity,
					Available:    0,
				}
			}
			return nil, persistenceFailure("lock variant", err)
		}
		label := models.VariantLabel(item.ProductName, variant.SizeML)
		if variant.Stock < item.Quantity {
			return nil, &InsufficientStockError{
				ProductLabel: label,
				VariantID:    variant.ID,
				Requested:    item.Quantity,
				Available:    variant.Stock,
			}
		}
		lines = append(lines, lockedLine{
			variantID: variant.ID,
			quantity:  item.Quantity,
			price:     variant.Price,
			label:     label,
		})
	}
	return lines, nil
}

func (s *service) logFailure(ctx context.Context, userID uuid.UUID, err error) {
	if userID != uuid.Nil {
		ctx = s.logg.WithUserID(ctx, userID.String())
	}
	ctx = s.logg.WithField(ctx, "outcome", outcomeOf(err))

	var persistErr *PersistenceError
	if errors.As(err, &persistErr) {
		ctx = s.logg.WithFields(ctx, map[string]any{"op": persistErr.Op, "kind": persistErr.Kind})
		s.logg.Error(ctx, "checkout persistence failure", err)
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "checkout rejected")
}
