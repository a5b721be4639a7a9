package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"
	"github.com/angelmondragon/scentmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/scentmarket-backend/pkg/errors"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/scentmarket-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines customer and admin order operations.
type Service interface {
	ListUserOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	GetUserOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDetail, error)
	ListAllOrders(ctx context.Context, params pagination.Params, filters AdminFilters) (*AdminOrderList, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*OrderDetail, error)
	SalesSummary(ctx context.Context, period enums.SalesPeriod) (*SalesSummary, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	now    func() time.Time
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: outbox, now: time.Now}, nil
}

func (s *service) ListUserOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	query, limit, err := buildListQuery(params)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.ListByUser(ctx, userID, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	rows, nextCursor := pagination.Trim(rows, limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})

	orders := make([]OrderDetail, 0, len(rows))
	for i := range rows {
		orders = append(orders, *NewOrderDetail(&rows[i]))
	}
	return &OrderList{Orders: orders, NextCursor: nextCursor}, nil
}

func (s *service) GetUserOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDetail, error) {
	if userID == uuid.Nil || orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and order id are required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	// Another customer's order is reported as missing rather than forbidden.
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return NewOrderDetail(order), nil
}

func (s *service) ListAllOrders(ctx context.Context, params pagination.Params, filters AdminFilters) (*AdminOrderList, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status filter")
	}
	query, limit, err := buildListQuery(params)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.ListAll(ctx, filters, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list all orders")
	}

	rows, nextCursor := pagination.Trim(rows, limit, func(o AdminOrderSummary) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	if rows == nil {
		rows = []AdminOrderSummary{}
	}
	return &AdminOrderList{Orders: rows, NextCursor: nextCursor}, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*OrderDetail, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	var detail *OrderDetail
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.LockByID(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if !current.Status.CanTransitionTo(input.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition not allowed").
				WithDetails(map[string]any{
					"from": current.Status,
					"to":   input.Status,
				})
		}

		if err := repo.UpdateStatus(ctx, current.ID, input.Status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   current.ID,
			Data: payloads.OrderStatusChangedEvent{
				OrderID: current.ID,
				UserID:  current.UserID,
				From:    current.Status,
				To:      input.Status,
			},
			Version: 1,
		}
		if input.ActorUserID != uuid.Nil {
			event.Actor = &outbox.ActorRef{UserID: input.ActorUserID, Role: input.ActorRole}
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status event")
		}

		updated, err := repo.FindByID(ctx, current.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		detail = NewOrderDetail(updated)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *service) SalesSummary(ctx context.Context, period enums.SalesPeriod) (*SalesSummary, error) {
	if period == "" {
		period = enums.SalesPeriodAll
	}
	if !period.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid sales period").
			WithDetails(map[string]string{"period": "must be one of all, today, week, month"})
	}
	var since *time.Time
	if t, ok := period.Since(s.now()); ok {
		since = &t
	}
	summary, err := s.repo.SalesSummary(ctx, since)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sales summary")
	}
	summary.Period = period
	summary.Since = since
	return summary, nil
}

func buildListQuery(params pagination.Params) (ListQuery, int, error) {
	req, err := params.Prepare()
	if err != nil {
		return ListQuery{}, 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return ListQuery{Limit: req.Fetch, Cursor: req.Cursor}, req.Limit, nil
}
