package orders

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/scentmarket-backend/pkg/db"
	"github.com/angelmondragon/scentmarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"
	"github.com/angelmondragon/scentmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/scentmarket-backend/pkg/errors"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/scentmarket-backend/pkg/pagination"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	svc, err := NewService(NewRepository(db), dbpkg.Wrap(db), outbox.NewService(outbox.NewRepository(db), nil))
	require.NoError(t, err)
	return svc, db
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	db := dbtest.Open(t)
	emitter := outbox.NewService(outbox.NewRepository(db), nil)
	_, err := NewService(nil, dbpkg.Wrap(db), emitter)
	require.Error(t, err)
	_, err = NewService(NewRepository(db), nil, emitter)
	require.Error(t, err)
	_, err = NewService(NewRepository(db), dbpkg.Wrap(db), nil)
	require.Error(t, err)
}

func TestServiceListUserOrdersPaginates(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	user := dbtest.MustCreateUser(t, db, "rae")
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		seedOrder(t, db, user.ID, enums.OrderStatusProcessing, base.Add(time.Duration(i)*time.Minute), 1, "10.00")
	}

	first, err := svc.ListUserOrders(context.Background(), user.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.ListUserOrders(context.Background(), user.ID, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Orders, 1)
	require.Empty(t, second.NextCursor)
	require.NotEqual(t, first.Orders[1].ID, second.Orders[0].ID)

	_, err = svc.ListUserOrders(context.Background(), user.ID, pagination.Params{Cursor: "%%%"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestServiceGetUserOrderHidesOtherCustomers(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	owner := dbtest.MustCreateUser(t, db, "sol")
	stranger := dbtest.MustCreateUser(t, db, "tao")
	order := seedOrder(t, db, owner.ID, enums.OrderStatusProcessing, time.Now().UTC(), 2, "10.00")

	detail, err := svc.GetUserOrder(context.Background(), owner.ID, order.ID)
	require.NoError(t, err)
	require.Equal(t, "Rose Absolue (50ml)", detail.Items[0].ProductLabel)
	require.Equal(t, "20", detail.Items[0].LineTotal.String())

	_, err = svc.GetUserOrder(context.Background(), stranger.ID, order.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestServiceUpdateStatusTransitions(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	ctx := context.Background()
	user := dbtest.MustCreateUser(t, db, "uma")
	admin := uuid.New()
	order := seedOrder(t, db, user.ID, enums.OrderStatusProcessing, time.Now().UTC(), 1, "10.00")

	detail, err := svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: enums.OrderStatusShipped, ActorUserID: admin, ActorRole: "admin"})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusShipped, detail.Status)

	_, err = svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: enums.OrderStatusCancelled})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "Lost"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: uuid.New(), Status: enums.OrderStatusShipped})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	var events []models.OutboxEvent
	require.NoError(t, db.Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventOrderStatusChanged, events[0].EventType)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal([]byte(events[0].Payload), &envelope))
	var payload payloads.OrderStatusChangedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	require.Equal(t, enums.OrderStatusProcessing, payload.From)
	require.Equal(t, enums.OrderStatusShipped, payload.To)
	require.Equal(t, admin, envelope.Actor.UserID)
}

func TestServiceListAllOrdersValidatesFilter(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	user := dbtest.MustCreateUser(t, db, "vic")
	seedOrder(t, db, user.ID, enums.OrderStatusProcessing, time.Now().UTC(), 1, "10.00")

	bad := enums.OrderStatus("Lost")
	_, err := svc.ListAllOrders(context.Background(), pagination.Params{}, AdminFilters{Status: &bad})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	list, err := svc.ListAllOrders(context.Background(), pagination.Params{}, AdminFilters{})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	require.Equal(t, "vic", list.Orders[0].CustomerName)

	summary, err := svc.SalesSummary(context.Background(), enums.SalesPeriodAll)
	require.NoError(t, err)
	require.EqualValues(t, 1, summary.OrderCount)
}

func TestServiceSalesSummaryPeriods(t *testing.T) {
	t.Parallel()
	svc, db := newTestService(t)
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	svc.(*service).now = func() time.Time { return now }
	user := dbtest.MustCreateUser(t, db, "wes")
	seedOrder(t, db, user.ID, enums.OrderStatusProcessing, now.Add(-time.Hour), 1, "10.00")
	seedOrder(t, db, user.ID, enums.OrderStatusShipped, now.AddDate(0, 0, -3), 2, "10.00")
	seedOrder(t, db, user.ID, enums.OrderStatusDelivered, now.AddDate(0, 0, -20), 3, "10.00")
	seedOrder(t, db, user.ID, enums.OrderStatusDelivered, now.AddDate(0, -2, 0), 4, "10.00")

	cases := []struct {
		period enums.SalesPeriod
		orders int64
		units  int64
		since  time.Time
	}{
		{enums.SalesPeriodToday, 1, 1, time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)},
		{enums.SalesPeriodWeek, 2, 3, now.AddDate(0, 0, -7)},
		{enums.SalesPeriodMonth, 3, 6, now.AddDate(0, -1, 0)},
		{enums.SalesPeriodAll, 4, 10, time.Time{}},
	}
	for _, tc := range cases {
		summary, err := svc.SalesSummary(context.Background(), tc.period)
		require.NoError(t, err, tc.period)
		require.Equal(t, tc.period, summary.Period)
		require.Equal(t, tc.orders, summary.OrderCount, tc.period)
		require.Equal(t, tc.units, summary.UnitsSold, tc.period)
		if tc.since.IsZero() {
			require.Nil(t, summary.Since)
		} else {
			require.NotNil(t, summary.Since)
			require.True(t, tc.since.Equal(*summary.Since), tc.period)
		}
	}

	_, err := svc.SalesSummary(context.Background(), "year")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
