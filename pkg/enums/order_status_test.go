package enums

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusProcessing, OrderStatusCancelled, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusProcessing, OrderStatusDelivered, false},
		{OrderStatusShipped, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusDelivered, false},
		{OrderStatusDelivered, OrderStatusProcessing, false},
		{OrderStatusShipped, OrderStatusShipped, false},
	}
	for _, tc := range cases {
		require.Equalf(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	require.False(t, OrderStatusProcessing.IsTerminal())
	require.False(t, OrderStatusShipped.IsTerminal())
	require.True(t, OrderStatusCancelled.IsTerminal())
	require.True(t, OrderStatusDelivered.IsTerminal())
}

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus("Shipped")
	require.NoError(t, err)
	require.Equal(t, OrderStatusShipped, status)

	_, err = ParseOrderStatus("shipped")
	require.Error(t, err)
}

func TestParseUserRole(t *testing.T) {
	role, err := ParseUserRole("admin")
	require.NoError(t, err)
	require.Equal(t, UserRoleAdmin, role)
	require.False(t, UserRole("superuser").IsValid())
}

func TestParseErrorListsAllowedValues(t *testing.T) {
	_, err := ParseOrderStatus("Lost")
	require.EqualError(t, err, `invalid order status "Lost" (want one of Processing, Shipped, Cancelled, Delivered)`)
}

func TestOutboxEnums(t *testing.T) {
	eventType, err := ParseOutboxEventType("order_status_changed")
	require.NoError(t, err)
	require.Equal(t, EventOrderStatusChanged, eventType)

	_, err = ParseOutboxAggregateType("cart")
	require.Error(t, err)

	require.True(t, OutboxDLQReasonMaxAttempts.IsValid())
	require.False(t, OutboxDLQErrorReason("timeout").IsValid())
}

func TestOrderStatusesReturnsCopy(t *testing.T) {
	statuses := OrderStatuses()
	statuses[0] = "Mutated"
	require.Equal(t, OrderStatusProcessing, OrderStatuses()[0])
}
