package enums

// OrderStatus tracks the lifecycle of a customer order.
type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusShipped    OrderStatus = "Shipped"
	OrderStatusCancelled  OrderStatus = "Cancelled"
	OrderStatusDelivered  OrderStatus = "Delivered"
)

var orderStatuses = valueSet[OrderStatus]{
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusCancelled,
	OrderStatusDelivered,
}

// Cancelled and Delivered have no outgoing edges.
var orderStatusTransitions = map[OrderStatus]valueSet[OrderStatus]{
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

// OrderStatuses lists every status in lifecycle order.
func OrderStatuses() []OrderStatus {
	return append([]OrderStatus(nil), orderStatuses...)
}

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool { return orderStatuses.has(s) }

// IsTerminal reports whether no further transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	return len(orderStatusTransitions[s]) == 0
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return orderStatusTransitions[s].has(next)
}

// ParseOrderStatus is case-sensitive; stored and wire values share spelling.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return orderStatuses.parse("order status", value)
}
