package payloads

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/scentmarket-backend/pkg/enums"
)

// OrderLine is one frozen line of a placed order.
type OrderLine struct {
	VariantID    uuid.UUID       `json:"variant_id"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	ProductLabel string          `json:"product_label"`
}

// OrderCreatedEvent is emitted when checkout commits an order.
type OrderCreatedEvent struct {
	OrderID   uuid.UUID       `json:"order_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
	Lines     []OrderLine     `json:"lines"`
}

// OrderStatusChangedEvent is emitted whenever an admin moves an order forward.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	UserID  uuid.UUID         `json:"user_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
}

// AggregateKey is the order the event belongs to.
func (e OrderCreatedEvent) AggregateKey() uuid.UUID { return e.OrderID }

func (e OrderCreatedEvent) Validate() error {
	switch {
	case e.OrderID == uuid.Nil:
		return errors.New("order_id is required")
	case e.UserID == uuid.Nil:
		return errors.New("user_id is required")
	case len(e.Lines) == 0:
		return errors.New("order has no lines")
	case e.Total.IsNegative():
		return fmt.Errorf("negative total %s", e.Total)
	}
	units := 0
	for i, line := range e.Lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("lines[%d]: quantity must be positive", i)
		}
		units += line.Quantity
	}
	if units != e.ItemCount {
		return fmt.Errorf("item_count %d does not match %d line units", e.ItemCount, units)
	}
	return nil
}

func (e OrderStatusChangedEvent) AggregateKey() uuid.UUID { return e.OrderID }

func (e OrderStatusChangedEvent) Validate() error {
	if e.OrderID == uuid.Nil {
		return errors.New("order_id is required")
	}
	if !e.From.CanTransitionTo(e.To) {
		return fmt.Errorf("illegal transition %s -> %s", e.From, e.To)
	}
	return nil
}
