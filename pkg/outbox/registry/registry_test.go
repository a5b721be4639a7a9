package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/scentmarket-backend/pkg/config"
	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"
	"github.com/angelmondragon/scentmarket-backend/pkg/enums"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox/payloads"
)

func TestResolveOrderCreated(t *testing.T) {
	reg := newTestEventRegistry(t)
	orderID := uuid.New()
	event := orderRow(t, enums.EventOrderCreated, orderID, createdPayload(orderID))

	resolved, err := reg.Resolve(event)
	require.NoError(t, err)
	assert.Equal(t, "orders-topic", resolved.Descriptor.Topic)
	assert.NotEmpty(t, resolved.Envelope.EventID)

	body, ok := resolved.Payload.(*payloads.OrderCreatedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	assert.Equal(t, orderID, body.OrderID)
	assert.Equal(t, 3, body.ItemCount)
	assert.True(t, body.Total.Equal(decimal.NewFromInt(45)))
}

func TestResolveOrderStatusChanged(t *testing.T) {
	reg := newTestEventRegistry(t)
	orderID := uuid.New()
	event := orderRow(t, enums.EventOrderStatusChanged, orderID, payloads.OrderStatusChangedEvent{
		OrderID: orderID,
		From:    enums.OrderStatusProcessing,
		To:      enums.OrderStatusShipped,
	})

	resolved, err := reg.Resolve(event)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, resolved.Payload.(*payloads.OrderStatusChangedEvent).To)
}

func TestResolveRejectsRowsThatCanNeverPublish(t *testing.T) {
	reg := newTestEventRegistry(t)
	orderID := uuid.New()

	mismatchedEnvelope := orderRow(t, enums.EventOrderCreated, orderID, createdPayload(orderID))
	mismatchedEnvelope.Payload = envelope(t, enums.EventOrderStatusChanged, createdPayload(orderID))

	badCount := createdPayload(orderID)
	badCount.ItemCount = 99

	backwards := payloads.OrderStatusChangedEvent{
		OrderID: orderID,
		From:    enums.OrderStatusDelivered,
		To:      enums.OrderStatusProcessing,
	}

	cases := map[string]models.OutboxEvent{
		"unknown event type":           rawRow(enums.OutboxEventType("order_refunded"), enums.AggregateOrder, orderID, envelope(t, "", map[string]any{})),
		"aggregate type mismatch":      rawRow(enums.EventOrderCreated, enums.OutboxAggregateType("cart"), orderID, envelope(t, "", createdPayload(orderID))),
		"missing aggregate id":         orderRow(t, enums.EventOrderCreated, uuid.Nil, createdPayload(orderID)),
		"null payload":                 orderRow(t, enums.EventOrderCreated, orderID, nil),
		"payload for other order":      orderRow(t, enums.EventOrderCreated, orderID, createdPayload(uuid.New())),
		"item count mismatch":          orderRow(t, enums.EventOrderCreated, orderID, badCount),
		"illegal transition":           orderRow(t, enums.EventOrderStatusChanged, orderID, backwards),
		"envelope event type mismatch": mismatchedEnvelope,
		"broken envelope":              rawRow(enums.EventOrderCreated, enums.AggregateOrder, orderID, models.JSONB(`{"version":`)),
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			var rejected NonRetryableError
			require.ErrorAs(t, err, &rejected)
		})
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{})
	require.Error(t, err)

	assert.Equal(t, []string{"orders-topic"}, newTestEventRegistry(t).Topics())
}

func TestNonRetryableErrorUnwraps(t *testing.T) {
	cause := NewNonRetryableError(outbox.ErrEnvelopeMissingID)
	assert.ErrorIs(t, cause, outbox.ErrEnvelopeMissingID)
	assert.Equal(t, "outbox event rejected", NonRetryableError{}.Error())
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders-topic"})
	require.NoError(t, err)
	return reg
}

func createdPayload(orderID uuid.UUID) payloads.OrderCreatedEvent {
	return payloads.OrderCreatedEvent{
		OrderID:   orderID,
		UserID:    uuid.New(),
		Total:     decimal.RequireFromString("45.00"),
		ItemCount: 3,
		Lines: []payloads.OrderLine{
			{VariantID: uuid.New(), Quantity: 2, UnitPrice: decimal.RequireFromString("15.00"), ProductLabel: "Vetiver 50ml"},
			{VariantID: uuid.New(), Quantity: 1, UnitPrice: decimal.RequireFromString("15.00"), ProductLabel: "Neroli 10ml"},
		},
	}
}

func orderRow(t *testing.T, eventType enums.OutboxEventType, aggregateID uuid.UUID, data any) models.OutboxEvent {
	t.Helper()
	return models.OutboxEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   aggregateID,
		Payload:       envelope(t, eventType, data),
	}
}

func rawRow(eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, aggregateID uuid.UUID, payload models.JSONB) models.OutboxEvent {
	return models.OutboxEvent{
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   aggregateID,
		Payload:       payload,
	}
}

func envelope(t *testing.T, eventType enums.OutboxEventType, data any) models.JSONB {
	t.Helper()
	body, err := json.Marshal(data)
	require.NoError(t, err)
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    outbox.EnvelopeVersion,
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Data:       body,
	})
	require.NoError(t, err)
	return models.JSONB(raw)
}
