// Package registry routes outbox rows to Pub/Sub topics and decodes their
// payloads. Anything it rejects is a NonRetryableError: the row can never be
// published as written.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/angelmondragon/scentmarket-backend/pkg/config"
	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"
	"github.com/angelmondragon/scentmarket-backend/pkg/enums"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox/payloads"
)

// EventDescriptor binds an event type to its aggregate and topic.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string

	decode func(json.RawMessage) (any, error)
}

// ResolvedEvent is a row that passed every check, with its typed payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row the publisher should dead-letter at once.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "outbox event rejected"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func reject(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

// payload is implemented by every registered event body.
type payload interface {
	AggregateKey() uuid.UUID
	Validate() error
}

// bind builds a descriptor whose decoder yields a *T.
func bind[T any, P interface {
	*T
	payload
}](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode: func(raw json.RawMessage) (any, error) {
			body := P(new(T))
			if err := json.Unmarshal(raw, body); err != nil {
				return nil, err
			}
			return body, nil
		},
	}
}

// EventRegistry is immutable after NewEventRegistry.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("registry: orders topic is required")
	}
	descriptors := []EventDescriptor{
		bind[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder, cfg.OrdersTopic),
		bind[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, enums.AggregateOrder, cfg.OrdersTopic),
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, d := range descriptors {
		if _, dup := reg.entries[d.EventType]; dup {
			return nil, fmt.Errorf("registry: %s registered twice", d.EventType)
		}
		reg.entries[d.EventType] = d
	}
	return reg, nil
}

// Topics lists the distinct topics the registry routes to, sorted.
func (r *EventRegistry) Topics() []string {
	topics := make([]string, 0, len(r.entries))
	for _, d := range r.entries {
		topics = append(topics, d.Topic)
	}
	slices.Sort(topics)
	return slices.Compact(topics)
}

// Resolve checks the row against its descriptor, decodes the envelope and
// payload, and validates the payload body.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, reject("unsupported event type %q", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, reject("%s belongs to %s aggregates, row says %q", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, reject("%s row has no aggregate_id", event.EventType)
	}

	envelope, err := outbox.DecodeEnvelope([]byte(event.Payload))
	if err != nil {
		return nil, reject("%s envelope: %w", event.EventType, err)
	}
	if envelope.EventType != "" && envelope.EventType != event.EventType {
		return nil, reject("envelope event type %q does not match row %q", envelope.EventType, event.EventType)
	}

	decoded, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, reject("decode %s payload: %w", event.EventType, err)
	}
	body := decoded.(payload)
	if key := body.AggregateKey(); key != event.AggregateID {
		return nil, reject("%s payload is for %s, row aggregate is %s", event.EventType, key, event.AggregateID)
	}
	if err := body.Validate(); err != nil {
		return nil, reject("invalid %s payload: %w", event.EventType, err)
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: decoded}, nil
}
