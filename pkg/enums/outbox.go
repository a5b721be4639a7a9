package enums

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const AggregateOrder OutboxAggregateType = "order"

var aggregateTypes = valueSet[OutboxAggregateType]{AggregateOrder}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func (a OutboxAggregateType) String() string { return string(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse("aggregate type", value)
}

// OutboxEventType names a domain event written to outbox_events.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
)

var outboxEventTypes = valueSet[OutboxEventType]{
	EventOrderCreated,
	EventOrderStatusChanged,
}

func (e OutboxEventType) IsValid() bool { return outboxEventTypes.has(e) }

func (e OutboxEventType) String() string { return string(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return outboxEventTypes.parse("event type", value)
}

// OutboxDLQErrorReason records why an event was parked in outbox_dlq.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqErrorReasons = valueSet[OutboxDLQErrorReason]{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
}

func (r OutboxDLQErrorReason) IsValid() bool { return dlqErrorReasons.has(r) }

func (r OutboxDLQErrorReason) String() string { return string(r) }
