package enums

import "slices"

// OutboxAggregateType is the aggregate_type_enum column.
type OutboxAggregateType string

const (
	AggregateOrder    OutboxAggregateType = "order"
	AggregateCustomer OutboxAggregateType = "customer"
)

var aggregateTypes = []OutboxAggregateType{AggregateOrder, AggregateCustomer}

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(aggregateTypes, a)
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(aggregateTypes, value, "aggregate type")
}

// OutboxEventType is the event_type_enum column. Every value has a topic
// route in the outbox registry.
type OutboxEventType string

const (
	EventPaymentPending       OutboxEventType = "payment_pending"
	EventPaymentInitiated     OutboxEventType = "payment_initiated"
	EventPaymentStatusChanged OutboxEventType = "payment_status_changed"
	EventPaymentRefunded      OutboxEventType = "payment_refunded"
	EventGuestCustomerCreated OutboxEventType = "guest_customer_created"
)

var eventTypes = []OutboxEventType{
	EventPaymentPending,
	EventPaymentInitiated,
	EventPaymentStatusChanged,
	EventPaymentRefunded,
	EventGuestCustomerCreated,
}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(eventTypes, e)
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(eventTypes, value, "event type")
}

// OutboxDLQErrorReason records why an outbox row was parked instead of published.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonUnknownEvent OutboxDLQErrorReason = "unknown_event"
)

func (r OutboxDLQErrorReason) String() string { return string(r) }
