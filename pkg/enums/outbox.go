package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateIntent OutboxAggregateType = "intent"
	AggregateOrder  OutboxAggregateType = "payment_order"
	AggregateLead   OutboxAggregateType = "lead"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateIntent,
	AggregateOrder,
	AggregateLead,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventIntentResumed   OutboxEventType = "intent_resumed"
	EventIntentCompleted OutboxEventType = "intent_completed"
	EventIntentExpired   OutboxEventType = "intent_expired"
	EventLeadRecorded    OutboxEventType = "lead_recorded"
	EventOrderOpened     OutboxEventType = "order_opened"
	EventOrderPaid       OutboxEventType = "order_paid"
	EventOrderFailed     OutboxEventType = "order_failed"
	EventOrderExpired    OutboxEventType = "order_expired"
)

var validOutboxEventTypes = []OutboxEventType{
	EventIntentResumed,
	EventIntentCompleted,
	EventIntentExpired,
	EventLeadRecorded,
	EventOrderOpened,
	EventOrderPaid,
	EventOrderFailed,
	EventOrderExpired,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OrderEventFor returns the outbox event emitted when an order lands in status.
func OrderEventFor(status OrderStatus) (OutboxEventType, bool) {
	switch status {
	case OrderStatusPaid:
		return EventOrderPaid, true
	case OrderStatusFailed:
		return EventOrderFailed, true
	case OrderStatusExpired:
		return EventOrderExpired, true
	default:
		return "", false
	}
}
