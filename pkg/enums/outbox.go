package enums

import "fmt"

// OutboxAggregateType identifies the record an outbox event describes.
type OutboxAggregateType string

const (
	AggregateCheckoutSession OutboxAggregateType = "checkout_session"
	AggregateFraudCheck      OutboxAggregateType = "fraud_check"
	AggregateBlockedEntity   OutboxAggregateType = "blocked_entity"
	AggregateOrder           OutboxAggregateType = "order"
	AggregateVariant         OutboxAggregateType = "product_variant"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateCheckoutSession,
	AggregateFraudCheck,
	AggregateBlockedEntity,
	AggregateOrder,
	AggregateVariant,
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

// OutboxEventType names a domain event published through the outbox.
type OutboxEventType string

const (
	EventCheckoutCompleted      OutboxEventType = "checkout.completed"
	EventCheckoutFailed         OutboxEventType = "checkout.failed"
	EventFraudBlocked           OutboxEventType = "fraud.blocked"
	EventBlocklistEntityBlocked OutboxEventType = "blocklist.entity_blocked"
	EventOrderStatusChanged     OutboxEventType = "order.status_changed"
	EventStockAdjusted          OutboxEventType = "inventory.stock_adjusted"
)

var validOutboxEventTypes = []OutboxEventType{
	EventCheckoutCompleted,
	EventCheckoutFailed,
	EventFraudBlocked,
	EventBlocklistEntityBlocked,
	EventOrderStatusChanged,
	EventStockAdjusted,
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
