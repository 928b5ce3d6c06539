package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder       OutboxAggregateType = "order"
	AggregatePayment     OutboxAggregateType = "payment"
	AggregateDelivery    OutboxAggregateType = "delivery"
	AggregateStockLedger OutboxAggregateType = "stock_ledger"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePayment,
	AggregateDelivery,
	AggregateStockLedger,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
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

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated           OutboxEventType = "order_created"
	EventOrderStatusChanged     OutboxEventType = "order_status_changed"
	EventOrderCancelled         OutboxEventType = "order_cancelled"
	EventPaymentCompleted       OutboxEventType = "payment_completed"
	EventPaymentRefunded        OutboxEventType = "payment_refunded"
	EventFarmerPayoutRecorded   OutboxEventType = "farmer_payout_recorded"
	EventDeliveryStatusChanged  OutboxEventType = "delivery_status_changed"
	EventDeliveryAttemptFailed  OutboxEventType = "delivery_attempt_failed"
	EventStockLow               OutboxEventType = "stock_low"
	EventStockPurchaseRecorded  OutboxEventType = "stock_purchase_recorded"
	EventStockAdjustmentApplied OutboxEventType = "stock_adjustment_applied"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStatusChanged,
	EventOrderCancelled,
	EventPaymentCompleted,
	EventPaymentRefunded,
	EventFarmerPayoutRecorded,
	EventDeliveryStatusChanged,
	EventDeliveryAttemptFailed,
	EventStockLow,
	EventStockPurchaseRecorded,
	EventStockAdjustmentApplied,
}

// IsValid reports whether the value matches the canonical event_type enum.
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
