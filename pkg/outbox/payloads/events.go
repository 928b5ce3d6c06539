package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/riceup-labs/riceup-backend/pkg/enums"
)

// OrderCreatedEvent signals a new order with stock already reserved.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	ItemCount   int             `json:"item_count"`
}

// OrderStatusChangedEvent is emitted on every lifecycle transition.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	CustomerID  uuid.UUID         `json:"customer_id"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	Note        string            `json:"note,omitempty"`
}

// OrderCancelledEvent is emitted when an order is cancelled, with the stock
// restoration outcome.
type OrderCancelledEvent struct {
	OrderID       uuid.UUID         `json:"order_id"`
	OrderNumber   string            `json:"order_number"`
	CustomerID    uuid.UUID         `json:"customer_id"`
	PriorStatus   enums.OrderStatus `json:"prior_status"`
	Reason        string            `json:"reason,omitempty"`
	StockRestored bool              `json:"stock_restored"`
	CancelledAt   time.Time         `json:"cancelled_at"`
}

// PaymentCompletedEvent is emitted once a gateway callback settles.
type PaymentCompletedEvent struct {
	PaymentID        uuid.UUID       `json:"payment_id"`
	OrderID          uuid.UUID       `json:"order_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	GatewayPaymentID string          `json:"gateway_payment_id"`
}

// PaymentRefundedEvent is emitted when a refund settles, full or partial.
type PaymentRefundedEvent struct {
	PaymentID    uuid.UUID       `json:"payment_id"`
	OrderID      uuid.UUID       `json:"order_id"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	Reason       string          `json:"reason,omitempty"`
}

// FarmerPayoutRecordedEvent reports a payout entry against a stock purchase.
type FarmerPayoutRecordedEvent struct {
	PaymentID  uuid.UUID       `json:"payment_id"`
	LedgerID   uuid.UUID       `json:"ledger_id"`
	FarmerID   uuid.UUID       `json:"farmer_id"`
	Amount     decimal.Decimal `json:"amount"`
	QuantityKg int             `json:"quantity_kg"`
}

// DeliveryStatusChangedEvent is emitted on every delivery transition.
type DeliveryStatusChangedEvent struct {
	DeliveryID uuid.UUID            `json:"delivery_id"`
	OrderID    uuid.UUID            `json:"order_id"`
	From       enums.DeliveryStatus `json:"from"`
	To         enums.DeliveryStatus `json:"to"`
	AgentID    *uuid.UUID           `json:"agent_id,omitempty"`
}

// DeliveryAttemptFailedEvent carries a failed attempt for rescheduling flows.
type DeliveryAttemptFailedEvent struct {
	DeliveryID    uuid.UUID `json:"delivery_id"`
	OrderID       uuid.UUID `json:"order_id"`
	AttemptNumber int       `json:"attempt_number"`
	Reason        string    `json:"reason"`
	AttemptedAt   time.Time `json:"attempted_at"`
}

// StockLowEvent fires when a ledger crosses its low-stock threshold.
type StockLowEvent struct {
	LedgerID     uuid.UUID `json:"ledger_id"`
	ProductID    uuid.UUID `json:"product_id"`
	ProductName  string    `json:"product_name"`
	CurrentStock int       `json:"current_stock"`
	Threshold    int       `json:"threshold"`
}

// StockPurchaseRecordedEvent reports inbound stock from a farmer.
type StockPurchaseRecordedEvent struct {
	LedgerID      uuid.UUID       `json:"ledger_id"`
	ProductID     uuid.UUID       `json:"product_id"`
	FarmerID      uuid.UUID       `json:"farmer_id"`
	QuantityKg    int             `json:"quantity_kg"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
}

// StockAdjustmentAppliedEvent reports a manual correction to a ledger.
type StockAdjustmentAppliedEvent struct {
	LedgerID uuid.UUID          `json:"ledger_id"`
	Delta    int                `json:"delta"`
	Type     enums.MovementType `json:"type"`
	Reason   string             `json:"reason,omitempty"`
	NewStock int                `json:"new_stock"`
}
