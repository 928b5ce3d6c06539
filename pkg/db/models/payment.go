package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/riceup-labs/riceup-backend/pkg/enums"
)

// Payment is one monetary event: a customer payment, a refund of one, or a
// farmer payout. Amount is immutable once the payment completes.
type Payment struct {
	ID   uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Type enums.PaymentType `gorm:"column:type;type:text;not null"`

	OrderID  *uuid.UUID `gorm:"column:order_id;type:uuid;index"`
	LedgerID *uuid.UUID `gorm:"column:ledger_id;type:uuid;index"`

	Amount   decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency string          `gorm:"column:currency;not null;default:'INR'"`

	Gateway          string  `gorm:"column:gateway;not null"` // "razorpay" or "manual"
	GatewayOrderID   *string `gorm:"column:gateway_order_id;index"`
	GatewayPaymentID *string `gorm:"column:gateway_payment_id"`

	Status      enums.PaymentStatus `gorm:"column:status;type:text;not null"`
	PaymentDate *time.Time          `gorm:"column:payment_date"`

	RefundAmount    *decimal.Decimal `gorm:"column:refund_amount;type:numeric(12,2)"`
	RefundReason    *string          `gorm:"column:refund_reason"`
	RefundMethod    *string          `gorm:"column:refund_method"` // "gateway" or "manual"
	RefundedBy      *uuid.UUID       `gorm:"column:refunded_by;type:uuid"`
	RefundedAt      *time.Time       `gorm:"column:refunded_at"`
	GatewayRefundID *string          `gorm:"column:gateway_refund_id"`

	Payout  *FarmerPayoutDetails `gorm:"column:payout;type:jsonb;serializer:json"`
	Invoice *InvoiceSnapshot     `gorm:"column:invoice;type:jsonb;serializer:json"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// FarmerPayoutDetails carries the payout-specific sub-record.
type FarmerPayoutDetails struct {
	FarmerID      uuid.UUID       `json:"farmer_id"`
	QuantityKg    int             `json:"quantity_kg"`
	RatePerKg     decimal.Decimal `json:"rate_per_kg"`
	BankAccount   string          `json:"bank_account"`
	BankIFSC      string          `json:"bank_ifsc"`
	AccountHolder string          `json:"account_holder"`
}

// InvoiceSnapshot is frozen data attached to the payment at generation time;
// it is not a separate mutable entity.
type InvoiceSnapshot struct {
	Number   string          `json:"number"`
	Seller   string          `json:"seller"`
	Lines    []InvoiceLine   `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
	IssuedAt time.Time       `json:"issued_at"`
}

// InvoiceLine is one itemized entry on an invoice snapshot.
type InvoiceLine struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}
