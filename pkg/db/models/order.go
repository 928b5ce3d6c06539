package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/riceup-labs/riceup-backend/pkg/enums"
)

// Order represents one purchase transaction by one customer. Orders are never
// physically deleted; cancellation and refund are statuses, not removals.
type Order struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber string    `gorm:"column:order_number;not null;uniqueIndex"`
	CustomerID  uuid.UUID `gorm:"column:customer_id;type:uuid;not null;index"`

	Items           []OrderLineItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	ShippingAddress Address             `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`

	ItemsPrice    decimal.Decimal `gorm:"column:items_price;type:numeric(12,2);not null"`
	TaxPrice      decimal.Decimal `gorm:"column:tax_price;type:numeric(12,2);not null"`
	ShippingPrice decimal.Decimal `gorm:"column:shipping_price;type:numeric(12,2);not null"`
	TotalPrice    decimal.Decimal `gorm:"column:total_price;type:numeric(12,2);not null"`

	Status        enums.OrderStatus  `gorm:"column:status;type:text;not null"`
	StatusHistory []OrderStatusEvent `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	IsPaid      bool       `gorm:"column:is_paid;not null;default:false"`
	PaidAt      *time.Time `gorm:"column:paid_at"`
	IsDelivered bool       `gorm:"column:is_delivered;not null;default:false"`
	DeliveredAt *time.Time `gorm:"column:delivered_at"`
	IsRefunded  bool       `gorm:"column:is_refunded;not null;default:false"`
	RefundedAt  *time.Time `gorm:"column:refunded_at"`

	TrackingNumber  *string `gorm:"column:tracking_number"`
	CourierProvider *string `gorm:"column:courier_provider"`

	CancellationReason *string `gorm:"column:cancellation_reason"`
	RefundReason       *string `gorm:"column:refund_reason"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// HasDeliveryProof reports whether tracking details required before the order
// may be marked Delivered are present.
func (o *Order) HasDeliveryProof() bool {
	return o.TrackingNumber != nil && *o.TrackingNumber != "" &&
		o.CourierProvider != nil && *o.CourierProvider != ""
}
