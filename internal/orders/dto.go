package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/riceup-labs/riceup-backend/pkg/db/models"
	"github.com/riceup-labs/riceup-backend/pkg/enums"
)

// Actor identifies who is performing an operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// OrderItemInput is one requested line at checkout.
type OrderItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// PaymentResult carries a verified-at-the-client gateway settlement included
// with checkout. The signature is re-verified server side before it is
// trusted.
type PaymentResult struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// CreateOrderInput is the checkout command.
type CreateOrderInput struct {
	CustomerID      uuid.UUID
	Items           []OrderItemInput
	ShippingAddress models.Address
	PaymentMethod   enums.PaymentMethod
	ShippingPrice   decimal.Decimal
	PaymentResult   *PaymentResult
	Actor           Actor
}

// UpdateStatusInput is the staff transition command.
type UpdateStatusInput struct {
	Status enums.OrderStatus
	Note   string
	Actor  Actor
}

// CancelInput is the customer cancellation command.
type CancelInput struct {
	Reason string
	Actor  Actor
}

// SetTrackingInput attaches courier details to an order.
type SetTrackingInput struct {
	TrackingNumber  string
	CourierProvider string
	Actor           Actor
}

// ListParams configures pagination and filtering for order lists.
type ListParams struct {
	CustomerID uuid.UUID
	Status     *enums.OrderStatus
	Limit      int
	Cursor     string
}

// ListResult wraps returned orders and the cursor for the next page.
type ListResult struct {
	Items  []models.Order `json:"items"`
	Cursor string         `json:"cursor"`
}
