package payments

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

// CreateGatewayOrderInput starts an online payment for an order.
type CreateGatewayOrderInput struct {
	OrderID uuid.UUID
	Actor   Actor
}

// GatewayOrderResult is returned to the client so it can open the gateway
// checkout widget.
type GatewayOrderResult struct {
	PaymentID      uuid.UUID       `json:"payment_id"`
	GatewayOrderID string          `json:"gateway_order_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	KeyID          string          `json:"key_id"`
}

// VerifyCallbackInput carries the provider callback fields. Nothing in it is
// trusted until the signature checks out.
type VerifyCallbackInput struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	Actor            Actor
}

// RefundInput requests a refund against a completed payment. A nil Amount
// refunds in full.
type RefundInput struct {
	Amount *decimal.Decimal
	Reason string
	Actor  Actor
}

// FarmerPayoutInput records a payout owed for a warehouse purchase.
type FarmerPayoutInput struct {
	LedgerID      uuid.UUID
	BankAccount   string
	BankIFSC      string
	AccountHolder string
	Actor         Actor
}

// ListParams configures pagination and filtering for payment lists.
type ListParams struct {
	OrderID uuid.UUID
	Type    *enums.PaymentType
	Status  *enums.PaymentStatus
	Limit   int
	Cursor  string
}

// ListResult wraps returned payments and the cursor for the next page.
type ListResult struct {
	Items  []models.Payment `json:"items"`
	Cursor string           `json:"cursor"`
}
