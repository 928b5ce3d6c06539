package inventory

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

// RecordPurchaseInput is the inbound-stock command for a farmer purchase.
type RecordPurchaseInput struct {
	ProductID         uuid.UUID
	FarmerID          uuid.UUID
	QuantityPurchased int
	PurchasePrice     decimal.Decimal
	SellingPrice      decimal.Decimal
	LowStockThreshold int
	QualityGrade      *string
	MoisturePercent   *float64
	Actor             Actor
}

// AdjustInput is a manual correction against a ledger.
type AdjustInput struct {
	Delta  int
	Type   enums.MovementType
	Reason string
	Actor  Actor
}

// ListParams configures pagination and filtering for ledger lists.
type ListParams struct {
	ProductID uuid.UUID
	Status    *enums.StockStatus
	LowOnly   bool
	Limit     int
	Cursor    string
}

// ListResult wraps returned ledgers and the cursor for the next page.
type ListResult struct {
	Items  []models.StockLedger `json:"items"`
	Cursor string               `json:"cursor"`
}

// BulkForecastResult summarizes a forecast sweep across all ledgers.
type BulkForecastResult struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}
