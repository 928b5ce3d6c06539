package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/riceup-labs/riceup-backend/pkg/enums"
)

// StockLedger is one warehouse record per product batch purchased from a
// farmer. It is the audit trail and is never deleted.
type StockLedger struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	FarmerID  uuid.UUID `gorm:"column:farmer_id;type:uuid;not null;index"`

	QuantityPurchased int             `gorm:"column:quantity_purchased;not null"`
	PurchasePrice     decimal.Decimal `gorm:"column:purchase_price;type:numeric(12,2);not null"`
	SellingPrice      decimal.Decimal `gorm:"column:selling_price;type:numeric(12,2);not null"`

	CurrentStock      int               `gorm:"column:current_stock;not null"`
	LowStockThreshold int               `gorm:"column:low_stock_threshold;not null"`
	IsLowStock        bool              `gorm:"column:is_low_stock;not null;default:false"`
	Status            enums.StockStatus `gorm:"column:status;type:text;not null"`

	QualityGrade    *string  `gorm:"column:quality_grade"`
	MoisturePercent *float64 `gorm:"column:moisture_percent"`

	Movements []StockMovement   `gorm:"foreignKey:LedgerID;constraint:OnDelete:CASCADE"`
	Forecast  *ForecastSnapshot `gorm:"column:forecast;type:jsonb;serializer:json"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Recompute derives the low-stock flag and status from the current quantity.
// Every save path must call this; the persisted values are never trusted from
// caller input.
func (l *StockLedger) Recompute() {
	l.IsLowStock = l.CurrentStock <= l.LowStockThreshold
	l.Status = enums.StockStatusFor(l.CurrentStock, l.LowStockThreshold)
}

// ForecastSnapshot is the frozen result of the last demand forecast run.
type ForecastSnapshot struct {
	ProjectedDemand    int       `json:"projected_demand"`
	RecommendedReorder int       `json:"recommended_reorder"`
	ReorderPoint       int       `json:"reorder_point"`
	Confidence         string    `json:"confidence"`
	MonthsOfHistory    int       `json:"months_of_history"`
	AvgMonthlySales    float64   `json:"avg_monthly_sales"`
	GeneratedAt        time.Time `json:"generated_at"`
}
