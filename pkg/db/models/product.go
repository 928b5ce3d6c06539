package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a catalog entry customers order from. Stock quantity is the
// sellable count; the warehouse-side audit trail lives on StockLedger.
type Product struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name        string          `gorm:"column:name;not null"`
	Variety     string          `gorm:"column:variety;not null"`
	Description *string         `gorm:"column:description"`
	FarmerID    uuid.UUID       `gorm:"column:farmer_id;type:uuid;not null;index"`
	PricePerKg  decimal.Decimal `gorm:"column:price_per_kg;type:numeric(12,2);not null"`
	StockQty    int             `gorm:"column:stock_qty;not null;default:0"`
	IsActive    bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
