package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/riceup-labs/riceup-backend/pkg/enums"
)

// StockMovement is one append-only entry in a ledger's movement log. Every
// quantity change on the ledger is accompanied by exactly one movement row
// whose signed delta matches the net change.
type StockMovement struct {
	ID       uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	LedgerID uuid.UUID          `gorm:"column:ledger_id;type:uuid;not null;index"`
	Delta    int                `gorm:"column:delta;not null"`
	Type     enums.MovementType `gorm:"column:type;type:text;not null"`
	Reason   *string            `gorm:"column:reason"`
	ActorID  uuid.UUID          `gorm:"column:actor_id;type:uuid;not null"`
	OrderID  *uuid.UUID         `gorm:"column:order_id;type:uuid;index"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
