package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/riceup-labs/riceup-backend/pkg/enums"
)

// OrderStatusEvent is one append-only entry in an order's status history.
// Rows are only ever inserted; the single mutable field is Note, which the
// next transition may overwrite on the most recent entry.
type OrderStatusEvent struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	Status    enums.OrderStatus `gorm:"column:status;type:text;not null"`
	Note      *string           `gorm:"column:note"`
	ActorID   uuid.UUID         `gorm:"column:actor_id;type:uuid;not null"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}
