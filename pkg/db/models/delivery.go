package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/riceup-labs/riceup-backend/pkg/enums"
)

// Delivery is the physical fulfillment record, one-to-one with an order once
// dispatch begins. The unique index on order_id enforces the one-to-one
// invariant at the storage layer.
type Delivery struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	CustomerID uuid.UUID `gorm:"column:customer_id;type:uuid;not null;index"`

	ScheduledDate time.Time `gorm:"column:scheduled_date;not null"`
	TimeSlot      string    `gorm:"column:time_slot;not null"`
	Address       Address   `gorm:"column:address;type:jsonb;serializer:json"`

	Status  enums.DeliveryStatus `gorm:"column:status;type:text;not null"`
	AgentID *uuid.UUID           `gorm:"column:agent_id;type:uuid;index"`

	TrackingUpdates []DeliveryTrackingUpdate `gorm:"foreignKey:DeliveryID;constraint:OnDelete:CASCADE"`
	Attempts        []DeliveryAttempt        `gorm:"foreignKey:DeliveryID;constraint:OnDelete:CASCADE"`

	ActualDeliveryTime *time.Time `gorm:"column:actual_delivery_time"`
	FailureReason      *string    `gorm:"column:failure_reason"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// DeliveryTrackingUpdate is one append-only tracking note.
type DeliveryTrackingUpdate struct {
	ID         uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	DeliveryID uuid.UUID            `gorm:"column:delivery_id;type:uuid;not null;index"`
	Status     enums.DeliveryStatus `gorm:"column:status;type:text;not null"`
	Note       *string              `gorm:"column:note"`
	ActorID    uuid.UUID            `gorm:"column:actor_id;type:uuid;not null"`
	CreatedAt  time.Time            `gorm:"column:created_at;autoCreateTime"`
}

// DeliveryAttempt records one failed delivery attempt.
type DeliveryAttempt struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	DeliveryID uuid.UUID `gorm:"column:delivery_id;type:uuid;not null;index"`
	Reason     string    `gorm:"column:reason;not null"`
	ActorID    uuid.UUID `gorm:"column:actor_id;type:uuid;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
