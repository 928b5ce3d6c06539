package deliveries

import (
	"github.com/riceup-labs/riceup-backend/pkg/enums"
	"github.com/riceup-labs/riceup-backend/pkg/lifecycle"
)

// transitions mirrors the order state machine discipline: illegal moves are
// rejected, never clamped.
var transitions = lifecycle.Table[enums.DeliveryStatus]{
	enums.DeliveryStatusScheduled:      {enums.DeliveryStatusInTransit, enums.DeliveryStatusCancelled},
	enums.DeliveryStatusInTransit:      {enums.DeliveryStatusOutForDelivery, enums.DeliveryStatusFailed, enums.DeliveryStatusCancelled},
	enums.DeliveryStatusOutForDelivery: {enums.DeliveryStatusDelivered, enums.DeliveryStatusFailed, enums.DeliveryStatusRescheduled},
	enums.DeliveryStatusFailed:         {enums.DeliveryStatusRescheduled, enums.DeliveryStatusCancelled},
	enums.DeliveryStatusRescheduled:    {enums.DeliveryStatusScheduled, enums.DeliveryStatusCancelled},
}

// AllowedTargets returns the statuses reachable from the given one.
func AllowedTargets(from enums.DeliveryStatus) []enums.DeliveryStatus {
	return transitions.Targets(from)
}
