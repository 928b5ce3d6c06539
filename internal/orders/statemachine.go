package orders

import (
	"github.com/riceup-labs/riceup-backend/pkg/enums"
	"github.com/riceup-labs/riceup-backend/pkg/lifecycle"
)

// transitions is the single source of truth for order status changes. Every
// status-mutating path except the delivery and refund propagation hooks
// consults this table.
var transitions = lifecycle.Table[enums.OrderStatus]{
	enums.OrderStatusPending:        {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing:     {enums.OrderStatusPacked, enums.OrderStatusCancelled},
	enums.OrderStatusPacked:         {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:        {enums.OrderStatusOutForDelivery, enums.OrderStatusCancelled},
	enums.OrderStatusOutForDelivery: {enums.OrderStatusDelivered},
	enums.OrderStatusDelivered:      {enums.OrderStatusReturned},
	enums.OrderStatusCancelled:      {enums.OrderStatusRefunded},
	enums.OrderStatusReturned:       {enums.OrderStatusRefunded},
}

// stockRestoredOnCancel lists the statuses whose stock was decremented, so a
// cancellation from them must put the quantities back.
var stockRestoredOnCancel = map[enums.OrderStatus]bool{
	enums.OrderStatusProcessing:     true,
	enums.OrderStatusPacked:         true,
	enums.OrderStatusShipped:        true,
	enums.OrderStatusOutForDelivery: true,
}

// cancelClosed lists the statuses from which the customer cancel path is
// refused. It is deliberately looser than the transition table: a customer
// may still cancel an order that is already out for delivery.
var cancelClosed = map[enums.OrderStatus]bool{
	enums.OrderStatusDelivered: true,
	enums.OrderStatusCancelled: true,
	enums.OrderStatusReturned:  true,
	enums.OrderStatusRefunded:  true,
}

// AllowedTargets returns the statuses reachable from the given one.
func AllowedTargets(from enums.OrderStatus) []enums.OrderStatus {
	return transitions.Targets(from)
}
