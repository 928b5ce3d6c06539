package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/riceup-labs/riceup-backend/internal/mailer"
	"github.com/riceup-labs/riceup-backend/pkg/db/models"
	"github.com/riceup-labs/riceup-backend/pkg/enums"
	"github.com/riceup-labs/riceup-backend/pkg/logger"
	"github.com/riceup-labs/riceup-backend/pkg/metrics"
	"github.com/riceup-labs/riceup-backend/pkg/outbox/payloads"
	"github.com/riceup-labs/riceup-backend/pkg/outbox/registry"
)

// ConsumerName scopes idempotency markers for the domain-event worker.
const ConsumerName = "domain-worker"

type idempotencyGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer turns domain events into in-app notifications and best-effort
// mail. Notification failures are logged, never propagated into the
// operation that emitted the event.
type Consumer struct {
	repo    Repository
	idem    idempotencyGuard
	mail    mailer.Mailer
	logg    *logger.Logger
	metrics *metrics.EventMetrics
}

// NewConsumer wires the domain-event consumer.
func NewConsumer(repo Repository, idem idempotencyGuard, mail mailer.Mailer, logg *logger.Logger, eventMetrics *metrics.EventMetrics) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if idem == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	return &Consumer{repo: repo, idem: idem, mail: mail, logg: logg, metrics: eventMetrics}, nil
}

// Handle processes one resolved domain event exactly once per consumer. A
// handler failure clears the idempotency marker so redelivery retries it.
func (c *Consumer) Handle(ctx context.Context, resolved *registry.ResolvedEvent) error {
	if resolved == nil {
		return registry.NewNonRetryableError(fmt.Errorf("nil event"))
	}
	eventID, err := uuid.Parse(resolved.Envelope.EventID)
	if err != nil {
		return registry.NewNonRetryableError(fmt.Errorf("invalid event id %q: %w", resolved.Envelope.EventID, err))
	}

	duplicate, err := c.idem.CheckAndMarkProcessed(ctx, ConsumerName, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if duplicate {
		c.metrics.IncDuplicate()
		return nil
	}

	if err := c.dispatch(ctx, resolved); err != nil {
		if delErr := c.idem.Delete(ctx, ConsumerName, eventID); delErr != nil && c.logg != nil {
			c.logg.Error(ctx, "failed to clear idempotency marker", delErr)
		}
		return err
	}

	c.metrics.IncConsumed(string(resolved.Descriptor.EventType))
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, resolved *registry.ResolvedEvent) error {
	switch payload := resolved.Payload.(type) {
	case *payloads.OrderCreatedEvent:
		return c.onOrderCreated(ctx, payload)
	case *payloads.OrderStatusChangedEvent:
		return c.onOrderStatusChanged(ctx, payload)
	case *payloads.OrderCancelledEvent:
		return c.onOrderCancelled(ctx, payload)
	case *payloads.PaymentCompletedEvent:
		return c.onPaymentCompleted(ctx, payload)
	case *payloads.PaymentRefundedEvent:
		return c.onPaymentRefunded(ctx, payload)
	case *payloads.FarmerPayoutRecordedEvent:
		return c.onFarmerPayout(ctx, payload)
	case *payloads.DeliveryStatusChangedEvent:
		return c.onDeliveryStatusChanged(ctx, payload)
	case *payloads.DeliveryAttemptFailedEvent:
		return c.onDeliveryAttemptFailed(ctx, payload)
	case *payloads.StockLowEvent:
		return c.onStockLow(ctx, payload)
	case *payloads.StockPurchaseRecordedEvent:
		return c.onStockPurchase(ctx, payload)
	case *payloads.StockAdjustmentAppliedEvent:
		return c.onStockAdjustment(ctx, payload)
	default:
		return registry.NewNonRetryableError(fmt.Errorf("no handler for %s", resolved.Descriptor.EventType))
	}
}

func (c *Consumer) onOrderCreated(ctx context.Context, p *payloads.OrderCreatedEvent) error {
	link := "/orders/" + p.OrderID.String()
	if err := c.notify(ctx, p.CustomerID, enums.NotificationTypeOrder,
		"Order placed",
		fmt.Sprintf("Your order %s has been placed.", p.OrderNumber), &link); err != nil {
		return err
	}
	c.fanOutToOperations(ctx, enums.NotificationTypeOrder,
		"New order received",
		fmt.Sprintf("Order %s with %d items awaits processing.", p.OrderNumber, p.ItemCount), &link)
	c.sendMail(ctx, p.CustomerID, "order_confirmation", map[string]any{
		"order_number": p.OrderNumber,
		"total":        p.TotalPrice.String(),
	})
	return nil
}

func (c *Consumer) onOrderStatusChanged(ctx context.Context, p *payloads.OrderStatusChangedEvent) error {
	link := "/orders/" + p.OrderID.String()
	return c.notify(ctx, p.CustomerID, enums.NotificationTypeOrder,
		"Order update",
		fmt.Sprintf("Order %s is now %s.", p.OrderNumber, p.To), &link)
}

func (c *Consumer) onOrderCancelled(ctx context.Context, p *payloads.OrderCancelledEvent) error {
	link := "/orders/" + p.OrderID.String()
	if err := c.notify(ctx, p.CustomerID, enums.NotificationTypeOrder,
		"Order cancelled",
		fmt.Sprintf("Order %s has been cancelled.", p.OrderNumber), &link); err != nil {
		return err
	}
	c.fanOutToOperations(ctx, enums.NotificationTypeOrder,
		"Order cancelled",
		fmt.Sprintf("Order %s was cancelled (was %s).", p.OrderNumber, p.PriorStatus), &link)
	c.sendMail(ctx, p.CustomerID, "order_cancelled", map[string]any{
		"order_number": p.OrderNumber,
		"reason":       p.Reason,
	})
	return nil
}

func (c *Consumer) onPaymentCompleted(ctx context.Context, p *payloads.PaymentCompletedEvent) error {
	customerID, err := c.repo.CustomerIDForOrder(ctx, p.OrderID)
	if err != nil {
		return fmt.Errorf("resolve order customer: %w", err)
	}
	link := "/orders/" + p.OrderID.String()
	if err := c.notify(ctx, customerID, enums.NotificationTypePayment,
		"Payment received",
		fmt.Sprintf("We received your payment of %s %s.", p.Currency, p.Amount), &link); err != nil {
		return err
	}
	c.sendMail(ctx, customerID, "payment_receipt", map[string]any{
		"amount":   p.Amount.String(),
		"currency": p.Currency,
	})
	return nil
}

func (c *Consumer) onPaymentRefunded(ctx context.Context, p *payloads.PaymentRefundedEvent) error {
	customerID, err := c.repo.CustomerIDForOrder(ctx, p.OrderID)
	if err != nil {
		return fmt.Errorf("resolve order customer: %w", err)
	}
	link := "/orders/" + p.OrderID.String()
	if err := c.notify(ctx, customerID, enums.NotificationTypePayment,
		"Refund processed",
		fmt.Sprintf("A refund of %s has been processed.", p.RefundAmount), &link); err != nil {
		return err
	}
	c.sendMail(ctx, customerID, "refund_processed", map[string]any{
		"amount": p.RefundAmount.String(),
		"reason": p.Reason,
	})
	return nil
}

func (c *Consumer) onFarmerPayout(ctx context.Context, p *payloads.FarmerPayoutRecordedEvent) error {
	link := "/payments/" + p.PaymentID.String()
	return c.notify(ctx, p.FarmerID, enums.NotificationTypePayment,
		"Payout recorded",
		fmt.Sprintf("A payout of %s for %d kg has been recorded.", p.Amount, p.QuantityKg), &link)
}

func (c *Consumer) onDeliveryStatusChanged(ctx context.Context, p *payloads.DeliveryStatusChangedEvent) error {
	customerID, err := c.repo.CustomerIDForOrder(ctx, p.OrderID)
	if err != nil {
		return fmt.Errorf("resolve order customer: %w", err)
	}
	link := "/deliveries/" + p.DeliveryID.String()
	return c.notify(ctx, customerID, enums.NotificationTypeDelivery,
		"Delivery update",
		fmt.Sprintf("Your delivery is now %s.", p.To), &link)
}

func (c *Consumer) onDeliveryAttemptFailed(ctx context.Context, p *payloads.DeliveryAttemptFailedEvent) error {
	customerID, err := c.repo.CustomerIDForOrder(ctx, p.OrderID)
	if err != nil {
		return fmt.Errorf("resolve order customer: %w", err)
	}
	link := "/deliveries/" + p.DeliveryID.String()
	if err := c.notify(ctx, customerID, enums.NotificationTypeDelivery,
		"Delivery attempt failed",
		fmt.Sprintf("Delivery attempt %d failed: %s", p.AttemptNumber, p.Reason), &link); err != nil {
		return err
	}
	c.fanOutToOperations(ctx, enums.NotificationTypeDelivery,
		"Delivery attempt failed",
		fmt.Sprintf("Attempt %d for delivery %s failed: %s", p.AttemptNumber, p.DeliveryID, p.Reason), &link)
	return nil
}

func (c *Consumer) onStockLow(ctx context.Context, p *payloads.StockLowEvent) error {
	link := "/inventory/" + p.LedgerID.String()
	recipients := c.fanOutToOperations(ctx, enums.NotificationTypeInventory,
		"Low stock",
		fmt.Sprintf("%s is down to %d (threshold %d).", p.ProductName, p.CurrentStock, p.Threshold), &link)
	for _, user := range recipients {
		c.sendMailTo(ctx, user.Email, "low_stock_alert", map[string]any{
			"product": p.ProductName,
			"stock":   p.CurrentStock,
		})
	}
	return nil
}

func (c *Consumer) onStockPurchase(ctx context.Context, p *payloads.StockPurchaseRecordedEvent) error {
	link := "/inventory/" + p.LedgerID.String()
	c.fanOutToOperations(ctx, enums.NotificationTypeInventory,
		"Stock purchase recorded",
		fmt.Sprintf("%d kg received into the warehouse.", p.QuantityKg), &link)
	return c.notify(ctx, p.FarmerID, enums.NotificationTypeInventory,
		"Purchase recorded",
		fmt.Sprintf("Your delivery of %d kg has been recorded.", p.QuantityKg), &link)
}

func (c *Consumer) onStockAdjustment(ctx context.Context, p *payloads.StockAdjustmentAppliedEvent) error {
	link := "/inventory/" + p.LedgerID.String()
	c.fanOutToOperations(ctx, enums.NotificationTypeInventory,
		"Stock adjusted",
		fmt.Sprintf("Ledger adjusted by %+d, now %d.", p.Delta, p.NewStock), &link)
	return nil
}

func (c *Consumer) notify(ctx context.Context, recipientID uuid.UUID, notificationType enums.NotificationType, title, message string, link *string) error {
	if recipientID == uuid.Nil {
		return nil
	}
	err := c.repo.Create(ctx, &models.Notification{
		RecipientID: recipientID,
		Type:        notificationType,
		Title:       title,
		Message:     message,
		Link:        link,
	})
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	c.metrics.IncNotification(string(notificationType))
	return nil
}

// fanOutToOperations notifies every active staff/admin user. Failures here
// are logged and swallowed; the customer-facing notification is the one that
// decides whether the event retries.
func (c *Consumer) fanOutToOperations(ctx context.Context, notificationType enums.NotificationType, title, message string, link *string) []models.User {
	users, err := c.repo.OperationsRecipients(ctx)
	if err != nil {
		if c.logg != nil {
			c.logg.Error(ctx, "failed to load operations recipients", err)
		}
		return nil
	}
	for _, user := range users {
		if err := c.notify(ctx, user.ID, notificationType, title, message, link); err != nil && c.logg != nil {
			c.logg.Error(ctx, "failed to notify operations user", err)
		}
	}
	return users
}

func (c *Consumer) sendMail(ctx context.Context, userID uuid.UUID, template string, data map[string]any) {
	if c.mail == nil || userID == uuid.Nil {
		return
	}
	user, err := c.repo.FindUser(ctx, userID)
	if err != nil {
		if c.logg != nil {
			c.logg.Warn(c.logg.WithField(ctx, "user_id", userID.String()), "mail recipient lookup failed")
		}
		return
	}
	c.sendMailTo(ctx, user.Email, template, data)
}

func (c *Consumer) sendMailTo(ctx context.Context, email, template string, data map[string]any) {
	if c.mail == nil || email == "" {
		return
	}
	if err := c.mail.Send(ctx, template, email, data); err != nil && c.logg != nil {
		c.logg.Error(c.logg.WithField(ctx, "template", template), "mail dispatch failed", err)
	}
}
