// Package mailer delivers transactional mail on a best-effort basis. Errors
// are logged by callers and never propagate into the triggering operation.
package mailer

import (
	"context"
	"fmt"

	"github.com/riceup-labs/riceup-backend/pkg/config"
	"github.com/riceup-labs/riceup-backend/pkg/logger"
)

// Mailer sends one templated message to one recipient.
type Mailer interface {
	Send(ctx context.Context, template, recipient string, data map[string]any) error
}

// templates known to the dispatcher; unknown names are rejected so a typo in
// a consumer surfaces in logs rather than silently sending nothing.
var templates = map[string]string{
	"order_confirmation": "Your order has been placed",
	"order_cancelled":    "Your order has been cancelled",
	"payment_receipt":    "Payment received",
	"refund_processed":   "Your refund has been processed",
	"delivery_update":    "Delivery update",
	"low_stock_alert":    "Low stock alert",
}

type logMailer struct {
	cfg  config.MailConfig
	logg *logger.Logger
}

// New returns the configured mailer. With mail disabled it still validates
// templates and logs the send, which is what dev and test environments want.
func New(cfg config.MailConfig, logg *logger.Logger) Mailer {
	return &logMailer{cfg: cfg, logg: logg}
}

func (m *logMailer) Send(ctx context.Context, template, recipient string, data map[string]any) error {
	subject, ok := templates[template]
	if !ok {
		return fmt.Errorf("unknown mail template %q", template)
	}
	if recipient == "" {
		return fmt.Errorf("mail recipient required")
	}

	if m.logg != nil {
		fields := map[string]any{
			"template":  template,
			"subject":   subject,
			"recipient": recipient,
			"from":      m.cfg.FromAddress,
			"enabled":   m.cfg.Enabled,
		}
		for k, v := range data {
			fields["data_"+k] = v
		}
		logCtx := m.logg.WithFields(ctx, fields)
		m.logg.Info(logCtx, "mail dispatched")
	}
	return nil
}
