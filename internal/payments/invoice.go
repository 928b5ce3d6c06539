package payments

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/riceup-labs/riceup-backend/pkg/config"
	"github.com/riceup-labs/riceup-backend/pkg/db/models"
)

// buildOrderInvoice freezes an invoice for a settled customer payment from
// the order's line-item snapshots.
func buildOrderInvoice(cfg config.BillingConfig, order *models.Order, payment *models.Payment, now time.Time) *models.InvoiceSnapshot {
	lines := make([]models.InvoiceLine, 0, len(order.Items)+1)
	for _, item := range order.Items {
		lines = append(lines, models.InvoiceLine{
			Description: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       item.LineTotal,
		})
	}
	if order.ShippingPrice.IsPositive() {
		lines = append(lines, models.InvoiceLine{
			Description: "Shipping",
			Quantity:    1,
			UnitPrice:   order.ShippingPrice,
			Total:       order.ShippingPrice,
		})
	}
	return &models.InvoiceSnapshot{
		Number:   invoiceNumber(cfg, payment, now),
		Seller:   cfg.InvoiceSeller,
		Lines:    lines,
		Subtotal: order.ItemsPrice.Add(order.ShippingPrice),
		Tax:      order.TaxPrice,
		Total:    order.TotalPrice,
		IssuedAt: now,
	}
}

// buildPayoutInvoice freezes an invoice for a farmer payout. Payouts carry no
// tax; the total is quantity times the agreed rate.
func buildPayoutInvoice(cfg config.BillingConfig, ledger *models.StockLedger, payment *models.Payment, now time.Time) *models.InvoiceSnapshot {
	total := ledger.PurchasePrice.Mul(decimal.NewFromInt(int64(ledger.QuantityPurchased))).Round(2)
	return &models.InvoiceSnapshot{
		Number: invoiceNumber(cfg, payment, now),
		Seller: cfg.InvoiceSeller,
		Lines: []models.InvoiceLine{{
			Description: fmt.Sprintf("Paddy purchase, %d kg", ledger.QuantityPurchased),
			Quantity:    ledger.QuantityPurchased,
			UnitPrice:   ledger.PurchasePrice,
			Total:       total,
		}},
		Subtotal: total,
		Tax:      decimal.Zero,
		Total:    total,
		IssuedAt: now,
	}
}

func invoiceNumber(cfg config.BillingConfig, payment *models.Payment, now time.Time) string {
	short := strings.ToUpper(strings.ReplaceAll(payment.ID.String(), "-", ""))[:8]
	return fmt.Sprintf("%s-%s-%s", cfg.InvoiceNumPrefix, now.Format("20060102"), short)
}
