package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/shopspring/decimal"

	"github.com/riceup-labs/riceup-backend/pkg/config"
	pkgerrors "github.com/riceup-labs/riceup-backend/pkg/errors"
	"github.com/riceup-labs/riceup-backend/pkg/logger"
)

var (
	errKeyIDRequired     = errors.New("gateway key id is required")
	errKeySecretRequired = errors.New("gateway key secret is required")
	errLoggerRequired    = errors.New("gateway logger is required")
)

// paiseFactor converts major currency units to the gateway's minor units.
var paiseFactor = decimal.NewFromInt(100)

// Order is the gateway-side order created before collecting an online payment.
type Order struct {
	ID       string
	Amount   decimal.Decimal
	Currency string
}

// Refund is the gateway-side refund record.
type Refund struct {
	ID     string
	Status string
}

// Client wraps the Razorpay SDK with centralized credentials, logging and
// error mapping. The key secret doubles as the callback HMAC secret.
type Client struct {
	sdk       *razorpay.Client
	keyID     string
	keySecret string
	currency  string
	logger    *logger.Logger
}

// NewClient initializes the gateway wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.GatewayConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errKeyIDRequired
	}
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, errKeySecretRequired
	}
	currency := strings.TrimSpace(cfg.Currency)
	if currency == "" {
		currency = "INR"
	}

	c := &Client{
		sdk:       razorpay.NewClient(keyID, keySecret),
		keyID:     keyID,
		keySecret: keySecret,
		currency:  currency,
		logger:    logg,
	}

	logg.Info(ctx, "payment gateway client initialized")
	return c, nil
}

// KeyID returns the public key identifier handed to checkout clients.
func (c *Client) KeyID() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

// SigningSecret returns the HMAC secret for callback verification.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.keySecret
}

// Currency reports the configured settlement currency.
func (c *Client) Currency() string {
	if c == nil {
		return ""
	}
	return c.currency
}

// CreateOrder registers an order with the gateway. The amount is in major
// units and converted to paise for the wire call.
func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal, receipt string, notes map[string]interface{}) (*Order, error) {
	if c == nil || c.sdk == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway client not initialized")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	data := map[string]interface{}{
		"amount":   amount.Mul(paiseFactor).IntPart(),
		"currency": c.currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		data["notes"] = notes
	}

	body, err := c.sdk.Order.Create(data, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "create gateway order")
	}

	id, ok := body["id"].(string)
	if !ok || id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "gateway order response missing id")
	}

	logCtx := c.logger.WithFields(ctx, map[string]any{
		"gateway_order_id": id,
		"receipt":          receipt,
	})
	c.logger.Info(logCtx, "gateway order created")

	return &Order{ID: id, Amount: amount, Currency: c.currency}, nil
}

// CreateRefund issues a refund for the captured payment. A zero amount means
// refund the full captured amount.
func (c *Client) CreateRefund(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal, notes map[string]interface{}) (*Refund, error) {
	if c == nil || c.sdk == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway client not initialized")
	}
	if strings.TrimSpace(gatewayPaymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway payment id is required")
	}
	if amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must not be negative")
	}

	data := map[string]interface{}{}
	if len(notes) > 0 {
		data["notes"] = notes
	}

	paise := int(amount.Mul(paiseFactor).IntPart())
	body, err := c.sdk.Payment.Refund(gatewayPaymentID, paise, data, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "create gateway refund")
	}

	id, ok := body["id"].(string)
	if !ok || id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "gateway refund response missing id")
	}
	status, _ := body["status"].(string)

	logCtx := c.logger.WithFields(ctx, map[string]any{
		"gateway_payment_id": gatewayPaymentID,
		"gateway_refund_id":  id,
	})
	c.logger.Info(logCtx, "gateway refund created")

	return &Refund{ID: id, Status: status}, nil
}

// VerifySignature checks the checkout callback signature. The gateway signs
// "<gateway_order_id>|<gateway_payment_id>" with HMAC-SHA256 over the key
// secret and hex-encodes the digest.
func (c *Client) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	if c == nil {
		return false
	}
	return VerifySignature(gatewayOrderID, gatewayPaymentID, signature, c.keySecret)
}

// VerifySignature is the standalone form used by tests and callback handlers.
func VerifySignature(gatewayOrderID, gatewayPaymentID, signature, secret string) bool {
	if gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%s|%s", gatewayOrderID, gatewayPaymentID)))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
