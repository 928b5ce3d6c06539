package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/riceup-labs/riceup-backend/internal/inventory"
	"github.com/riceup-labs/riceup-backend/internal/orders"
	"github.com/riceup-labs/riceup-backend/pkg/config"
	"github.com/riceup-labs/riceup-backend/pkg/db/models"
	"github.com/riceup-labs/riceup-backend/pkg/enums"
	pkgerrors "github.com/riceup-labs/riceup-backend/pkg/errors"
	"github.com/riceup-labs/riceup-backend/pkg/gateway"
	"github.com/riceup-labs/riceup-backend/pkg/outbox"
)

const testGatewaySecret = "test_secret_key"

func signFor(gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, []byte(testGatewaySecret))
	mac.Write([]byte(fmt.Sprintf("%s|%s", gatewayOrderID, gatewayPaymentID)))
	return hex.EncodeToString(mac.Sum(nil))
}

type stubGateway struct {
	refunds []string
}

func (g *stubGateway) CreateOrder(_ context.Context, amount decimal.Decimal, receipt string, _ map[string]interface{}) (*gateway.Order, error) {
	return &gateway.Order{ID: "order_" + receipt, Amount: amount, Currency: "INR"}, nil
}

func (g *stubGateway) CreateRefund(_ context.Context, gatewayPaymentID string, _ decimal.Decimal, _ map[string]interface{}) (*gateway.Refund, error) {
	g.refunds = append(g.refunds, gatewayPaymentID)
	return &gateway.Refund{ID: "rfnd_" + gatewayPaymentID, Status: "processed"}, nil
}

func (g *stubGateway) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	return gateway.VerifySignature(gatewayOrderID, gatewayPaymentID, signature, testGatewaySecret)
}

func (g *stubGateway) KeyID() string    { return "rzp_test_key" }
func (g *stubGateway) Currency() string { return "INR" }

type dbTxRunner struct {
	db *gorm.DB
}

func (r *dbTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:payments_" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&models.Product{},
		&models.Order{},
		&models.OrderLineItem{},
		&models.OrderStatusEvent{},
		&models.OrderCounter{},
		&models.StockLedger{},
		&models.StockMovement{},
		&models.Payment{},
		&models.OutboxEvent{},
	))
	return gdb
}

type testEnv struct {
	db      *gorm.DB
	svc     Service
	orders  orders.Service
	gateway *stubGateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gdb := newTestDB(t)
	tx := &dbTxRunner{db: gdb}
	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), nil)
	billing := config.BillingConfig{
		TaxRatePercent:    5,
		InvoiceSeller:     "RiceUp Marketplace",
		InvoiceNumPrefix:  "INV",
		DefaultCancelNote: "Cancelled by user request",
	}

	gw := &stubGateway{}
	stock, err := inventory.NewService(inventory.NewRepository(gdb), tx, outboxSvc, nil)
	require.NoError(t, err)
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(gdb),
		Tx:       tx,
		Stock:    stock,
		Outbox:   outboxSvc,
		Verifier: gw,
		Billing:  billing,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(gdb),
		Tx:      tx,
		Gateway: gw,
		Orders:  ordersSvc,
		Outbox:  outboxSvc,
		Billing: billing,
	})
	require.NoError(t, err)

	return &testEnv{db: gdb, svc: svc, orders: ordersSvc, gateway: gw}
}

// placeOnlineOrder runs the real order pipeline so the payment flow settles a
// genuine Pending order.
func (e *testEnv) placeOnlineOrder(t *testing.T, customerID uuid.UUID) *models.Order {
	t.Helper()
	product := &models.Product{
		ID:         uuid.New(),
		Name:       "Ponni Raw Rice",
		Variety:    "Ponni",
		FarmerID:   uuid.New(),
		PricePerKg: decimal.RequireFromString("120"),
		StockQty:   10,
		IsActive:   true,
	}
	require.NoError(t, e.db.Create(product).Error)

	order, err := e.orders.Create(context.Background(), orders.CreateOrderInput{
		CustomerID: customerID,
		Items:      []orders.OrderItemInput{{ProductID: product.ID, Quantity: 4}},
		ShippingAddress: models.Address{
			FullName:   "Asha Rao",
			Phone:      "9876543210",
			Line1:      "12 Canal Road",
			City:       "Thanjavur",
			State:      "Tamil Nadu",
			PostalCode: "613001",
			Country:    "IN",
		},
		PaymentMethod: enums.PaymentMethodOnline,
		ShippingPrice: decimal.RequireFromString("20"),
		Actor:         orders.Actor{UserID: customerID, Role: enums.UserRoleCustomer},
	})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, order.Status)
	return order
}

func (e *testEnv) settledPayment(t *testing.T, customerID uuid.UUID) *models.Payment {
	t.Helper()
	order := e.placeOnlineOrder(t, customerID)
	actor := Actor{UserID: customerID, Role: enums.UserRoleCustomer}

	result, err := e.svc.CreateGatewayOrder(context.Background(), CreateGatewayOrderInput{OrderID: order.ID, Actor: actor})
	require.NoError(t, err)

	gwPaymentID := "pay_" + uuid.NewString()[:8]
	payment, err := e.svc.VerifyCallback(context.Background(), VerifyCallbackInput{
		GatewayOrderID:   result.GatewayOrderID,
		GatewayPaymentID: gwPaymentID,
		Signature:        signFor(result.GatewayOrderID, gwPaymentID),
		Actor:            actor,
	})
	require.NoError(t, err)
	return payment
}

func TestVerifyCallbackRejectsTamperedSignature(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	customerID := uuid.New()
	order := env.placeOnlineOrder(t, customerID)
	actor := Actor{UserID: customerID, Role: enums.UserRoleCustomer}

	result, err := env.svc.CreateGatewayOrder(context.Background(), CreateGatewayOrderInput{OrderID: order.ID, Actor: actor})
	require.NoError(t, err)
	assert.Equal(t, "rzp_test_key", result.KeyID)

	_, err = env.svc.VerifyCallback(context.Background(), VerifyCallbackInput{
		GatewayOrderID:   result.GatewayOrderID,
		GatewayPaymentID: "pay_forged",
		Signature:        "deadbeef",
		Actor:            actor,
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeInvalidSignature, appErr.Code())

	// nothing settled
	var payment models.Payment
	require.NoError(t, env.db.First(&payment, "gateway_order_id = ?", result.GatewayOrderID).Error)
	assert.Equal(t, enums.PaymentStatusPending, payment.Status)

	var after models.Order
	require.NoError(t, env.db.First(&after, "id = ?", order.ID).Error)
	assert.False(t, after.IsPaid)
	assert.Equal(t, enums.OrderStatusPending, after.Status)
}

func TestVerifyCallbackSettlesPaymentAndOrder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	customerID := uuid.New()
	payment := env.settledPayment(t, customerID)

	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	require.NotNil(t, payment.GatewayPaymentID)
	require.NotNil(t, payment.PaymentDate)

	require.NotNil(t, payment.Invoice)
	assert.Equal(t, "RiceUp Marketplace", payment.Invoice.Seller)
	assert.True(t, payment.Invoice.Total.Equal(payment.Amount), payment.Invoice.Total.String())
	require.NotEmpty(t, payment.Invoice.Lines)

	var after models.Order
	require.NoError(t, env.db.First(&after, "id = ?", *payment.OrderID).Error)
	assert.True(t, after.IsPaid)
	assert.Equal(t, enums.OrderStatusProcessing, after.Status)
}

func TestVerifyCallbackIsIdempotentOnReplay(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	customerID := uuid.New()
	payment := env.settledPayment(t, customerID)
	require.NotNil(t, payment.GatewayOrderID)
	require.NotNil(t, payment.GatewayPaymentID)

	_, err := env.svc.VerifyCallback(context.Background(), VerifyCallbackInput{
		GatewayOrderID:   *payment.GatewayOrderID,
		GatewayPaymentID: *payment.GatewayPaymentID,
		Signature:        signFor(*payment.GatewayOrderID, *payment.GatewayPaymentID),
		Actor:            Actor{UserID: customerID, Role: enums.UserRoleCustomer},
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeAlreadyPaid, appErr.Code())
}

func TestPartialRefund(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	customerID := uuid.New()
	payment := env.settledPayment(t, customerID)
	staff := Actor{UserID: uuid.New(), Role: enums.UserRoleStaff}

	partial := decimal.RequireFromString("200")
	refunded, err := env.svc.Refund(context.Background(), payment.ID, RefundInput{
		Amount: &partial,
		Reason: "damaged bag on arrival",
		Actor:  staff,
	})
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundAmount)
	assert.True(t, refunded.RefundAmount.Equal(partial))
	require.NotNil(t, refunded.RefundMethod)
	assert.Equal(t, "gateway", *refunded.RefundMethod)
	require.NotNil(t, refunded.GatewayRefundID)
	require.NotNil(t, refunded.RefundedBy)
	assert.Equal(t, staff.UserID, *refunded.RefundedBy)
	assert.Len(t, env.gateway.refunds, 1)

	var after models.Order
	require.NoError(t, env.db.First(&after, "id = ?", *payment.OrderID).Error)
	assert.Equal(t, enums.OrderStatusRefunded, after.Status)
}

func TestRefundRejectsExcessAmount(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	customerID := uuid.New()
	payment := env.settledPayment(t, customerID)

	excess := payment.Amount.Add(decimal.RequireFromString("1"))
	_, err := env.svc.Refund(context.Background(), payment.ID, RefundInput{
		Amount: &excess,
		Actor:  Actor{UserID: uuid.New(), Role: enums.UserRoleStaff},
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())
	assert.Empty(t, env.gateway.refunds)
}

func TestRefundRejectsSecondAttempt(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	customerID := uuid.New()
	payment := env.settledPayment(t, customerID)
	staff := Actor{UserID: uuid.New(), Role: enums.UserRoleStaff}

	_, err := env.svc.Refund(context.Background(), payment.ID, RefundInput{Actor: staff})
	require.NoError(t, err)

	_, err = env.svc.Refund(context.Background(), payment.ID, RefundInput{Actor: staff})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeAlreadyRefunded, appErr.Code())
	assert.Len(t, env.gateway.refunds, 1)
}

func TestRefundRejectsPendingPayment(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	customerID := uuid.New()
	order := env.placeOnlineOrder(t, customerID)
	actor := Actor{UserID: customerID, Role: enums.UserRoleCustomer}

	result, err := env.svc.CreateGatewayOrder(context.Background(), CreateGatewayOrderInput{OrderID: order.ID, Actor: actor})
	require.NoError(t, err)

	_, err = env.svc.Refund(context.Background(), result.PaymentID, RefundInput{
		Actor: Actor{UserID: uuid.New(), Role: enums.UserRoleStaff},
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeConflict, appErr.Code())
}

func TestCreateGatewayOrderRejectsPaidOrder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	customerID := uuid.New()
	payment := env.settledPayment(t, customerID)

	_, err := env.svc.CreateGatewayOrder(context.Background(), CreateGatewayOrderInput{
		OrderID: *payment.OrderID,
		Actor:   Actor{UserID: customerID, Role: enums.UserRoleCustomer},
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeAlreadyPaid, appErr.Code())
}

func TestFarmerPayoutRecordsInvoice(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	ledger := &models.StockLedger{
		ID:                uuid.New(),
		ProductID:         uuid.New(),
		FarmerID:          uuid.New(),
		QuantityPurchased: 100,
		PurchasePrice:     decimal.RequireFromString("38.50"),
		SellingPrice:      decimal.RequireFromString("62"),
		CurrentStock:      100,
		LowStockThreshold: 10,
	}
	ledger.Recompute()
	require.NoError(t, env.db.Create(ledger).Error)

	payment, err := env.svc.FarmerPayout(context.Background(), FarmerPayoutInput{
		LedgerID:      ledger.ID,
		BankAccount:   "123456789012",
		BankIFSC:      "SBIN0001234",
		AccountHolder: "K Murugan",
		Actor:         Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin},
	})
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentTypeFarmer, payment.Type)
	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	assert.True(t, payment.Amount.Equal(decimal.RequireFromString("3850")), payment.Amount.String())

	require.NotNil(t, payment.Payout)
	assert.Equal(t, ledger.FarmerID, payment.Payout.FarmerID)
	assert.Equal(t, 100, payment.Payout.QuantityKg)
	assert.Equal(t, "SBIN0001234", payment.Payout.BankIFSC)

	require.NotNil(t, payment.Invoice)
	assert.True(t, payment.Invoice.Tax.IsZero())
	assert.True(t, payment.Invoice.Total.Equal(payment.Amount))
}

func TestGetInvoiceReturnsFrozenSnapshot(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	customerID := uuid.New()
	payment := env.settledPayment(t, customerID)

	invoice, err := env.svc.GetInvoice(context.Background(), payment.ID, Actor{UserID: customerID, Role: enums.UserRoleCustomer})
	require.NoError(t, err)
	assert.Equal(t, payment.Invoice.Number, invoice.Number)
	assert.True(t, invoice.Total.Equal(payment.Amount))
}
