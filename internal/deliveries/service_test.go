package deliveries

import (
	"context"
	"testing"
	"time"

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
	"github.com/riceup-labs/riceup-backend/pkg/outbox"
)

type dbTxRunner struct {
	db *gorm.DB
}

func (r *dbTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type okVerifier struct{}

func (okVerifier) VerifySignature(_, _, _ string) bool { return true }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:deliveries_" + uuid.NewString() + "?mode=memory&cache=shared"
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
		&models.Delivery{},
		&models.DeliveryTrackingUpdate{},
		&models.DeliveryAttempt{},
		&models.OutboxEvent{},
	))
	return gdb
}

type testEnv struct {
	db     *gorm.DB
	svc    Service
	orders orders.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gdb := newTestDB(t)
	tx := &dbTxRunner{db: gdb}
	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), nil)

	stock, err := inventory.NewService(inventory.NewRepository(gdb), tx, outboxSvc, nil)
	require.NoError(t, err)
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(gdb),
		Tx:       tx,
		Stock:    stock,
		Outbox:   outboxSvc,
		Verifier: okVerifier{},
		Billing: config.BillingConfig{
			TaxRatePercent:    5,
			DefaultCancelNote: "Cancelled by user request",
		},
	})
	require.NoError(t, err)

	svc, err := NewService(NewRepository(gdb), tx, ordersSvc, outboxSvc)
	require.NoError(t, err)
	return &testEnv{db: gdb, svc: svc, orders: ordersSvc}
}

// packedOrder walks a freshly placed order to Packed so a delivery can be
// scheduled against it.
func (e *testEnv) packedOrder(t *testing.T, customerID uuid.UUID) *models.Order {
	t.Helper()
	product := &models.Product{
		ID:         uuid.New(),
		Name:       "Sona Masoori Rice",
		Variety:    "Sona Masoori",
		FarmerID:   uuid.New(),
		PricePerKg: decimal.RequireFromString("54"),
		StockQty:   25,
		IsActive:   true,
	}
	require.NoError(t, e.db.Create(product).Error)

	order, err := e.orders.Create(context.Background(), orders.CreateOrderInput{
		CustomerID: customerID,
		Items:      []orders.OrderItemInput{{ProductID: product.ID, Quantity: 5}},
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
		ShippingPrice: decimal.RequireFromString("30"),
		PaymentResult: &orders.PaymentResult{
			GatewayOrderID:   "order_del_" + uuid.NewString()[:8],
			GatewayPaymentID: "pay_del_" + uuid.NewString()[:8],
			Signature:        "sig",
		},
		Actor: orders.Actor{UserID: customerID, Role: enums.UserRoleCustomer},
	})
	require.NoError(t, err)

	staff := orders.Actor{UserID: uuid.New(), Role: enums.UserRoleStaff}
	order, err = e.orders.UpdateStatus(context.Background(), order.ID, orders.UpdateStatusInput{
		Status: enums.OrderStatusPacked,
		Actor:  staff,
	})
	require.NoError(t, err)
	return order
}

func (e *testEnv) scheduled(t *testing.T, customerID uuid.UUID) *models.Delivery {
	t.Helper()
	order := e.packedOrder(t, customerID)
	agentID := uuid.New()
	delivery, err := e.svc.Create(context.Background(), CreateDeliveryInput{
		OrderID:       order.ID,
		ScheduledDate: time.Now().AddDate(0, 0, 2),
		TimeSlot:      "10:00-13:00",
		AgentID:       &agentID,
		Actor:         Actor{UserID: uuid.New(), Role: enums.UserRoleStaff},
	})
	require.NoError(t, err)
	return delivery
}

func TestCreateDeliverySnapshotsOrder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	customerID := uuid.New()
	delivery := env.scheduled(t, customerID)

	assert.Equal(t, enums.DeliveryStatusScheduled, delivery.Status)
	assert.Equal(t, customerID, delivery.CustomerID)
	assert.Equal(t, "Thanjavur", delivery.Address.City)

	var updates []models.DeliveryTrackingUpdate
	require.NoError(t, env.db.Where("delivery_id = ?", delivery.ID).Find(&updates).Error)
	require.Len(t, updates, 1)
	assert.Equal(t, enums.DeliveryStatusScheduled, updates[0].Status)
}

func TestCreateDeliveryRequiresPackedOrShippedOrder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	product := &models.Product{
		ID:         uuid.New(),
		Name:       "Sona Masoori Rice",
		Variety:    "Sona Masoori",
		FarmerID:   uuid.New(),
		PricePerKg: decimal.RequireFromString("54"),
		StockQty:   25,
		IsActive:   true,
	}
	require.NoError(t, env.db.Create(product).Error)

	customerID := uuid.New()
	order, err := env.orders.Create(context.Background(), orders.CreateOrderInput{
		CustomerID:      customerID,
		Items:           []orders.OrderItemInput{{ProductID: product.ID, Quantity: 1}},
		ShippingAddress: models.Address{FullName: "Asha Rao", Phone: "9876543210", Line1: "12 Canal Road", City: "Thanjavur", State: "Tamil Nadu", PostalCode: "613001", Country: "IN"},
		PaymentMethod:   enums.PaymentMethodCOD,
		Actor:           orders.Actor{UserID: customerID, Role: enums.UserRoleCustomer},
	})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, order.Status)

	_, err = env.svc.Create(context.Background(), CreateDeliveryInput{
		OrderID:       order.ID,
		ScheduledDate: time.Now().AddDate(0, 0, 1),
		TimeSlot:      "10:00-13:00",
		Actor:         Actor{UserID: uuid.New(), Role: enums.UserRoleStaff},
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeInvalidTransition, appErr.Code())
}

func TestCreateDeliveryIsOneToOnePerOrder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	customerID := uuid.New()
	delivery := env.scheduled(t, customerID)

	_, err := env.svc.Create(context.Background(), CreateDeliveryInput{
		OrderID:       delivery.OrderID,
		ScheduledDate: time.Now().AddDate(0, 0, 3),
		TimeSlot:      "14:00-17:00",
		Actor:         Actor{UserID: uuid.New(), Role: enums.UserRoleStaff},
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeConflict, appErr.Code())
}

func TestDeliveredPropagatesToOrder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	customerID := uuid.New()
	delivery := env.scheduled(t, customerID)
	agent := Actor{UserID: uuid.New(), Role: enums.UserRoleAgent}

	for _, status := range []enums.DeliveryStatus{
		enums.DeliveryStatusInTransit,
		enums.DeliveryStatusOutForDelivery,
	} {
		_, err := env.svc.UpdateStatus(context.Background(), delivery.ID, UpdateStatusInput{Status: status, Actor: agent})
		require.NoError(t, err)
	}

	updated, err := env.svc.UpdateStatus(context.Background(), delivery.ID, UpdateStatusInput{
		Status: enums.DeliveryStatusDelivered,
		Note:   "handed to customer",
		Actor:  agent,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusDelivered, updated.Status)
	require.NotNil(t, updated.ActualDeliveryTime)

	var order models.Order
	require.NoError(t, env.db.First(&order, "id = ?", delivery.OrderID).Error)
	assert.Equal(t, enums.OrderStatusDelivered, order.Status)
	assert.True(t, order.IsDelivered)
	require.NotNil(t, order.DeliveredAt)
}

func TestFailedAttemptIsRecorded(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	customerID := uuid.New()
	delivery := env.scheduled(t, customerID)
	agent := Actor{UserID: uuid.New(), Role: enums.UserRoleAgent}

	_, err := env.svc.UpdateStatus(context.Background(), delivery.ID, UpdateStatusInput{
		Status: enums.DeliveryStatusInTransit,
		Actor:  agent,
	})
	require.NoError(t, err)

	updated, err := env.svc.UpdateStatus(context.Background(), delivery.ID, UpdateStatusInput{
		Status: enums.DeliveryStatusFailed,
		Note:   "customer not at home",
		Actor:  agent,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusFailed, updated.Status)
	require.NotNil(t, updated.FailureReason)
	assert.Equal(t, "customer not at home", *updated.FailureReason)

	var attempts []models.DeliveryAttempt
	require.NoError(t, env.db.Where("delivery_id = ?", delivery.ID).Find(&attempts).Error)
	require.Len(t, attempts, 1)
	assert.Equal(t, "customer not at home", attempts[0].Reason)

	var order models.Order
	require.NoError(t, env.db.First(&order, "id = ?", delivery.OrderID).Error)
	assert.False(t, order.IsDelivered)
}

func TestFailedRequiresReasonNote(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	customerID := uuid.New()
	delivery := env.scheduled(t, customerID)
	agent := Actor{UserID: uuid.New(), Role: enums.UserRoleAgent}

	_, err := env.svc.UpdateStatus(context.Background(), delivery.ID, UpdateStatusInput{
		Status: enums.DeliveryStatusInTransit,
		Actor:  agent,
	})
	require.NoError(t, err)

	_, err = env.svc.UpdateStatus(context.Background(), delivery.ID, UpdateStatusInput{
		Status: enums.DeliveryStatusFailed,
		Actor:  agent,
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())
}

func TestUpdateStatusRejectsIllegalJump(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	customerID := uuid.New()
	delivery := env.scheduled(t, customerID)

	_, err := env.svc.UpdateStatus(context.Background(), delivery.ID, UpdateStatusInput{
		Status: enums.DeliveryStatusDelivered,
		Actor:  Actor{UserID: uuid.New(), Role: enums.UserRoleAgent},
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeInvalidTransition, appErr.Code())
}

func TestRescheduleAfterFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	customerID := uuid.New()
	delivery := env.scheduled(t, customerID)
	agent := Actor{UserID: uuid.New(), Role: enums.UserRoleAgent}

	_, err := env.svc.UpdateStatus(context.Background(), delivery.ID, UpdateStatusInput{
		Status: enums.DeliveryStatusInTransit,
		Actor:  agent,
	})
	require.NoError(t, err)
	_, err = env.svc.UpdateStatus(context.Background(), delivery.ID, UpdateStatusInput{
		Status: enums.DeliveryStatusFailed,
		Note:   "address unreachable",
		Actor:  agent,
	})
	require.NoError(t, err)
	_, err = env.svc.UpdateStatus(context.Background(), delivery.ID, UpdateStatusInput{
		Status: enums.DeliveryStatusRescheduled,
		Actor:  Actor{UserID: uuid.New(), Role: enums.UserRoleStaff},
	})
	require.NoError(t, err)

	newDate := time.Now().AddDate(0, 0, 4)
	updated, err := env.svc.Reschedule(context.Background(), delivery.ID, RescheduleInput{
		ScheduledDate: newDate,
		TimeSlot:      "14:00-17:00",
		Actor:         Actor{UserID: uuid.New(), Role: enums.UserRoleStaff},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusScheduled, updated.Status)
	assert.Equal(t, "14:00-17:00", updated.TimeSlot)
	assert.Nil(t, updated.FailureReason)
}

func TestRescheduleRejectedWhileOutForDelivery(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	customerID := uuid.New()
	delivery := env.scheduled(t, customerID)
	agent := Actor{UserID: uuid.New(), Role: enums.UserRoleAgent}

	_, err := env.svc.UpdateStatus(context.Background(), delivery.ID, UpdateStatusInput{
		Status: enums.DeliveryStatusInTransit,
		Actor:  agent,
	})
	require.NoError(t, err)

	_, err = env.svc.Reschedule(context.Background(), delivery.ID, RescheduleInput{
		ScheduledDate: time.Now().AddDate(0, 0, 1),
		TimeSlot:      "10:00-13:00",
		Actor:         Actor{UserID: uuid.New(), Role: enums.UserRoleStaff},
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeInvalidTransition, appErr.Code())
}
