package notifications

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/riceup-labs/riceup-backend/pkg/config"
	"github.com/riceup-labs/riceup-backend/pkg/db/models"
	"github.com/riceup-labs/riceup-backend/pkg/enums"
	"github.com/riceup-labs/riceup-backend/pkg/outbox"
	"github.com/riceup-labs/riceup-backend/pkg/outbox/payloads"
	"github.com/riceup-labs/riceup-backend/pkg/outbox/registry"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:notifications_" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&models.User{},
		&models.Notification{},
		&models.OutboxEvent{},
	))
	return gdb
}

type fakeGuard struct {
	seen    map[uuid.UUID]bool
	deleted []uuid.UUID
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{seen: map[uuid.UUID]bool{}}
}

func (f *fakeGuard) CheckAndMarkProcessed(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	if f.seen[eventID] {
		return true, nil
	}
	f.seen[eventID] = true
	return false, nil
}

func (f *fakeGuard) Delete(_ context.Context, _ string, eventID uuid.UUID) error {
	delete(f.seen, eventID)
	f.deleted = append(f.deleted, eventID)
	return nil
}

type mailCall struct {
	template  string
	recipient string
}

type fakeMailer struct {
	sent []mailCall
}

func (f *fakeMailer) Send(_ context.Context, template, recipient string, _ map[string]any) error {
	f.sent = append(f.sent, mailCall{template: template, recipient: recipient})
	return nil
}

// emitAndResolve pushes a domain event through the real outbox write path and
// decodes the stored row, so the consumer sees exactly what the worker would.
func emitAndResolve(t *testing.T, gdb *gorm.DB, event outbox.DomainEvent) *registry.ResolvedEvent {
	t.Helper()
	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), nil)
	require.NoError(t, gdb.Transaction(func(tx *gorm.DB) error {
		return outboxSvc.Emit(context.Background(), tx, event)
	}))

	var row models.OutboxEvent
	require.NoError(t, gdb.Where("aggregate_id = ?", event.AggregateID).Order("created_at DESC").First(&row).Error)

	reg, err := registry.NewEventRegistry(config.PubSubConfig{DomainTopic: "riceup-domain-events"})
	require.NoError(t, err)
	resolved, err := reg.Resolve(row)
	require.NoError(t, err)
	return resolved
}

func seedUser(t *testing.T, gdb *gorm.DB, role enums.UserRole, email string) *models.User {
	t.Helper()
	user := &models.User{
		ID:       uuid.New(),
		Email:    email,
		Name:     "Test User",
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, gdb.Create(user).Error)
	return user
}

func TestHandleOrderCreatedNotifiesCustomerAndOperations(t *testing.T) {
	t.Parallel()
	gdb := newTestDB(t)
	customer := seedUser(t, gdb, enums.UserRoleCustomer, "customer@example.com")
	staff := seedUser(t, gdb, enums.UserRoleStaff, "staff@example.com")
	seedUser(t, gdb, enums.UserRoleFarmer, "farmer@example.com")

	mail := &fakeMailer{}
	consumer, err := NewConsumer(NewRepository(gdb), newFakeGuard(), mail, nil, nil)
	require.NoError(t, err)

	orderID := uuid.New()
	resolved := emitAndResolve(t, gdb, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data: payloads.OrderCreatedEvent{
			OrderID:     orderID,
			OrderNumber: "ORD-20260901-0001",
			CustomerID:  customer.ID,
			TotalPrice:  decimal.RequireFromString("387.50"),
			ItemCount:   2,
		},
	})

	require.NoError(t, consumer.Handle(context.Background(), resolved))

	var customerNotifs []models.Notification
	require.NoError(t, gdb.Where("recipient_id = ?", customer.ID).Find(&customerNotifs).Error)
	require.Len(t, customerNotifs, 1)
	assert.Equal(t, enums.NotificationTypeOrder, customerNotifs[0].Type)

	// fan-out reaches active staff but not the farmer
	var staffNotifs, farmerNotifs int64
	require.NoError(t, gdb.Model(&models.Notification{}).Where("recipient_id = ?", staff.ID).Count(&staffNotifs).Error)
	require.NoError(t, gdb.Model(&models.Notification{}).Where("recipient_id NOT IN ?", []uuid.UUID{customer.ID, staff.ID}).Count(&farmerNotifs).Error)
	assert.EqualValues(t, 1, staffNotifs)
	assert.Zero(t, farmerNotifs)

	require.Len(t, mail.sent, 1)
	assert.Equal(t, "order_confirmation", mail.sent[0].template)
	assert.Equal(t, "customer@example.com", mail.sent[0].recipient)
}

func TestHandleSuppressesDuplicateDelivery(t *testing.T) {
	t.Parallel()
	gdb := newTestDB(t)
	customer := seedUser(t, gdb, enums.UserRoleCustomer, "customer@example.com")

	consumer, err := NewConsumer(NewRepository(gdb), newFakeGuard(), nil, nil, nil)
	require.NoError(t, err)

	orderID := uuid.New()
	resolved := emitAndResolve(t, gdb, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data: payloads.OrderCreatedEvent{
			OrderID:     orderID,
			OrderNumber: "ORD-20260901-0002",
			CustomerID:  customer.ID,
			TotalPrice:  decimal.RequireFromString("120"),
			ItemCount:   1,
		},
	})

	require.NoError(t, consumer.Handle(context.Background(), resolved))
	require.NoError(t, consumer.Handle(context.Background(), resolved))

	var count int64
	require.NoError(t, gdb.Model(&models.Notification{}).Where("recipient_id = ?", customer.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestHandleClearsMarkerOnFailure(t *testing.T) {
	t.Parallel()
	gdb := newTestDB(t)
	customer := seedUser(t, gdb, enums.UserRoleCustomer, "customer@example.com")
	guard := newFakeGuard()

	consumer, err := NewConsumer(NewRepository(gdb), guard, nil, nil, nil)
	require.NoError(t, err)

	orderID := uuid.New()
	resolved := emitAndResolve(t, gdb, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data: payloads.OrderCreatedEvent{
			OrderID:     orderID,
			OrderNumber: "ORD-20260901-0003",
			CustomerID:  customer.ID,
			TotalPrice:  decimal.RequireFromString("100"),
			ItemCount:   1,
		},
	})

	// break the notifications table so the handler fails
	require.NoError(t, gdb.Migrator().DropTable(&models.Notification{}))
	require.Error(t, consumer.Handle(context.Background(), resolved))
	require.Len(t, guard.deleted, 1)

	// redelivery succeeds once the fault is gone
	require.NoError(t, gdb.AutoMigrate(&models.Notification{}))
	require.NoError(t, consumer.Handle(context.Background(), resolved))
}

func TestHandleStockLowTargetsOperationsOnly(t *testing.T) {
	t.Parallel()
	gdb := newTestDB(t)
	seedUser(t, gdb, enums.UserRoleCustomer, "customer@example.com")
	staff := seedUser(t, gdb, enums.UserRoleStaff, "staff@example.com")
	admin := seedUser(t, gdb, enums.UserRoleAdmin, "admin@example.com")

	mail := &fakeMailer{}
	consumer, err := NewConsumer(NewRepository(gdb), newFakeGuard(), mail, nil, nil)
	require.NoError(t, err)

	ledgerID := uuid.New()
	resolved := emitAndResolve(t, gdb, outbox.DomainEvent{
		EventType:     enums.EventStockLow,
		AggregateType: enums.AggregateStockLedger,
		AggregateID:   ledgerID,
		Data: payloads.StockLowEvent{
			LedgerID:     ledgerID,
			ProductID:    uuid.New(),
			ProductName:  "Ponni Raw Rice",
			CurrentStock: 4,
			Threshold:    10,
		},
	})

	require.NoError(t, consumer.Handle(context.Background(), resolved))

	var recipients []uuid.UUID
	require.NoError(t, gdb.Model(&models.Notification{}).Pluck("recipient_id", &recipients).Error)
	assert.ElementsMatch(t, []uuid.UUID{staff.ID, admin.ID}, recipients)

	var inventoryCount int64
	require.NoError(t, gdb.Model(&models.Notification{}).Where("type = ?", enums.NotificationTypeInventory).Count(&inventoryCount).Error)
	assert.EqualValues(t, 2, inventoryCount)
}

func TestHandleRejectsUnknownEventID(t *testing.T) {
	t.Parallel()
	gdb := newTestDB(t)

	consumer, err := NewConsumer(NewRepository(gdb), newFakeGuard(), nil, nil, nil)
	require.NoError(t, err)

	err = consumer.Handle(context.Background(), nil)
	require.Error(t, err)
	var nonRetryable registry.NonRetryableError
	assert.ErrorAs(t, err, &nonRetryable)
}
