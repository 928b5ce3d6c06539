package inventory

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

	"github.com/riceup-labs/riceup-backend/pkg/db/models"
	"github.com/riceup-labs/riceup-backend/pkg/enums"
	pkgerrors "github.com/riceup-labs/riceup-backend/pkg/errors"
	"github.com/riceup-labs/riceup-backend/pkg/outbox"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&models.Product{},
		&models.StockLedger{},
		&models.StockMovement{},
		&models.OutboxEvent{},
	))
	return gdb
}

type dbTxRunner struct {
	db *gorm.DB
}

func (r *dbTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestService(t *testing.T, gdb *gorm.DB) Service {
	t.Helper()
	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), nil)
	svc, err := NewService(NewRepository(gdb), &dbTxRunner{db: gdb}, outboxSvc, nil)
	require.NoError(t, err)
	return svc
}

func seedProduct(t *testing.T, gdb *gorm.DB, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:         uuid.New(),
		Name:       "Ponni Raw Rice",
		Variety:    "Ponni",
		FarmerID:   uuid.New(),
		PricePerKg: decimal.RequireFromString("62"),
		StockQty:   stock,
		IsActive:   true,
	}
	require.NoError(t, gdb.Create(product).Error)
	return product
}

func seedLedger(t *testing.T, gdb *gorm.DB, product *models.Product, stock, threshold int) *models.StockLedger {
	t.Helper()
	ledger := &models.StockLedger{
		ID:                uuid.New(),
		ProductID:         product.ID,
		FarmerID:          product.FarmerID,
		QuantityPurchased: stock,
		PurchasePrice:     decimal.RequireFromString("38"),
		SellingPrice:      product.PricePerKg,
		CurrentStock:      stock,
		LowStockThreshold: threshold,
	}
	ledger.Recompute()
	require.NoError(t, gdb.Create(ledger).Error)
	return ledger
}

func seedSaleMovement(t *testing.T, gdb *gorm.DB, ledgerID uuid.UUID, delta int, at time.Time) {
	t.Helper()
	require.NoError(t, gdb.Create(&models.StockMovement{
		ID:        uuid.New(),
		LedgerID:  ledgerID,
		Delta:     delta,
		Type:      enums.MovementTypeSale,
		ActorID:   uuid.New(),
		CreatedAt: at,
	}).Error)
}

// rivalWriterRepo applies an extra committed delta to the target ledger just
// before the first conditional update, standing in for another transaction
// that moved the stock between the service's read and its write.
type rivalWriterRepo struct {
	Repository
	gdb    *gorm.DB
	target uuid.UUID
	extra  int
}

func (r *rivalWriterRepo) WithTx(tx *gorm.DB) Repository {
	return &rivalWriterRepo{Repository: r.Repository.WithTx(tx), gdb: tx, target: r.target, extra: r.extra}
}

func (r *rivalWriterRepo) AdjustLedgerStock(ctx context.Context, ledgerID uuid.UUID, delta int) (bool, error) {
	if r.extra != 0 && ledgerID == r.target {
		err := r.gdb.Model(&models.StockLedger{}).
			Where("id = ?", ledgerID).
			UpdateColumn("current_stock", gorm.Expr("current_stock + ?", r.extra)).Error
		if err != nil {
			return false, err
		}
		r.extra = 0
	}
	return r.Repository.AdjustLedgerStock(ctx, ledgerID, delta)
}

func TestRecordPurchaseCreatesLedgerAndMovement(t *testing.T) {
	t.Parallel()
	gdb := newTestDB(t)
	svc := newTestService(t, gdb)
	product := seedProduct(t, gdb, 5)

	ledger, err := svc.RecordPurchase(context.Background(), RecordPurchaseInput{
		ProductID:         product.ID,
		FarmerID:          product.FarmerID,
		QuantityPurchased: 40,
		PurchasePrice:     decimal.RequireFromString("38"),
		SellingPrice:      decimal.RequireFromString("62"),
		LowStockThreshold: 10,
		Actor:             Actor{UserID: uuid.New(), Role: enums.UserRoleStaff},
	})
	require.NoError(t, err)

	assert.Equal(t, 40, ledger.CurrentStock)
	assert.Equal(t, enums.StockStatusAvailable, ledger.Status)
	assert.False(t, ledger.IsLowStock)

	// purchases land on the sellable product count too
	var after models.Product
	require.NoError(t, gdb.First(&after, "id = ?", product.ID).Error)
	assert.Equal(t, 45, after.StockQty)

	var movements []models.StockMovement
	require.NoError(t, gdb.Where("ledger_id = ?", ledger.ID).Find(&movements).Error)
	require.Len(t, movements, 1)
	assert.Equal(t, enums.MovementTypePurchase, movements[0].Type)
	assert.Equal(t, 40, movements[0].Delta)

	var eventCount int64
	require.NoError(t, gdb.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventStockPurchaseRecorded).Count(&eventCount).Error)
	assert.EqualValues(t, 1, eventCount)
}

func TestRecordPurchaseRequiresExistingProduct(t *testing.T) {
	t.Parallel()
	gdb := newTestDB(t)
	svc := newTestService(t, gdb)

	_, err := svc.RecordPurchase(context.Background(), RecordPurchaseInput{
		ProductID:         uuid.New(),
		FarmerID:          uuid.New(),
		QuantityPurchased: 10,
		PurchasePrice:     decimal.RequireFromString("38"),
		SellingPrice:      decimal.RequireFromString("62"),
		Actor:             Actor{UserID: uuid.New(), Role: enums.UserRoleStaff},
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeNotFound, appErr.Code())
}

func TestAdjustRejectsNegativeResult(t *testing.T) {
	t.Parallel()
	gdb := newTestDB(t)
	svc := newTestService(t, gdb)
	product := seedProduct(t, gdb, 5)
	ledger := seedLedger(t, gdb, product, 5, 2)

	_, err := svc.Adjust(context.Background(), ledger.ID, AdjustInput{
		Delta:  -8,
		Type:   enums.MovementTypeLoss,
		Reason: "spillage during transfer",
		Actor:  Actor{UserID: uuid.New(), Role: enums.UserRoleStaff},
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeNegativeStock, appErr.Code())

	var after models.StockLedger
	require.NoError(t, gdb.First(&after, "id = ?", ledger.ID).Error)
	assert.Equal(t, 5, after.CurrentStock)

	var movementCount int64
	require.NoError(t, gdb.Model(&models.StockMovement{}).Count(&movementCount).Error)
	assert.Zero(t, movementCount)
}

func TestAdjustEmitsLowStockOnCrossing(t *testing.T) {
	t.Parallel()
	gdb := newTestDB(t)
	svc := newTestService(t, gdb)
	product := seedProduct(t, gdb, 20)
	ledger := seedLedger(t, gdb, product, 20, 10)

	updated, err := svc.Adjust(context.Background(), ledger.ID, AdjustInput{
		Delta:  -12,
		Type:   enums.MovementTypeLoss,
		Reason: "moisture damage",
		Actor:  Actor{UserID: uuid.New(), Role: enums.UserRoleStaff},
	})
	require.NoError(t, err)
	assert.Equal(t, 8, updated.CurrentStock)
	assert.True(t, updated.IsLowStock)
	assert.Equal(t, enums.StockStatusLowStock, updated.Status)

	var lowEvents int64
	require.NoError(t, gdb.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventStockLow).Count(&lowEvents).Error)
	assert.EqualValues(t, 1, lowEvents)

	// a second adjustment while already low must not fire again
	_, err = svc.Adjust(context.Background(), ledger.ID, AdjustInput{
		Delta:  -2,
		Type:   enums.MovementTypeAdjustment,
		Reason: "recount",
		Actor:  Actor{UserID: uuid.New(), Role: enums.UserRoleStaff},
	})
	require.NoError(t, err)
	require.NoError(t, gdb.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventStockLow).Count(&lowEvents).Error)
	assert.EqualValues(t, 1, lowEvents)
}

func TestAdjustKeepsRivalDelta(t *testing.T) {
	t.Parallel()
	gdb := newTestDB(t)
	product := seedProduct(t, gdb, 50)
	ledger := seedLedger(t, gdb, product, 50, 5)

	repo := &rivalWriterRepo{Repository: NewRepository(gdb), gdb: gdb, target: ledger.ID, extra: 10}
	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), nil)
	svc, err := NewService(repo, &dbTxRunner{db: gdb}, outboxSvc, nil)
	require.NoError(t, err)

	// 50 on hand, a rival lands +10 mid-flight, then we apply -3
	updated, err := svc.Adjust(context.Background(), ledger.ID, AdjustInput{
		Delta:  -3,
		Type:   enums.MovementTypeAdjustment,
		Reason: "recount",
		Actor:  Actor{UserID: uuid.New(), Role: enums.UserRoleStaff},
	})
	require.NoError(t, err)
	assert.Equal(t, 57, updated.CurrentStock)

	var after models.StockLedger
	require.NoError(t, gdb.First(&after, "id = ?", ledger.ID).Error)
	assert.Equal(t, 57, after.CurrentStock)

	// our movement still records only our own delta
	var movement models.StockMovement
	require.NoError(t, gdb.First(&movement, "ledger_id = ?", ledger.ID).Error)
	assert.Equal(t, -3, movement.Delta)
}

func TestReserveKeepsRivalDelta(t *testing.T) {
	t.Parallel()
	gdb := newTestDB(t)
	product := seedProduct(t, gdb, 50)
	ledger := seedLedger(t, gdb, product, 50, 5)

	repo := &rivalWriterRepo{Repository: NewRepository(gdb), gdb: gdb, target: ledger.ID, extra: 10}
	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), nil)
	svc, err := NewService(repo, &dbTxRunner{db: gdb}, outboxSvc, nil)
	require.NoError(t, err)

	order := &models.Order{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		Items: []models.OrderLineItem{
			{ID: uuid.New(), ProductID: product.ID, Quantity: 4},
		},
	}
	require.NoError(t, (&dbTxRunner{db: gdb}).WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, order, uuid.New())
	}))

	var after models.StockLedger
	require.NoError(t, gdb.First(&after, "id = ?", ledger.ID).Error)
	assert.Equal(t, 56, after.CurrentStock)
}

func TestAdjustPropagatesToProductStock(t *testing.T) {
	t.Parallel()
	gdb := newTestDB(t)
	svc := newTestService(t, gdb)
	product := seedProduct(t, gdb, 20)
	ledger := seedLedger(t, gdb, product, 20, 2)

	_, err := svc.Adjust(context.Background(), ledger.ID, AdjustInput{
		Delta:  -5,
		Type:   enums.MovementTypeLoss,
		Reason: "rodent damage",
		Actor:  Actor{UserID: uuid.New(), Role: enums.UserRoleStaff},
	})
	require.NoError(t, err)

	var after models.Product
	require.NoError(t, gdb.First(&after, "id = ?", product.ID).Error)
	assert.Equal(t, 15, after.StockQty)
}

func TestForecastWithFullHistory(t *testing.T) {
	t.Parallel()
	gdb := newTestDB(t)
	svc := newTestService(t, gdb)
	product := seedProduct(t, gdb, 100)
	ledger := seedLedger(t, gdb, product, 100, 12)

	// anchor mid-month so AddDate never rolls over into a neighbour month
	now := time.Now().UTC()
	base := time.Date(now.Year(), now.Month(), 15, 12, 0, 0, 0, time.UTC)
	seedSaleMovement(t, gdb, ledger.ID, -30, base.AddDate(0, -2, 0))
	seedSaleMovement(t, gdb, ledger.ID, -60, base.AddDate(0, -1, 0))
	seedSaleMovement(t, gdb, ledger.ID, -30, base)

	snapshot, err := svc.Forecast(context.Background(), ledger.ID)
	require.NoError(t, err)

	// 120 sold over 3 months, 10% growth on the average
	assert.Equal(t, 3, snapshot.MonthsOfHistory)
	assert.InDelta(t, 40.0, snapshot.AvgMonthlySales, 0.001)
	assert.Equal(t, 44, snapshot.ProjectedDemand)
	assert.Equal(t, 88, snapshot.RecommendedReorder)
	assert.Equal(t, 22, snapshot.ReorderPoint)
	assert.Equal(t, "high", snapshot.Confidence)

	var after models.StockLedger
	require.NoError(t, gdb.First(&after, "id = ?", ledger.ID).Error)
	require.NotNil(t, after.Forecast)
	assert.Equal(t, 44, after.Forecast.ProjectedDemand)
}

func TestForecastWithSparseHistoryFallsBack(t *testing.T) {
	t.Parallel()
	gdb := newTestDB(t)
	svc := newTestService(t, gdb)
	product := seedProduct(t, gdb, 100)
	ledger := seedLedger(t, gdb, product, 100, 15)

	seedSaleMovement(t, gdb, ledger.ID, -25, time.Now().UTC())

	snapshot, err := svc.Forecast(context.Background(), ledger.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, snapshot.MonthsOfHistory)
	assert.Equal(t, "none", snapshot.Confidence)
	assert.Equal(t, 15, snapshot.RecommendedReorder)
	assert.Equal(t, 15, snapshot.ReorderPoint)
}

func TestBulkForecastCountsUpdatedAndSkipped(t *testing.T) {
	t.Parallel()
	gdb := newTestDB(t)
	svc := newTestService(t, gdb)
	product := seedProduct(t, gdb, 100)
	active := seedLedger(t, gdb, product, 100, 10)
	seedLedger(t, gdb, seedProduct(t, gdb, 50), 50, 10)

	seedSaleMovement(t, gdb, active.ID, -20, time.Now().UTC())

	result, err := svc.BulkForecast(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Skipped)
}

func TestReserveClampsToLedgerStock(t *testing.T) {
	t.Parallel()
	gdb := newTestDB(t)
	svc := newTestService(t, gdb)
	product := seedProduct(t, gdb, 10)
	ledger := seedLedger(t, gdb, product, 3, 0)

	order := &models.Order{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		Items: []models.OrderLineItem{
			{ID: uuid.New(), ProductID: product.ID, Quantity: 5},
		},
	}

	err := (&dbTxRunner{db: gdb}).WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, order, uuid.New())
	})
	require.NoError(t, err)

	var pAfter models.Product
	require.NoError(t, gdb.First(&pAfter, "id = ?", product.ID).Error)
	assert.Equal(t, 5, pAfter.StockQty)

	// the warehouse ledger only had 3 on hand
	var lAfter models.StockLedger
	require.NoError(t, gdb.First(&lAfter, "id = ?", ledger.ID).Error)
	assert.Equal(t, 0, lAfter.CurrentStock)

	var sale models.StockMovement
	require.NoError(t, gdb.First(&sale, "order_id = ?", order.ID).Error)
	assert.Equal(t, -3, sale.Delta)
}

func TestRestoreReversesRecordedSales(t *testing.T) {
	t.Parallel()
	gdb := newTestDB(t)
	svc := newTestService(t, gdb)
	product := seedProduct(t, gdb, 10)
	ledger := seedLedger(t, gdb, product, 10, 0)

	order := &models.Order{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		Items: []models.OrderLineItem{
			{ID: uuid.New(), ProductID: product.ID, Quantity: 4},
		},
	}

	runner := &dbTxRunner{db: gdb}
	require.NoError(t, runner.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, order, uuid.New())
	}))
	require.NoError(t, runner.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Restore(context.Background(), tx, order, uuid.New())
	}))

	var pAfter models.Product
	require.NoError(t, gdb.First(&pAfter, "id = ?", product.ID).Error)
	assert.Equal(t, 10, pAfter.StockQty)

	var lAfter models.StockLedger
	require.NoError(t, gdb.First(&lAfter, "id = ?", ledger.ID).Error)
	assert.Equal(t, 10, lAfter.CurrentStock)

	var returns []models.StockMovement
	require.NoError(t, gdb.Where("order_id = ? AND type = ?", order.ID, enums.MovementTypeReturn).Find(&returns).Error)
	require.Len(t, returns, 1)
	assert.Equal(t, 4, returns[0].Delta)
}
