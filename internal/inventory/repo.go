package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/riceup-labs/riceup-backend/pkg/db/models"
	"github.com/riceup-labs/riceup-backend/pkg/enums"
	"github.com/riceup-labs/riceup-backend/pkg/pagination"
)

// Repository exposes persistence helpers for stock ledgers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateLedger(ctx context.Context, ledger *models.StockLedger) error
	FindLedger(ctx context.Context, id uuid.UUID) (*models.StockLedger, error)
	FindLatestLedgerByProduct(ctx context.Context, productID uuid.UUID) (*models.StockLedger, error)
	ListLedgers(ctx context.Context, params listLedgersParams) ([]models.StockLedger, *pagination.Cursor, error)
	ListLedgerIDs(ctx context.Context) ([]uuid.UUID, error)
	SaveLedger(ctx context.Context, ledger *models.StockLedger) error
	AppendMovement(ctx context.Context, movement *models.StockMovement) error
	SaleMovementsForOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockMovement, error)
	SaleMovementsSince(ctx context.Context, ledgerID uuid.UUID, since time.Time) ([]models.StockMovement, error)
	AdjustProductStock(ctx context.Context, productID uuid.UUID, delta int) (bool, error)
	AdjustLedgerStock(ctx context.Context, ledgerID uuid.UUID, delta int) (bool, error)
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(gdb *gorm.DB) Repository {
	return &repositoryImpl{db: gdb}
}

type listLedgersParams struct {
	ProductID uuid.UUID
	Status    *enums.StockStatus
	LowOnly   bool
	Limit     int
	Cursor    *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) CreateLedger(ctx context.Context, ledger *models.StockLedger) error {
	if ledger.ID == uuid.Nil {
		ledger.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(ledger).Error
}

func (r *repositoryImpl) FindLedger(ctx context.Context, id uuid.UUID) (*models.StockLedger, error) {
	var ledger models.StockLedger
	err := r.db.WithContext(ctx).
		Preload("Movements", func(q *gorm.DB) *gorm.DB {
			return q.Order("created_at DESC, id DESC")
		}).
		First(&ledger, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &ledger, nil
}

// FindLatestLedgerByProduct returns the most recent ledger for a product, or
// nil when the product has never been purchased into the warehouse.
func (r *repositoryImpl) FindLatestLedgerByProduct(ctx context.Context, productID uuid.UUID) (*models.StockLedger, error) {
	var ledger models.StockLedger
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC, id DESC").
		First(&ledger).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ledger, nil
}

func (r *repositoryImpl) ListLedgers(ctx context.Context, params listLedgersParams) ([]models.StockLedger, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.StockLedger{})
	if params.ProductID != uuid.Nil {
		query = query.Where("product_id = ?", params.ProductID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.LowOnly {
		query = query.Where("is_low_stock = ?", true)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var ledgers []models.StockLedger
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&ledgers).Error; err != nil {
		return nil, nil, err
	}

	if len(ledgers) > normalized {
		next := ledgers[normalized]
		ledgers = ledgers[:normalized]
		return ledgers, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return ledgers, nil, nil
}

func (r *repositoryImpl) ListLedgerIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.StockLedger{}).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// SaveLedger persists the ledger's derived and descriptive columns.
// current_stock is excluded: it only moves through AdjustLedgerStock's
// conditional update, and a full-row save here would overwrite deltas other
// transactions committed after our read.
func (r *repositoryImpl) SaveLedger(ctx context.Context, ledger *models.StockLedger) error {
	return r.db.WithContext(ctx).
		Omit("Movements", "CurrentStock").
		Save(ledger).Error
}

func (r *repositoryImpl) AppendMovement(ctx context.Context, movement *models.StockMovement) error {
	if movement.ID == uuid.Nil {
		movement.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repositoryImpl) SaleMovementsForOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND type = ?", orderID, enums.MovementTypeSale).
		Order("created_at ASC, id ASC").
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *repositoryImpl) SaleMovementsSince(ctx context.Context, ledgerID uuid.UUID, since time.Time) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	err := r.db.WithContext(ctx).
		Where("ledger_id = ? AND type = ? AND created_at >= ?", ledgerID, enums.MovementTypeSale, since).
		Order("created_at ASC, id ASC").
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}

// AdjustProductStock applies a signed delta to the product's sellable count.
// The WHERE clause keeps the quantity non-negative under concurrency; a false
// return means the delta would have driven it below zero.
func (r *repositoryImpl) AdjustProductStock(ctx context.Context, productID uuid.UUID, delta int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock_qty + ? >= 0", productID, delta).
		UpdateColumn("stock_qty", gorm.Expr("stock_qty + ?", delta))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AdjustLedgerStock applies a signed delta to the ledger's current stock with
// the same non-negative guard.
func (r *repositoryImpl) AdjustLedgerStock(ctx context.Context, ledgerID uuid.UUID, delta int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.StockLedger{}).
		Where("id = ? AND current_stock + ? >= 0", ledgerID, delta).
		UpdateColumn("current_stock", gorm.Expr("current_stock + ?", delta))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}
