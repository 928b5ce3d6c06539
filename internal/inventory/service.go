package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/riceup-labs/riceup-backend/pkg/db/models"
	"github.com/riceup-labs/riceup-backend/pkg/enums"
	pkgerrors "github.com/riceup-labs/riceup-backend/pkg/errors"
	"github.com/riceup-labs/riceup-backend/pkg/logger"
	"github.com/riceup-labs/riceup-backend/pkg/outbox"
	"github.com/riceup-labs/riceup-backend/pkg/outbox/payloads"
	"github.com/riceup-labs/riceup-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines warehouse stock operations.
type Service interface {
	RecordPurchase(ctx context.Context, input RecordPurchaseInput) (*models.StockLedger, error)
	Adjust(ctx context.Context, ledgerID uuid.UUID, input AdjustInput) (*models.StockLedger, error)
	Get(ctx context.Context, ledgerID uuid.UUID) (*models.StockLedger, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Forecast(ctx context.Context, ledgerID uuid.UUID) (*models.ForecastSnapshot, error)
	BulkForecast(ctx context.Context) (*BulkForecastResult, error)

	Reserve(ctx context.Context, tx *gorm.DB, order *models.Order, actorID uuid.UUID) error
	Restore(ctx context.Context, tx *gorm.DB, order *models.Order, actorID uuid.UUID) error
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService wires inventory dependencies.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: outboxSvc, logg: logg}, nil
}

func (s *service) RecordPurchase(ctx context.Context, input RecordPurchaseInput) (*models.StockLedger, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.FarmerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "farmer id required")
	}
	if input.QuantityPurchased <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchased quantity must be positive")
	}
	if input.PurchasePrice.IsNegative() || input.SellingPrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "prices cannot be negative")
	}
	if input.LowStockThreshold < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "low stock threshold cannot be negative")
	}

	ledger := &models.StockLedger{
		ID:                uuid.New(),
		ProductID:         input.ProductID,
		FarmerID:          input.FarmerID,
		QuantityPurchased: input.QuantityPurchased,
		PurchasePrice:     input.PurchasePrice,
		SellingPrice:      input.SellingPrice,
		CurrentStock:      input.QuantityPurchased,
		LowStockThreshold: input.LowStockThreshold,
		QualityGrade:      input.QualityGrade,
		MoisturePercent:   input.MoisturePercent,
	}
	ledger.Recompute()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.FindProduct(ctx, input.ProductID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}

		if err := repo.CreateLedger(ctx, ledger); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stock ledger")
		}
		ok, err := repo.AdjustProductStock(ctx, input.ProductID, input.QuantityPurchased)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment product stock")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeDependency, "product stock update had no effect")
		}

		reason := "Stock purchased from farmer"
		if err := repo.AppendMovement(ctx, &models.StockMovement{
			LedgerID: ledger.ID,
			Delta:    input.QuantityPurchased,
			Type:     enums.MovementTypePurchase,
			Reason:   &reason,
			ActorID:  input.Actor.UserID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append movement")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStockPurchaseRecorded,
			AggregateType: enums.AggregateStockLedger,
			AggregateID:   ledger.ID,
			Actor:         actorRef(input.Actor),
			Data: payloads.StockPurchaseRecordedEvent{
				LedgerID:      ledger.ID,
				ProductID:     ledger.ProductID,
				FarmerID:      ledger.FarmerID,
				QuantityKg:    ledger.QuantityPurchased,
				PurchasePrice: ledger.PurchasePrice,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

func (s *service) Adjust(ctx context.Context, ledgerID uuid.UUID, input AdjustInput) (*models.StockLedger, error) {
	if ledgerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger id required")
	}
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment delta cannot be zero")
	}
	if input.Type != enums.MovementTypeAdjustment && input.Type != enums.MovementTypeLoss {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "movement type must be adjustment or loss")
	}
	if input.Type == enums.MovementTypeLoss && input.Delta > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loss movements must decrease stock")
	}

	var ledger *models.StockLedger
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		var err error
		ledger, err = repo.FindLedger(ctx, ledgerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "stock ledger not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock ledger")
		}

		wasLow := ledger.IsLowStock

		ok, err := repo.AdjustLedgerStock(ctx, ledgerID, input.Delta)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust ledger stock")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNegativeStock, "adjustment would drive stock negative").
				WithDetails(map[string]any{
					"ledger_id": ledgerID,
					"current":   ledger.CurrentStock,
					"delta":     input.Delta,
				})
		}
		// products hold the sellable count, so corrections propagate there too
		ok, err = repo.AdjustProductStock(ctx, ledger.ProductID, input.Delta)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust product stock")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNegativeStock, "adjustment would drive product stock negative")
		}

		// re-read so the derived columns come from the post-update stock,
		// which includes deltas other transactions committed since our read
		ledger, err = repo.FindLedger(ctx, ledgerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload stock ledger")
		}
		ledger.Recompute()
		if err := repo.SaveLedger(ctx, ledger); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save stock ledger")
		}

		movement := &models.StockMovement{
			LedgerID: ledgerID,
			Delta:    input.Delta,
			Type:     input.Type,
			ActorID:  input.Actor.UserID,
		}
		if input.Reason != "" {
			reason := input.Reason
			movement.Reason = &reason
		}
		if err := repo.AppendMovement(ctx, movement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append movement")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStockAdjustmentApplied,
			AggregateType: enums.AggregateStockLedger,
			AggregateID:   ledgerID,
			Actor:         actorRef(input.Actor),
			Data: payloads.StockAdjustmentAppliedEvent{
				LedgerID: ledgerID,
				Delta:    input.Delta,
				Type:     input.Type,
				Reason:   input.Reason,
				NewStock: ledger.CurrentStock,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit adjustment event")
		}

		return s.emitLowStockIfCrossed(ctx, tx, repo, ledger, wasLow, input.Actor)
	})
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

func (s *service) Get(ctx context.Context, ledgerID uuid.UUID) (*models.StockLedger, error) {
	if ledgerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger id required")
	}
	ledger, err := s.repo.FindLedger(ctx, ledgerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stock ledger not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock ledger")
	}
	return ledger, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listLedgersParams{
		ProductID: params.ProductID,
		Status:    params.Status,
		LowOnly:   params.LowOnly,
		Limit:     params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListLedgers(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock ledgers")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

// Reserve decrements product stock and the matching ledgers for every line
// item of the order, recording sale movements keyed by the order id so a
// later cancellation can reverse them exactly.
func (s *service) Reserve(ctx context.Context, tx *gorm.DB, order *models.Order, actorID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	repo := s.repo.WithTx(tx)

	for _, item := range order.Items {
		ok, err := repo.AdjustProductStock(ctx, item.ProductID, -item.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement product stock")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeOutOfStock, "insufficient stock").
				WithDetails(map[string]any{
					"product_id": item.ProductID,
					"requested":  item.Quantity,
				})
		}

		ledger, err := repo.FindLatestLedgerByProduct(ctx, item.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock ledger")
		}
		if ledger == nil {
			continue
		}

		wasLow := ledger.IsLowStock
		// the warehouse ledger may lag product stock; take what it has
		applied := item.Quantity
		if ledger.CurrentStock < applied {
			applied = ledger.CurrentStock
		}
		if applied > 0 {
			ok, err := repo.AdjustLedgerStock(ctx, ledger.ID, -applied)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement ledger stock")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNegativeStock, "ledger stock underflow").
					WithDetails(map[string]any{"ledger_id": ledger.ID})
			}
			ledger, err = repo.FindLedger(ctx, ledger.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload stock ledger")
			}
			ledger.Recompute()
			if err := repo.SaveLedger(ctx, ledger); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save stock ledger")
			}
			if err := repo.AppendMovement(ctx, &models.StockMovement{
				LedgerID: ledger.ID,
				Delta:    -applied,
				Type:     enums.MovementTypeSale,
				ActorID:  actorID,
				OrderID:  &order.ID,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append sale movement")
			}
		}

		if err := s.emitLowStockIfCrossed(ctx, tx, repo, ledger, wasLow, Actor{UserID: actorID}); err != nil {
			return err
		}
	}
	return nil
}

// Restore reverses a prior Reserve for the order: product stock comes back
// from the line items, ledger stock from the recorded sale movements.
func (s *service) Restore(ctx context.Context, tx *gorm.DB, order *models.Order, actorID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	repo := s.repo.WithTx(tx)

	for _, item := range order.Items {
		ok, err := repo.AdjustProductStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore product stock")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeDependency, "product stock restore had no effect").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
	}

	movements, err := repo.SaleMovementsForOrder(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale movements")
	}
	reason := "Order cancelled"
	for _, movement := range movements {
		restored := -movement.Delta
		if restored <= 0 {
			continue
		}
		ok, err := repo.AdjustLedgerStock(ctx, movement.LedgerID, restored)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore ledger stock")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeDependency, "ledger stock restore had no effect").
				WithDetails(map[string]any{"ledger_id": movement.LedgerID})
		}

		ledger, err := repo.FindLedger(ctx, movement.LedgerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock ledger")
		}
		ledger.Recompute()
		if err := repo.SaveLedger(ctx, ledger); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save stock ledger")
		}
		if err := repo.AppendMovement(ctx, &models.StockMovement{
			LedgerID: movement.LedgerID,
			Delta:    restored,
			Type:     enums.MovementTypeReturn,
			Reason:   &reason,
			ActorID:  actorID,
			OrderID:  &order.ID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append return movement")
		}
	}
	return nil
}

// emitLowStockIfCrossed fires a stock_low event only on the transition into
// low stock, not on every save while already low.
func (s *service) emitLowStockIfCrossed(ctx context.Context, tx *gorm.DB, repo Repository, ledger *models.StockLedger, wasLow bool, actor Actor) error {
	if wasLow || !ledger.IsLowStock {
		return nil
	}

	productName := ""
	if product, err := repo.FindProduct(ctx, ledger.ProductID); err == nil {
		productName = product.Name
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"ledger_id":     ledger.ID.String(),
			"product_id":    ledger.ProductID.String(),
			"current_stock": ledger.CurrentStock,
		})
		s.logg.Warn(logCtx, "stock fell below threshold")
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventStockLow,
		AggregateType: enums.AggregateStockLedger,
		AggregateID:   ledger.ID,
		Actor:         actorRef(actor),
		Data: payloads.StockLowEvent{
			LedgerID:     ledger.ID,
			ProductID:    ledger.ProductID,
			ProductName:  productName,
			CurrentStock: ledger.CurrentStock,
			Threshold:    ledger.LowStockThreshold,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit low stock event")
	}
	return nil
}

func actorRef(actor Actor) *outbox.ActorRef {
	if actor.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}
