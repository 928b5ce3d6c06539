package inventory

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/riceup-labs/riceup-backend/pkg/db/models"
	pkgerrors "github.com/riceup-labs/riceup-backend/pkg/errors"
)

const (
	forecastWindowMonths = 3
	forecastGrowthFactor = 1.10
)

// Forecast projects next-month demand for one ledger from its sale history
// and freezes the result on the ledger. With under three months of history
// the projection degrades to a threshold-based fallback.
func (s *service) Forecast(ctx context.Context, ledgerID uuid.UUID) (*models.ForecastSnapshot, error) {
	if ledgerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger id required")
	}

	var snapshot *models.ForecastSnapshot
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ledger, err := repo.FindLedger(ctx, ledgerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "stock ledger not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock ledger")
		}

		snapshot, err = s.computeForecast(ctx, repo, ledger, time.Now().UTC())
		if err != nil {
			return err
		}

		ledger.Forecast = snapshot
		if err := repo.SaveLedger(ctx, ledger); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save forecast")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// BulkForecast recomputes forecasts for every ledger. Ledgers without any
// sale history are skipped; individual failures do not stop the sweep.
func (s *service) BulkForecast(ctx context.Context) (*BulkForecastResult, error) {
	ids, err := s.repo.ListLedgerIDs(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock ledgers")
	}

	result := &BulkForecastResult{}
	var errs error
	for _, id := range ids {
		snapshot, err := s.Forecast(ctx, id)
		if err != nil {
			errs = multierr.Append(errs, err)
			result.Skipped++
			continue
		}
		if snapshot.MonthsOfHistory == 0 {
			result.Skipped++
			continue
		}
		result.Updated++
	}
	if errs != nil && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"updated": result.Updated,
			"skipped": result.Skipped,
		})
		s.logg.Error(logCtx, "bulk forecast finished with failures", errs)
	}
	return result, nil
}

func (s *service) computeForecast(ctx context.Context, repo Repository, ledger *models.StockLedger, now time.Time) (*models.ForecastSnapshot, error) {
	since := now.AddDate(0, -forecastWindowMonths, 0)
	movements, err := repo.SaleMovementsSince(ctx, ledger.ID, since)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale movements")
	}

	totalSold := 0
	months := map[string]struct{}{}
	for _, movement := range movements {
		totalSold += -movement.Delta
		months[movement.CreatedAt.UTC().Format("2006-01")] = struct{}{}
	}

	snapshot := &models.ForecastSnapshot{
		MonthsOfHistory: len(months),
		GeneratedAt:     now,
	}

	if len(months) < forecastWindowMonths {
		// not enough history for a moving average; hold the threshold
		snapshot.Confidence = "none"
		snapshot.RecommendedReorder = ledger.LowStockThreshold
		snapshot.ReorderPoint = ledger.LowStockThreshold
		return snapshot, nil
	}

	avg := float64(totalSold) / float64(forecastWindowMonths)
	projected := int(math.Ceil(avg * forecastGrowthFactor))

	snapshot.AvgMonthlySales = avg
	snapshot.ProjectedDemand = projected
	snapshot.RecommendedReorder = maxInt(2*projected, ledger.LowStockThreshold)
	snapshot.ReorderPoint = int(math.Ceil(0.5 * float64(projected)))
	snapshot.Confidence = "high"
	return snapshot, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
