package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/riceup-labs/riceup-backend/api/middleware"
	"github.com/riceup-labs/riceup-backend/api/responses"
	"github.com/riceup-labs/riceup-backend/api/validators"
	"github.com/riceup-labs/riceup-backend/internal/inventory"
	"github.com/riceup-labs/riceup-backend/pkg/enums"
	pkgerrors "github.com/riceup-labs/riceup-backend/pkg/errors"
	"github.com/riceup-labs/riceup-backend/pkg/logger"
)

type recordPurchaseRequest struct {
	ProductID         uuid.UUID       `json:"product_id" validate:"required"`
	FarmerID          uuid.UUID       `json:"farmer_id" validate:"required"`
	QuantityPurchased int             `json:"quantity_purchased" validate:"required,gt=0"`
	PurchasePrice     decimal.Decimal `json:"purchase_price" validate:"required"`
	SellingPrice      decimal.Decimal `json:"selling_price" validate:"required"`
	LowStockThreshold int             `json:"low_stock_threshold" validate:"gte=0"`
	QualityGrade      *string         `json:"quality_grade"`
	MoisturePercent   *float64        `json:"moisture_percent"`
}

// RecordPurchase books inbound stock bought from a farmer.
func RecordPurchase(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recordPurchaseRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ledger, err := svc.RecordPurchase(r.Context(), inventory.RecordPurchaseInput{
			ProductID:         req.ProductID,
			FarmerID:          req.FarmerID,
			QuantityPurchased: req.QuantityPurchased,
			PurchasePrice:     req.PurchasePrice,
			SellingPrice:      req.SellingPrice,
			LowStockThreshold: req.LowStockThreshold,
			QualityGrade:      req.QualityGrade,
			MoisturePercent:   req.MoisturePercent,
			Actor:             inventoryActor(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, ledger)
	}
}

// ListInventory returns stock ledgers, optionally filtered to low stock or a
// single status.
func ListInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := inventory.ListParams{
			Cursor:  strings.TrimSpace(r.URL.Query().Get("cursor")),
			LowOnly: r.URL.Query().Get("low") == "true",
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.Limit = limit

		if raw := strings.TrimSpace(r.URL.Query().Get("product_id")); raw != "" {
			productID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid product_id filter"))
				return
			}
			params.ProductID = productID
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseStockStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown stock status"))
				return
			}
			params.Status = &status
		}

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// GetLedger returns one stock ledger with its movement trail preloaded.
func GetLedger(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ledgerID, err := pathUUID(r, "ledgerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ledger, err := svc.Get(r.Context(), ledgerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ledger)
	}
}

type adjustStockRequest struct {
	Delta  int    `json:"delta" validate:"required"`
	Type   string `json:"type" validate:"required"`
	Reason string `json:"reason" validate:"required,max=500"`
}

// AdjustStock applies a manual correction to a ledger.
func AdjustStock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ledgerID, err := pathUUID(r, "ledgerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req adjustStockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movementType, err := enums.ParseMovementType(req.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown movement type"))
			return
		}

		ledger, err := svc.Adjust(r.Context(), ledgerID, inventory.AdjustInput{
			Delta:  req.Delta,
			Type:   movementType,
			Reason: req.Reason,
			Actor:  inventoryActor(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ledger)
	}
}

// ForecastLedger recomputes and returns the demand forecast for one ledger.
func ForecastLedger(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ledgerID, err := pathUUID(r, "ledgerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshot, err := svc.Forecast(r.Context(), ledgerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}

// BulkForecast sweeps every ledger and refreshes its forecast.
func BulkForecast(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.BulkForecast(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func inventoryActor(r *http.Request) inventory.Actor {
	return inventory.Actor{
		UserID: middleware.UserIDFromContext(r.Context()),
		Role:   middleware.RoleFromContext(r.Context()),
	}
}
