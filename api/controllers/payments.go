package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/riceup-labs/riceup-backend/api/middleware"
	"github.com/riceup-labs/riceup-backend/api/responses"
	"github.com/riceup-labs/riceup-backend/api/validators"
	"github.com/riceup-labs/riceup-backend/internal/payments"
	"github.com/riceup-labs/riceup-backend/pkg/logger"
)

type createGatewayOrderRequest struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
}

// CreateGatewayOrder opens a gateway order for an unpaid online order and
// returns the checkout parameters the client needs.
func CreateGatewayOrder(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createGatewayOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateGatewayOrder(r.Context(), payments.CreateGatewayOrderInput{
			OrderID: req.OrderID,
			Actor:   paymentsActor(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type verifyCallbackRequest struct {
	GatewayOrderID   string `json:"gateway_order_id" validate:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" validate:"required"`
	Signature        string `json:"signature" validate:"required"`
}

// VerifyCallback settles a payment from the gateway callback. The route is
// unauthenticated; the HMAC signature is the proof of origin.
func VerifyCallback(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyCallbackRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.VerifyCallback(r.Context(), payments.VerifyCallbackInput{
			GatewayOrderID:   req.GatewayOrderID,
			GatewayPaymentID: req.GatewayPaymentID,
			Signature:        req.Signature,
			Actor:            paymentsActor(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

type refundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason" validate:"required,max=500"`
}

// RefundPayment refunds a completed customer payment, fully or in part.
func RefundPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paymentID, err := pathUUID(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req refundRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Refund(r.Context(), paymentID, payments.RefundInput{
			Amount: req.Amount,
			Reason: req.Reason,
			Actor:  paymentsActor(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

type farmerPayoutRequest struct {
	LedgerID      uuid.UUID `json:"ledger_id" validate:"required"`
	BankAccount   string    `json:"bank_account" validate:"required"`
	BankIFSC      string    `json:"bank_ifsc" validate:"required"`
	AccountHolder string    `json:"account_holder" validate:"required"`
}

// FarmerPayout records the payout owed to a farmer for a warehouse purchase.
func FarmerPayout(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req farmerPayoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.FarmerPayout(r.Context(), payments.FarmerPayoutInput{
			LedgerID:      req.LedgerID,
			BankAccount:   req.BankAccount,
			BankIFSC:      req.BankIFSC,
			AccountHolder: req.AccountHolder,
			Actor:         paymentsActor(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payment)
	}
}

// GetPayment returns one payment. Customers only see their own.
func GetPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paymentID, err := pathUUID(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Get(r.Context(), paymentID, paymentsActor(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

// GetInvoice returns the frozen invoice snapshot attached to a payment.
func GetInvoice(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paymentID, err := pathUUID(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		invoice, err := svc.GetInvoice(r.Context(), paymentID, paymentsActor(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, invoice)
	}
}

func paymentsActor(r *http.Request) payments.Actor {
	return payments.Actor{
		UserID: middleware.UserIDFromContext(r.Context()),
		Role:   middleware.RoleFromContext(r.Context()),
	}
}
