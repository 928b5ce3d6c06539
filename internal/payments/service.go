package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/riceup-labs/riceup-backend/internal/orders"
	"github.com/riceup-labs/riceup-backend/pkg/config"
	"github.com/riceup-labs/riceup-backend/pkg/db/models"
	"github.com/riceup-labs/riceup-backend/pkg/enums"
	pkgerrors "github.com/riceup-labs/riceup-backend/pkg/errors"
	"github.com/riceup-labs/riceup-backend/pkg/gateway"
	"github.com/riceup-labs/riceup-backend/pkg/metrics"
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

type gatewayClient interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, receipt string, notes map[string]interface{}) (*gateway.Order, error)
	CreateRefund(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal, notes map[string]interface{}) (*gateway.Refund, error)
	VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool
	KeyID() string
	Currency() string
}

// orderMarker is the slice of the orders service this package needs to keep
// paid/refunded flags consistent with settlements.
type orderMarker interface {
	MarkPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, paidAt time.Time, actor orders.Actor) error
	MarkRefunded(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string, actor orders.Actor) error
}

// Service defines payment settlement operations.
type Service interface {
	CreateGatewayOrder(ctx context.Context, input CreateGatewayOrderInput) (*GatewayOrderResult, error)
	VerifyCallback(ctx context.Context, input VerifyCallbackInput) (*models.Payment, error)
	Refund(ctx context.Context, paymentID uuid.UUID, input RefundInput) (*models.Payment, error)
	FarmerPayout(ctx context.Context, input FarmerPayoutInput) (*models.Payment, error)
	Get(ctx context.Context, paymentID uuid.UUID, actor Actor) (*models.Payment, error)
	GetInvoice(ctx context.Context, paymentID uuid.UUID, actor Actor) (*models.InvoiceSnapshot, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	gateway gatewayClient
	orders  orderMarker
	outbox  outboxPublisher
	billing config.BillingConfig
	metrics *metrics.OrderMetrics
	now     func() time.Time
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Gateway gatewayClient
	Orders  orderMarker
	Outbox  outboxPublisher
	Billing config.BillingConfig
	Metrics *metrics.OrderMetrics
}

// NewService wires payment dependencies. Gateway is optional; online flows
// fail with a dependency error when it is absent.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		gateway: params.Gateway,
		orders:  params.Orders,
		outbox:  params.Outbox,
		billing: params.Billing,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

func (s *service) CreateGatewayOrder(ctx context.Context, input CreateGatewayOrderInput) (*GatewayOrderResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}

	order, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if input.Actor.Role == enums.UserRoleCustomer && order.CustomerID != input.Actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
	}
	if order.IsPaid {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyPaid, "order is already paid")
	}
	if order.PaymentMethod != enums.PaymentMethodOnline {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is not an online payment order")
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, order.TotalPrice, order.OrderNumber, map[string]interface{}{
		"order_id": order.ID.String(),
	})
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		ID:             uuid.New(),
		Type:           enums.PaymentTypeCustomer,
		OrderID:        &order.ID,
		Amount:         order.TotalPrice,
		Currency:       s.gateway.Currency(),
		Gateway:        "razorpay",
		GatewayOrderID: &gwOrder.ID,
		Status:         enums.PaymentStatusPending,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}

	return &GatewayOrderResult{
		PaymentID:      payment.ID,
		GatewayOrderID: gwOrder.ID,
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		KeyID:          s.gateway.KeyID(),
	}, nil
}

// VerifyCallback settles a pending payment from a provider callback. The
// signature check runs before any stored state is consulted; the callback
// arrives over an unauthenticated channel and the HMAC is its only proof of
// origin.
func (s *service) VerifyCallback(ctx context.Context, input VerifyCallbackInput) (*models.Payment, error) {
	if input.GatewayOrderID == "" || input.GatewayPaymentID == "" || input.Signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id, payment id and signature required")
	}
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}
	if !s.gateway.VerifySignature(input.GatewayOrderID, input.GatewayPaymentID, input.Signature) {
		s.metrics.IncPayment("rejected")
		return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "payment signature verification failed")
	}

	payment, err := s.repo.FindByGatewayOrderID(ctx, input.GatewayOrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found for gateway order")
	}
	if payment.Status == enums.PaymentStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyPaid, "payment already completed")
	}
	if payment.Status != enums.PaymentStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment is not pending").
			WithDetails(map[string]any{"status": payment.Status})
	}
	if payment.OrderID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment has no order reference")
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrder(ctx, *payment.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		gwPaymentID := input.GatewayPaymentID
		payment.Status = enums.PaymentStatusCompleted
		payment.GatewayPaymentID = &gwPaymentID
		payment.PaymentDate = &now
		payment.Invoice = buildOrderInvoice(s.billing, order, payment, now)
		if err := repo.SavePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save payment")
		}

		if err := s.orders.MarkPaid(ctx, tx, *payment.OrderID, now, ordersActor(input.Actor)); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentCompleted,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         actorRef(input.Actor),
			Data: payloads.PaymentCompletedEvent{
				PaymentID:        payment.ID,
				OrderID:          *payment.OrderID,
				Amount:           payment.Amount,
				Currency:         payment.Currency,
				GatewayPaymentID: input.GatewayPaymentID,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncPayment("completed")
	return payment, nil
}

func (s *service) Refund(ctx context.Context, paymentID uuid.UUID, input RefundInput) (*models.Payment, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}

	payment, err := s.repo.FindPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.Type != enums.PaymentTypeCustomer {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only customer payments can be refunded")
	}
	if payment.Status == enums.PaymentStatusRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyRefunded, "payment already refunded")
	}
	if payment.Status != enums.PaymentStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "only completed payments can be refunded").
			WithDetails(map[string]any{"status": payment.Status})
	}
	if payment.OrderID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment has no order reference")
	}

	amount := payment.Amount
	if input.Amount != nil {
		amount = *input.Amount
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if amount.GreaterThan(payment.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds payment amount").
			WithDetails(map[string]any{"amount": amount, "paid": payment.Amount})
	}

	// the gateway call happens before the local transaction: money movement
	// cannot be rolled back, the database write can be retried
	method := "manual"
	var gatewayRefundID *string
	if payment.GatewayPaymentID != nil {
		if s.gateway == nil {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
		}
		refund, err := s.gateway.CreateRefund(ctx, *payment.GatewayPaymentID, amount, map[string]interface{}{
			"payment_id": payment.ID.String(),
			"reason":     input.Reason,
		})
		if err != nil {
			return nil, err
		}
		method = "gateway"
		gatewayRefundID = &refund.ID
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		payment.Status = enums.PaymentStatusRefunded
		payment.RefundAmount = &amount
		payment.RefundMethod = &method
		payment.RefundedAt = &now
		payment.GatewayRefundID = gatewayRefundID
		if input.Reason != "" {
			reason := input.Reason
			payment.RefundReason = &reason
		}
		if input.Actor.UserID != uuid.Nil {
			actorID := input.Actor.UserID
			payment.RefundedBy = &actorID
		}
		if err := repo.SavePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save payment")
		}

		if err := s.orders.MarkRefunded(ctx, tx, *payment.OrderID, input.Reason, ordersActor(input.Actor)); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRefunded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         actorRef(input.Actor),
			Data: payloads.PaymentRefundedEvent{
				PaymentID:    payment.ID,
				OrderID:      *payment.OrderID,
				RefundAmount: amount,
				Reason:       input.Reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncRefund()
	return payment, nil
}

func (s *service) FarmerPayout(ctx context.Context, input FarmerPayoutInput) (*models.Payment, error) {
	if input.LedgerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger id required")
	}
	if input.BankAccount == "" || input.BankIFSC == "" || input.AccountHolder == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank account, IFSC and account holder required")
	}

	var payment *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		ledger, err := repo.FindLedger(ctx, input.LedgerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "stock ledger not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock ledger")
		}

		now := s.now().UTC()
		amount := ledger.PurchasePrice.Mul(decimal.NewFromInt(int64(ledger.QuantityPurchased))).Round(2)
		payment = &models.Payment{
			ID:          uuid.New(),
			Type:        enums.PaymentTypeFarmer,
			LedgerID:    &ledger.ID,
			Amount:      amount,
			Currency:    "INR",
			Gateway:     "manual",
			Status:      enums.PaymentStatusCompleted,
			PaymentDate: &now,
			Payout: &models.FarmerPayoutDetails{
				FarmerID:      ledger.FarmerID,
				QuantityKg:    ledger.QuantityPurchased,
				RatePerKg:     ledger.PurchasePrice,
				BankAccount:   input.BankAccount,
				BankIFSC:      input.BankIFSC,
				AccountHolder: input.AccountHolder,
			},
		}
		payment.Invoice = buildPayoutInvoice(s.billing, ledger, payment, now)
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFarmerPayoutRecorded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         actorRef(input.Actor),
			Data: payloads.FarmerPayoutRecordedEvent{
				PaymentID:  payment.ID,
				LedgerID:   ledger.ID,
				FarmerID:   ledger.FarmerID,
				Amount:     amount,
				QuantityKg: ledger.QuantityPurchased,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *service) Get(ctx context.Context, paymentID uuid.UUID, actor Actor) (*models.Payment, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	payment, err := s.repo.FindPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if actor.Role == enums.UserRoleCustomer {
		if payment.OrderID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment is not visible to customers")
		}
		order, err := s.repo.FindOrder(ctx, *payment.OrderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.CustomerID != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another customer")
		}
	}
	return payment, nil
}

// GetInvoice returns the frozen invoice, generating and persisting one for
// older completed payments that predate invoice snapshots.
func (s *service) GetInvoice(ctx context.Context, paymentID uuid.UUID, actor Actor) (*models.InvoiceSnapshot, error) {
	payment, err := s.Get(ctx, paymentID, actor)
	if err != nil {
		return nil, err
	}
	if payment.Invoice != nil {
		return payment.Invoice, nil
	}
	if payment.Status != enums.PaymentStatusCompleted && payment.Status != enums.PaymentStatusRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "invoice is only available for settled payments")
	}
	if payment.OrderID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment has no invoice")
	}

	order, err := s.repo.FindOrder(ctx, *payment.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	payment.Invoice = buildOrderInvoice(s.billing, order, payment, s.now().UTC())
	if err := s.repo.SavePayment(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save invoice")
	}
	return payment.Invoice, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listPaymentsParams{
		OrderID: params.OrderID,
		Type:    params.Type,
		Status:  params.Status,
		Limit:   params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListPayments(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func ordersActor(actor Actor) orders.Actor {
	return orders.Actor{UserID: actor.UserID, Role: actor.Role}
}

func actorRef(actor Actor) *outbox.ActorRef {
	if actor.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}
