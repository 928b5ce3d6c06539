package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/riceup-labs/riceup-backend/pkg/config"
	"github.com/riceup-labs/riceup-backend/pkg/db/models"
	"github.com/riceup-labs/riceup-backend/pkg/enums"
	pkgerrors "github.com/riceup-labs/riceup-backend/pkg/errors"
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

// StockReserver applies and reverses the inventory effects of an order. Both
// methods run inside the caller's transaction so an order write and its stock
// effects commit or roll back together.
type StockReserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, order *models.Order, actorID uuid.UUID) error
	Restore(ctx context.Context, tx *gorm.DB, order *models.Order, actorID uuid.UUID) error
}

type signatureVerifier interface {
	VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool
}

// Service defines order lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, input UpdateStatusInput) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, input CancelInput) (*models.Order, error)
	SetTracking(ctx context.Context, orderID uuid.UUID, input SetTrackingInput) (*models.Order, error)
	MarkPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, paidAt time.Time, actor Actor) error
	MarkRefunded(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string, actor Actor) error
	MarkDelivered(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, deliveredAt time.Time, actor Actor) error
}

type service struct {
	repo     Repository
	tx       txRunner
	stock    StockReserver
	outbox   outboxPublisher
	verifier signatureVerifier
	billing  config.BillingConfig
	metrics  *metrics.OrderMetrics
	now      func() time.Time
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Stock    StockReserver
	Outbox   outboxPublisher
	Verifier signatureVerifier
	Billing  config.BillingConfig
	Metrics  *metrics.OrderMetrics
}

// NewService wires order dependencies. Metrics and Verifier are optional;
// creating an already-paid online order fails without a verifier.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock reserver required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		stock:    params.Stock,
		outbox:   params.Outbox,
		verifier: params.Verifier,
		billing:  params.Billing,
		metrics:  params.Metrics,
		now:      time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line item required")
	}
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required on every line item")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line item quantity must be positive")
		}
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if input.ShippingAddress.FullName == "" || input.ShippingAddress.Line1 == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete")
	}
	if input.ShippingPrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping price cannot be negative")
	}

	initial := enums.OrderStatusPending
	if input.PaymentResult != nil {
		if input.PaymentMethod != enums.PaymentMethodOnline {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment result only valid for online orders")
		}
		if s.verifier == nil {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
		}
		res := input.PaymentResult
		if !s.verifier.VerifySignature(res.GatewayOrderID, res.GatewayPaymentID, res.Signature) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "payment signature verification failed")
		}
		initial = enums.OrderStatusProcessing
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:              uuid.New(),
		CustomerID:      input.CustomerID,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   input.PaymentMethod,
		ShippingPrice:   input.ShippingPrice,
		Status:          initial,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		itemsPrice := decimal.Zero
		lineItems := make([]models.OrderLineItem, 0, len(input.Items))
		for _, item := range input.Items {
			product, err := repo.FindProduct(ctx, item.ProductID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
						WithDetails(map[string]any{"product_id": item.ProductID})
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
			}
			if !product.IsActive {
				return pkgerrors.New(pkgerrors.CodeValidation, "product is not available").
					WithDetails(map[string]any{"product_id": product.ID})
			}
			if product.StockQty < item.Quantity {
				s.metrics.IncStockDenied()
				return pkgerrors.New(pkgerrors.CodeOutOfStock, "insufficient stock").
					WithDetails(map[string]any{
						"product_id": product.ID,
						"requested":  item.Quantity,
						"available":  product.StockQty,
					})
			}

			lineTotal := product.PricePerKg.Mul(decimal.NewFromInt(int64(item.Quantity)))
			itemsPrice = itemsPrice.Add(lineTotal)
			lineItems = append(lineItems, models.OrderLineItem{
				ID:          uuid.New(),
				OrderID:     order.ID,
				ProductID:   product.ID,
				ProductName: product.Name,
				FarmerID:    product.FarmerID,
				UnitPrice:   product.PricePerKg,
				Quantity:    item.Quantity,
				LineTotal:   lineTotal.Round(2),
			})
		}

		seq, err := repo.NextOrderNumber(ctx, now.Format("20060102"))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
		}
		order.OrderNumber = fmt.Sprintf("ORD-%s-%04d", now.Format("20060102"), seq)

		order.Items = lineItems
		order.ItemsPrice = itemsPrice.Round(2)
		order.TaxPrice = itemsPrice.
			Mul(decimal.NewFromInt(int64(s.billing.TaxRatePercent))).
			Div(decimal.NewFromInt(100)).
			Round(2)
		order.TotalPrice = order.ItemsPrice.Add(order.TaxPrice).Add(order.ShippingPrice).Round(2)

		if initial == enums.OrderStatusProcessing {
			order.IsPaid = true
			paidAt := now
			order.PaidAt = &paidAt
		}

		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		if initial == enums.OrderStatusProcessing {
			if err := s.stock.Reserve(ctx, tx, order, input.Actor.UserID); err != nil {
				return err
			}
		}

		note := "Order placed"
		if err := repo.AppendStatusEvent(ctx, &models.OrderStatusEvent{
			OrderID: order.ID,
			Status:  initial,
			Note:    &note,
			ActorID: input.Actor.UserID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
		}

		if input.PaymentResult != nil {
			payment, err := s.recordInlinePayment(ctx, repo, order, input.PaymentResult, now)
			if err != nil {
				return err
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPaymentCompleted,
				AggregateType: enums.AggregatePayment,
				AggregateID:   payment.ID,
				Actor:         actorRef(input.Actor),
				Data: payloads.PaymentCompletedEvent{
					PaymentID:        payment.ID,
					OrderID:          order.ID,
					Amount:           payment.Amount,
					Currency:         payment.Currency,
					GatewayPaymentID: input.PaymentResult.GatewayPaymentID,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment event")
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(input.Actor),
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				CustomerID:  order.CustomerID,
				TotalPrice:  order.TotalPrice,
				ItemCount:   len(order.Items),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncCreated()
	return order, nil
}

// recordInlinePayment persists the completed gateway settlement that arrived
// with checkout, keeping the paid flag and the payment row in one commit.
func (s *service) recordInlinePayment(ctx context.Context, repo Repository, order *models.Order, res *PaymentResult, now time.Time) (*models.Payment, error) {
	gwOrderID := res.GatewayOrderID
	gwPaymentID := res.GatewayPaymentID
	paymentDate := now
	payment := &models.Payment{
		ID:               uuid.New(),
		Type:             enums.PaymentTypeCustomer,
		OrderID:          &order.ID,
		Amount:           order.TotalPrice,
		Currency:         "INR",
		Gateway:          "razorpay",
		GatewayOrderID:   &gwOrderID,
		GatewayPaymentID: &gwPaymentID,
		Status:           enums.PaymentStatusCompleted,
		PaymentDate:      &paymentDate,
	}
	if err := repo.CreatePayment(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment")
	}
	return payment, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if actor.Role == enums.UserRoleCustomer && order.CustomerID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listOrdersParams{
		CustomerID: params.CustomerID,
		Status:     params.Status,
		Limit:      params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListOrders(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, input UpdateStatusInput) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = repo.FindOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		from := order.Status
		to := input.Status
		if !transitions.Can(from, to) {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "status transition not allowed").
				WithDetails(map[string]any{
					"from":    from,
					"to":      to,
					"allowed": transitions.Targets(from),
				})
		}
		if to == enums.OrderStatusDelivered && !order.HasDeliveryProof() {
			return pkgerrors.New(pkgerrors.CodeValidation, "tracking number and courier required before delivery")
		}

		now := s.now().UTC()
		order.Status = to
		switch to {
		case enums.OrderStatusProcessing:
			if err := s.stock.Reserve(ctx, tx, order, input.Actor.UserID); err != nil {
				return err
			}
		case enums.OrderStatusCancelled:
			return s.applyCancellation(ctx, tx, repo, order, from, input.Note, input.Actor, now)
		case enums.OrderStatusDelivered:
			order.IsDelivered = true
			deliveredAt := now
			order.DeliveredAt = &deliveredAt
		case enums.OrderStatusRefunded:
			order.IsRefunded = true
			refundedAt := now
			order.RefundedAt = &refundedAt
			if input.Note != "" {
				note := input.Note
				order.RefundReason = &note
			}
		}

		if err := repo.SaveOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order")
		}
		if err := s.appendHistory(ctx, repo, order, to, input.Note, input.Actor.UserID); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(input.Actor),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				CustomerID:  order.CustomerID,
				From:        from,
				To:          to,
				Note:        input.Note,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit status event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition(order.Status.String())
	return order, nil
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, input CancelInput) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = repo.FindOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if input.Actor.Role == enums.UserRoleCustomer && order.CustomerID != input.Actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
		}

		from := order.Status
		if cancelClosed[from] {
			return pkgerrors.New(pkgerrors.CodeConflict, "order can no longer be cancelled").
				WithDetails(map[string]any{"status": from})
		}

		order.Status = enums.OrderStatusCancelled
		return s.applyCancellation(ctx, tx, repo, order, from, input.Reason, input.Actor, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// applyCancellation finishes a transition into Cancelled: stock restoration
// when the prior status had decremented it, the reason note, history, and the
// cancellation event. order.Status must already be Cancelled.
func (s *service) applyCancellation(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, from enums.OrderStatus, reason string, actor Actor, now time.Time) error {
	restored := false
	if stockRestoredOnCancel[from] {
		if err := s.stock.Restore(ctx, tx, order, actor.UserID); err != nil {
			return err
		}
		restored = true
	}

	if reason == "" {
		reason = s.billing.DefaultCancelNote
	}
	order.CancellationReason = &reason

	if err := repo.SaveOrder(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order")
	}
	if err := s.appendHistory(ctx, repo, order, enums.OrderStatusCancelled, reason, actor.UserID); err != nil {
		return err
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(actor),
		Data: payloads.OrderCancelledEvent{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			CustomerID:    order.CustomerID,
			PriorStatus:   from,
			Reason:        reason,
			StockRestored: restored,
			CancelledAt:   now,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit cancellation event")
	}

	s.metrics.IncCancelled(restored)
	return nil
}

func (s *service) SetTracking(ctx context.Context, orderID uuid.UUID, input SetTrackingInput) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.TrackingNumber == "" || input.CourierProvider == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number and courier required")
	}

	var order *models.Order
	promoted := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = repo.FindOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		order.TrackingNumber = &input.TrackingNumber
		order.CourierProvider = &input.CourierProvider

		// attaching tracking to a packed order means it left the warehouse
		if order.Status == enums.OrderStatusPacked {
			from := order.Status
			order.Status = enums.OrderStatusShipped
			promoted = true
			if err := repo.SaveOrder(ctx, order); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order")
			}
			note := fmt.Sprintf("Shipped via %s (%s)", input.CourierProvider, input.TrackingNumber)
			if err := s.appendHistory(ctx, repo, order, enums.OrderStatusShipped, note, input.Actor.UserID); err != nil {
				return err
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderStatusChanged,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         actorRef(input.Actor),
				Data: payloads.OrderStatusChangedEvent{
					OrderID:     order.ID,
					OrderNumber: order.OrderNumber,
					CustomerID:  order.CustomerID,
					From:        from,
					To:          enums.OrderStatusShipped,
					Note:        note,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit status event")
			}
			return nil
		}

		if err := repo.SaveOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if promoted {
		s.metrics.IncTransition(enums.OrderStatusShipped.String())
	}
	return order, nil
}

// MarkPaid records a settled payment against the order. Called by the
// payments service inside its own transaction; promotes Pending orders to
// Processing, which reserves stock.
func (s *service) MarkPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, paidAt time.Time, actor Actor) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.IsPaid {
		return nil
	}

	order.IsPaid = true
	at := paidAt.UTC()
	order.PaidAt = &at

	if order.Status == enums.OrderStatusPending {
		from := order.Status
		order.Status = enums.OrderStatusProcessing
		if err := s.stock.Reserve(ctx, tx, order, actor.UserID); err != nil {
			return err
		}
		if err := repo.SaveOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order")
		}
		if err := s.appendHistory(ctx, repo, order, enums.OrderStatusProcessing, "Payment received", actor.UserID); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(actor),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				CustomerID:  order.CustomerID,
				From:        from,
				To:          enums.OrderStatusProcessing,
				Note:        "Payment received",
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit status event")
		}
		s.metrics.IncTransition(enums.OrderStatusProcessing.String())
		return nil
	}

	if err := repo.SaveOrder(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order")
	}
	return nil
}

// MarkRefunded forces the order into Refunded regardless of its current
// status. The payments service is the only caller; the refund itself has
// already settled, so the order record must follow.
func (s *service) MarkRefunded(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string, actor Actor) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status == enums.OrderStatusRefunded {
		return nil
	}

	from := order.Status
	now := s.now().UTC()
	order.Status = enums.OrderStatusRefunded
	order.IsRefunded = true
	order.RefundedAt = &now
	if reason != "" {
		order.RefundReason = &reason
	}
	if err := repo.SaveOrder(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order")
	}
	if err := s.appendHistory(ctx, repo, order, enums.OrderStatusRefunded, reason, actor.UserID); err != nil {
		return err
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(actor),
		Data: payloads.OrderStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CustomerID:  order.CustomerID,
			From:        from,
			To:          enums.OrderStatusRefunded,
			Note:        reason,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit status event")
	}
	s.metrics.IncTransition(enums.OrderStatusRefunded.String())
	return nil
}

// MarkDelivered forces the order into Delivered. The deliveries service is
// the only caller; the physical handover already happened.
func (s *service) MarkDelivered(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, deliveredAt time.Time, actor Actor) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status == enums.OrderStatusDelivered {
		return nil
	}

	from := order.Status
	at := deliveredAt.UTC()
	order.Status = enums.OrderStatusDelivered
	order.IsDelivered = true
	order.DeliveredAt = &at
	if err := repo.SaveOrder(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order")
	}
	if err := s.appendHistory(ctx, repo, order, enums.OrderStatusDelivered, "Delivered to customer", actor.UserID); err != nil {
		return err
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(actor),
		Data: payloads.OrderStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CustomerID:  order.CustomerID,
			From:        from,
			To:          enums.OrderStatusDelivered,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit status event")
	}
	s.metrics.IncTransition(enums.OrderStatusDelivered.String())
	return nil
}

func (s *service) appendHistory(ctx context.Context, repo Repository, order *models.Order, status enums.OrderStatus, note string, actorID uuid.UUID) error {
	event := &models.OrderStatusEvent{
		OrderID: order.ID,
		Status:  status,
		ActorID: actorID,
	}
	if note != "" {
		event.Note = &note
	}
	if err := repo.AppendStatusEvent(ctx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
	}
	return nil
}

func actorRef(actor Actor) *outbox.ActorRef {
	if actor.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}
