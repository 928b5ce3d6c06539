package deliveries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/riceup-labs/riceup-backend/internal/orders"
	"github.com/riceup-labs/riceup-backend/pkg/db"
	"github.com/riceup-labs/riceup-backend/pkg/db/models"
	"github.com/riceup-labs/riceup-backend/pkg/enums"
	pkgerrors "github.com/riceup-labs/riceup-backend/pkg/errors"
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

// orderFollower is the slice of the orders service consumed on handover. The
// delivery is the trigger, the order is the follower, never the reverse.
type orderFollower interface {
	MarkDelivered(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, deliveredAt time.Time, actor orders.Actor) error
}

// Actor identifies who is performing an operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// CreateDeliveryInput schedules the physical fulfillment of an order.
type CreateDeliveryInput struct {
	OrderID       uuid.UUID
	ScheduledDate time.Time
	TimeSlot      string
	AgentID       *uuid.UUID
	Actor         Actor
}

// UpdateStatusInput is the delivery transition command.
type UpdateStatusInput struct {
	Status enums.DeliveryStatus
	Note   string
	Actor  Actor
}

// RescheduleInput moves a failed or pending delivery to a new slot.
type RescheduleInput struct {
	ScheduledDate time.Time
	TimeSlot      string
	Actor         Actor
}

// ListParams configures pagination and filtering for delivery lists.
type ListParams struct {
	CustomerID uuid.UUID
	AgentID    uuid.UUID
	Status     *enums.DeliveryStatus
	Limit      int
	Cursor     string
}

// ListResult wraps returned deliveries and the cursor for the next page.
type ListResult struct {
	Items  []models.Delivery `json:"items"`
	Cursor string            `json:"cursor"`
}

// Service defines delivery tracking operations.
type Service interface {
	Create(ctx context.Context, input CreateDeliveryInput) (*models.Delivery, error)
	Get(ctx context.Context, deliveryID uuid.UUID, actor Actor) (*models.Delivery, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	UpdateStatus(ctx context.Context, deliveryID uuid.UUID, input UpdateStatusInput) (*models.Delivery, error)
	Reschedule(ctx context.Context, deliveryID uuid.UUID, input RescheduleInput) (*models.Delivery, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	orders orderFollower
	outbox outboxPublisher
	now    func() time.Time
}

// NewService wires delivery dependencies.
func NewService(repo Repository, tx txRunner, ordersSvc orderFollower, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("deliveries repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ordersSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, orders: ordersSvc, outbox: outboxSvc, now: time.Now}, nil
}

func (s *service) Create(ctx context.Context, input CreateDeliveryInput) (*models.Delivery, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ScheduledDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scheduled date required")
	}
	if input.TimeSlot == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "time slot required")
	}

	var delivery *models.Delivery
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status != enums.OrderStatusPacked && order.Status != enums.OrderStatusShipped {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order must be packed or shipped before delivery is scheduled").
				WithDetails(map[string]any{"order_status": order.Status})
		}

		delivery = &models.Delivery{
			ID:            uuid.New(),
			OrderID:       order.ID,
			CustomerID:    order.CustomerID,
			ScheduledDate: input.ScheduledDate.UTC(),
			TimeSlot:      input.TimeSlot,
			Address:       order.ShippingAddress,
			Status:        enums.DeliveryStatusScheduled,
			AgentID:       input.AgentID,
		}
		if err := repo.CreateDelivery(ctx, delivery); err != nil {
			if db.IsUniqueViolation(err, "ux_deliveries_order_id") {
				return pkgerrors.New(pkgerrors.CodeConflict, "delivery already exists for order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create delivery")
		}

		note := "Delivery scheduled"
		if err := repo.AppendTrackingUpdate(ctx, &models.DeliveryTrackingUpdate{
			DeliveryID: delivery.ID,
			Status:     enums.DeliveryStatusScheduled,
			Note:       &note,
			ActorID:    input.Actor.UserID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append tracking update")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return delivery, nil
}

func (s *service) Get(ctx context.Context, deliveryID uuid.UUID, actor Actor) (*models.Delivery, error) {
	if deliveryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery id required")
	}
	delivery, err := s.repo.FindDelivery(ctx, deliveryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery")
	}
	if actor.Role == enums.UserRoleCustomer && delivery.CustomerID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "delivery belongs to another customer")
	}
	return delivery, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listDeliveriesParams{
		CustomerID: params.CustomerID,
		AgentID:    params.AgentID,
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

	rows, next, err := s.repo.ListDeliveries(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list deliveries")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) UpdateStatus(ctx context.Context, deliveryID uuid.UUID, input UpdateStatusInput) (*models.Delivery, error) {
	if deliveryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery status")
	}

	var delivery *models.Delivery
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		delivery, err = repo.FindDelivery(ctx, deliveryID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "delivery not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery")
		}

		from := delivery.Status
		to := input.Status
		if !transitions.Can(from, to) {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "status transition not allowed").
				WithDetails(map[string]any{
					"from":    from,
					"to":      to,
					"allowed": transitions.Targets(from),
				})
		}

		now := s.now().UTC()
		delivery.Status = to
		switch to {
		case enums.DeliveryStatusDelivered:
			deliveredAt := now
			delivery.ActualDeliveryTime = &deliveredAt
		case enums.DeliveryStatusFailed:
			if input.Note == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "failure reason required")
			}
			reason := input.Note
			delivery.FailureReason = &reason
		}

		if err := repo.SaveDelivery(ctx, delivery); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save delivery")
		}

		update := &models.DeliveryTrackingUpdate{
			DeliveryID: delivery.ID,
			Status:     to,
			ActorID:    input.Actor.UserID,
		}
		if input.Note != "" {
			note := input.Note
			update.Note = &note
		}
		if err := repo.AppendTrackingUpdate(ctx, update); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append tracking update")
		}

		if to == enums.DeliveryStatusFailed {
			if err := repo.AppendAttempt(ctx, &models.DeliveryAttempt{
				DeliveryID: delivery.ID,
				Reason:     input.Note,
				ActorID:    input.Actor.UserID,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append attempt")
			}
			attempts, err := repo.CountAttempts(ctx, delivery.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count attempts")
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventDeliveryAttemptFailed,
				AggregateType: enums.AggregateDelivery,
				AggregateID:   delivery.ID,
				Actor:         actorRef(input.Actor),
				Data: payloads.DeliveryAttemptFailedEvent{
					DeliveryID:    delivery.ID,
					OrderID:       delivery.OrderID,
					AttemptNumber: int(attempts),
					Reason:        input.Note,
					AttemptedAt:   now,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit attempt event")
			}
		}

		if to == enums.DeliveryStatusDelivered {
			actor := orders.Actor{UserID: input.Actor.UserID, Role: input.Actor.Role}
			if err := s.orders.MarkDelivered(ctx, tx, delivery.OrderID, now, actor); err != nil {
				return err
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeliveryStatusChanged,
			AggregateType: enums.AggregateDelivery,
			AggregateID:   delivery.ID,
			Actor:         actorRef(input.Actor),
			Data: payloads.DeliveryStatusChangedEvent{
				DeliveryID: delivery.ID,
				OrderID:    delivery.OrderID,
				From:       from,
				To:         to,
				AgentID:    delivery.AgentID,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit status event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return delivery, nil
}

// Reschedule moves a Rescheduled delivery back to Scheduled with a new slot.
func (s *service) Reschedule(ctx context.Context, deliveryID uuid.UUID, input RescheduleInput) (*models.Delivery, error) {
	if deliveryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery id required")
	}
	if input.ScheduledDate.IsZero() || input.TimeSlot == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scheduled date and time slot required")
	}

	var delivery *models.Delivery
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		delivery, err = repo.FindDelivery(ctx, deliveryID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "delivery not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery")
		}

		from := delivery.Status
		if !transitions.Can(from, enums.DeliveryStatusScheduled) {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "delivery cannot be rescheduled from its current status").
				WithDetails(map[string]any{"from": from, "allowed": transitions.Targets(from)})
		}

		delivery.Status = enums.DeliveryStatusScheduled
		delivery.ScheduledDate = input.ScheduledDate.UTC()
		delivery.TimeSlot = input.TimeSlot
		delivery.FailureReason = nil
		if err := repo.SaveDelivery(ctx, delivery); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save delivery")
		}

		note := fmt.Sprintf("Rescheduled to %s %s", delivery.ScheduledDate.Format("2006-01-02"), delivery.TimeSlot)
		if err := repo.AppendTrackingUpdate(ctx, &models.DeliveryTrackingUpdate{
			DeliveryID: delivery.ID,
			Status:     enums.DeliveryStatusScheduled,
			Note:       &note,
			ActorID:    input.Actor.UserID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append tracking update")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeliveryStatusChanged,
			AggregateType: enums.AggregateDelivery,
			AggregateID:   delivery.ID,
			Actor:         actorRef(input.Actor),
			Data: payloads.DeliveryStatusChangedEvent{
				DeliveryID: delivery.ID,
				OrderID:    delivery.OrderID,
				From:       from,
				To:         enums.DeliveryStatusScheduled,
				AgentID:    delivery.AgentID,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit status event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return delivery, nil
}

func actorRef(actor Actor) *outbox.ActorRef {
	if actor.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}
