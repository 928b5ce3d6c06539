package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/riceup-labs/riceup-backend/api/middleware"
	"github.com/riceup-labs/riceup-backend/api/responses"
	"github.com/riceup-labs/riceup-backend/api/validators"
	"github.com/riceup-labs/riceup-backend/internal/deliveries"
	"github.com/riceup-labs/riceup-backend/pkg/enums"
	pkgerrors "github.com/riceup-labs/riceup-backend/pkg/errors"
	"github.com/riceup-labs/riceup-backend/pkg/logger"
)

type createDeliveryRequest struct {
	OrderID       uuid.UUID  `json:"order_id" validate:"required"`
	ScheduledDate time.Time  `json:"scheduled_date" validate:"required"`
	TimeSlot      string     `json:"time_slot" validate:"required"`
	AgentID       *uuid.UUID `json:"agent_id"`
}

// CreateDelivery schedules fulfillment for a packed or shipped order.
func CreateDelivery(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createDeliveryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		delivery, err := svc.Create(r.Context(), deliveries.CreateDeliveryInput{
			OrderID:       req.OrderID,
			ScheduledDate: req.ScheduledDate,
			TimeSlot:      req.TimeSlot,
			AgentID:       req.AgentID,
			Actor:         deliveriesActor(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, delivery)
	}
}

// GetDelivery returns one delivery with its tracking trail.
func GetDelivery(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deliveryID, err := pathUUID(r, "deliveryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		delivery, err := svc.Get(r.Context(), deliveryID, deliveriesActor(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, delivery)
	}
}

// ListDeliveries returns deliveries scoped by role: agents see their route,
// customers their own orders, operations everything.
func ListDeliveries(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := deliveriesActor(r)
		params := deliveries.ListParams{Cursor: strings.TrimSpace(r.URL.Query().Get("cursor"))}
		switch actor.Role {
		case enums.UserRoleCustomer:
			params.CustomerID = actor.UserID
		case enums.UserRoleAgent:
			params.AgentID = actor.UserID
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.Limit = limit

		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseDeliveryStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown delivery status"))
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

type updateDeliveryStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

// UpdateDeliveryStatus drives the delivery lifecycle.
func UpdateDeliveryStatus(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deliveryID, err := pathUUID(r, "deliveryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateDeliveryStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseDeliveryStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown delivery status"))
			return
		}

		delivery, err := svc.UpdateStatus(r.Context(), deliveryID, deliveries.UpdateStatusInput{
			Status: status,
			Note:   req.Note,
			Actor:  deliveriesActor(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, delivery)
	}
}

type rescheduleDeliveryRequest struct {
	ScheduledDate time.Time `json:"scheduled_date" validate:"required"`
	TimeSlot      string    `json:"time_slot" validate:"required"`
}

// RescheduleDelivery books a new slot for a delivery that was marked
// rescheduled after a failed attempt.
func RescheduleDelivery(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deliveryID, err := pathUUID(r, "deliveryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req rescheduleDeliveryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		delivery, err := svc.Reschedule(r.Context(), deliveryID, deliveries.RescheduleInput{
			ScheduledDate: req.ScheduledDate,
			TimeSlot:      req.TimeSlot,
			Actor:         deliveriesActor(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, delivery)
	}
}

func deliveriesActor(r *http.Request) deliveries.Actor {
	return deliveries.Actor{
		UserID: middleware.UserIDFromContext(r.Context()),
		Role:   middleware.RoleFromContext(r.Context()),
	}
}
