package orders

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/afonso-rickman/newdelivery/api/middleware"
	"github.com/afonso-rickman/newdelivery/api/responses"
	"github.com/afonso-rickman/newdelivery/api/validators"
	"github.com/afonso-rickman/newdelivery/internal/deliverers"
	internalorders "github.com/afonso-rickman/newdelivery/internal/orders"
	"github.com/afonso-rickman/newdelivery/internal/reconcile"
	"github.com/afonso-rickman/newdelivery/pkg/db/models"
	"github.com/afonso-rickman/newdelivery/pkg/enums"
	pkgerrors "github.com/afonso-rickman/newdelivery/pkg/errors"
	"github.com/afonso-rickman/newdelivery/pkg/logger"
)

const maxHistoryLimit = 200

type orderReader interface {
	FetchOrders(ctx context.Context, tenantID uuid.UUID, window internalorders.QueryWindow) ([]models.Order, error)
	FindOrder(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error)
	History(ctx context.Context, tenantID, orderID uuid.UUID, limit int) ([]models.OrderStatusHistory, error)
}

type transitionService interface {
	Transition(ctx context.Context, tenantID, orderID uuid.UUID, req internalorders.TransitionRequest) (internalorders.TransitionOutcome, error)
	ChangePayment(ctx context.Context, tenantID, orderID uuid.UUID, req internalorders.PaymentRequest) (*models.Order, error)
}

type assignmentCoordinator interface {
	ListEligible(ctx context.Context, tenantID uuid.UUID) ([]models.Deliverer, error)
	Begin(ctx context.Context, plan internalorders.TransitionPlan) (*deliverers.Assignment, error)
	Assign(ctx context.Context, req deliverers.AssignRequest) (*models.Order, error)
}

type transitionRequest struct {
	Status             string  `json:"status" validate:"required,delivery_status"`
	ExpectedVersion    int64   `json:"expected_version" validate:"required,min=1"`
	CancellationReason *string `json:"cancellation_reason,omitempty" validate:"omitempty,max=500"`
}

type paymentRequest struct {
	PaymentStatus   string `json:"payment_status" validate:"required,payment_status"`
	ExpectedVersion int64  `json:"expected_version" validate:"required,min=1"`
}

type assignmentRequest struct {
	DelivererID     string `json:"deliverer_id" validate:"required,uuid"`
	ExpectedVersion int64  `json:"expected_version" validate:"required,min=1"`
}

type pendingAssignmentResponse struct {
	Order      internalorders.OrderDTO `json:"order"`
	Assignment *deliverers.Assignment  `json:"assignment"`
}

// List answers a one-shot authoritative read of the tenant's orders for a
// day window. A missing from returns an empty model without a store read.
func List(reader orderReader, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order store unavailable"))
			return
		}
		tenantID, ok := tenantID(w, r, logg)
		if !ok {
			return
		}

		q := r.URL.Query()
		window, err := internalorders.NewDayWindow(q.Get("from"), q.Get("to"), q.Get("status"), loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var list []models.Order
		if !window.IsEmpty() {
			list, err = reader.FetchOrders(r.Context(), tenantID, window)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		model := reconcile.NewReadModel(window, list, time.Now())
		responses.WriteSuccess(w, reconcile.NewReadModelDTO("", model, loc))
	}
}

func Detail(reader orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantID(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := reader.FindOrder(r.Context(), tenantID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(*order))
	}
}

// History returns the most recent audit rows of an order, oldest first.
func History(reader orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantID(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, maxHistoryLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := reader.History(r.Context(), tenantID, orderID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewHistoryDTOs(entries))
	}
}

// Transition moves an order along the delivery lifecycle. A move into
// delivering answers 202 with the deliverers to choose from; nothing is
// persisted until the assignment is posted.
func Transition(svc transitionService, coordinator assignmentCoordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantID(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body transitionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target := enums.DeliveryStatus(strings.TrimSpace(body.Status))
		outcome, err := svc.Transition(r.Context(), tenantID, orderID, internalorders.TransitionRequest{
			Target:             target,
			ExpectedVersion:    body.ExpectedVersion,
			CancellationReason: body.CancellationReason,
			Actor:              actor(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if outcome.Plan != nil {
			assignment, err := coordinator.Begin(r.Context(), *outcome.Plan)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccessStatus(w, http.StatusAccepted, pendingAssignmentResponse{
				Order:      internalorders.NewOrderDTO(*outcome.Order),
				Assignment: assignment,
			})
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(*outcome.Order))
	}
}

func ChangePayment(svc transitionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantID(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body paymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target := enums.PaymentStatus(strings.TrimSpace(body.PaymentStatus))
		order, err := svc.ChangePayment(r.Context(), tenantID, orderID, internalorders.PaymentRequest{
			Target:          target,
			ExpectedVersion: body.ExpectedVersion,
			Actor:           actor(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(*order))
	}
}

// Assign completes a pending move into delivering with the chosen deliverer.
func Assign(coordinator assignmentCoordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantID(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body assignmentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		delivererID, err := uuid.Parse(body.DelivererID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid deliverer id"))
			return
		}

		order, err := coordinator.Assign(r.Context(), deliverers.AssignRequest{
			TenantID:        tenantID,
			OrderID:         orderID,
			DelivererID:     delivererID,
			ExpectedVersion: body.ExpectedVersion,
			Actor:           actor(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(*order))
	}
}

// Deliverers lists the tenant's active deliverers ordered by name.
func Deliverers(coordinator assignmentCoordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantID(w, r, logg)
		if !ok {
			return
		}
		list, err := coordinator.ListEligible(r.Context(), tenantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, deliverers.NewDelivererDTOs(list))
	}
}

func tenantID(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "tenant context missing"))
		return uuid.Nil, false
	}
	return tenant.ID, true
}

func actor(r *http.Request) internalorders.Actor {
	userID, role := middleware.ActorFromContext(r.Context())
	return internalorders.Actor{UserID: userID, Role: role}
}
