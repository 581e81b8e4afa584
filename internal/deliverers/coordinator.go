package deliverers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/afonso-rickman/newdelivery/internal/orders"
	"github.com/afonso-rickman/newdelivery/pkg/db/models"
	"github.com/afonso-rickman/newdelivery/pkg/enums"
	pkgerrors "github.com/afonso-rickman/newdelivery/pkg/errors"
	"github.com/afonso-rickman/newdelivery/pkg/logger"
)

// Assignment is an open hand-off flow: the order as it was when the flow
// began and the deliverers that may take it.
type Assignment struct {
	OrderID         uuid.UUID          `json:"order_id"`
	ExpectedVersion int64              `json:"expected_version"`
	Requires        string             `json:"requires"`
	Eligible        []DelivererDTO     `json:"eligible"`
	Suggested       *DelivererDTO      `json:"suggested,omitempty"`
	Expect          orders.Expectation `json:"-"`
}

// AssignRequest completes an assignment flow.
type AssignRequest struct {
	TenantID        uuid.UUID
	OrderID         uuid.UUID
	DelivererID     uuid.UUID
	ExpectedVersion int64
	Actor           orders.Actor
}

type DelivererDTO struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Phone  *string   `json:"phone,omitempty"`
	Active bool      `json:"active"`
}

func NewDelivererDTOs(list []models.Deliverer) []DelivererDTO {
	out := make([]DelivererDTO, 0, len(list))
	for _, d := range list {
		out = append(out, DelivererDTO{ID: d.ID, Name: d.Name, Phone: d.Phone, Active: d.Active})
	}
	return out
}

// Coordinator hands ready orders to deliverers. Concurrent sessions are
// arbitrated by the gateway's compare-and-swap, not by locks.
type Coordinator struct {
	repo     Repository
	store    orders.Store
	observer orders.MutationObserver
	recorder orders.TransitionRecorder
	logg     *logger.Logger
}

// NewCoordinator builds the deliverer assignment coordinator. observer and
// recorder may be nil.
func NewCoordinator(repo Repository, store orders.Store, observer orders.MutationObserver, recorder orders.TransitionRecorder, logg *logger.Logger) (*Coordinator, error) {
	if repo == nil {
		return nil, fmt.Errorf("deliverers repository required")
	}
	if store == nil {
		return nil, fmt.Errorf("order store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Coordinator{repo: repo, store: store, observer: observer, recorder: recorder, logg: logg}, nil
}

// ListEligible returns the tenant's active deliverers ordered by name.
func (c *Coordinator) ListEligible(ctx context.Context, tenantID uuid.UUID) ([]models.Deliverer, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "tenant context missing")
	}
	list, err := c.repo.ListActive(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list deliverers")
	}
	if list == nil {
		list = []models.Deliverer{}
	}
	return list, nil
}

// Begin opens an assignment flow for a plan that requires one. With no
// eligible deliverer it fails with NO_ELIGIBLE_AGENTS and the order stays
// ready.
func (c *Coordinator) Begin(ctx context.Context, plan orders.TransitionPlan) (*Assignment, error) {
	if !plan.RequiresAssignment() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan does not require a deliverer")
	}
	eligible, err := c.ListEligible(ctx, plan.TenantID)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		c.record("no_eligible_agents")
		c.logg.Warn(c.logg.WithField(ctx, "order_id", plan.OrderID.String()), "no active deliverers for tenant")
		return nil, pkgerrors.New(pkgerrors.CodeNoEligibleAgents, "no active deliverers available")
	}

	dtos := NewDelivererDTOs(eligible)
	suggested := dtos[0]
	return &Assignment{
		OrderID:         plan.OrderID,
		ExpectedVersion: plan.Expect.Version,
		Requires:        plan.Requires,
		Eligible:        dtos,
		Suggested:       &suggested,
		Expect:          plan.Expect,
	}, nil
}

// Assign moves a ready order to delivering with the chosen deliverer in a
// single mutation, provided the order is still as it was when the flow began.
func (c *Coordinator) Assign(ctx context.Context, req AssignRequest) (*models.Order, error) {
	ctx = c.logg.WithFields(ctx, map[string]any{
		"order_id":     req.OrderID.String(),
		"deliverer_id": req.DelivererID.String(),
	})
	if req.DelivererID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deliverer id required")
	}

	order, err := c.store.FindOrder(ctx, req.TenantID, req.OrderID)
	if err != nil {
		c.record(orders.OutcomeForError(err))
		return nil, err
	}
	if req.ExpectedVersion != 0 && order.Version != req.ExpectedVersion {
		c.record("conflict")
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order changed since the assignment began").
			WithDetails(map[string]any{
				"expected_version": req.ExpectedVersion,
				"current_version":  order.Version,
				"delivery_status":  order.DeliveryStatus,
			})
	}
	if order.DeliveryStatus != enums.DeliveryStatusReady {
		c.record("conflict")
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order is no longer ready").
			WithDetails(map[string]any{
				"current_version": order.Version,
				"delivery_status": order.DeliveryStatus,
			})
	}

	if err := c.checkDeliverer(ctx, req.TenantID, req.DelivererID); err != nil {
		c.record(orders.OutcomeForError(err))
		return nil, err
	}

	target := enums.DeliveryStatusDelivering
	delivererID := req.DelivererID
	updated, err := c.store.Mutate(ctx, req.TenantID, req.OrderID, orders.Patch{
		Expect: orders.Expectation{
			DeliveryStatus: order.DeliveryStatus,
			PaymentStatus:  order.PaymentStatus,
			Version:        order.Version,
		},
		DeliveryStatus:  &target,
		AssignDeliverer: &delivererID,
		Actor:           req.Actor,
	})
	if err != nil {
		c.record(orders.OutcomeForError(err))
		if pkgerrors.Is(err, pkgerrors.CodeConflict) {
			c.logg.Warn(ctx, "deliverer assignment lost a concurrent update")
		}
		return nil, err
	}

	c.record("applied")
	c.logg.Info(ctx, "order assigned to deliverer")
	if c.observer != nil {
		c.observer.OrderMutated(ctx, *updated)
	}
	return updated, nil
}

func (c *Coordinator) checkDeliverer(ctx context.Context, tenantID, delivererID uuid.UUID) error {
	deliverer, err := c.repo.Find(ctx, delivererID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "deliverer not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deliverer")
	}
	if deliverer.TenantID != tenantID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "deliverer does not belong to tenant")
	}
	if !deliverer.Active {
		return pkgerrors.New(pkgerrors.CodeValidation, "deliverer is not active")
	}
	return nil
}

func (c *Coordinator) record(outcome string) {
	if c.recorder != nil {
		c.recorder.RecordTransition("assignment", outcome)
	}
}
