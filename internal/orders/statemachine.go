package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/afonso-rickman/newdelivery/pkg/db/models"
	"github.com/afonso-rickman/newdelivery/pkg/enums"
	pkgerrors "github.com/afonso-rickman/newdelivery/pkg/errors"
)

// RequirementDelivererAssignment marks a plan that must be completed by the
// deliverer assignment flow before anything is persisted.
const RequirementDelivererAssignment = "deliverer_assignment"

var deliveryTransitions = map[enums.DeliveryStatus][]enums.DeliveryStatus{
	enums.DeliveryStatusPending:    {enums.DeliveryStatusAccepted, enums.DeliveryStatusCancelled},
	enums.DeliveryStatusAccepted:   {enums.DeliveryStatusPreparing, enums.DeliveryStatusCancelled},
	enums.DeliveryStatusPreparing:  {enums.DeliveryStatusReady, enums.DeliveryStatusCancelled},
	enums.DeliveryStatusReady:      {enums.DeliveryStatusDelivering, enums.DeliveryStatusCancelled},
	enums.DeliveryStatusDelivering: {enums.DeliveryStatusDelivered, enums.DeliveryStatusCancelled},
}

var paymentTransitions = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusAReceber: {
		enums.PaymentStatusRecebido,
		enums.PaymentStatusPaid,
		enums.PaymentStatusPayrollDiscount,
	},
	enums.PaymentStatusPayrollDiscount: {
		enums.PaymentStatusRecebido,
		enums.PaymentStatusPaid,
	},
}

// NextDeliveryStatuses lists the statuses reachable in one step from current.
func NextDeliveryStatuses(current enums.DeliveryStatus) []enums.DeliveryStatus {
	next := deliveryTransitions[current]
	out := make([]enums.DeliveryStatus, len(next))
	copy(out, next)
	return out
}

// CanTransitionDelivery reports whether to is one edge away from from.
func CanTransitionDelivery(from, to enums.DeliveryStatus) bool {
	for _, candidate := range deliveryTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// CanTransitionPayment reports whether to is one edge away from from.
func CanTransitionPayment(from, to enums.PaymentStatus) bool {
	for _, candidate := range paymentTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// TransitionRequest is a request to move an order to a new delivery status.
type TransitionRequest struct {
	Target             enums.DeliveryStatus
	ExpectedVersion    int64
	CancellationReason *string
	Actor              Actor
}

// TransitionPlan is an accepted transition. When Requires is empty the patch
// can be persisted directly; when NoOp is set nothing needs persisting.
type TransitionPlan struct {
	OrderID  uuid.UUID
	TenantID uuid.UUID
	From     enums.DeliveryStatus
	Target   enums.DeliveryStatus
	Requires string
	NoOp     bool
	Expect   Expectation
	Patch    Patch
}

// RequiresAssignment reports whether the plan waits on a deliverer.
func (p TransitionPlan) RequiresAssignment() bool {
	return p.Requires == RequirementDelivererAssignment
}

// AttemptTransition validates a delivery transition against order as
// currently held and returns the plan to carry it out. Rejections come back
// as typed errors and never touch the store.
func AttemptTransition(order models.Order, req TransitionRequest, now time.Time) (TransitionPlan, error) {
	if !req.Target.IsValid() {
		return TransitionPlan{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown target status").
			WithDetails(map[string]any{"status": req.Target})
	}

	expect := Expectation{
		DeliveryStatus: order.DeliveryStatus,
		PaymentStatus:  order.PaymentStatus,
		Version:        order.Version,
	}
	plan := TransitionPlan{
		OrderID:  order.ID,
		TenantID: order.TenantID,
		From:     order.DeliveryStatus,
		Target:   req.Target,
		Expect:   expect,
	}

	if order.DeliveryStatus == req.Target {
		plan.NoOp = true
		return plan, nil
	}
	if req.ExpectedVersion != 0 && req.ExpectedVersion != order.Version {
		return TransitionPlan{}, staleVersion(order, req.ExpectedVersion)
	}
	if !CanTransitionDelivery(order.DeliveryStatus, req.Target) {
		return TransitionPlan{}, pkgerrors.New(pkgerrors.CodeStateConflict, "transition not allowed").
			WithDetails(map[string]any{
				"from":    order.DeliveryStatus,
				"to":      req.Target,
				"allowed": NextDeliveryStatuses(order.DeliveryStatus),
			})
	}

	target := req.Target
	patch := Patch{Expect: expect, DeliveryStatus: &target, Actor: req.Actor}

	switch target {
	case enums.DeliveryStatusDelivering:
		plan.Requires = RequirementDelivererAssignment
	case enums.DeliveryStatusDelivered:
		at := now.UTC()
		patch.DeliveredAt = &at
	case enums.DeliveryStatusCancelled:
		patch.CancellationReason = trimmedReason(req.CancellationReason)
		if order.AssignedDelivererID != nil {
			patch.ClearDeliverer = true
		}
	}

	plan.Patch = patch
	return plan, nil
}

// PaymentRequest is a request to move an order to a new payment status.
type PaymentRequest struct {
	Target          enums.PaymentStatus
	ExpectedVersion int64
	Actor           Actor
}

// AttemptPaymentTransition validates a payment change. A same-target request
// returns a nil patch.
func AttemptPaymentTransition(order models.Order, req PaymentRequest) (*Patch, error) {
	if !req.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment status").
			WithDetails(map[string]any{"payment_status": req.Target})
	}
	if order.PaymentStatus == req.Target {
		return nil, nil
	}
	if req.ExpectedVersion != 0 && req.ExpectedVersion != order.Version {
		return nil, staleVersion(order, req.ExpectedVersion)
	}
	if order.DeliveryStatus == enums.DeliveryStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment cannot change on a cancelled order")
	}
	if !CanTransitionPayment(order.PaymentStatus, req.Target) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment transition not allowed").
			WithDetails(map[string]any{"from": order.PaymentStatus, "to": req.Target})
	}

	target := req.Target
	return &Patch{
		Expect: Expectation{
			DeliveryStatus: order.DeliveryStatus,
			PaymentStatus:  order.PaymentStatus,
			Version:        order.Version,
		},
		PaymentStatus: &target,
		Actor:         req.Actor,
	}, nil
}

func staleVersion(order models.Order, expected int64) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeConflict, "order changed since it was read").
		WithDetails(map[string]any{
			"expected_version": expected,
			"current_version":  order.Version,
			"delivery_status":  order.DeliveryStatus,
			"payment_status":   order.PaymentStatus,
		})
}

func trimmedReason(reason *string) *string {
	if reason == nil {
		return nil
	}
	r := strings.TrimSpace(*reason)
	if r == "" {
		return nil
	}
	return &r
}
