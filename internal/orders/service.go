package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/afonso-rickman/newdelivery/pkg/db/models"
	pkgerrors "github.com/afonso-rickman/newdelivery/pkg/errors"
	"github.com/afonso-rickman/newdelivery/pkg/logger"
)

// TransitionRecorder counts transition outcomes.
type TransitionRecorder interface {
	RecordTransition(kind, outcome string)
}

// TransitionOutcome is either a persisted order or a plan waiting on the
// deliverer assignment flow. Order is always the freshest known state.
type TransitionOutcome struct {
	Order *models.Order
	Plan  *TransitionPlan
}

// Service runs status changes through the state machine and the gateway.
type Service struct {
	store    Store
	observer MutationObserver
	recorder TransitionRecorder
	logg     *logger.Logger
	now      func() time.Time
}

type ServiceOption func(*Service)

func WithObserver(observer MutationObserver) ServiceOption {
	return func(s *Service) { s.observer = observer }
}

func WithRecorder(recorder TransitionRecorder) ServiceOption {
	return func(s *Service) { s.recorder = recorder }
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService builds the order transition service.
func NewService(store Store, logg *logger.Logger, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("order store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	s := &Service{store: store, logg: logg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Transition moves an order along the delivery lifecycle. A move into
// delivering is only planned here; the deliverer flow persists it.
func (s *Service) Transition(ctx context.Context, tenantID, orderID uuid.UUID, req TransitionRequest) (TransitionOutcome, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id": orderID.String(),
		"target":   req.Target.String(),
	})

	order, err := s.store.FindOrder(ctx, tenantID, orderID)
	if err != nil {
		s.record("delivery", err)
		return TransitionOutcome{}, err
	}

	plan, err := AttemptTransition(*order, req, s.now())
	if err != nil {
		s.record("delivery", err)
		return TransitionOutcome{Order: order}, err
	}
	if plan.NoOp {
		s.recordOutcome("delivery", "noop")
		return TransitionOutcome{Order: order}, nil
	}
	if plan.RequiresAssignment() {
		s.recordOutcome("delivery", "planned")
		return TransitionOutcome{Order: order, Plan: &plan}, nil
	}

	updated, err := s.store.Mutate(ctx, tenantID, orderID, plan.Patch)
	if err != nil {
		s.record("delivery", err)
		if pkgerrors.Is(err, pkgerrors.CodeConflict) {
			s.logg.Warn(ctx, "order transition lost a concurrent update")
		}
		return TransitionOutcome{Order: order}, err
	}

	s.recordOutcome("delivery", "applied")
	s.logg.Info(s.logg.WithField(ctx, "version", updated.Version), "order transitioned")
	s.notify(ctx, *updated)
	return TransitionOutcome{Order: updated}, nil
}

// ChangePayment moves the order's payment status.
func (s *Service) ChangePayment(ctx context.Context, tenantID, orderID uuid.UUID, req PaymentRequest) (*models.Order, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":       orderID.String(),
		"payment_target": req.Target.String(),
	})

	order, err := s.store.FindOrder(ctx, tenantID, orderID)
	if err != nil {
		s.record("payment", err)
		return nil, err
	}

	patch, err := AttemptPaymentTransition(*order, req)
	if err != nil {
		s.record("payment", err)
		return nil, err
	}
	if patch == nil {
		s.recordOutcome("payment", "noop")
		return order, nil
	}

	updated, err := s.store.Mutate(ctx, tenantID, orderID, *patch)
	if err != nil {
		s.record("payment", err)
		return nil, err
	}

	s.recordOutcome("payment", "applied")
	s.logg.Info(ctx, "order payment changed")
	s.notify(ctx, *updated)
	return updated, nil
}

func (s *Service) notify(ctx context.Context, order models.Order) {
	if s.observer != nil {
		s.observer.OrderMutated(ctx, order)
	}
}

func (s *Service) record(kind string, err error) {
	s.recordOutcome(kind, OutcomeForError(err))
}

func (s *Service) recordOutcome(kind, outcome string) {
	if s.recorder != nil {
		s.recorder.RecordTransition(kind, outcome)
	}
}

// OutcomeForError maps an error onto a low-cardinality metric label.
func OutcomeForError(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return "error"
	}
	switch typed.Code() {
	case pkgerrors.CodeConflict:
		return "conflict"
	case pkgerrors.CodeStateConflict, pkgerrors.CodeValidation:
		return "rejected"
	case pkgerrors.CodeForbidden:
		return "forbidden"
	case pkgerrors.CodeNotFound:
		return "not_found"
	case pkgerrors.CodeNoEligibleAgents:
		return "no_eligible_agents"
	default:
		return "error"
	}
}
