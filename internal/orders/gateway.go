package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/afonso-rickman/newdelivery/pkg/db"
	"github.com/afonso-rickman/newdelivery/pkg/db/models"
	"github.com/afonso-rickman/newdelivery/pkg/enums"
	pkgerrors "github.com/afonso-rickman/newdelivery/pkg/errors"
)

// Gateway is the only path through which orders are read or their status
// fields written. Every call is tenant-scoped.
type Gateway struct {
	repo Repository
	tx   txRunner
	now  func() time.Time
}

// NewGateway builds the order store gateway.
func NewGateway(repo Repository, tx txRunner) (*Gateway, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Gateway{repo: repo, tx: tx, now: time.Now}, nil
}

// FetchOrders returns the tenant's orders inside window, newest first. An
// empty window returns an empty list without touching the store.
func (g *Gateway) FetchOrders(ctx context.Context, tenantID uuid.UUID, window QueryWindow) ([]models.Order, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "tenant context missing")
	}
	if window.IsEmpty() {
		return []models.Order{}, nil
	}
	list, err := g.repo.ListOrders(ctx, tenantID, window)
	if err != nil {
		return nil, storeError(err, "fetch orders")
	}
	if list == nil {
		list = []models.Order{}
	}
	return list, nil
}

// FindOrder loads a single order, failing with FORBIDDEN when it belongs to
// another tenant.
func (g *Gateway) FindOrder(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error) {
	return g.loadScoped(ctx, g.repo, tenantID, orderID)
}

// Mutate applies patch only if the order still matches patch.Expect. The
// status history row is written in the same transaction.
func (g *Gateway) Mutate(ctx context.Context, tenantID, orderID uuid.UUID, patch Patch) (*models.Order, error) {
	if patch.DeliveryStatus == nil && patch.PaymentStatus == nil && patch.AssignDeliverer == nil && !patch.ClearDeliverer {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "empty patch")
	}

	var updated *models.Order
	err := g.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := g.repo.WithTx(tx)

		current, err := g.loadScoped(ctx, repo, tenantID, orderID)
		if err != nil {
			return err
		}
		if !matches(*current, patch.Expect) {
			return conflict(*current, patch.Expect)
		}

		next := apply(*current, patch)
		if err := checkInvariants(next); err != nil {
			return err
		}

		updates := map[string]any{
			"delivery_status":       next.DeliveryStatus,
			"payment_status":        next.PaymentStatus,
			"assigned_deliverer_id": next.AssignedDelivererID,
			"delivered_at":          next.DeliveredAt,
			"cancellation_reason":   next.CancellationReason,
			"version":               gorm.Expr("version + 1"),
			"updated_at":            g.now().UTC(),
		}
		rows, err := repo.CompareAndSwap(ctx, orderID, tenantID, patch.Expect, updates)
		if err != nil {
			return storeError(err, "update order")
		}
		if rows == 0 {
			return conflict(*current, patch.Expect)
		}

		entry := &models.OrderStatusHistory{
			OrderID:            orderID,
			TenantID:           tenantID,
			FromDelivery:       current.DeliveryStatus,
			ToDelivery:         next.DeliveryStatus,
			FromPayment:        current.PaymentStatus,
			ToPayment:          next.PaymentStatus,
			DelivererID:        next.AssignedDelivererID,
			CancellationReason: patch.CancellationReason,
			Version:            current.Version + 1,
		}
		if patch.Actor.UserID != uuid.Nil {
			actorID := patch.Actor.UserID
			entry.ActorID = &actorID
		}
		if patch.Actor.Role != "" {
			role := patch.Actor.Role.String()
			entry.ActorRole = &role
		}
		if err := repo.InsertStatusHistory(ctx, entry); err != nil {
			return storeError(err, "record status history")
		}

		reloaded, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			return storeError(err, "reload order")
		}
		updated = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// History returns the newest limit audit rows of an order, oldest first,
// after a tenant check.
func (g *Gateway) History(ctx context.Context, tenantID, orderID uuid.UUID, limit int) ([]models.OrderStatusHistory, error) {
	if limit <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "history limit must be positive")
	}
	if _, err := g.loadScoped(ctx, g.repo, tenantID, orderID); err != nil {
		return nil, err
	}
	entries, err := g.repo.ListStatusHistory(ctx, orderID, limit)
	if err != nil {
		return nil, storeError(err, "load status history")
	}
	return entries, nil
}

func (g *Gateway) loadScoped(ctx context.Context, repo Repository, tenantID, orderID uuid.UUID) (*models.Order, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "tenant context missing")
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, storeError(err, "load order")
	}
	if order.TenantID != tenantID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to tenant")
	}
	return order, nil
}

func matches(order models.Order, expect Expectation) bool {
	return order.Version == expect.Version &&
		order.DeliveryStatus == expect.DeliveryStatus &&
		order.PaymentStatus == expect.PaymentStatus
}

func apply(order models.Order, patch Patch) models.Order {
	next := order
	if patch.DeliveryStatus != nil {
		next.DeliveryStatus = *patch.DeliveryStatus
	}
	if patch.PaymentStatus != nil {
		next.PaymentStatus = *patch.PaymentStatus
	}
	if patch.ClearDeliverer {
		next.AssignedDelivererID = nil
	}
	if patch.AssignDeliverer != nil {
		id := *patch.AssignDeliverer
		next.AssignedDelivererID = &id
	}
	if patch.DeliveredAt != nil && next.DeliveredAt == nil {
		at := *patch.DeliveredAt
		next.DeliveredAt = &at
	}
	if patch.CancellationReason != nil {
		next.CancellationReason = patch.CancellationReason
	}
	return next
}

func checkInvariants(order models.Order) error {
	if order.AssignedDelivererID != nil && !order.DeliveryStatus.AllowsDeliverer() {
		return pkgerrors.New(pkgerrors.CodeValidation, "deliverer may only be set while delivering or delivered")
	}
	if order.DeliveryStatus == enums.DeliveryStatusDelivering && order.AssignedDelivererID == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivering requires an assigned deliverer")
	}
	delivered := order.DeliveryStatus == enums.DeliveryStatusDelivered
	if delivered != (order.DeliveredAt != nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivered_at must be set exactly when delivered")
	}
	return nil
}

func conflict(current models.Order, expect Expectation) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "order changed since it was read").
		WithDetails(map[string]any{
			"expected_version": expect.Version,
			"current_version":  current.Version,
			"delivery_status":  current.DeliveryStatus,
			"payment_status":   current.PaymentStatus,
		})
}

func storeError(err error, msg string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if db.IsTransient(err) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}
