package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/afonso-rickman/newdelivery/pkg/db/models"
)

// Repository defines persistence operations for the orders tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListOrders(ctx context.Context, tenantID uuid.UUID, window QueryWindow) ([]models.Order, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	// CompareAndSwap applies updates only while the row still matches expect
	// and returns the number of rows changed.
	CompareAndSwap(ctx context.Context, orderID, tenantID uuid.UUID, expect Expectation, updates map[string]any) (int64, error)
	InsertStatusHistory(ctx context.Context, entry *models.OrderStatusHistory) error
	ListStatusHistory(ctx context.Context, orderID uuid.UUID, limit int) ([]models.OrderStatusHistory, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// MutationObserver is told about every order the gateway changed.
type MutationObserver interface {
	OrderMutated(ctx context.Context, order models.Order)
}

// Store is the gateway surface other packages build on.
type Store interface {
	FetchOrders(ctx context.Context, tenantID uuid.UUID, window QueryWindow) ([]models.Order, error)
	FindOrder(ctx context.Context, tenantID, orderID uuid.UUID) (*models.Order, error)
	Mutate(ctx context.Context, tenantID, orderID uuid.UUID, patch Patch) (*models.Order, error)
}
