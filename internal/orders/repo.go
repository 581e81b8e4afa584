package orders

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/afonso-rickman/newdelivery/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListOrders(ctx context.Context, tenantID uuid.UUID, window QueryWindow) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("tenant_id = ?", tenantID).
		Where("created_at >= ? AND created_at <= ?", window.From.UTC(), window.To.UTC())

	if window.Filter.Delivery != nil {
		query = query.Where("delivery_status = ?", *window.Filter.Delivery)
	}
	if window.Filter.Payment != nil {
		query = query.Where("payment_status = ?", *window.Filter.Payment)
	}

	var list []models.Order
	if err := query.Order("created_at DESC").Order("id").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) CompareAndSwap(ctx context.Context, orderID, tenantID uuid.UUID, expect Expectation, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND tenant_id = ?", orderID, tenantID).
		Where("version = ?", expect.Version).
		Where("delivery_status = ? AND payment_status = ?", expect.DeliveryStatus, expect.PaymentStatus).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) InsertStatusHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListStatusHistory loads the newest limit rows of an order's audit trail and
// returns them oldest first.
func (r *repository) ListStatusHistory(ctx context.Context, orderID uuid.UUID, limit int) ([]models.OrderStatusHistory, error) {
	var entries []models.OrderStatusHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("version DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	return entries, nil
}
