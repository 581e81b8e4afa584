package deliverers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/afonso-rickman/newdelivery/pkg/db/models"
)

// Repository reads deliverers; their lifecycle is owned elsewhere.
type Repository interface {
	ListActive(ctx context.Context, tenantID uuid.UUID) ([]models.Deliverer, error)
	Find(ctx context.Context, delivererID uuid.UUID) (*models.Deliverer, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a deliverers repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListActive(ctx context.Context, tenantID uuid.UUID) ([]models.Deliverer, error) {
	var list []models.Deliverer
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Order("name ASC").
		Order("id").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *repository) Find(ctx context.Context, delivererID uuid.UUID) (*models.Deliverer, error) {
	var deliverer models.Deliverer
	if err := r.db.WithContext(ctx).Where("id = ?", delivererID).First(&deliverer).Error; err != nil {
		return nil, err
	}
	return &deliverer, nil
}
