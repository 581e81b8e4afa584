package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/afonso-rickman/newdelivery/pkg/enums"
	"github.com/afonso-rickman/newdelivery/pkg/types"
)

// Order is a customer order belonging to exactly one tenant.
type Order struct {
	ID                  uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID            uuid.UUID            `gorm:"column:tenant_id;type:uuid;not null;<-:create"`
	DeliveryStatus      enums.DeliveryStatus `gorm:"column:delivery_status;type:text;not null;default:'pending'"`
	PaymentStatus       enums.PaymentStatus  `gorm:"column:payment_status;type:text;not null;default:'a_receber'"`
	CustomerName        string               `gorm:"column:customer_name;not null"`
	CustomerPhone       string               `gorm:"column:customer_phone;not null"`
	Address             types.Address        `gorm:"column:address;type:jsonb;serializer:json"`
	Items               types.OrderItems     `gorm:"column:items;type:jsonb;serializer:json"`
	Total               decimal.Decimal      `gorm:"column:total;type:numeric(12,2);not null"`
	Discount            *types.Discount      `gorm:"column:discount;type:jsonb;serializer:json"`
	AssignedDelivererID *uuid.UUID           `gorm:"column:assigned_deliverer_id;type:uuid"`
	CancellationReason  *string              `gorm:"column:cancellation_reason"`
	Version             int64                `gorm:"column:version;not null;default:1"`
	DeliveredAt         *time.Time           `gorm:"column:delivered_at"`
	CreatedAt           time.Time            `gorm:"column:created_at;autoCreateTime;<-:create"`
	UpdatedAt           time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
