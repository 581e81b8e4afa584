package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/afonso-rickman/newdelivery/pkg/enums"
)

// OrderStatusHistory is the append-only audit trail of order mutations.
type OrderStatusHistory struct {
	ID                 uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID            uuid.UUID            `gorm:"column:order_id;type:uuid;not null"`
	TenantID           uuid.UUID            `gorm:"column:tenant_id;type:uuid;not null"`
	FromDelivery       enums.DeliveryStatus `gorm:"column:from_delivery_status;type:text;not null"`
	ToDelivery         enums.DeliveryStatus `gorm:"column:to_delivery_status;type:text;not null"`
	FromPayment        enums.PaymentStatus  `gorm:"column:from_payment_status;type:text;not null"`
	ToPayment          enums.PaymentStatus  `gorm:"column:to_payment_status;type:text;not null"`
	DelivererID        *uuid.UUID           `gorm:"column:deliverer_id;type:uuid"`
	ActorID            *uuid.UUID           `gorm:"column:actor_id;type:uuid"`
	ActorRole          *string              `gorm:"column:actor_role"`
	CancellationReason *string              `gorm:"column:cancellation_reason"`
	Version            int64                `gorm:"column:version;not null"`
	CreatedAt          time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}
