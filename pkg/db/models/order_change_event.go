package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/afonso-rickman/newdelivery/pkg/enums"
)

// OrderChangeEvent is a row written by the orders trigger and drained by the
// feed relay.
type OrderChangeEvent struct {
	ID             int64                   `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID        uuid.UUID               `gorm:"column:order_id;type:uuid;not null"`
	TenantID       uuid.UUID               `gorm:"column:tenant_id;type:uuid;not null"`
	Kind           enums.ChangeKind        `gorm:"column:kind;type:text;not null"`
	DeliveryStatus enums.DeliveryStatus    `gorm:"column:delivery_status;type:text;not null"`
	OrderCreatedAt time.Time               `gorm:"column:order_created_at;not null"`
	OccurredAt     time.Time               `gorm:"column:occurred_at;not null"`
	Status         enums.ChangeEventStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	AttemptCount   int                     `gorm:"column:attempt_count;not null;default:0"`
	LastError      *string                 `gorm:"column:last_error"`
	NextAttemptAt  *time.Time              `gorm:"column:next_attempt_at"`
	PublishedAt    *time.Time              `gorm:"column:published_at"`
}
