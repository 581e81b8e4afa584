package changefeed

import (
	"time"

	"github.com/google/uuid"

	"github.com/afonso-rickman/newdelivery/pkg/enums"
)

// Notification is a decoded change. Tenant identity on the wire is not
// trusted and is not carried here; reads are always tenant-scoped.
type Notification struct {
	OrderID        uuid.UUID
	Kind           enums.ChangeKind
	DeliveryStatus enums.DeliveryStatus
	OrderCreatedAt time.Time
	OccurredAt     time.Time
}

// DirtySignal tells a view its list may be stale. It carries no order data.
type DirtySignal struct {
	ApproximateID *uuid.UUID
	ObservedAt    time.Time
	FreshOrder    bool
}

// FreshOrderHint is a UI hint for a just-created pending order. It must be
// confirmed against an authoritative fetch before it is shown.
type FreshOrderHint struct {
	OrderID    uuid.UUID
	ObservedAt time.Time
}

// Key is the coarse creation-time range a subscription listens to.
type Key struct {
	From time.Time
	To   time.Time
}

// Contains reports whether createdAt falls inside the key. A zero creation
// time is always delivered since the change cannot be placed.
func (k Key) Contains(createdAt time.Time) bool {
	if createdAt.IsZero() {
		return true
	}
	return !createdAt.Before(k.From) && !createdAt.After(k.To)
}

func (k Key) Equal(other Key) bool {
	return k.From.Equal(other.From) && k.To.Equal(other.To)
}

func isFresh(n Notification, now time.Time, window time.Duration) bool {
	if n.Kind != enums.ChangeKindAdded || n.DeliveryStatus != enums.DeliveryStatusPending {
		return false
	}
	observed := n.OccurredAt
	if observed.IsZero() {
		observed = n.OrderCreatedAt
	}
	if observed.IsZero() {
		return false
	}
	age := now.Sub(observed)
	if age < 0 {
		age = -age
	}
	return age <= window
}
