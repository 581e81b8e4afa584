package enums

import "fmt"

// DeliveryStatus tracks an order's fulfillment progress.
type DeliveryStatus string

const (
	DeliveryStatusPending    DeliveryStatus = "pending"
	DeliveryStatusAccepted   DeliveryStatus = "accepted"
	DeliveryStatusPreparing  DeliveryStatus = "preparing"
	DeliveryStatusReady      DeliveryStatus = "ready"
	DeliveryStatusDelivering DeliveryStatus = "delivering"
	DeliveryStatusDelivered  DeliveryStatus = "delivered"
	DeliveryStatusCancelled  DeliveryStatus = "cancelled"
)

var validDeliveryStatuses = []DeliveryStatus{
	DeliveryStatusPending,
	DeliveryStatusAccepted,
	DeliveryStatusPreparing,
	DeliveryStatusReady,
	DeliveryStatusDelivering,
	DeliveryStatusDelivered,
	DeliveryStatusCancelled,
}

// DeliveryStatuses returns every known status in lifecycle order.
func DeliveryStatuses() []DeliveryStatus {
	out := make([]DeliveryStatus, len(validDeliveryStatuses))
	copy(out, validDeliveryStatuses)
	return out
}

// String implements fmt.Stringer.
func (s DeliveryStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known DeliveryStatus.
func (s DeliveryStatus) IsValid() bool {
	for _, candidate := range validDeliveryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further delivery transition is possible.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusCancelled
}

// AllowsDeliverer reports whether an assigned deliverer may coexist with s.
func (s DeliveryStatus) AllowsDeliverer() bool {
	return s == DeliveryStatusDelivering || s == DeliveryStatusDelivered
}

// ParseDeliveryStatus converts raw input into a DeliveryStatus.
func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	for _, candidate := range validDeliveryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery status %q", value)
}
