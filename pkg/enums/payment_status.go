package enums

import "fmt"

// PaymentStatus tracks how an order is being settled.
type PaymentStatus string

const (
	// PaymentStatusAReceber is collectible on delivery.
	PaymentStatusAReceber PaymentStatus = "a_receber"
	// PaymentStatusRecebido is collected.
	PaymentStatusRecebido PaymentStatus = "recebido"
	PaymentStatusPaid     PaymentStatus = "paid"
	// PaymentStatusPayrollDiscount is deducted from the customer's payroll.
	PaymentStatusPayrollDiscount PaymentStatus = "payroll_discount"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusAReceber,
	PaymentStatusRecebido,
	PaymentStatusPaid,
	PaymentStatusPayrollDiscount,
}

// PaymentStatuses returns every known payment status.
func PaymentStatuses() []PaymentStatus {
	return append([]PaymentStatus(nil), validPaymentStatuses...)
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsSettled reports whether the payment can no longer change.
func (p PaymentStatus) IsSettled() bool {
	return p == PaymentStatusRecebido || p == PaymentStatusPaid
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
