package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeliveryStatus(t *testing.T) {
	for _, s := range DeliveryStatuses() {
		parsed, err := ParseDeliveryStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseDeliveryStatus("confirmed")
	assert.Error(t, err)
}

func TestDeliveryStatusPredicates(t *testing.T) {
	assert.True(t, DeliveryStatusDelivered.IsTerminal())
	assert.True(t, DeliveryStatusCancelled.IsTerminal())
	assert.False(t, DeliveryStatusReady.IsTerminal())

	assert.True(t, DeliveryStatusDelivering.AllowsDeliverer())
	assert.True(t, DeliveryStatusDelivered.AllowsDeliverer())
	assert.False(t, DeliveryStatusReady.AllowsDeliverer())
	assert.False(t, DeliveryStatusCancelled.AllowsDeliverer())
}

func TestPaymentStatus(t *testing.T) {
	p, err := ParsePaymentStatus("payroll_discount")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPayrollDiscount, p)
	assert.False(t, p.IsSettled())
	assert.True(t, PaymentStatusPaid.IsSettled())
	assert.False(t, PaymentStatus("to_deduct").IsValid())
}

func TestUserRole(t *testing.T) {
	assert.True(t, UserRoleAdmin.CanAdministerOrders())
	assert.True(t, UserRoleDeveloper.CanAdministerOrders())
	assert.False(t, UserRoleDeliverer.CanAdministerOrders())
	_, err := ParseUserRole("root")
	assert.Error(t, err)
}

func TestParseChangeKind(t *testing.T) {
	cases := map[string]ChangeKind{
		"INSERT":   ChangeKindAdded,
		"update":   ChangeKindModified,
		"DELETE":   ChangeKindRemoved,
		"added":    ChangeKindAdded,
		"modified": ChangeKindModified,
	}
	for in, want := range cases {
		got, err := ParseChangeKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseChangeKind("TRUNCATE")
	assert.Error(t, err)
}

func TestParseChangeEventStatus(t *testing.T) {
	s, err := ParseChangeEventStatus("terminal")
	require.NoError(t, err)
	assert.True(t, s.IsValid())
	_, err = ParseChangeEventStatus("lost")
	assert.Error(t, err)
}
