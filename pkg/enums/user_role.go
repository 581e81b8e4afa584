package enums

import "fmt"

// UserRole captures the coarse role carried by an identity.
type UserRole string

const (
	UserRoleAdmin     UserRole = "admin"
	UserRoleDeveloper UserRole = "developer"
	// UserRoleDeliverer is the "entregador" role of a delivery agent.
	UserRoleDeliverer UserRole = "entregador"
	UserRoleCustomer  UserRole = "cliente"
)

var validUserRoles = []UserRole{
	UserRoleAdmin,
	UserRoleDeveloper,
	UserRoleDeliverer,
	UserRoleCustomer,
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// CanAdministerOrders reports whether the role may use admin order surfaces.
func (r UserRole) CanAdministerOrders() bool {
	return r == UserRoleAdmin || r == UserRoleDeveloper
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
