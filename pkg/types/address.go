package types

import "strings"

// Address is the free-form delivery address stored as jsonb on an order.
type Address struct {
	Street       string  `json:"street"`
	Number       string  `json:"number"`
	Complement   *string `json:"complement,omitempty"`
	Neighborhood string  `json:"neighborhood"`
	City         string  `json:"city"`
	Reference    *string `json:"reference,omitempty"`
}

// Line renders the address as a single display line.
func (a Address) Line() string {
	parts := make([]string, 0, 4)
	street := strings.TrimSpace(strings.TrimSpace(a.Street) + ", " + strings.TrimSpace(a.Number))
	street = strings.Trim(street, ", ")
	if street != "" {
		parts = append(parts, street)
	}
	if a.Complement != nil && strings.TrimSpace(*a.Complement) != "" {
		parts = append(parts, strings.TrimSpace(*a.Complement))
	}
	if n := strings.TrimSpace(a.Neighborhood); n != "" {
		parts = append(parts, n)
	}
	if c := strings.TrimSpace(a.City); c != "" {
		parts = append(parts, c)
	}
	return strings.Join(parts, " - ")
}
