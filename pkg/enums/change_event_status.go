package enums

import "fmt"

// ChangeEventStatus tracks relay progress of a persisted order change event.
type ChangeEventStatus string

const (
	ChangeEventStatusPending   ChangeEventStatus = "pending"
	ChangeEventStatusPublished ChangeEventStatus = "published"
	ChangeEventStatusFailed    ChangeEventStatus = "failed"
	ChangeEventStatusTerminal  ChangeEventStatus = "terminal"
)

var validChangeEventStatuses = []ChangeEventStatus{
	ChangeEventStatusPending,
	ChangeEventStatusPublished,
	ChangeEventStatusFailed,
	ChangeEventStatusTerminal,
}

// String implements fmt.Stringer.
func (s ChangeEventStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ChangeEventStatus.
func (s ChangeEventStatus) IsValid() bool {
	for _, candidate := range validChangeEventStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseChangeEventStatus converts raw input into a ChangeEventStatus.
func ParseChangeEventStatus(value string) (ChangeEventStatus, error) {
	for _, candidate := range validChangeEventStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid change event status %q", value)
}
