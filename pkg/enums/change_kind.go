package enums

import (
	"fmt"
	"strings"
)

// ChangeKind classifies a row-level change observed on the orders table.
type ChangeKind string

const (
	ChangeKindAdded    ChangeKind = "added"
	ChangeKindModified ChangeKind = "modified"
	ChangeKindRemoved  ChangeKind = "removed"
)

var validChangeKinds = []ChangeKind{
	ChangeKindAdded,
	ChangeKindModified,
	ChangeKindRemoved,
}

// String implements fmt.Stringer.
func (k ChangeKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known ChangeKind.
func (k ChangeKind) IsValid() bool {
	for _, candidate := range validChangeKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseChangeKind accepts both feed kinds and SQL trigger operations.
func ParseChangeKind(value string) (ChangeKind, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "INSERT":
		return ChangeKindAdded, nil
	case "UPDATE":
		return ChangeKindModified, nil
	case "DELETE":
		return ChangeKindRemoved, nil
	}
	for _, candidate := range validChangeKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid change kind %q", value)
}
