package enums

import "fmt"

// SnapshotState reports whether a price snapshot may still change.
type SnapshotState string

const (
	SnapshotStateDraft  SnapshotState = "draft"
	SnapshotStateLocked SnapshotState = "locked"
)

var validSnapshotStates = []SnapshotState{
	SnapshotStateDraft,
	SnapshotStateLocked,
}

// String implements fmt.Stringer.
func (s SnapshotState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SnapshotState.
func (s SnapshotState) IsValid() bool {
	for _, candidate := range validSnapshotStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSnapshotState converts raw input into a SnapshotState.
func ParseSnapshotState(value string) (SnapshotState, error) {
	for _, candidate := range validSnapshotStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid snapshot state %q", value)
}
