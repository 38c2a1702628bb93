package enums

import "fmt"

// BlockedEntityType is the identity attribute a blocklist entry applies to.
type BlockedEntityType string

const (
	BlockedEntityIP     BlockedEntityType = "ip"
	BlockedEntityEmail  BlockedEntityType = "email"
	BlockedEntityCard   BlockedEntityType = "card"
	BlockedEntityDevice BlockedEntityType = "device"
)

var validBlockedEntityTypes = []BlockedEntityType{
	BlockedEntityIP,
	BlockedEntityEmail,
	BlockedEntityCard,
	BlockedEntityDevice,
}

// String implements fmt.Stringer.
func (b BlockedEntityType) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BlockedEntityType.
func (b BlockedEntityType) IsValid() bool {
	for _, candidate := range validBlockedEntityTypes {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBlockedEntityType converts raw input into a BlockedEntityType.
func ParseBlockedEntityType(value string) (BlockedEntityType, error) {
	for _, candidate := range validBlockedEntityTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid blocked entity type %q", value)
}
