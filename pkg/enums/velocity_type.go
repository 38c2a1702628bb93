package enums

import "fmt"

// VelocityType is the identity attribute a velocity counter is keyed by.
type VelocityType string

const (
	VelocityTypeIP     VelocityType = "ip"
	VelocityTypeEmail  VelocityType = "email"
	VelocityTypeCard   VelocityType = "card"
	VelocityTypeUser   VelocityType = "user"
	VelocityTypeDevice VelocityType = "device"
)

var validVelocityTypes = []VelocityType{
	VelocityTypeIP,
	VelocityTypeEmail,
	VelocityTypeCard,
	VelocityTypeUser,
	VelocityTypeDevice,
}

// String implements fmt.Stringer.
func (v VelocityType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known VelocityType.
func (v VelocityType) IsValid() bool {
	for _, candidate := range validVelocityTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseVelocityType converts raw input into a VelocityType.
func ParseVelocityType(value string) (VelocityType, error) {
	for _, candidate := range validVelocityTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid velocity type %q", value)
}
