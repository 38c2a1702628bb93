package enums

import "fmt"

// SessionState is the position of a checkout session in its state machine.
type SessionState string

const (
	SessionStateStarted          SessionState = "started"
	SessionStateAddressSelected  SessionState = "address_selected"
	SessionStateShippingSelected SessionState = "shipping_selected"
	SessionStatePaymentPending   SessionState = "payment_pending"
	SessionStateCompleted        SessionState = "completed"
	SessionStateFailed           SessionState = "failed"
	SessionStateAbandoned        SessionState = "abandoned"
	SessionStateExpired          SessionState = "expired"
)

var validSessionStates = []SessionState{
	SessionStateStarted,
	SessionStateAddressSelected,
	SessionStateShippingSelected,
	SessionStatePaymentPending,
	SessionStateCompleted,
	SessionStateFailed,
	SessionStateAbandoned,
	SessionStateExpired,
}

// String implements fmt.Stringer.
func (s SessionState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SessionState.
func (s SessionState) IsValid() bool {
	for _, candidate := range validSessionStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSessionState converts raw input into a SessionState.
func ParseSessionState(value string) (SessionState, error) {
	for _, candidate := range validSessionStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid session state %q", value)
}

// IsTerminal reports whether no further transition may leave the state.
func (s SessionState) IsTerminal() bool {
	switch s {
	case SessionStateCompleted, SessionStateFailed, SessionStateAbandoned, SessionStateExpired:
		return true
	case SessionStateStarted, SessionStateAddressSelected, SessionStateShippingSelected, SessionStatePaymentPending:
		return false
	}
	return false
}
