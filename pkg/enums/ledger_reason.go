package enums

import "fmt"

// LedgerReason explains why a stock ledger entry was written.
type LedgerReason string

const (
	LedgerReasonSale       LedgerReason = "sale"
	LedgerReasonRestock    LedgerReason = "restock"
	LedgerReasonCorrection LedgerReason = "correction"
	LedgerReasonReturn     LedgerReason = "return"
)

var validLedgerReasons = []LedgerReason{
	LedgerReasonSale,
	LedgerReasonRestock,
	LedgerReasonCorrection,
	LedgerReasonReturn,
}

// String implements fmt.Stringer.
func (l LedgerReason) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LedgerReason.
func (l LedgerReason) IsValid() bool {
	for _, candidate := range validLedgerReasons {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLedgerReason converts raw input into a LedgerReason.
func ParseLedgerReason(value string) (LedgerReason, error) {
	for _, candidate := range validLedgerReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger reason %q", value)
}
