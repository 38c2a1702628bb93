package enums

import "fmt"

// FraudVerdict is the categorical outcome of a fraud evaluation.
type FraudVerdict string

const (
	FraudVerdictAllow  FraudVerdict = "allow"
	FraudVerdictReview FraudVerdict = "review"
	FraudVerdictBlock  FraudVerdict = "block"
)

var validFraudVerdicts = []FraudVerdict{
	FraudVerdictAllow,
	FraudVerdictReview,
	FraudVerdictBlock,
}

// String implements fmt.Stringer.
func (f FraudVerdict) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FraudVerdict.
func (f FraudVerdict) IsValid() bool {
	for _, candidate := range validFraudVerdicts {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFraudVerdict converts raw input into a FraudVerdict.
func ParseFraudVerdict(value string) (FraudVerdict, error) {
	for _, candidate := range validFraudVerdicts {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fraud verdict %q", value)
}
