package types

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Address is a shipping destination stored as a json document.
type Address struct {
	Name       string  `json:"name" validate:"required"`
	Line1      string  `json:"line1" validate:"required"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city" validate:"required"`
	State      string  `json:"state" validate:"required"`
	PostalCode string  `json:"postal_code" validate:"required"`
	Country    string  `json:"country" validate:"required,len=2"`
}

// Jurisdiction returns the tax lookup key for the address, e.g. "US-CA".
func (a Address) Jurisdiction() string {
	return strings.ToUpper(strings.TrimSpace(a.Country)) + "-" + strings.ToUpper(strings.TrimSpace(a.State))
}

// Value implements driver.Valuer.
func (a Address) Value() (driver.Value, error) {
	if strings.TrimSpace(a.Line1) == "" {
		return nil, fmt.Errorf("address: missing line1")
	}
	return marshalJSONColumn(a)
}

// Scan implements sql.Scanner.
func (a *Address) Scan(value any) error {
	*a = Address{}
	return unmarshalJSONColumn(value, a)
}
