package types

import (
	"database/sql/driver"
	"sort"
)

// DiscountLine is one itemized discount on a price snapshot, in minor units.
type DiscountLine struct {
	Source   string `json:"source"`
	SourceID string `json:"source_id"`
	Label    string `json:"label"`
	Amount   int64  `json:"amount"`
}

// DiscountBreakdown is persisted as a json array.
type DiscountBreakdown []DiscountLine

func (d DiscountBreakdown) Total() int64 {
	var total int64
	for _, line := range d {
		total += line.Amount
	}
	return total
}

func (d DiscountBreakdown) Value() (driver.Value, error) {
	if d == nil {
		d = DiscountBreakdown{}
	}
	return marshalJSONColumn([]DiscountLine(d))
}

func (d *DiscountBreakdown) Scan(value any) error {
	*d = DiscountBreakdown{}
	return unmarshalJSONColumn(value, (*[]DiscountLine)(d))
}

// TaxLine is one itemized tax charge. Rate is a decimal percentage string.
type TaxLine struct {
	RuleID       string `json:"rule_id"`
	Jurisdiction string `json:"jurisdiction"`
	Label        string `json:"label"`
	Rate         string `json:"rate"`
	Base         int64  `json:"base"`
	Amount       int64  `json:"amount"`
}

// TaxBreakdown is persisted as a json array.
type TaxBreakdown []TaxLine

func (t TaxBreakdown) Total() int64 {
	var total int64
	for _, line := range t {
		total += line.Amount
	}
	return total
}

func (t TaxBreakdown) Value() (driver.Value, error) {
	if t == nil {
		t = TaxBreakdown{}
	}
	return marshalJSONColumn([]TaxLine(t))
}

func (t *TaxBreakdown) Scan(value any) error {
	*t = TaxBreakdown{}
	return unmarshalJSONColumn(value, (*[]TaxLine)(t))
}

// StringSet is a sorted, de-duplicated list of names stored as a json array.
type StringSet []string

// NewStringSet normalizes values into sorted unique order.
func NewStringSet(values ...string) StringSet {
	seen := make(map[string]struct{}, len(values))
	out := make(StringSet, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s StringSet) Contains(value string) bool {
	for _, v := range s {
		if v == value {
			return true
		}
	}
	return false
}

func (s StringSet) Value() (driver.Value, error) {
	if s == nil {
		s = StringSet{}
	}
	return marshalJSONColumn([]string(s))
}

func (s *StringSet) Scan(value any) error {
	*s = StringSet{}
	return unmarshalJSONColumn(value, (*[]string)(s))
}
