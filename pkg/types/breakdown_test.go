package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringSetNormalizes(t *testing.T) {
	set := NewStringSet("velocity:ip", "blocklisted:email", "velocity:ip", "")
	require.Equal(t, StringSet{"blocklisted:email", "velocity:ip"}, set)
	require.True(t, set.Contains("velocity:ip"))
	require.False(t, set.Contains("velocity:card"))
}

func TestBreakdownScanFromSQLiteText(t *testing.T) {
	var taxes TaxBreakdown
	require.NoError(t, taxes.Scan(`[{"rule_id":"r1","jurisdiction":"US-CA","label":"CA","rate":"7.25","base":1000,"amount":73}]`))
	require.Len(t, taxes, 1)
	require.EqualValues(t, 73, taxes.Total())

	var discounts DiscountBreakdown
	require.NoError(t, discounts.Scan([]byte(`[{"source":"coupon","source_id":"c","label":"SAVE","amount":100},{"source":"offer","source_id":"o","label":"BOGO","amount":250}]`)))
	require.EqualValues(t, 350, discounts.Total())

	require.NoError(t, discounts.Scan(nil))
	require.Empty(t, discounts)
}

func TestAddressJurisdiction(t *testing.T) {
	addr := Address{Line1: "1 Main", City: "LA", State: "ca", PostalCode: "90001", Country: "us"}
	require.Equal(t, "US-CA", addr.Jurisdiction())

	_, err := Address{}.Value()
	require.Error(t, err)
}
