package pricing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
)

var at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func int64Ptr(v int64) *int64 { return &v }

func fullInputs() Inputs {
	variantA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	variantB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	return Inputs{
		Lines: []Line{
			{VariantID: variantA, UnitPriceCents: 1000, Quantity: 3},
			{VariantID: variantB, UnitPriceCents: 2500, Quantity: 2},
		},
		Coupon: &models.Coupon{
			ID:               uuid.MustParse("00000000-0000-0000-0000-0000000000c1"),
			Code:             "spring",
			Type:             enums.CouponTypePercentage,
			Percentage:       decimal.RequireFromString("12.5"),
			MinOrderCents:    5000,
			MaxDiscountCents: int64Ptr(800),
			IsActive:         true,
		},
		Offers: []models.PriceOffer{
			{ID: uuid.MustParse("00000000-0000-0000-0000-0000000000f2"), Name: "10% off totes", Type: enums.OfferTypePercentage, VariantID: variantB, Percentage: decimal.NewFromInt(10), IsActive: true},
			{ID: uuid.MustParse("00000000-0000-0000-0000-0000000000f1"), Name: "BOGO mugs", Type: enums.OfferTypeBuyXGetY, VariantID: variantA, BuyQty: 1, GetQty: 1, IsActive: true},
		},
		TaxRules: []models.TaxRule{
			{ID: uuid.MustParse("00000000-0000-0000-0000-0000000000d2"), Jurisdiction: "US-CA", Name: "District", Rate: decimal.RequireFromString("1.5"), AppliesToShipping: true, Priority: 2, IsActive: true},
			{ID: uuid.MustParse("00000000-0000-0000-0000-0000000000d1"), Jurisdiction: "US-CA", Name: "State", Rate: decimal.RequireFromString("7.25"), Priority: 1, IsActive: true},
			{ID: uuid.MustParse("00000000-0000-0000-0000-0000000000d3"), Jurisdiction: "US-NY", Name: "Other", Rate: decimal.NewFromInt(4), Priority: 1, IsActive: true},
		},
		Jurisdiction: "us-ca",
		Shipping:     &models.ShippingMethod{Code: "ground", PriceCents: 799, FreeOverCents: int64Ptr(10000), IsActive: true},
		At:           at,
	}
}

func TestComputeFullCart(t *testing.T) {
	totals, err := Compute(fullInputs())
	require.NoError(t, err)

	require.EqualValues(t, 8000, totals.SubtotalCents)
	require.Len(t, totals.Discounts, 3)
	require.Equal(t, "coupon", totals.Discounts[0].Source)
	require.EqualValues(t, 800, totals.Discounts[0].Amount)
	require.Equal(t, "BOGO mugs", totals.Discounts[1].Label)
	require.EqualValues(t, 1000, totals.Discounts[1].Amount)
	require.EqualValues(t, 500, totals.Discounts[2].Amount)
	require.EqualValues(t, 2300, totals.DiscountTotalCents)
	require.EqualValues(t, 799, totals.ShippingCents)

	require.Len(t, totals.Taxes, 2)
	require.Equal(t, "State", totals.Taxes[0].Label)
	require.EqualValues(t, 5700, totals.Taxes[0].Base)
	require.EqualValues(t, 413, totals.Taxes[0].Amount)
	require.EqualValues(t, 6499, totals.Taxes[1].Base)
	require.EqualValues(t, 97, totals.Taxes[1].Amount)
	require.EqualValues(t, 510, totals.TaxTotalCents)

	require.EqualValues(t, 7009, totals.FinalAmountCents)
}

func TestComputeIsDeterministic(t *testing.T) {
	first, err := Compute(fullInputs())
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Compute(fullInputs())
		require.NoError(t, err)
		a, _ := json.Marshal(first)
		b, _ := json.Marshal(again)
		require.Equal(t, string(a), string(b))
	}
}

func TestCouponDiscount(t *testing.T) {
	past := at.Add(-time.Hour)
	cases := []struct {
		name     string
		coupon   models.Coupon
		subtotal int64
		want     int64
	}{
		{"percentage floors", models.Coupon{Type: enums.CouponTypePercentage, Percentage: decimal.NewFromInt(15), IsActive: true}, 999, 149},
		{"percentage capped", models.Coupon{Type: enums.CouponTypePercentage, Percentage: decimal.NewFromInt(50), MaxDiscountCents: int64Ptr(300), IsActive: true}, 1000, 300},
		{"below min order", models.Coupon{Type: enums.CouponTypePercentage, Percentage: decimal.NewFromInt(10), MinOrderCents: 5000, IsActive: true}, 4999, 0},
		{"fixed capped at subtotal", models.Coupon{Type: enums.CouponTypeFixed, AmountCents: 1000, IsActive: true}, 500, 500},
		{"fixed", models.Coupon{Type: enums.CouponTypeFixed, AmountCents: 250, IsActive: true}, 500, 250},
		{"inactive", models.Coupon{Type: enums.CouponTypeFixed, AmountCents: 250}, 500, 0},
		{"ended", models.Coupon{Type: enums.CouponTypeFixed, AmountCents: 250, EndsAt: &past, IsActive: true}, 500, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line, ok := couponDiscount(&tc.coupon, tc.subtotal, at)
			if tc.want == 0 {
				require.False(t, ok)
				return
			}
			require.True(t, ok)
			require.Equal(t, tc.want, line.Amount)
		})
	}
}

func TestOfferDiscounts(t *testing.T) {
	variant := uuid.New()
	cases := []struct {
		name  string
		line  Line
		offer models.PriceOffer
		want  int64
	}{
		{"buy two get one with remainder", Line{VariantID: variant, UnitPriceCents: 300, Quantity: 5}, models.PriceOffer{Type: enums.OfferTypeBuyXGetY, BuyQty: 2, GetQty: 1}, 300},
		{"buy two get one even groups", Line{VariantID: variant, UnitPriceCents: 300, Quantity: 6}, models.PriceOffer{Type: enums.OfferTypeBuyXGetY, BuyQty: 2, GetQty: 1}, 600},
		{"buy one get one short", Line{VariantID: variant, UnitPriceCents: 300, Quantity: 1}, models.PriceOffer{Type: enums.OfferTypeBuyXGetY, BuyQty: 1, GetQty: 1}, 0},
		{"fixed per unit", Line{VariantID: variant, UnitPriceCents: 1000, Quantity: 4}, models.PriceOffer{Type: enums.OfferTypeFixed, AmountCents: 150}, 600},
		{"fixed capped at line", Line{VariantID: variant, UnitPriceCents: 100, Quantity: 2}, models.PriceOffer{Type: enums.OfferTypeFixed, AmountCents: 150}, 200},
		{"percentage", Line{VariantID: variant, UnitPriceCents: 333, Quantity: 3}, models.PriceOffer{Type: enums.OfferTypePercentage, Percentage: decimal.NewFromInt(10)}, 99},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			offer := tc.offer
			offer.ID = uuid.New()
			offer.VariantID = variant
			offer.IsActive = true
			got := offerDiscounts([]Line{tc.line}, []models.PriceOffer{offer}, at)
			require.Equal(t, tc.want, got.Total())
		})
	}
}

func TestComputeCapsDiscountAtSubtotal(t *testing.T) {
	variant := uuid.New()
	totals, err := Compute(Inputs{
		Lines:  []Line{{VariantID: variant, UnitPriceCents: 1000, Quantity: 1}},
		Coupon: &models.Coupon{ID: uuid.New(), Code: "BIG", Type: enums.CouponTypeFixed, AmountCents: 900, IsActive: true},
		Offers: []models.PriceOffer{{ID: uuid.New(), Name: "Half", Type: enums.OfferTypePercentage, VariantID: variant, Percentage: decimal.NewFromInt(50), IsActive: true}},
		At:     at,
	})
	require.NoError(t, err)
	require.EqualValues(t, 1000, totals.DiscountTotalCents)
	require.EqualValues(t, 100, totals.Discounts[1].Amount)
	require.Zero(t, totals.FinalAmountCents)
}

func TestComputeFreeShippingThreshold(t *testing.T) {
	method := &models.ShippingMethod{PriceCents: 500, FreeOverCents: int64Ptr(2000), IsActive: true}
	under, err := Compute(Inputs{Lines: []Line{{VariantID: uuid.New(), UnitPriceCents: 1999, Quantity: 1}}, Shipping: method, At: at})
	require.NoError(t, err)
	require.EqualValues(t, 500, under.ShippingCents)

	over, err := Compute(Inputs{Lines: []Line{{VariantID: uuid.New(), UnitPriceCents: 2000, Quantity: 1}}, Shipping: method, At: at})
	require.NoError(t, err)
	require.Zero(t, over.ShippingCents)
	require.EqualValues(t, 2000, over.FinalAmountCents)
}

func TestComputeRejectsBadLines(t *testing.T) {
	_, err := Compute(Inputs{Lines: []Line{{VariantID: uuid.New(), UnitPriceCents: 100, Quantity: 0}}})
	require.Error(t, err)
	_, err = Compute(Inputs{Lines: []Line{{VariantID: uuid.New(), UnitPriceCents: -1, Quantity: 1}}})
	require.Error(t, err)
}
