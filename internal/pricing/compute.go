package pricing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/types"
)

var hundred = decimal.NewFromInt(100)

// Line is one priced cart line.
type Line struct {
	VariantID      uuid.UUID
	UnitPriceCents int64
	Quantity       int
}

func (l Line) Total() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

// Inputs is everything Compute needs. Catalog lookups happen before Compute so
// the computation itself is pure.
type Inputs struct {
	Lines        []Line
	Coupon       *models.Coupon
	Offers       []models.PriceOffer
	TaxRules     []models.TaxRule
	Jurisdiction string
	Shipping     *models.ShippingMethod
	At           time.Time
}

// Totals are the monetary results of Compute, in minor units.
type Totals struct {
	SubtotalCents      int64
	Discounts          types.DiscountBreakdown
	DiscountTotalCents int64
	ShippingCents      int64
	Taxes              types.TaxBreakdown
	TaxTotalCents      int64
	FinalAmountCents   int64
}

// Compute prices a cart. Equal inputs always give equal totals, including
// breakdown order.
//
//	final = subtotal − discount + shipping + tax
func Compute(in Inputs) (Totals, error) {
	var totals Totals
	for _, line := range in.Lines {
		if line.Quantity <= 0 {
			return Totals{}, fmt.Errorf("line %s has non-positive quantity", line.VariantID)
		}
		if line.UnitPriceCents < 0 {
			return Totals{}, fmt.Errorf("line %s has negative price", line.VariantID)
		}
		totals.SubtotalCents += line.Total()
	}

	discounts := types.DiscountBreakdown{}
	if line, ok := couponDiscount(in.Coupon, totals.SubtotalCents, in.At); ok {
		discounts = append(discounts, line)
	}
	discounts = append(discounts, offerDiscounts(in.Lines, in.Offers, in.At)...)

	var discountTotal int64
	for i := range discounts {
		remaining := totals.SubtotalCents - discountTotal
		if discounts[i].Amount > remaining {
			discounts[i].Amount = remaining
		}
		discountTotal += discounts[i].Amount
	}
	totals.Discounts = discounts
	totals.DiscountTotalCents = discountTotal

	discounted := totals.SubtotalCents - discountTotal
	totals.ShippingCents = shippingCost(in.Shipping, discounted)

	totals.Taxes = taxLines(in.TaxRules, in.Jurisdiction, discounted, totals.ShippingCents)
	totals.TaxTotalCents = totals.Taxes.Total()

	totals.FinalAmountCents = totals.SubtotalCents - totals.DiscountTotalCents + totals.ShippingCents + totals.TaxTotalCents
	return totals, nil
}

// couponDiscount applies min-order gating to both coupon types. Percentage
// amounts are floored then capped by MaxDiscountCents; fixed amounts are
// capped at the subtotal.
func couponDiscount(coupon *models.Coupon, subtotal int64, at time.Time) (types.DiscountLine, bool) {
	if coupon == nil || subtotal <= 0 || !coupon.ValidAt(at) {
		return types.DiscountLine{}, false
	}
	if subtotal < coupon.MinOrderCents {
		return types.DiscountLine{}, false
	}

	var amount int64
	switch coupon.Type {
	case enums.CouponTypePercentage:
		amount = percentOf(subtotal, coupon.Percentage)
		if coupon.MaxDiscountCents != nil && amount > *coupon.MaxDiscountCents {
			amount = *coupon.MaxDiscountCents
		}
	case enums.CouponTypeFixed:
		amount = min(coupon.AmountCents, subtotal)
	default:
		return types.DiscountLine{}, false
	}
	if amount <= 0 {
		return types.DiscountLine{}, false
	}
	return types.DiscountLine{
		Source:   "coupon",
		SourceID: coupon.ID.String(),
		Label:    strings.ToUpper(coupon.Code),
		Amount:   amount,
	}, true
}

// offerDiscounts stacks every active offer on its variant's line, never
// discounting a line below zero. Buy-X-get-Y only frees whole groups:
// free = (qty / (buy+get)) × get.
func offerDiscounts(lines []Line, offers []models.PriceOffer, at time.Time) types.DiscountBreakdown {
	byVariant := make(map[uuid.UUID][]models.PriceOffer, len(offers))
	for _, offer := range offers {
		if offer.ActiveAt(at) {
			byVariant[offer.VariantID] = append(byVariant[offer.VariantID], offer)
		}
	}

	out := types.DiscountBreakdown{}
	for _, line := range lines {
		candidates := byVariant[line.VariantID]
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID.String() < candidates[j].ID.String() })

		remaining := line.Total()
		for _, offer := range candidates {
			if remaining <= 0 {
				break
			}
			var amount int64
			switch offer.Type {
			case enums.OfferTypePercentage:
				amount = percentOf(line.Total(), offer.Percentage)
			case enums.OfferTypeFixed:
				amount = offer.AmountCents * int64(line.Quantity)
			case enums.OfferTypeBuyXGetY:
				group := offer.BuyQty + offer.GetQty
				if offer.BuyQty <= 0 || offer.GetQty <= 0 {
					continue
				}
				free := (line.Quantity / group) * offer.GetQty
				amount = int64(free) * line.UnitPriceCents
			}
			amount = min(amount, remaining)
			if amount <= 0 {
				continue
			}
			remaining -= amount
			out = append(out, types.DiscountLine{
				Source:   "offer",
				SourceID: offer.ID.String(),
				Label:    offer.Name,
				Amount:   amount,
			})
		}
	}
	return out
}

func shippingCost(method *models.ShippingMethod, discounted int64) int64 {
	if method == nil {
		return 0
	}
	if method.FreeOverCents != nil && discounted >= *method.FreeOverCents {
		return 0
	}
	return method.PriceCents
}

// taxLines rounds each rule half-up on its own base.
func taxLines(rules []models.TaxRule, jurisdiction string, discounted, shipping int64) types.TaxBreakdown {
	jurisdiction = strings.ToUpper(strings.TrimSpace(jurisdiction))
	applicable := make([]models.TaxRule, 0, len(rules))
	for _, rule := range rules {
		if rule.IsActive && strings.EqualFold(rule.Jurisdiction, jurisdiction) {
			applicable = append(applicable, rule)
		}
	}
	sort.Slice(applicable, func(i, j int) bool {
		if applicable[i].Priority != applicable[j].Priority {
			return applicable[i].Priority < applicable[j].Priority
		}
		return applicable[i].ID.String() < applicable[j].ID.String()
	})

	out := types.TaxBreakdown{}
	for _, rule := range applicable {
		base := discounted
		if rule.AppliesToShipping {
			base += shipping
		}
		amount := decimal.NewFromInt(base).Mul(rule.Rate).Div(hundred).Round(0).IntPart()
		out = append(out, types.TaxLine{
			RuleID:       rule.ID.String(),
			Jurisdiction: jurisdiction,
			Label:        rule.Name,
			Rate:         rule.Rate.String(),
			Base:         base,
			Amount:       amount,
		})
	}
	return out
}

func percentOf(amount int64, pct decimal.Decimal) int64 {
	if pct.Sign() <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(pct).Div(hundred).Floor().IntPart()
}
