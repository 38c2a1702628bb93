package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

const defaultCurrency = "USD"

// PaymentCreateParams are the checkout-side inputs of a Square payment.
// DelayCapture leaves the payment APPROVED instead of COMPLETED; checkout
// then waits for the confirm callback before creating the order.
type PaymentCreateParams struct {
	AmountCents    int64
	Currency       string
	LocationID     string
	SourceID       string
	IdempotencyKey string
	BuyerEmail     string
	ReferenceID    string
	Note           string
	DelayCapture   bool
}

func (p PaymentCreateParams) toSquareRequest(idempotencyKey string) *sq.CreatePaymentRequest {
	autocomplete := !p.DelayCapture
	return &sq.CreatePaymentRequest{
		IdempotencyKey:    idempotencyKey,
		SourceID:          p.SourceID,
		AmountMoney:       money(p.AmountCents, p.Currency),
		Autocomplete:      &autocomplete,
		LocationID:        optional(p.LocationID),
		BuyerEmailAddress: optional(strings.ToLower(p.BuyerEmail)),
		ReferenceID:       optional(p.ReferenceID),
		Note:              optional(p.Note),
	}
}

// optional returns nil for blank strings so Square omits the field.
func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func money(amount int64, currency string) *sq.Money {
	if amount <= 0 {
		return nil
	}
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = defaultCurrency
	}
	c := sq.Currency(code)
	return &sq.Money{Amount: &amount, Currency: &c}
}
