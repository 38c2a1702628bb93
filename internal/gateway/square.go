package gateway

import (
	"context"
	"strings"

	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/nandha3d/ecommerce-template-sub002/pkg/errors"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/square"
)

type squarePayments interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
}

// Square charges card and wallet payments through Square Payments.
type Square struct {
	client       squarePayments
	delayCapture bool
}

func NewSquare(client *square.Client, delayCapture bool) *Square {
	return &Square{client: client, delayCapture: delayCapture}
}

func (s *Square) Name() string { return "square" }

func (s *Square) Charge(ctx context.Context, req PaymentRequest) (GatewayResponse, error) {
	if err := req.validate(); err != nil {
		return GatewayResponse{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment request")
	}
	if strings.TrimSpace(req.SourceToken) == "" {
		return GatewayResponse{}, pkgerrors.New(pkgerrors.CodeValidation, "payment source token is required")
	}

	payment, err := s.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    req.AmountCents,
		Currency:       string(req.Currency),
		SourceID:       req.SourceToken,
		IdempotencyKey: req.IdempotencyKey,
		BuyerEmail:     req.BuyerEmail,
		ReferenceID:    req.SessionID.String(),
		Note:           "checkout " + req.SessionID.String(),
		DelayCapture:   s.delayCapture,
	})
	if err != nil {
		// A decline is a failed charge, not an error.
		if pkgerrors.IsCode(err, pkgerrors.CodeGatewayFailure) {
			return GatewayResponse{Status: StatusFailed, FailureReason: "payment declined"}, nil
		}
		return GatewayResponse{}, err
	}
	if payment == nil || payment.GetID() == nil {
		return GatewayResponse{}, pkgerrors.New(pkgerrors.CodeDependency, "square returned no payment")
	}

	resp := GatewayResponse{Reference: *payment.GetID(), Status: statusFromSquare(payment.GetStatus())}
	if resp.Status == StatusFailed {
		resp.FailureReason = "payment " + strings.ToLower(stringValue(payment.GetStatus()))
	}
	return resp, nil
}

// statusFromSquare maps Square payment statuses. APPROVED payments are
// authorized but not captured, so they stay pending.
func statusFromSquare(status *string) Status {
	switch strings.ToUpper(stringValue(status)) {
	case "COMPLETED":
		return StatusSucceeded
	case "FAILED", "CANCELED":
		return StatusFailed
	default:
		return StatusPending
	}
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
