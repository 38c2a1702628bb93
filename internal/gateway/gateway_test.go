package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	pkgerrors "github.com/nandha3d/ecommerce-template-sub002/pkg/errors"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/square"
)

type stubPayments struct {
	payment *sq.Payment
	err     error
	got     square.PaymentCreateParams
}

func (s *stubPayments) CreatePayment(_ context.Context, params square.PaymentCreateParams) (*sq.Payment, error) {
	s.got = params
	return s.payment, s.err
}

func validRequest() PaymentRequest {
	return PaymentRequest{
		SessionID:      uuid.New(),
		AmountCents:    4999,
		Currency:       enums.CurrencyUSD,
		Method:         enums.PaymentMethodCard,
		SourceToken:    "cnon:card-nonce-ok",
		IdempotencyKey: "checkout-key",
	}
}

func strPtr(v string) *string { return &v }

func TestManualIssuesPendingReference(t *testing.T) {
	resp, err := NewManual().Charge(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if resp.Status != StatusPending {
		t.Fatalf("expected pending, got %s", resp.Status)
	}
	if !strings.HasPrefix(resp.Reference, "manual_") {
		t.Fatalf("unexpected reference %q", resp.Reference)
	}
}

func TestManualRejectsInvalidRequest(t *testing.T) {
	req := validRequest()
	req.AmountCents = 0
	_, err := NewManual().Charge(context.Background(), req)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSquareCharge(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   Status
	}{
		{"completed", "COMPLETED", StatusSucceeded},
		{"approved", "APPROVED", StatusPending},
		{"failed", "FAILED", StatusFailed},
		{"canceled", "CANCELED", StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubPayments{payment: &sq.Payment{ID: strPtr("pay_123"), Status: strPtr(tt.status)}}
			gw := &Square{client: stub}
			req := validRequest()

			resp, err := gw.Charge(context.Background(), req)
			if err != nil {
				t.Fatalf("charge: %v", err)
			}
			if resp.Status != tt.want || resp.Reference != "pay_123" {
				t.Fatalf("unexpected response %+v", resp)
			}
			if stub.got.AmountCents != 4999 || stub.got.Currency != "USD" || stub.got.IdempotencyKey != "checkout-key" {
				t.Fatalf("unexpected params %+v", stub.got)
			}
			if stub.got.ReferenceID != req.SessionID.String() {
				t.Fatalf("expected session reference, got %q", stub.got.ReferenceID)
			}
		})
	}
}

func TestSquareDeclineIsFailedResponse(t *testing.T) {
	stub := &stubPayments{err: pkgerrors.Wrap(pkgerrors.CodeGatewayFailure, errors.New("CARD_DECLINED"), "square create payment failed")}
	resp, err := (&Square{client: stub}).Charge(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("expected decline to be a response, got %v", err)
	}
	if resp.Status != StatusFailed || resp.FailureReason == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSquareOutageIsError(t *testing.T) {
	stub := &stubPayments{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("timeout"), "square create payment failed")}
	_, err := (&Square{client: stub}).Charge(context.Background(), validRequest())
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestSquareRequiresSourceToken(t *testing.T) {
	req := validRequest()
	req.SourceToken = " "
	_, err := (&Square{client: &stubPayments{}}).Charge(context.Background(), req)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIdempotencyKeyStable(t *testing.T) {
	session, snapshot := uuid.New(), uuid.New()
	if IdempotencyKey(session, snapshot) != IdempotencyKey(session, snapshot) {
		t.Fatal("expected stable key")
	}
	if IdempotencyKey(session, snapshot) == IdempotencyKey(session, uuid.New()) {
		t.Fatal("expected key to change with snapshot")
	}
}

func TestSquarePassesBuyerEmailAndCaptureMode(t *testing.T) {
	stub := &stubPayments{payment: &sq.Payment{ID: strPtr("pay_9"), Status: strPtr("APPROVED")}}
	req := validRequest()
	req.BuyerEmail = "Buyer@Example.com"

	resp, err := (&Square{client: stub, delayCapture: true}).Charge(context.Background(), req)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if resp.Status != StatusPending {
		t.Fatalf("delayed capture should stay pending, got %s", resp.Status)
	}
	if !stub.got.DelayCapture || stub.got.BuyerEmail != "Buyer@Example.com" {
		t.Fatalf("unexpected params %+v", stub.got)
	}
}
