// Package gateway charges a checkout through an external payment provider.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
)

// Status is the provider's view of a charge.
type Status string

const (
	// StatusPending means the charge was accepted and its outcome arrives later.
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// PaymentRequest is what checkout hands a gateway once the snapshot is locked.
type PaymentRequest struct {
	SessionID      uuid.UUID
	AmountCents    int64
	Currency       enums.Currency
	Method         enums.PaymentMethod
	SourceToken    string
	IdempotencyKey string
	BuyerEmail     string
}

// GatewayResponse carries the provider reference the session stores.
type GatewayResponse struct {
	Reference     string
	Status        Status
	FailureReason string
}

// Gateway charges payments. A declined charge is a response with StatusFailed;
// a returned error means the provider could not be reached or refused the call.
type Gateway interface {
	Name() string
	Charge(ctx context.Context, req PaymentRequest) (GatewayResponse, error)
}

func (r PaymentRequest) validate() error {
	if r.SessionID == uuid.Nil {
		return fmt.Errorf("session id required")
	}
	if r.AmountCents <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if !r.Currency.IsValid() {
		return fmt.Errorf("unsupported currency %q", r.Currency)
	}
	if !r.Method.IsValid() {
		return fmt.Errorf("unsupported payment method %q", r.Method)
	}
	return nil
}

// IdempotencyKey derives a stable provider key for one payment attempt of a session.
func IdempotencyKey(sessionID uuid.UUID, snapshotID uuid.UUID) string {
	return strings.Join([]string{"checkout", sessionID.String(), snapshotID.String()[:8]}, "-")
}
