package gateway

import (
	"context"

	"github.com/google/uuid"

	pkgerrors "github.com/nandha3d/ecommerce-template-sub002/pkg/errors"
)

// Manual issues a reference immediately and leaves the outcome to a later
// confirmation call. It backs bank transfers and local development.
type Manual struct {
	newID func() uuid.UUID
}

func NewManual() *Manual {
	return &Manual{newID: uuid.New}
}

func (m *Manual) Name() string { return "manual" }

func (m *Manual) Charge(ctx context.Context, req PaymentRequest) (GatewayResponse, error) {
	if err := req.validate(); err != nil {
		return GatewayResponse{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment request")
	}
	return GatewayResponse{
		Reference: "manual_" + m.newID().String(),
		Status:    StatusPending,
	}, nil
}
