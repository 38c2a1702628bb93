package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	pkgerrors "github.com/nandha3d/ecommerce-template-sub002/pkg/errors"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/pagination"
)

// Service records stock deltas. Callers own the surrounding transaction and
// the stock projection on the variant.
type Service interface {
	RecordEntry(ctx context.Context, tx *gorm.DB, input RecordEntryInput) (*models.InventoryLedgerEntry, error)
	ForReservation(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) (*models.InventoryLedgerEntry, error)
	History(ctx context.Context, variantID uuid.UUID, params pagination.Params) (pagination.Page[models.InventoryLedgerEntry], error)
}

type service struct {
	repo Repository
}

// RecordEntryInput captures the immutable data a ledger entry requires.
type RecordEntryInput struct {
	VariantID         uuid.UUID
	QuantityChange    int
	ResultingQuantity int
	Reason            enums.LedgerReason
	ReservationID     *uuid.UUID
	OrderID           *uuid.UUID
	ActorID           *uuid.UUID
	Note              string
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) RecordEntry(ctx context.Context, tx *gorm.DB, input RecordEntryInput) (*models.InventoryLedgerEntry, error) {
	if input.VariantID == uuid.Nil {
		return nil, fmt.Errorf("variant id is required")
	}
	if input.QuantityChange == 0 {
		return nil, fmt.Errorf("quantity change must be non-zero")
	}
	if input.ResultingQuantity < 0 {
		return nil, fmt.Errorf("resulting quantity %d is negative", input.ResultingQuantity)
	}
	if !input.Reason.IsValid() {
		return nil, fmt.Errorf("invalid ledger reason %q", input.Reason)
	}
	if input.Reason == enums.LedgerReasonSale && input.ReservationID == nil {
		return nil, fmt.Errorf("sale entries require a reservation id")
	}

	entry := &models.InventoryLedgerEntry{
		ID:                uuid.New(),
		VariantID:         input.VariantID,
		QuantityChange:    input.QuantityChange,
		ResultingQuantity: input.ResultingQuantity,
		Reason:            input.Reason,
		ReservationID:     input.ReservationID,
		OrderID:           input.OrderID,
		ActorID:           input.ActorID,
	}
	if note := strings.TrimSpace(input.Note); note != "" {
		entry.Note = &note
	}

	if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) ForReservation(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) (*models.InventoryLedgerEntry, error) {
	if reservationID == uuid.Nil {
		return nil, fmt.Errorf("reservation id is required")
	}
	return s.repo.WithTx(tx).FindByReservation(ctx, reservationID)
}

func (s *service) History(ctx context.Context, variantID uuid.UUID, params pagination.Params) (pagination.Page[models.InventoryLedgerEntry], error) {
	if variantID == uuid.Nil {
		return pagination.Page[models.InventoryLedgerEntry]{}, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[models.InventoryLedgerEntry]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByVariant(ctx, variantID, params)
	if err != nil {
		return pagination.Page[models.InventoryLedgerEntry]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}
	return pagination.Build(rows, params.Limit, func(entry models.InventoryLedgerEntry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: entry.CreatedAt, ID: entry.ID}
	}), nil
}
