package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/dbtest"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	pkgerrors "github.com/nandha3d/ecommerce-template-sub002/pkg/errors"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/pagination"
)

type fakeRepository struct {
	createFn func(ctx context.Context, entry *models.InventoryLedgerEntry) error
	listFn   func(ctx context.Context, variantID uuid.UUID, params pagination.Params) ([]models.InventoryLedgerEntry, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, entry *models.InventoryLedgerEntry) error {
	if f.createFn != nil {
		return f.createFn(ctx, entry)
	}
	return nil
}

func (f *fakeRepository) FindByReservation(ctx context.Context, reservationID uuid.UUID) (*models.InventoryLedgerEntry, error) {
	return nil, nil
}

func (f *fakeRepository) ListByVariant(ctx context.Context, variantID uuid.UUID, params pagination.Params) ([]models.InventoryLedgerEntry, error) {
	if f.listFn != nil {
		return f.listFn(ctx, variantID, params)
	}
	return nil, nil
}

func TestService_RecordEntry(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	reservationID := uuid.New()
	input := RecordEntryInput{
		VariantID:         uuid.New(),
		QuantityChange:    -3,
		ResultingQuantity: 7,
		Reason:            enums.LedgerReasonSale,
		ReservationID:     &reservationID,
		Note:              "  checkout  ",
	}

	var created *models.InventoryLedgerEntry
	repo.createFn = func(ctx context.Context, entry *models.InventoryLedgerEntry) error {
		created = entry
		return nil
	}

	got, err := svc.RecordEntry(context.Background(), nil, input)
	if err != nil {
		t.Fatalf("RecordEntry error: %v", err)
	}
	if created == nil || got != created {
		t.Fatalf("expected repository to receive the returned entry")
	}
	if got.ID == uuid.Nil {
		t.Fatalf("expected generated id")
	}
	if got.QuantityChange != -3 || got.ResultingQuantity != 7 {
		t.Fatalf("unexpected quantities %+v", got)
	}
	if got.Note == nil || *got.Note != "checkout" {
		t.Fatalf("expected trimmed note, got %v", got.Note)
	}
}

func TestService_RecordEntryValidation(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	variant := uuid.New()
	cases := map[string]RecordEntryInput{
		"missing variant":  {QuantityChange: 1, ResultingQuantity: 1, Reason: enums.LedgerReasonRestock},
		"zero change":      {VariantID: variant, ResultingQuantity: 1, Reason: enums.LedgerReasonRestock},
		"negative result":  {VariantID: variant, QuantityChange: -5, ResultingQuantity: -1, Reason: enums.LedgerReasonCorrection},
		"unknown reason":   {VariantID: variant, QuantityChange: 1, ResultingQuantity: 1, Reason: "gift"},
		"sale without ref": {VariantID: variant, QuantityChange: -1, ResultingQuantity: 1, Reason: enums.LedgerReasonSale},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.RecordEntry(context.Background(), nil, input); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestService_RecordEntryRepositoryError(t *testing.T) {
	repo := &fakeRepository{createFn: func(context.Context, *models.InventoryLedgerEntry) error {
		return errors.New("insert failed")
	}}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	_, err = svc.RecordEntry(context.Background(), nil, RecordEntryInput{
		VariantID:         uuid.New(),
		QuantityChange:    5,
		ResultingQuantity: 5,
		Reason:            enums.LedgerReasonRestock,
	})
	if err == nil {
		t.Fatalf("expected repository error")
	}
}

func TestService_HistoryRejectsBadCursor(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	_, err = svc.History(context.Background(), uuid.New(), pagination.Params{Cursor: "%%%"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRepository_HistoryPagesNewestFirst(t *testing.T) {
	conn := dbtest.Open(t, "ledger")
	svc, err := NewService(NewRepository(conn))
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	ctx := context.Background()
	variant := uuid.New()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		entry := &models.InventoryLedgerEntry{
			ID:                uuid.New(),
			VariantID:         variant,
			QuantityChange:    1,
			ResultingQuantity: i + 1,
			Reason:            enums.LedgerReasonRestock,
			CreatedAt:         base.Add(time.Duration(i) * time.Minute),
		}
		if err := conn.Create(entry).Error; err != nil {
			t.Fatalf("seed entry: %v", err)
		}
	}

	first, err := svc.History(ctx, variant, pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("History error: %v", err)
	}
	if len(first.Items) != 2 || first.NextCursor == "" {
		t.Fatalf("expected 2 items and a cursor, got %d %q", len(first.Items), first.NextCursor)
	}
	if first.Items[0].ResultingQuantity != 3 || first.Items[1].ResultingQuantity != 2 {
		t.Fatalf("expected newest first, got %d then %d", first.Items[0].ResultingQuantity, first.Items[1].ResultingQuantity)
	}

	second, err := svc.History(ctx, variant, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	if err != nil {
		t.Fatalf("History error: %v", err)
	}
	if len(second.Items) != 1 || second.NextCursor != "" {
		t.Fatalf("expected final page with 1 item, got %d %q", len(second.Items), second.NextCursor)
	}
	if second.Items[0].ResultingQuantity != 1 {
		t.Fatalf("expected oldest entry on last page")
	}
}
