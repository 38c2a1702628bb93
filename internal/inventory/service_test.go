package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/internal/audit"
	"github.com/nandha3d/ecommerce-template-sub002/internal/ledger"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/dbtest"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	pkgerrors "github.com/nandha3d/ecommerce-template-sub002/pkg/errors"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/outbox"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/pagination"
)

type fixture struct {
	conn   *gorm.DB
	svc    *Service
	outbox *outbox.Repository
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t, "inventory")
	auditSvc, err := audit.NewService(conn)
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	outboxRepo := outbox.NewRepository(conn)

	svc, err := NewService(ServiceParams{
		DB:             db.Wrap(conn),
		Repo:           NewRepository(conn),
		Ledger:         ledgerSvc,
		Audit:          auditSvc,
		Outbox:         outbox.NewService(outboxRepo, nil),
		ReservationTTL: 30 * time.Minute,
	})
	require.NoError(t, err)

	f := &fixture{conn: conn, svc: svc, outbox: outboxRepo, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) seedVariant(t *testing.T, stock int) uuid.UUID {
	t.Helper()
	variant := models.ProductVariant{
		ID:            uuid.New(),
		ProductID:     uuid.New(),
		SKU:           "SKU-" + uuid.NewString()[:8],
		Name:          "Canvas Tote",
		PriceCents:    2500,
		StockQuantity: stock,
		IsActive:      true,
	}
	require.NoError(t, f.conn.Create(&variant).Error)
	return variant.ID
}

func (f *fixture) stock(t *testing.T, variantID uuid.UUID) int {
	t.Helper()
	var variant models.ProductVariant
	require.NoError(t, f.conn.First(&variant, "id = ?", variantID).Error)
	return variant.StockQuantity
}

func TestReserveRejectsOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 10)

	first, err := f.svc.Reserve(ctx, variantID, uuid.New(), 6)
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusActive, first.Status)

	status, err := f.svc.Status(ctx, variantID)
	require.NoError(t, err)
	require.Equal(t, 4, status.Available)
	require.Equal(t, 6, status.Reserved)

	_, err = f.svc.Reserve(ctx, variantID, uuid.New(), 6)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	details, ok := pkgerrors.As(err).Details().(InsufficientStockDetails)
	require.True(t, ok)
	require.Equal(t, 4, details.Available)
	require.Equal(t, 6, details.Requested)

	var count int64
	require.NoError(t, f.conn.Model(&models.InventoryReservation{}).Where("variant_id = ?", variantID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestReserveValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 5)

	_, err := f.svc.Reserve(ctx, variantID, uuid.New(), 0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Reserve(ctx, uuid.New(), uuid.New(), 1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	require.NoError(t, f.conn.Model(&models.ProductVariant{}).Where("id = ?", variantID).Update("is_active", false).Error)
	_, err = f.svc.Reserve(ctx, variantID, uuid.New(), 1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestExpireStaleRestoresAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 10)

	reservation, err := f.svc.Reserve(ctx, variantID, uuid.New(), 3)
	require.NoError(t, err)

	status, err := f.svc.Status(ctx, variantID)
	require.NoError(t, err)
	require.Equal(t, 7, status.Available)

	f.now = f.now.Add(time.Hour)
	expired, err := f.svc.ExpireStale(ctx, f.now)
	require.NoError(t, err)
	require.EqualValues(t, 1, expired)

	status, err = f.svc.Status(ctx, variantID)
	require.NoError(t, err)
	require.Equal(t, 10, status.Available)

	var stored models.InventoryReservation
	require.NoError(t, f.conn.First(&stored, "id = ?", reservation.ID).Error)
	require.Equal(t, enums.ReservationStatusExpired, stored.Status)
	require.NotNil(t, stored.ReleasedAt)

	expired, err = f.svc.ExpireStale(ctx, f.now)
	require.NoError(t, err)
	require.Zero(t, expired)
}

func TestReserveExpiresStaleHoldsForVariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 4)

	stale, err := f.svc.Reserve(ctx, variantID, uuid.New(), 4)
	require.NoError(t, err)

	f.now = f.now.Add(31 * time.Minute)
	_, err = f.svc.Reserve(ctx, variantID, uuid.New(), 4)
	require.NoError(t, err)

	var stored models.InventoryReservation
	require.NoError(t, f.conn.First(&stored, "id = ?", stale.ID).Error)
	require.Equal(t, enums.ReservationStatusExpired, stored.Status)
}

func TestCommitIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 10)
	orderID := uuid.New()

	reservation, err := f.svc.Reserve(ctx, variantID, uuid.New(), 3)
	require.NoError(t, err)

	entry, err := f.svc.Commit(ctx, reservation.ID, &orderID)
	require.NoError(t, err)
	require.Equal(t, -3, entry.QuantityChange)
	require.Equal(t, 7, entry.ResultingQuantity)
	require.Equal(t, enums.LedgerReasonSale, entry.Reason)
	require.Equal(t, 7, f.stock(t, variantID))

	again, err := f.svc.Commit(ctx, reservation.ID, &orderID)
	require.NoError(t, err)
	require.Equal(t, entry.ID, again.ID)
	require.Equal(t, 7, f.stock(t, variantID))

	var entries int64
	require.NoError(t, f.conn.Model(&models.InventoryLedgerEntry{}).Where("variant_id = ?", variantID).Count(&entries).Error)
	require.EqualValues(t, 1, entries)

	var stored models.InventoryReservation
	require.NoError(t, f.conn.First(&stored, "id = ?", reservation.ID).Error)
	require.Equal(t, enums.ReservationStatusCommitted, stored.Status)
	require.NotNil(t, stored.LedgerEntryID)
	require.Equal(t, entry.ID, *stored.LedgerEntryID)

	status, err := f.svc.Status(ctx, variantID)
	require.NoError(t, err)
	require.Equal(t, 7, status.Available)
	require.Zero(t, status.Reserved)
}

func TestCommitRejectsReleasedAndExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 10)

	released, err := f.svc.Reserve(ctx, variantID, uuid.New(), 2)
	require.NoError(t, err)
	_, err = f.svc.Release(ctx, released.ID)
	require.NoError(t, err)
	_, err = f.svc.Commit(ctx, released.ID, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReservationExpired), "got %v", err)

	lapsed, err := f.svc.Reserve(ctx, variantID, uuid.New(), 2)
	require.NoError(t, err)
	f.now = f.now.Add(time.Hour)
	_, err = f.svc.Commit(ctx, lapsed.ID, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReservationExpired), "got %v", err)
	require.Equal(t, 10, f.stock(t, variantID))
}

func TestReleaseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 5)

	reservation, err := f.svc.Reserve(ctx, variantID, uuid.New(), 5)
	require.NoError(t, err)

	first, err := f.svc.Release(ctx, reservation.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusReleased, first.Status)

	second, err := f.svc.Release(ctx, reservation.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusReleased, second.Status)
	require.True(t, first.ReleasedAt.Equal(*second.ReleasedAt))

	status, err := f.svc.Status(ctx, variantID)
	require.NoError(t, err)
	require.Equal(t, 5, status.Available)
	require.Equal(t, 5, f.stock(t, variantID))
}

func TestReleaseCommittedConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 5)

	reservation, err := f.svc.Reserve(ctx, variantID, uuid.New(), 1)
	require.NoError(t, err)
	_, err = f.svc.Commit(ctx, reservation.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.Release(ctx, reservation.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestReleaseForSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seedVariant(t, 5)
	b := f.seedVariant(t, 5)
	session := uuid.New()

	_, err := f.svc.Reserve(ctx, a, session, 2)
	require.NoError(t, err)
	_, err = f.svc.Reserve(ctx, b, session, 3)
	require.NoError(t, err)
	_, err = f.svc.Reserve(ctx, b, uuid.New(), 1)
	require.NoError(t, err)

	released, err := f.svc.ReleaseForSession(ctx, nil, session)
	require.NoError(t, err)
	require.EqualValues(t, 2, released)

	status, err := f.svc.Status(ctx, b)
	require.NoError(t, err)
	require.Equal(t, 4, status.Available)

	rows, err := f.svc.ListForSession(ctx, session)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.Equal(t, enums.ReservationStatusReleased, row.Status)
	}
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 10)

	const workers = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, insufficient := 0, 0
	errs := make([]error, 0)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Reserve(ctx, variantID, uuid.New(), 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
				insufficient++
			default:
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Equal(t, 10, succeeded)
	require.Equal(t, workers-10, insufficient)

	status, err := f.svc.Status(ctx, variantID)
	require.NoError(t, err)
	require.Equal(t, 10, status.Reserved)
	require.Zero(t, status.Available)
	require.Zero(t, f.svc.locks.size())
}

func TestAdjustStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variantID := f.seedVariant(t, 5)
	actor := uuid.New()

	_, err := f.svc.Reserve(ctx, variantID, uuid.New(), 4)
	require.NoError(t, err)

	_, err = f.svc.AdjustStock(ctx, AdjustInput{VariantID: variantID, Delta: -2, Reason: enums.LedgerReasonCorrection, ActorID: &actor})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	require.Equal(t, 5, f.stock(t, variantID))

	entry, err := f.svc.AdjustStock(ctx, AdjustInput{VariantID: variantID, Delta: 7, Reason: enums.LedgerReasonRestock, ActorID: &actor, Note: "pallet 12"})
	require.NoError(t, err)
	require.Equal(t, 12, entry.ResultingQuantity)
	require.Equal(t, 12, f.stock(t, variantID))

	_, err = f.svc.AdjustStock(ctx, AdjustInput{VariantID: variantID, Delta: -1, Reason: enums.LedgerReasonSale})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	events, err := f.outbox.ListForAggregate(ctx, enums.AggregateVariant, variantID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventStockAdjusted, events[0].EventType)

	var audits int64
	require.NoError(t, f.conn.Model(&models.AuditEntry{}).Where("entity_id = ?", variantID).Count(&audits).Error)
	require.EqualValues(t, 1, audits)

	history, err := f.svc.LedgerHistory(ctx, variantID, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, history.Items, 1)
	require.Equal(t, 7, history.Items[0].QuantityChange)
}
