package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/dbtest"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	pkgerrors "github.com/nandha3d/ecommerce-template-sub002/pkg/errors"
)

func TestRecordAndResolve(t *testing.T) {
	db := dbtest.Open(t, "audit")
	svc, err := NewService(db)
	require.NoError(t, err)
	ctx := context.Background()

	variant := models.ProductVariant{ID: uuid.New(), ProductID: uuid.New(), SKU: "SKU-1", Name: "Mug", PriceCents: 1200, StockQuantity: 4, IsActive: true}
	require.NoError(t, db.Create(&variant).Error)

	actor := uuid.New()
	require.NoError(t, svc.Record(ctx, nil, Entry{
		Kind:     enums.AuditEntityVariant,
		EntityID: variant.ID,
		Action:   enums.AuditActionStockAdjusted,
		ActorID:  &actor,
		Metadata: map[string]any{"delta": 3},
	}))

	rows, err := svc.ListForEntity(ctx, enums.AuditEntityVariant, variant.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.JSONEq(t, `{"delta":3}`, string(rows[0].Metadata))

	resolved, err := svc.Resolve(ctx, rows[0])
	require.NoError(t, err)
	loaded, ok := resolved.(*models.ProductVariant)
	require.True(t, ok)
	require.Equal(t, "SKU-1", loaded.SKU)
}

func TestRecordRejectsUnknownKind(t *testing.T) {
	db := dbtest.Open(t, "audit_kind")
	svc, err := NewService(db)
	require.NoError(t, err)

	err = svc.Record(context.Background(), nil, Entry{Kind: "invoice", EntityID: uuid.New(), Action: enums.AuditActionCreated})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Resolve(context.Background(), models.AuditEntry{EntityKind: "invoice", EntityID: uuid.New()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestResolveMissingEntity(t *testing.T) {
	db := dbtest.Open(t, "audit_missing")
	svc, err := NewService(db)
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), models.AuditEntry{EntityKind: enums.AuditEntityOrder, EntityID: uuid.New()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestEveryKindHasLoader(t *testing.T) {
	for _, kind := range []enums.AuditEntityKind{
		enums.AuditEntitySession,
		enums.AuditEntityReservation,
		enums.AuditEntitySnapshot,
		enums.AuditEntityFraudCheck,
		enums.AuditEntityBlockedEntity,
		enums.AuditEntityOrder,
		enums.AuditEntityOrderItem,
		enums.AuditEntityVariant,
	} {
		if _, ok := loaders[kind]; !ok {
			t.Fatalf("missing loader for %s", kind)
		}
	}
}
