package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	pkgerrors "github.com/nandha3d/ecommerce-template-sub002/pkg/errors"
)

// Entry is one attributable action against a known entity.
type Entry struct {
	Kind     enums.AuditEntityKind
	EntityID uuid.UUID
	Action   enums.AuditAction
	ActorID  *uuid.UUID
	Metadata map[string]any
}

// Recorder writes audit entries. A nil tx writes outside any transaction.
type Recorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
}

type loaderFunc func(ctx context.Context, db *gorm.DB, id uuid.UUID) (any, error)

func loadInto[T any](ctx context.Context, db *gorm.DB, id uuid.UUID) (any, error) {
	var record T
	if err := db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// loaders resolves every entity kind an audit row may reference.
var loaders = map[enums.AuditEntityKind]loaderFunc{
	enums.AuditEntitySession:       loadInto[models.CheckoutSession],
	enums.AuditEntityReservation:   loadInto[models.InventoryReservation],
	enums.AuditEntitySnapshot:      loadInto[models.PriceSnapshot],
	enums.AuditEntityFraudCheck:    loadInto[models.FraudCheck],
	enums.AuditEntityBlockedEntity: loadInto[models.BlockedEntity],
	enums.AuditEntityOrder:         loadInto[models.Order],
	enums.AuditEntityOrderItem:     loadInto[models.OrderItem],
	enums.AuditEntityVariant:       loadInto[models.ProductVariant],
}

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &Service{db: db, now: time.Now}, nil
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if !entry.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown audit entity kind %q", entry.Kind))
	}
	if entry.EntityID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "audit entity id required")
	}
	if !entry.Action.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown audit action %q", entry.Action))
	}

	var metadata json.RawMessage
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode audit metadata")
		}
		metadata = raw
	}

	row := models.AuditEntry{
		ID:         uuid.New(),
		EntityKind: entry.Kind,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		ActorID:    entry.ActorID,
		Metadata:   metadata,
		CreatedAt:  s.now().UTC(),
	}
	conn := tx
	if conn == nil {
		conn = s.db
	}
	if err := conn.WithContext(ctx).Create(&row).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit entry")
	}
	return nil
}

// ListForEntity returns the trail for one entity, oldest first.
func (s *Service) ListForEntity(ctx context.Context, kind enums.AuditEntityKind, id uuid.UUID) ([]models.AuditEntry, error) {
	if !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown audit entity kind %q", kind))
	}
	var rows []models.AuditEntry
	err := s.db.WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ?", kind, id).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit entries")
	}
	return rows, nil
}

// Resolve loads the record an audit entry points at.
func (s *Service) Resolve(ctx context.Context, entry models.AuditEntry) (any, error) {
	load, ok := loaders[entry.EntityKind]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown audit entity kind %q", entry.EntityKind))
	}
	record, err := load(ctx, s.db, entry.EntityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "audited entity not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve audited entity")
	}
	return record, nil
}
