package blocklist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/internal/audit"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	pkgerrors "github.com/nandha3d/ecommerce-template-sub002/pkg/errors"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/logger"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/outbox"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/outbox/payloads"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/pagination"
	pkgredis "github.com/nandha3d/ecommerce-template-sub002/pkg/redis"
)

const (
	cacheBlocked    = "1"
	cacheNotBlocked = "0"

	// generationTTL outlives any cached entry, so an expired counter never
	// revives a stale slot.
	generationTTL = 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Cache is the read-through store for lookup results.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	BlocklistKey(entityType, value string) string
}

// Checker answers blocklist lookups for the fraud engine.
type Checker interface {
	IsBlocked(ctx context.Context, entityType enums.BlockedEntityType, value string) (bool, error)
}

type ServiceParams struct {
	DB       txRunner
	Repo     *Repository
	Cache    Cache
	CacheTTL time.Duration
	Audit    audit.Recorder
	Outbox   outbox.Emitter
	Logger   *logger.Logger
}

type Service struct {
	tx       txRunner
	repo     *Repository
	cache    Cache
	cacheTTL time.Duration
	audit    audit.Recorder
	outbox   outbox.Emitter
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("blocklist repository required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		tx:       params.DB,
		repo:     params.Repo,
		cache:    params.Cache,
		cacheTTL: params.CacheTTL,
		audit:    params.Audit,
		outbox:   params.Outbox,
		logg:     logg,
		now:      time.Now,
	}, nil
}

// IsBlocked reports whether an active entry denies (type, value). Cache
// failures fall back to the database.
func (s *Service) IsBlocked(ctx context.Context, entityType enums.BlockedEntityType, value string) (bool, error) {
	if !entityType.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid blocked entity type %q", entityType))
	}
	value = Normalize(entityType, value)
	if value == "" {
		return false, nil
	}

	gen, cacheable := s.generation(ctx, entityType, value)
	if cacheable {
		if cached, ok := s.cacheLookup(ctx, entityType, value, gen); ok {
			return cached, nil
		}
	}

	now := s.now().UTC()
	entity, err := s.repo.FindActive(ctx, entityType, value, now)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup blocked entity")
	}

	blocked := entity != nil
	ttl := s.cacheTTL
	if blocked && entity.ExpiresAt != nil {
		if remaining := entity.ExpiresAt.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}
	if cacheable {
		s.cacheStore(ctx, entityType, value, gen, blocked, ttl)
	}
	return blocked, nil
}

// BlockInput describes a block request.
type BlockInput struct {
	Type      enums.BlockedEntityType
	Value     string
	Reason    string
	ActorID   *uuid.UUID
	ExpiresAt *time.Time
}

// Block upserts (type, value) as active. Re-blocking refreshes reason, expiry
// and actor rather than failing.
func (s *Service) Block(ctx context.Context, input BlockInput) (*models.BlockedEntity, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid blocked entity type %q", input.Type))
	}
	value := Normalize(input.Type, input.Value)
	if value == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "blocked value required")
	}
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "block reason required")
	}
	now := s.now().UTC()
	if input.ExpiresAt != nil && !input.ExpiresAt.After(now) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expires_at must be in the future")
	}

	var result *models.BlockedEntity
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindForUpdate(ctx, input.Type, value)
		if err != nil {
			return err
		}

		if existing == nil {
			existing = &models.BlockedEntity{
				ID:        uuid.New(),
				Type:      input.Type,
				Value:     value,
				Reason:    input.Reason,
				BlockedBy: input.ActorID,
				ExpiresAt: input.ExpiresAt,
				IsActive:  true,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := repo.Create(ctx, existing); err != nil {
				if db.IsUniqueViolation(err, "ux_blocked_type_value") {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "entity blocked concurrently")
				}
				return err
			}
		} else {
			existing.Reason = input.Reason
			existing.BlockedBy = input.ActorID
			existing.ExpiresAt = input.ExpiresAt
			existing.IsActive = true
			existing.UnblockedBy = nil
			existing.UnblockedAt = nil
			existing.UpdatedAt = now
			if err := repo.Save(ctx, existing); err != nil {
				return err
			}
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			Kind:     enums.AuditEntityBlockedEntity,
			EntityID: existing.ID,
			Action:   enums.AuditActionBlocked,
			ActorID:  input.ActorID,
			Metadata: map[string]any{"type": input.Type, "reason": input.Reason},
		}); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBlocklistEntityBlocked,
			AggregateType: enums.AggregateBlockedEntity,
			AggregateID:   existing.ID,
			Actor:         actorRef(input.ActorID),
			Data: payloads.EntityBlockedEvent{
				BlockedEntityID: existing.ID,
				Type:            input.Type,
				Reason:          input.Reason,
				ExpiresAt:       input.ExpiresAt,
			},
		}); err != nil {
			return err
		}

		result = existing
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "block entity")
	}

	s.invalidate(ctx, input.Type, value)
	s.logg.Security(ctx, "blocklist.entity_blocked", map[string]any{
		"blocked_entity_id": result.ID.String(),
		"type":              string(input.Type),
	})
	return result, nil
}

// Unblock deactivates an entry without deleting it.
func (s *Service) Unblock(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*models.BlockedEntity, error) {
	var result *models.BlockedEntity
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		entity, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !entity.IsActive {
			result = entity
			return nil
		}
		now := s.now().UTC()
		entity.IsActive = false
		entity.UnblockedBy = actorID
		entity.UnblockedAt = &now
		entity.UpdatedAt = now
		if err := repo.Save(ctx, entity); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			Kind:     enums.AuditEntityBlockedEntity,
			EntityID: entity.ID,
			Action:   enums.AuditActionUnblocked,
			ActorID:  actorID,
		}); err != nil {
			return err
		}
		result = entity
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "blocked entity not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unblock entity")
	}

	s.invalidate(ctx, result.Type, result.Value)
	return result, nil
}

// List returns entries newest first.
func (s *Service) List(ctx context.Context, entityType *enums.BlockedEntityType, activeOnly bool, page pagination.Params) (pagination.Page[models.BlockedEntity], error) {
	if entityType != nil && !entityType.IsValid() {
		return pagination.Page[models.BlockedEntity]{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid blocked entity type")
	}
	if _, err := pagination.ParseCursor(page.Cursor); err != nil {
		return pagination.Page[models.BlockedEntity]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, ListFilter{
		Type:       entityType,
		ActiveOnly: activeOnly,
		Now:        s.now().UTC(),
		Page:       page,
	})
	if err != nil {
		return pagination.Page[models.BlockedEntity]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list blocked entities")
	}
	return pagination.Build(rows, page.Limit, func(row models.BlockedEntity) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	}), nil
}

// Entries live under a per-(type, value) generation. Block and Unblock bump
// the generation, so a lookup that read the database before the change writes
// into a slot nobody reads anymore.
func (s *Service) generation(ctx context.Context, entityType enums.BlockedEntityType, value string) (string, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return "", false
	}
	raw, err := s.cache.Get(ctx, s.generationKey(entityType, value))
	if err != nil {
		if pkgredis.IsMiss(err) {
			return "0", true
		}
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "blocklist cache read failed")
		return "", false
	}
	return raw, true
}

func (s *Service) generationKey(entityType enums.BlockedEntityType, value string) string {
	return s.cache.BlocklistKey(string(entityType), value) + ":gen"
}

func (s *Service) entryKey(entityType enums.BlockedEntityType, value, gen string) string {
	return s.cache.BlocklistKey(string(entityType), value) + ":v" + gen
}

func (s *Service) cacheLookup(ctx context.Context, entityType enums.BlockedEntityType, value, gen string) (bool, bool) {
	raw, err := s.cache.Get(ctx, s.entryKey(entityType, value, gen))
	if err != nil {
		if !pkgredis.IsMiss(err) {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "blocklist cache read failed")
		}
		return false, false
	}
	switch raw {
	case cacheBlocked:
		return true, true
	case cacheNotBlocked:
		return false, true
	default:
		return false, false
	}
}

func (s *Service) cacheStore(ctx context.Context, entityType enums.BlockedEntityType, value, gen string, blocked bool, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	marker := cacheNotBlocked
	if blocked {
		marker = cacheBlocked
	}
	if err := s.cache.Set(ctx, s.entryKey(entityType, value, gen), marker, ttl); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "blocklist cache write failed")
	}
}

func (s *Service) invalidate(ctx context.Context, entityType enums.BlockedEntityType, value string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.IncrWithTTL(ctx, s.generationKey(entityType, value), generationTTL); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "blocklist cache invalidation failed")
	}
}

func actorRef(actorID *uuid.UUID) *outbox.ActorRef {
	if actorID == nil {
		return &outbox.ActorRef{Role: string(enums.ActorRoleSystem)}
	}
	return &outbox.ActorRef{UserID: actorID, Role: string(enums.ActorRoleAdmin)}
}
