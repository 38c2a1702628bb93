package blocklist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/db"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/pagination"
)

// Repository persists blocked entities.
type Repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindActive returns the active entry for (type, value) at now, or nil.
func (r *Repository) FindActive(ctx context.Context, entityType enums.BlockedEntityType, value string, now time.Time) (*models.BlockedEntity, error) {
	var entity models.BlockedEntity
	err := r.db.WithContext(ctx).
		Where("type = ? AND value = ? AND is_active = ?", entityType, value, true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// FindForUpdate locks the row for (type, value) regardless of state.
func (r *Repository) FindForUpdate(ctx context.Context, entityType enums.BlockedEntityType, value string) (*models.BlockedEntity, error) {
	var entity models.BlockedEntity
	err := db.ForUpdate(r.db.WithContext(ctx)).
		Where("type = ? AND value = ?", entityType, value).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.BlockedEntity, error) {
	var entity models.BlockedEntity
	err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&entity).Error
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *Repository) Create(ctx context.Context, entity *models.BlockedEntity) error {
	return r.db.WithContext(ctx).Create(entity).Error
}

func (r *Repository) Save(ctx context.Context, entity *models.BlockedEntity) error {
	return r.db.WithContext(ctx).Save(entity).Error
}

// ListFilter narrows admin listings.
type ListFilter struct {
	Type       *enums.BlockedEntityType
	ActiveOnly bool
	Now        time.Time
	Page       pagination.Params
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.BlockedEntity, error) {
	query := r.db.WithContext(ctx).Model(&models.BlockedEntity{})
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true).
			Where("expires_at IS NULL OR expires_at > ?", filter.Now)
	}
	query, err := pagination.Apply(query, filter.Page)
	if err != nil {
		return nil, err
	}
	var rows []models.BlockedEntity
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
