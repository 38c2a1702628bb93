package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/db"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
)

// Repository persists price snapshots. Updates are limited to drafts through
// UpdateDraft and to setting locked_at once through Lock.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, snapshot *models.PriceSnapshot) error {
	return r.db.WithContext(ctx).Create(snapshot).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PriceSnapshot, error) {
	var snapshot models.PriceSnapshot
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&snapshot).Error; err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *Repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.PriceSnapshot, error) {
	var snapshot models.PriceSnapshot
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&snapshot).Error; err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Lock sets locked_at when it is still null and reports whether it did.
func (r *Repository) Lock(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PriceSnapshot{}).
		Where("id = ? AND locked_at IS NULL", id).
		UpdateColumn("locked_at", at)
	return res.RowsAffected == 1, res.Error
}

// UpdateDraft writes columns only while the row is unlocked.
func (r *Repository) UpdateDraft(ctx context.Context, id uuid.UUID, columns map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PriceSnapshot{}).
		Where("id = ? AND locked_at IS NULL", id).
		UpdateColumns(columns)
	return res.RowsAffected == 1, res.Error
}

// DeleteDraft deletes the row only while it is unlocked.
func (r *Repository) DeleteDraft(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND locked_at IS NULL", id).
		Delete(&models.PriceSnapshot{})
	return res.RowsAffected == 1, res.Error
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
