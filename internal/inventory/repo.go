package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/db"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
)

// Repository reads and transitions reservations and the variant stock column.
// Reservation rows are never deleted.
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

// LockVariant loads the variant row with FOR UPDATE.
func (r *Repository) LockVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *Repository) FindVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *Repository) SetStock(ctx context.Context, id uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("id = ?", id).
		UpdateColumn("stock_quantity", quantity).Error
}

// ActiveQuantity sums active reservations that have not yet expired at now.
func (r *Repository) ActiveQuantity(ctx context.Context, variantID uuid.UUID, now time.Time) (int, error) {
	var total int
	err := r.db.WithContext(ctx).
		Model(&models.InventoryReservation{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("variant_id = ? AND status = ? AND expires_at > ?", variantID, enums.ReservationStatusActive, now).
		Scan(&total).Error
	return total, err
}

func (r *Repository) Create(ctx context.Context, reservation *models.InventoryReservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryReservation, error) {
	var reservation models.InventoryReservation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&reservation).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *Repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.InventoryReservation, error) {
	var reservation models.InventoryReservation
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&reservation).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *Repository) ListForSession(ctx context.Context, sessionID uuid.UUID) ([]models.InventoryReservation, error) {
	var rows []models.InventoryReservation
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// Transition moves a reservation out of from. It reports false when the row
// was no longer in from.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from enums.ReservationStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryReservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseForSession releases every active reservation held by sessionID.
func (r *Repository) ReleaseForSession(ctx context.Context, sessionID uuid.UUID, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.InventoryReservation{}).
		Where("session_id = ? AND status = ?", sessionID, enums.ReservationStatusActive).
		Updates(map[string]any{
			"status":      enums.ReservationStatusReleased,
			"released_at": now,
			"updated_at":  now,
		})
	return res.RowsAffected, res.Error
}

// ExpireActive marks active reservations whose expiry has passed. variantID
// narrows the sweep when non-nil.
func (r *Repository) ExpireActive(ctx context.Context, variantID *uuid.UUID, now time.Time) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.InventoryReservation{}).
		Where("status = ? AND expires_at <= ?", enums.ReservationStatusActive, now)
	if variantID != nil {
		query = query.Where("variant_id = ?", *variantID)
	}
	res := query.Updates(map[string]any{
		"status":      enums.ReservationStatusExpired,
		"released_at": now,
		"updated_at":  now,
	})
	return res.RowsAffected, res.Error
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
