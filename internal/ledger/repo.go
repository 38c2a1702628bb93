package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/pagination"
)

// Repository persists stock ledger entries. Entries are append-only, so the
// interface exposes inserts and reads only.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.InventoryLedgerEntry) error
	FindByReservation(ctx context.Context, reservationID uuid.UUID) (*models.InventoryLedgerEntry, error)
	ListByVariant(ctx context.Context, variantID uuid.UUID, params pagination.Params) ([]models.InventoryLedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.InventoryLedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// FindByReservation returns nil when the reservation has not been committed.
func (r *repository) FindByReservation(ctx context.Context, reservationID uuid.UUID) (*models.InventoryLedgerEntry, error) {
	var entry models.InventoryLedgerEntry
	err := r.db.WithContext(ctx).Where("reservation_id = ?", reservationID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByVariant returns newest entries first with one buffered row for paging.
func (r *repository) ListByVariant(ctx context.Context, variantID uuid.UUID, params pagination.Params) ([]models.InventoryLedgerEntry, error) {
	query, err := pagination.Apply(r.db.WithContext(ctx).Where("variant_id = ?", variantID), params)
	if err != nil {
		return nil, err
	}
	var entries []models.InventoryLedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
