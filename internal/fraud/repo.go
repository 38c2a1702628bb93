package fraud

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
)

// Repository stores fraud checks. Checks are write-once, so there is no update
// path.
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

func (r *Repository) Create(ctx context.Context, check *models.FraudCheck) error {
	return r.db.WithContext(ctx).Create(check).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.FraudCheck, error) {
	var check models.FraudCheck
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&check).Error; err != nil {
		return nil, err
	}
	return &check, nil
}

// ListSince returns checks created at or after since, oldest first.
func (r *Repository) ListSince(ctx context.Context, since time.Time) ([]models.FraudCheck, error) {
	var rows []models.FraudCheck
	err := r.db.WithContext(ctx).
		Select("id", "result", "risk_factors", "created_at").
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
