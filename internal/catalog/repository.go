// Package catalog reads the product, promotion and shipping data owned by the
// storefront admin. Nothing in this package writes.
package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	pkgerrors "github.com/nandha3d/ecommerce-template-sub002/pkg/errors"
)

// Repository wires together the read paths checkout and pricing depend on.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindCart loads a cart with its lines in insertion order.
func (r *Repository) FindCart(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Where("id = ?", id).
		First(&cart).Error
	if err != nil {
		return nil, notFound(err, "cart not found")
	}
	return &cart, nil
}

// FindVariants returns the variants for ids keyed by id. Missing ids are
// absent from the map.
func (r *Repository) FindVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ProductVariant, error) {
	out := make(map[uuid.UUID]models.ProductVariant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.ProductVariant
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variants")
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// FindCouponByCode matches codes case-insensitively.
func (r *Repository) FindCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Where("UPPER(code) = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&coupon).Error
	if err != nil {
		return nil, notFound(err, "coupon not found")
	}
	return &coupon, nil
}

// ActiveOffers returns offers on variantIDs that apply at t, ordered by id.
func (r *Repository) ActiveOffers(ctx context.Context, variantIDs []uuid.UUID, at time.Time) ([]models.PriceOffer, error) {
	if len(variantIDs) == 0 {
		return nil, nil
	}
	var rows []models.PriceOffer
	err := r.db.WithContext(ctx).
		Where("variant_id IN ? AND is_active = ?", variantIDs, true).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load price offers")
	}
	active := rows[:0]
	for _, row := range rows {
		if row.ActiveAt(at) {
			active = append(active, row)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID.String() < active[j].ID.String() })
	return active, nil
}

// TaxRules returns active rules for a jurisdiction by priority.
func (r *Repository) TaxRules(ctx context.Context, jurisdiction string) ([]models.TaxRule, error) {
	var rows []models.TaxRule
	err := r.db.WithContext(ctx).
		Where("jurisdiction = ? AND is_active = ?", strings.ToUpper(strings.TrimSpace(jurisdiction)), true).
		Order("priority ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tax rules")
	}
	return rows, nil
}

// FindShippingMethod returns only active methods.
func (r *Repository) FindShippingMethod(ctx context.Context, id uuid.UUID) (*models.ShippingMethod, error) {
	var method models.ShippingMethod
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		First(&method).Error
	if err != nil {
		return nil, notFound(err, "shipping method not found")
	}
	return &method, nil
}

func (r *Repository) ListShippingMethods(ctx context.Context) ([]models.ShippingMethod, error) {
	var rows []models.ShippingMethod
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("price_cents ASC").
		Order("code ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list shipping methods")
	}
	return rows, nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
