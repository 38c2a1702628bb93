package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/types"
)

// PriceSnapshot freezes the monetary totals of a checkout. Once LockedAt is set
// the row is immutable.
type PriceSnapshot struct {
	ID                 uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	SessionID          uuid.UUID               `gorm:"column:session_id;type:uuid;not null;index"`
	SupersedesID       *uuid.UUID              `gorm:"column:supersedes_id;type:uuid"`
	Currency           enums.Currency          `gorm:"column:currency;not null"`
	SubtotalCents      int64                   `gorm:"column:subtotal_cents;not null"`
	DiscountTotalCents int64                   `gorm:"column:discount_total_cents;not null"`
	DiscountBreakdown  types.DiscountBreakdown `gorm:"column:discount_breakdown;type:jsonb;not null"`
	TaxTotalCents      int64                   `gorm:"column:tax_total_cents;not null"`
	TaxBreakdown       types.TaxBreakdown      `gorm:"column:tax_breakdown;type:jsonb;not null"`
	ShippingCents      int64                   `gorm:"column:shipping_cents;not null"`
	FinalAmountCents   int64                   `gorm:"column:final_amount_cents;not null"`
	CouponCode         *string                 `gorm:"column:coupon_code"`
	Jurisdiction       string                  `gorm:"column:jurisdiction;not null"`
	LockedAt           *time.Time              `gorm:"column:locked_at"`
	CreatedAt          time.Time               `gorm:"column:created_at;autoCreateTime"`
}

// State derives the lock state from LockedAt.
func (p PriceSnapshot) State() enums.SnapshotState {
	if p.LockedAt != nil {
		return enums.SnapshotStateLocked
	}
	return enums.SnapshotStateDraft
}
