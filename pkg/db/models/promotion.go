package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
)

// Coupon is a buyer-entered discount code.
type Coupon struct {
	ID               uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Code             string           `gorm:"column:code;not null;uniqueIndex"`
	Type             enums.CouponType `gorm:"column:type;type:text;not null"`
	Percentage       decimal.Decimal  `gorm:"column:percentage;type:numeric(7,4);not null;default:0"`
	AmountCents      int64            `gorm:"column:amount_cents;not null;default:0"`
	MinOrderCents    int64            `gorm:"column:min_order_cents;not null;default:0"`
	MaxDiscountCents *int64           `gorm:"column:max_discount_cents"`
	StartsAt         *time.Time       `gorm:"column:starts_at"`
	EndsAt           *time.Time       `gorm:"column:ends_at"`
	IsActive         bool             `gorm:"column:is_active;not null"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
}

// ValidAt reports whether the coupon may be redeemed at t.
func (c Coupon) ValidAt(t time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.StartsAt != nil && t.Before(*c.StartsAt) {
		return false
	}
	if c.EndsAt != nil && !t.Before(*c.EndsAt) {
		return false
	}
	return true
}

// PriceOffer is an automatic promotion attached to a variant.
type PriceOffer struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name        string          `gorm:"column:name;not null"`
	Type        enums.OfferType `gorm:"column:type;type:text;not null"`
	VariantID   uuid.UUID       `gorm:"column:variant_id;type:uuid;not null;index"`
	Percentage  decimal.Decimal `gorm:"column:percentage;type:numeric(7,4);not null;default:0"`
	AmountCents int64           `gorm:"column:amount_cents;not null;default:0"`
	BuyQty      int             `gorm:"column:buy_qty;not null;default:0"`
	GetQty      int             `gorm:"column:get_qty;not null;default:0"`
	StartsAt    *time.Time      `gorm:"column:starts_at"`
	EndsAt      *time.Time      `gorm:"column:ends_at"`
	IsActive    bool            `gorm:"column:is_active;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// ActiveAt reports whether the offer applies at t.
func (o PriceOffer) ActiveAt(t time.Time) bool {
	if !o.IsActive {
		return false
	}
	if o.StartsAt != nil && t.Before(*o.StartsAt) {
		return false
	}
	if o.EndsAt != nil && !t.Before(*o.EndsAt) {
		return false
	}
	return true
}

// TaxRule is a percentage levied in a jurisdiction ("US-CA").
type TaxRule struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Jurisdiction      string          `gorm:"column:jurisdiction;not null;index"`
	Name              string          `gorm:"column:name;not null"`
	Rate              decimal.Decimal `gorm:"column:rate;type:numeric(7,4);not null"`
	AppliesToShipping bool            `gorm:"column:applies_to_shipping;not null"`
	Priority          int             `gorm:"column:priority;not null;default:0"`
	IsActive          bool            `gorm:"column:is_active;not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// ShippingMethod is a selectable delivery option with a flat price.
type ShippingMethod struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Code          string    `gorm:"column:code;not null;uniqueIndex"`
	Name          string    `gorm:"column:name;not null"`
	PriceCents    int64     `gorm:"column:price_cents;not null"`
	FreeOverCents *int64    `gorm:"column:free_over_cents"`
	IsActive      bool      `gorm:"column:is_active;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}
