package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
)

// Cart is the buyer's pre-checkout basket.
type Cart struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	UserID     *uuid.UUID     `gorm:"column:user_id;type:uuid;index"`
	CouponCode *string        `gorm:"column:coupon_code"`
	Currency   enums.Currency `gorm:"column:currency;not null;default:'USD'"`
	Items      []CartItem     `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// CartItem is one line in a cart. Prices are read from the variant at checkout.
type CartItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CartID    uuid.UUID `gorm:"column:cart_id;type:uuid;not null;index"`
	VariantID uuid.UUID `gorm:"column:variant_id;type:uuid;not null"`
	Quantity  int       `gorm:"column:quantity;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
