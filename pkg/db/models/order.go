package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/types"
)

// Order is materialized only after a successful payment.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	SessionID        uuid.UUID         `gorm:"column:session_id;type:uuid;not null;uniqueIndex"`
	UserID           *uuid.UUID        `gorm:"column:user_id;type:uuid;index"`
	PriceSnapshotID  uuid.UUID         `gorm:"column:price_snapshot_id;type:uuid;not null"`
	Status           enums.OrderStatus `gorm:"column:status;type:text;not null"`
	Currency         enums.Currency    `gorm:"column:currency;not null"`
	TotalCents       int64             `gorm:"column:total_cents;not null"`
	GatewayReference string            `gorm:"column:gateway_reference;not null"`
	RequiresReview   bool              `gorm:"column:requires_review;not null"`
	ShippingAddress  *types.Address    `gorm:"column:shipping_address;type:jsonb"`
	Items            []OrderItem       `gorm:"foreignKey:OrderID"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem fields are immutable after creation.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	VariantID      uuid.UUID `gorm:"column:variant_id;type:uuid;not null"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	SKU            string    `gorm:"column:sku;not null"`
	Name           string    `gorm:"column:name;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	Quantity       int       `gorm:"column:quantity;not null"`
	LineTotalCents int64     `gorm:"column:line_total_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
