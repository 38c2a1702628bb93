package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductVariant is the sellable unit. StockQuantity is a cached projection of
// the inventory ledger and is only written by the reservation manager.
type ProductVariant struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID     uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	SKU           string    `gorm:"column:sku;not null;uniqueIndex"`
	Name          string    `gorm:"column:name;not null"`
	PriceCents    int64     `gorm:"column:price_cents;not null"`
	StockQuantity int       `gorm:"column:stock_quantity;not null;default:0"`
	IsActive      bool      `gorm:"column:is_active;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
