package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/types"
)

// CheckoutSession tracks one checkout attempt. CompletedAt and AbandonedAt are
// mutually exclusive.
type CheckoutSession struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	CartID           uuid.UUID            `gorm:"column:cart_id;type:uuid;not null;index"`
	UserID           *uuid.UUID           `gorm:"column:user_id;type:uuid;index"`
	State            enums.SessionState   `gorm:"column:state;type:text;not null;index"`
	ShippingAddress  *types.Address       `gorm:"column:shipping_address;type:jsonb"`
	ShippingMethodID *uuid.UUID           `gorm:"column:shipping_method_id;type:uuid"`
	PaymentMethod    *enums.PaymentMethod `gorm:"column:payment_method;type:text"`
	Currency         enums.Currency       `gorm:"column:currency;not null;default:'USD'"`
	SubtotalCents    int64                `gorm:"column:subtotal_cents;not null;default:0"`
	TotalCents       int64                `gorm:"column:total_cents;not null;default:0"`
	PriceSnapshotID  *uuid.UUID           `gorm:"column:price_snapshot_id;type:uuid"`
	FraudCheckID     *uuid.UUID           `gorm:"column:fraud_check_id;type:uuid"`
	GatewayReference *string              `gorm:"column:gateway_reference"`
	RequiresReview   bool                 `gorm:"column:requires_review;not null"`
	FailureReason    *string              `gorm:"column:failure_reason"`
	StartedAt        time.Time            `gorm:"column:started_at;not null"`
	ExpiresAt        time.Time            `gorm:"column:expires_at;not null;index"`
	CompletedAt      *time.Time           `gorm:"column:completed_at"`
	AbandonedAt      *time.Time           `gorm:"column:abandoned_at"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
