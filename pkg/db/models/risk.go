package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/types"
)

// FraudCheck is the write-once record of one fraud evaluation.
type FraudCheck struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	SessionID         *uuid.UUID         `gorm:"column:session_id;type:uuid;index"`
	UserID            *uuid.UUID         `gorm:"column:user_id;type:uuid"`
	Email             string             `gorm:"column:email"`
	IP                string             `gorm:"column:ip"`
	DeviceFingerprint string             `gorm:"column:device_fingerprint"`
	CardFingerprint   *string            `gorm:"column:card_fingerprint"`
	AmountCents       int64              `gorm:"column:amount_cents;not null;default:0"`
	Score             int                `gorm:"column:score;not null"`
	Result            enums.FraudVerdict `gorm:"column:result;type:text;not null;index"`
	RiskFactors       types.StringSet    `gorm:"column:risk_factors;type:jsonb;not null"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime;index"`
}

// PaymentVelocityRecord counts attempts for one (type, value) pair inside a
// rolling window.
type PaymentVelocityRecord struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Type             enums.VelocityType `gorm:"column:type;type:text;not null;uniqueIndex:ux_velocity_type_value"`
	Value            string             `gorm:"column:value;not null;uniqueIndex:ux_velocity_type_value"`
	AttemptCount     int                `gorm:"column:attempt_count;not null;default:0"`
	SuccessCount     int                `gorm:"column:success_count;not null;default:0"`
	FailureCount     int                `gorm:"column:failure_count;not null;default:0"`
	TotalAmountCents int64              `gorm:"column:total_amount_cents;not null;default:0"`
	WindowStart      time.Time          `gorm:"column:window_start;not null"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// BlockedEntity denies an identity attribute. Active means IsActive and not
// past ExpiresAt.
type BlockedEntity struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	Type        enums.BlockedEntityType `gorm:"column:type;type:text;not null;uniqueIndex:ux_blocked_type_value"`
	Value       string                  `gorm:"column:value;not null;uniqueIndex:ux_blocked_type_value"`
	Reason      string                  `gorm:"column:reason;not null"`
	BlockedBy   *uuid.UUID              `gorm:"column:blocked_by;type:uuid"`
	ExpiresAt   *time.Time              `gorm:"column:expires_at"`
	IsActive    bool                    `gorm:"column:is_active;not null"`
	UnblockedBy *uuid.UUID              `gorm:"column:unblocked_by;type:uuid"`
	UnblockedAt *time.Time              `gorm:"column:unblocked_at"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// ActiveAt reports whether the entry denies at t.
func (b BlockedEntity) ActiveAt(t time.Time) bool {
	return b.IsActive && (b.ExpiresAt == nil || b.ExpiresAt.After(t))
}
