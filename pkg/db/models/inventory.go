package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
)

// InventoryReservation holds stock for one checkout session. Rows are never
// deleted; status transitions preserve the audit trail.
type InventoryReservation struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	VariantID     uuid.UUID               `gorm:"column:variant_id;type:uuid;not null;index:idx_reservations_variant_status"`
	SessionID     uuid.UUID               `gorm:"column:session_id;type:uuid;not null;index"`
	Quantity      int                     `gorm:"column:quantity;not null"`
	Status        enums.ReservationStatus `gorm:"column:status;type:text;not null;index:idx_reservations_variant_status"`
	ExpiresAt     time.Time               `gorm:"column:expires_at;not null;index"`
	LedgerEntryID *uuid.UUID              `gorm:"column:ledger_entry_id;type:uuid"`
	CommittedAt   *time.Time              `gorm:"column:committed_at"`
	ReleasedAt    *time.Time              `gorm:"column:released_at"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// InventoryLedgerEntry is an append-only stock delta.
type InventoryLedgerEntry struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	VariantID         uuid.UUID          `gorm:"column:variant_id;type:uuid;not null;index"`
	QuantityChange    int                `gorm:"column:quantity_change;not null"`
	ResultingQuantity int                `gorm:"column:resulting_quantity;not null"`
	Reason            enums.LedgerReason `gorm:"column:reason;type:text;not null"`
	ReservationID     *uuid.UUID         `gorm:"column:reservation_id;type:uuid;uniqueIndex"`
	OrderID           *uuid.UUID         `gorm:"column:order_id;type:uuid"`
	ActorID           *uuid.UUID         `gorm:"column:actor_id;type:uuid"`
	Note              *string            `gorm:"column:note"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
}
