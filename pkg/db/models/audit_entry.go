package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
)

// AuditEntry attributes an action on a known entity kind to an actor.
type AuditEntry struct {
	ID         uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	EntityKind enums.AuditEntityKind `gorm:"column:entity_kind;type:text;not null;index:idx_audit_entity"`
	EntityID   uuid.UUID             `gorm:"column:entity_id;type:uuid;not null;index:idx_audit_entity"`
	Action     enums.AuditAction     `gorm:"column:action;type:text;not null"`
	ActorID    *uuid.UUID            `gorm:"column:actor_id;type:uuid"`
	Metadata   json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime"`
}
