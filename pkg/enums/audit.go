package enums

import "fmt"

// AuditEntityKind is the closed set of records an audit entry may reference.
type AuditEntityKind string

const (
	AuditEntitySession       AuditEntityKind = "checkout_session"
	AuditEntityReservation   AuditEntityKind = "inventory_reservation"
	AuditEntitySnapshot      AuditEntityKind = "price_snapshot"
	AuditEntityFraudCheck    AuditEntityKind = "fraud_check"
	AuditEntityBlockedEntity AuditEntityKind = "blocked_entity"
	AuditEntityOrder         AuditEntityKind = "order"
	AuditEntityOrderItem     AuditEntityKind = "order_item"
	AuditEntityVariant       AuditEntityKind = "product_variant"
)

var validAuditEntityKinds = []AuditEntityKind{
	AuditEntitySession,
	AuditEntityReservation,
	AuditEntitySnapshot,
	AuditEntityFraudCheck,
	AuditEntityBlockedEntity,
	AuditEntityOrder,
	AuditEntityOrderItem,
	AuditEntityVariant,
}

// String implements fmt.Stringer.
func (a AuditEntityKind) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AuditEntityKind.
func (a AuditEntityKind) IsValid() bool {
	for _, candidate := range validAuditEntityKinds {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAuditEntityKind converts raw input into a AuditEntityKind.
func ParseAuditEntityKind(value string) (AuditEntityKind, error) {
	for _, candidate := range validAuditEntityKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit entity kind %q", value)
}

// AuditAction names what happened to the referenced record.
type AuditAction string

const (
	AuditActionCreated            AuditAction = "created"
	AuditActionStateChanged       AuditAction = "state_changed"
	AuditActionLocked             AuditAction = "locked"
	AuditActionBlocked            AuditAction = "blocked"
	AuditActionUnblocked          AuditAction = "unblocked"
	AuditActionStockAdjusted      AuditAction = "stock_adjusted"
	AuditActionDeleted            AuditAction = "deleted"
	AuditActionSuperseded         AuditAction = "superseded"
	AuditActionImmutableViolation AuditAction = "immutable_violation"
)

var validAuditActions = []AuditAction{
	AuditActionCreated,
	AuditActionStateChanged,
	AuditActionLocked,
	AuditActionBlocked,
	AuditActionUnblocked,
	AuditActionStockAdjusted,
	AuditActionDeleted,
	AuditActionSuperseded,
	AuditActionImmutableViolation,
}

func (a AuditAction) String() string {
	return string(a)
}

func (a AuditAction) IsValid() bool {
	for _, candidate := range validAuditActions {
		if candidate == a {
			return true
		}
	}
	return false
}
