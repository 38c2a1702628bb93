package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
)

// CheckoutCompletedEvent is emitted once an order has been materialized.
type CheckoutCompletedEvent struct {
	SessionID        uuid.UUID      `json:"session_id"`
	OrderID          uuid.UUID      `json:"order_id"`
	UserID           *uuid.UUID     `json:"user_id,omitempty"`
	PriceSnapshotID  uuid.UUID      `json:"price_snapshot_id"`
	TotalCents       int64          `json:"total_cents"`
	Currency         enums.Currency `json:"currency"`
	GatewayReference string         `json:"gateway_reference"`
	RequiresReview   bool           `json:"requires_review"`
}

// CheckoutFailedEvent is emitted when a session ends without an order.
type CheckoutFailedEvent struct {
	SessionID uuid.UUID          `json:"session_id"`
	State     enums.SessionState `json:"state"`
	Reason    string             `json:"reason"`
}

// FraudBlockedEvent surfaces a blocking verdict to risk tooling.
type FraudBlockedEvent struct {
	FraudCheckID uuid.UUID  `json:"fraud_check_id"`
	SessionID    *uuid.UUID `json:"session_id,omitempty"`
	Score        int        `json:"score"`
	RiskFactors  []string   `json:"risk_factors"`
}

// EntityBlockedEvent is emitted whenever an identity attribute is blocked.
type EntityBlockedEvent struct {
	BlockedEntityID uuid.UUID               `json:"blocked_entity_id"`
	Type            enums.BlockedEntityType `json:"type"`
	Reason          string                  `json:"reason"`
	ExpiresAt       *time.Time              `json:"expires_at,omitempty"`
}

// OrderStatusChangedEvent tracks fulfillment transitions.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
}

// StockAdjustedEvent reports a manual stock correction.
type StockAdjustedEvent struct {
	VariantID         uuid.UUID          `json:"variant_id"`
	QuantityChange    int                `json:"quantity_change"`
	ResultingQuantity int                `json:"resulting_quantity"`
	Reason            enums.LedgerReason `json:"reason"`
}
