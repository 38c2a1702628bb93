package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/pagination"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/types"
)

type sessionResponse struct {
	ID               uuid.UUID      `json:"id"`
	CartID           uuid.UUID      `json:"cart_id"`
	UserID           *uuid.UUID     `json:"user_id,omitempty"`
	State            string         `json:"state"`
	ShippingAddress  *types.Address `json:"shipping_address,omitempty"`
	ShippingMethodID *uuid.UUID     `json:"shipping_method_id,omitempty"`
	PaymentMethod    *string        `json:"payment_method,omitempty"`
	Currency         string         `json:"currency"`
	SubtotalCents    int64          `json:"subtotal_cents"`
	TotalCents       int64          `json:"total_cents"`
	PriceSnapshotID  *uuid.UUID     `json:"price_snapshot_id,omitempty"`
	GatewayReference *string        `json:"gateway_reference,omitempty"`
	RequiresReview   bool           `json:"requires_review"`
	FailureReason    *string        `json:"failure_reason,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	ExpiresAt        time.Time      `json:"expires_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	AbandonedAt      *time.Time     `json:"abandoned_at,omitempty"`

	Reservations []reservationResponse `json:"reservations,omitempty"`
}

func newSessionResponse(s *models.CheckoutSession, reservations []models.InventoryReservation) *sessionResponse {
	if s == nil {
		return nil
	}
	resp := &sessionResponse{
		ID:               s.ID,
		CartID:           s.CartID,
		UserID:           s.UserID,
		State:            string(s.State),
		ShippingAddress:  s.ShippingAddress,
		ShippingMethodID: s.ShippingMethodID,
		Currency:         string(s.Currency),
		SubtotalCents:    s.SubtotalCents,
		TotalCents:       s.TotalCents,
		PriceSnapshotID:  s.PriceSnapshotID,
		GatewayReference: s.GatewayReference,
		RequiresReview:   s.RequiresReview,
		FailureReason:    s.FailureReason,
		StartedAt:        s.StartedAt,
		ExpiresAt:        s.ExpiresAt,
		CompletedAt:      s.CompletedAt,
		AbandonedAt:      s.AbandonedAt,
	}
	if s.PaymentMethod != nil {
		method := string(*s.PaymentMethod)
		resp.PaymentMethod = &method
	}
	for _, r := range reservations {
		resp.Reservations = append(resp.Reservations, newReservationResponse(r))
	}
	return resp
}

type reservationResponse struct {
	ID        uuid.UUID `json:"id"`
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newReservationResponse(r models.InventoryReservation) reservationResponse {
	return reservationResponse{
		ID:        r.ID,
		VariantID: r.VariantID,
		Quantity:  r.Quantity,
		Status:    string(r.Status),
		ExpiresAt: r.ExpiresAt,
	}
}

type snapshotResponse struct {
	ID                 uuid.UUID               `json:"id"`
	Currency           string                  `json:"currency"`
	SubtotalCents      int64                   `json:"subtotal_cents"`
	DiscountTotalCents int64                   `json:"discount_total_cents"`
	DiscountBreakdown  types.DiscountBreakdown `json:"discount_breakdown"`
	TaxTotalCents      int64                   `json:"tax_total_cents"`
	TaxBreakdown       types.TaxBreakdown      `json:"tax_breakdown"`
	ShippingCents      int64                   `json:"shipping_cents"`
	FinalAmountCents   int64                   `json:"final_amount_cents"`
	CouponCode         *string                 `json:"coupon_code,omitempty"`
	LockedAt           *time.Time              `json:"locked_at,omitempty"`
}

func newSnapshotResponse(s *models.PriceSnapshot) *snapshotResponse {
	if s == nil {
		return nil
	}
	return &snapshotResponse{
		ID:                 s.ID,
		Currency:           string(s.Currency),
		SubtotalCents:      s.SubtotalCents,
		DiscountTotalCents: s.DiscountTotalCents,
		DiscountBreakdown:  s.DiscountBreakdown,
		TaxTotalCents:      s.TaxTotalCents,
		TaxBreakdown:       s.TaxBreakdown,
		ShippingCents:      s.ShippingCents,
		FinalAmountCents:   s.FinalAmountCents,
		CouponCode:         s.CouponCode,
		LockedAt:           s.LockedAt,
	}
}

type orderResponse struct {
	ID               uuid.UUID           `json:"id"`
	SessionID        uuid.UUID           `json:"session_id"`
	UserID           *uuid.UUID          `json:"user_id,omitempty"`
	PriceSnapshotID  uuid.UUID           `json:"price_snapshot_id"`
	Status           string              `json:"status"`
	Currency         string              `json:"currency"`
	TotalCents       int64               `json:"total_cents"`
	GatewayReference string              `json:"gateway_reference"`
	RequiresReview   bool                `json:"requires_review"`
	ShippingAddress  *types.Address      `json:"shipping_address,omitempty"`
	Items            []orderItemResponse `json:"items"`
	CreatedAt        time.Time           `json:"created_at"`
}

type orderItemResponse struct {
	ID             uuid.UUID `json:"id"`
	VariantID      uuid.UUID `json:"variant_id"`
	ProductID      uuid.UUID `json:"product_id"`
	SKU            string    `json:"sku"`
	Name           string    `json:"name"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Quantity       int       `json:"quantity"`
	LineTotalCents int64     `json:"line_total_cents"`
}

func newOrderResponse(o *models.Order) *orderResponse {
	if o == nil {
		return nil
	}
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ID:             item.ID,
			VariantID:      item.VariantID,
			ProductID:      item.ProductID,
			SKU:            item.SKU,
			Name:           item.Name,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			LineTotalCents: item.LineTotalCents,
		})
	}
	return &orderResponse{
		ID:               o.ID,
		SessionID:        o.SessionID,
		UserID:           o.UserID,
		PriceSnapshotID:  o.PriceSnapshotID,
		Status:           string(o.Status),
		Currency:         string(o.Currency),
		TotalCents:       o.TotalCents,
		GatewayReference: o.GatewayReference,
		RequiresReview:   o.RequiresReview,
		ShippingAddress:  o.ShippingAddress,
		Items:            items,
		CreatedAt:        o.CreatedAt,
	}
}

type blockedEntityResponse struct {
	ID          uuid.UUID  `json:"id"`
	Type        string     `json:"type"`
	Value       string     `json:"value"`
	Reason      string     `json:"reason"`
	BlockedBy   *uuid.UUID `json:"blocked_by,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsActive    bool       `json:"is_active"`
	UnblockedBy *uuid.UUID `json:"unblocked_by,omitempty"`
	UnblockedAt *time.Time `json:"unblocked_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func newBlockedEntityResponse(e models.BlockedEntity) blockedEntityResponse {
	return blockedEntityResponse{
		ID:          e.ID,
		Type:        string(e.Type),
		Value:       e.Value,
		Reason:      e.Reason,
		BlockedBy:   e.BlockedBy,
		ExpiresAt:   e.ExpiresAt,
		IsActive:    e.IsActive,
		UnblockedBy: e.UnblockedBy,
		UnblockedAt: e.UnblockedAt,
		CreatedAt:   e.CreatedAt,
	}
}

type ledgerEntryResponse struct {
	ID                uuid.UUID  `json:"id"`
	VariantID         uuid.UUID  `json:"variant_id"`
	QuantityChange    int        `json:"quantity_change"`
	ResultingQuantity int        `json:"resulting_quantity"`
	Reason            string     `json:"reason"`
	ReservationID     *uuid.UUID `json:"reservation_id,omitempty"`
	OrderID           *uuid.UUID `json:"order_id,omitempty"`
	ActorID           *uuid.UUID `json:"actor_id,omitempty"`
	Note              *string    `json:"note,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func newLedgerEntryResponse(e models.InventoryLedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		ID:                e.ID,
		VariantID:         e.VariantID,
		QuantityChange:    e.QuantityChange,
		ResultingQuantity: e.ResultingQuantity,
		Reason:            string(e.Reason),
		ReservationID:     e.ReservationID,
		OrderID:           e.OrderID,
		ActorID:           e.ActorID,
		Note:              e.Note,
		CreatedAt:         e.CreatedAt,
	}
}

func mapPage[M any, T any](page pagination.Page[M], fn func(M) T) pagination.Page[T] {
	out := make([]T, 0, len(page.Items))
	for _, item := range page.Items {
		out = append(out, fn(item))
	}
	return pagination.Page[T]{Items: out, NextCursor: page.NextCursor}
}
