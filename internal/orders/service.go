package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/internal/audit"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	pkgerrors "github.com/nandha3d/ecommerce-template-sub002/pkg/errors"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/logger"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/metrics"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/outbox"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/outbox/payloads"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/pagination"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes order reads and the narrow set of writes an immutable order
// still permits.
type Service interface {
	Create(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error)
	UpdateItem(ctx context.Context, input ItemUpdate) error
	DeleteItem(ctx context.Context, orderID, itemID uuid.UUID, actorID *uuid.UUID) error
	TransitionStatus(ctx context.Context, orderID uuid.UUID, to enums.OrderStatus, actor *outbox.ActorRef) (*models.Order, error)
}

// CreateInput carries everything an order copies from its checkout session.
type CreateInput struct {
	SessionID        uuid.UUID
	UserID           *uuid.UUID
	PriceSnapshotID  uuid.UUID
	Currency         enums.Currency
	TotalCents       int64
	GatewayReference string
	RequiresReview   bool
	ShippingAddress  *types.Address
	Items            []ItemInput
}

type ItemInput struct {
	VariantID      uuid.UUID
	ProductID      uuid.UUID
	SKU            string
	Name           string
	UnitPriceCents int64
	Quantity       int
}

// ItemUpdate names the fields a caller attempted to change on an order item.
type ItemUpdate struct {
	OrderID uuid.UUID
	ItemID  uuid.UUID
	Fields  []string
	ActorID *uuid.UUID
}

// statusTransitions lists the fulfillment moves an order may make.
var statusTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusProcessing, enums.OrderStatusCanceled},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCanceled},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered},
}

// CanTransition reports whether an order in from may move to to.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range statusTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

type ServiceParams struct {
	DB      txRunner
	Repo    Repository
	Audit   audit.Recorder
	Outbox  outbox.Emitter
	Metrics *metrics.CheckoutMetrics
	Logger  *logger.Logger
}

type service struct {
	tx      txRunner
	repo    Repository
	audit   audit.Recorder
	outbox  outbox.Emitter
	metrics *metrics.CheckoutMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService constructs an orders service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:      params.DB,
		repo:    params.Repo,
		audit:   params.Audit,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// Create materializes an order inside the caller's transaction. Line totals are
// derived here so they always equal unit price times quantity.
func (s *service) Create(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order creation requires a transaction")
	}
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:               uuid.New(),
		SessionID:        input.SessionID,
		UserID:           input.UserID,
		PriceSnapshotID:  input.PriceSnapshotID,
		Status:           enums.OrderStatusPending,
		Currency:         input.Currency,
		TotalCents:       input.TotalCents,
		GatewayReference: input.GatewayReference,
		RequiresReview:   input.RequiresReview,
		ShippingAddress:  input.ShippingAddress,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	order.Items = make([]models.OrderItem, 0, len(input.Items))
	for _, item := range input.Items {
		order.Items = append(order.Items, models.OrderItem{
			ID:             uuid.New(),
			OrderID:        order.ID,
			VariantID:      item.VariantID,
			ProductID:      item.ProductID,
			SKU:            item.SKU,
			Name:           item.Name,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			LineTotalCents: item.UnitPriceCents * int64(item.Quantity),
			CreatedAt:      now,
		})
	}

	if err := s.repo.WithTx(tx).CreateOrder(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	if err := s.audit.Record(ctx, tx, audit.Entry{
		Kind:     enums.AuditEntityOrder,
		EntityID: order.ID,
		Action:   enums.AuditActionCreated,
		ActorID:  input.UserID,
		Metadata: map[string]any{"session_id": input.SessionID.String(), "total_cents": input.TotalCents},
	}); err != nil {
		return nil, err
	}
	return order, nil
}

func validateCreate(input CreateInput) error {
	switch {
	case input.SessionID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	case input.PriceSnapshotID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "price snapshot id is required")
	case !input.Currency.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "currency is invalid")
	case input.TotalCents < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "total must not be negative")
	case strings.TrimSpace(input.GatewayReference) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway reference is required")
	case len(input.Items) == 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	for _, item := range input.Items {
		if item.VariantID == uuid.Nil || item.Quantity <= 0 || item.UnitPriceCents < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "order item is invalid").WithDetails(map[string]any{
				"variant_id": item.VariantID,
				"quantity":   item.Quantity,
			})
		}
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindOrder(ctx, id)
	if err != nil {
		return nil, notFound(err, "order not found")
	}
	return order, nil
}

// GetBySession returns the order produced by a session. A nil tx reads on the
// service connection.
func (s *service) GetBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).FindBySession(ctx, sessionID)
	if err != nil {
		return nil, notFound(err, "order not found")
	}
	return order, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListForUser(ctx, userID, params)
	if err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return pagination.Build(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}

// UpdateItem never succeeds for an existing item. The attempt is recorded and
// surfaced as an immutable record error.
func (s *service) UpdateItem(ctx context.Context, input ItemUpdate) error {
	if _, err := s.repo.FindItem(ctx, input.OrderID, input.ItemID); err != nil {
		return notFound(err, "order item not found")
	}
	return s.violation(ctx, input.OrderID, input.ItemID, "update", input.Fields, input.ActorID, nil)
}

// DeleteItem removes an item only while the order is pending or failed.
func (s *service) DeleteItem(ctx context.Context, orderID, itemID uuid.UUID, actorID *uuid.UUID) error {
	var status enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindForUpdate(ctx, orderID)
		if err != nil {
			return notFound(err, "order not found")
		}
		item, err := repo.FindItem(ctx, orderID, itemID)
		if err != nil {
			return notFound(err, "order item not found")
		}
		status = order.Status
		if !status.AllowsItemDeletion() {
			return errItemLocked
		}
		if err := repo.DeleteItem(ctx, itemID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order item")
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			Kind:     enums.AuditEntityOrderItem,
			EntityID: itemID,
			Action:   enums.AuditActionDeleted,
			ActorID:  actorID,
			Metadata: map[string]any{
				"order_id":     orderID.String(),
				"order_status": string(status),
				"sku":          item.SKU,
				"quantity":     item.Quantity,
			},
		})
	})
	if errors.Is(err, errItemLocked) {
		return s.violation(ctx, orderID, itemID, "delete", nil, actorID, map[string]any{"order_status": string(status)})
	}
	return err
}

var errItemLocked = errors.New("order item locked")

// TransitionStatus moves an order along its fulfillment path and publishes the
// change.
func (s *service) TransitionStatus(ctx context.Context, orderID uuid.UUID, to enums.OrderStatus, actor *outbox.ActorRef) (*models.Order, error) {
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order status %q", to))
	}
	var actorID *uuid.UUID
	if actor != nil {
		actorID = actor.UserID
	}

	var from enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindForUpdate(ctx, orderID)
		if err != nil {
			return notFound(err, "order not found")
		}
		from = order.Status
		if !CanTransition(from, to) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order cannot move from %s to %s", from, to)).
				WithDetails(map[string]any{"order_id": orderID, "from": from, "to": to})
		}
		ok, err := repo.UpdateStatus(ctx, orderID, from, to)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order status changed concurrently")
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			Kind:     enums.AuditEntityOrder,
			EntityID: orderID,
			Action:   enums.AuditActionStateChanged,
			ActorID:  actorID,
			Metadata: map[string]any{"from": string(from), "to": string(to)},
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         actor,
			Data:          payloads.OrderStatusChangedEvent{OrderID: orderID, From: from, To: to},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": orderID.String(),
		"from":     string(from),
		"to":       string(to),
	}), "order status changed")
	return s.Get(ctx, orderID)
}

// violation records a refused write against an order item and returns the
// error the caller must surface.
func (s *service) violation(ctx context.Context, orderID, itemID uuid.UUID, operation string, fields []string, actorID *uuid.UUID, extra map[string]any) error {
	s.metrics.ImmutableViolation(string(enums.AuditEntityOrderItem))
	details := map[string]any{
		"entity":    string(enums.AuditEntityOrderItem),
		"order_id":  orderID.String(),
		"item_id":   itemID.String(),
		"operation": operation,
		"fields":    fields,
	}
	metadata := map[string]any{"operation": operation, "order_id": orderID.String(), "fields": fields}
	for key, value := range extra {
		details[key] = value
		metadata[key] = value
	}
	if actorID != nil {
		details["actor_id"] = actorID.String()
	}
	s.logg.Security(ctx, "immutable_record_violation", details)
	if err := s.audit.Record(ctx, nil, audit.Entry{
		Kind:     enums.AuditEntityOrderItem,
		EntityID: itemID,
		Action:   enums.AuditActionImmutableViolation,
		ActorID:  actorID,
		Metadata: metadata,
	}); err != nil {
		s.logg.Error(ctx, "failed to audit immutable violation", err)
	}
	return pkgerrors.New(pkgerrors.CodeImmutableRecord, "order item is immutable").WithDetails(map[string]any{
		"order_id":  orderID,
		"item_id":   itemID,
		"operation": operation,
	})
}

func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
