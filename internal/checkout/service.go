package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/internal/audit"
	"github.com/nandha3d/ecommerce-template-sub002/internal/fraud"
	"github.com/nandha3d/ecommerce-template-sub002/internal/gateway"
	"github.com/nandha3d/ecommerce-template-sub002/internal/orders"
	"github.com/nandha3d/ecommerce-template-sub002/internal/pricing"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/config"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	pkgerrors "github.com/nandha3d/ecommerce-template-sub002/pkg/errors"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/logger"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/metrics"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/outbox"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/outbox/payloads"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/types"
)

const expireBatchSize = 500

// Failure reasons stored on sessions that end without an order.
const (
	ReasonInsufficientStock  = "insufficient_stock"
	ReasonReservationExpired = "reservation_expired"
	ReasonReservationError   = "reservation_error"
	ReasonFraudBlocked       = "fraud_blocked"
	ReasonFraudReview        = "fraud_review"
	ReasonGatewayError       = "gateway_error"
	ReasonPaymentDeclined    = "payment_declined"
	ReasonCanceled           = "canceled"
	ReasonExpired            = "session_expired"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Catalog is the read-only cart and shipping data checkout needs.
type Catalog interface {
	FindCart(ctx context.Context, id uuid.UUID) (*models.Cart, error)
	FindVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ProductVariant, error)
	FindShippingMethod(ctx context.Context, id uuid.UUID) (*models.ShippingMethod, error)
}

// Reservations is the slice of the inventory manager checkout drives.
type Reservations interface {
	Reserve(ctx context.Context, variantID, sessionID uuid.UUID, quantity int) (*models.InventoryReservation, error)
	CommitTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID, orderID *uuid.UUID) (*models.InventoryLedgerEntry, error)
	ReleaseForSession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error)
	ListForSession(ctx context.Context, sessionID uuid.UUID) ([]models.InventoryReservation, error)
}

type RiskEvaluator interface {
	Evaluate(ctx context.Context, identity fraud.Identity, order fraud.OrderContext) (*models.FraudCheck, error)
	Get(ctx context.Context, id uuid.UUID) (*models.FraudCheck, error)
}

type VelocityRecorder interface {
	RecordAttempt(ctx context.Context, velocityType enums.VelocityType, value string, amountCents int64) (*models.PaymentVelocityRecord, error)
	RecordSuccess(ctx context.Context, velocityType enums.VelocityType, value string) (*models.PaymentVelocityRecord, error)
	RecordFailure(ctx context.Context, velocityType enums.VelocityType, value string) (*models.PaymentVelocityRecord, error)
}

type Snapshotter interface {
	ComputeSnapshot(ctx context.Context, tx *gorm.DB, req pricing.SnapshotRequest) (*models.PriceSnapshot, error)
	Lock(ctx context.Context, tx *gorm.DB, id uuid.UUID, actorID *uuid.UUID) (*models.PriceSnapshot, error)
}

type ServiceParams struct {
	DB        txRunner
	Repo      Repository
	Catalog   Catalog
	Inventory Reservations
	Fraud     RiskEvaluator
	Velocity  VelocityRecorder
	Pricing   Snapshotter
	Orders    orders.Service
	Gateway   gateway.Gateway
	Audit     audit.Recorder
	Outbox    outbox.Emitter
	Config    config.CheckoutConfig
	Metrics   *metrics.CheckoutMetrics
	Logger    *logger.Logger
}

// Service drives checkout sessions through their state machine.
type Service struct {
	tx        txRunner
	repo      Repository
	catalog   Catalog
	inventory Reservations
	fraud     RiskEvaluator
	velocity  VelocityRecorder
	pricing   Snapshotter
	orders    orders.Service
	gateway   gateway.Gateway
	audit     audit.Recorder
	outbox    outbox.Emitter
	cfg       config.CheckoutConfig
	metrics   *metrics.CheckoutMetrics
	logg      *logger.Logger
	validate  *validator.Validate
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("checkout repository required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog required")
	case params.Inventory == nil:
		return nil, fmt.Errorf("inventory required")
	case params.Fraud == nil:
		return nil, fmt.Errorf("fraud evaluator required")
	case params.Velocity == nil:
		return nil, fmt.Errorf("velocity recorder required")
	case params.Pricing == nil:
		return nil, fmt.Errorf("pricing required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders service required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.Audit == nil:
		return nil, fmt.Errorf("audit recorder required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Config.SessionTTL <= 0:
		return nil, fmt.Errorf("session ttl must be positive")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		tx:        params.DB,
		repo:      params.Repo,
		catalog:   params.Catalog,
		inventory: params.Inventory,
		fraud:     params.Fraud,
		velocity:  params.Velocity,
		pricing:   params.Pricing,
		orders:    params.Orders,
		gateway:   params.Gateway,
		audit:     params.Audit,
		outbox:    params.Outbox,
		cfg:       params.Config,
		metrics:   params.Metrics,
		logg:      logg,
		validate:  validator.New(),
		now:       time.Now,
	}, nil
}

type StartInput struct {
	CartID uuid.UUID
	UserID *uuid.UUID
}

// StartSession opens a session for a cart and reserves every line. A line that
// cannot be reserved fails the session and releases what was already held.
func (s *Service) StartSession(ctx context.Context, input StartInput) (*models.CheckoutSession, error) {
	if input.CartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	cart, lines, err := s.loadCart(ctx, input.CartID)
	if err != nil {
		return nil, err
	}
	userID := input.UserID
	if cart.UserID != nil {
		if userID != nil && *userID != *cart.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cart belongs to another user")
		}
		userID = cart.UserID
	}
	currency := cart.Currency
	if !currency.IsValid() {
		currency = enums.Currency(strings.ToUpper(s.cfg.Currency))
	}

	var subtotal int64
	for _, line := range lines {
		subtotal += line.variant.PriceCents * int64(line.item.Quantity)
	}
	now := s.now().UTC()
	session := &models.CheckoutSession{
		ID:            uuid.New(),
		CartID:        cart.ID,
		UserID:        userID,
		State:         enums.SessionStateStarted,
		Currency:      currency,
		SubtotalCents: subtotal,
		TotalCents:    subtotal,
		StartedAt:     now,
		ExpiresAt:     now.Add(s.cfg.SessionTTL),
		UpdatedAt:     now,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			Kind:     enums.AuditEntitySession,
			EntityID: session.ID,
			Action:   enums.AuditActionCreated,
			ActorID:  userID,
			Metadata: map[string]any{"cart_id": cart.ID.String(), "subtotal_cents": subtotal},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Transition(string(enums.SessionStateStarted))

	ctx = s.logg.WithSessionID(ctx, session.ID.String())
	for _, line := range lines {
		if _, err := s.inventory.Reserve(ctx, line.variant.ID, session.ID, line.item.Quantity); err != nil {
			reason := ReasonInsufficientStock
			if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
				reason = ReasonReservationError
			}
			if _, _, endErr := s.end(ctx, session.ID, enums.SessionStateFailed, reason, nil, nil); endErr != nil {
				s.logg.Error(ctx, "failed to close session after reservation error", endErr)
			}
			return nil, err
		}
	}

	s.logg.Info(s.logg.WithField(ctx, "lines", len(lines)), "checkout session started")
	return session, nil
}

// Get returns a session, expiring it first when its deadline has passed.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if !session.State.IsTerminal() && !s.now().UTC().Before(session.ExpiresAt) {
		expired, _, err := s.end(ctx, id, enums.SessionStateExpired, ReasonExpired, nil, nil)
		if err != nil {
			return nil, err
		}
		return expired, nil
	}
	return session, nil
}

func (s *Service) Reservations(ctx context.Context, id uuid.UUID) ([]models.InventoryReservation, error) {
	return s.inventory.ListForSession(ctx, id)
}

// AdvancePayload carries the data a step collects.
type AdvancePayload struct {
	Address          *types.Address
	ShippingMethodID *uuid.UUID
}

// Advance applies a data-collection step.
func (s *Service) Advance(ctx context.Context, id uuid.UUID, step enums.CheckoutStep, payload AdvancePayload) (*models.CheckoutSession, error) {
	switch step {
	case enums.CheckoutStepAddress:
		if payload.Address == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "address is required")
		}
		return s.SelectAddress(ctx, id, *payload.Address)
	case enums.CheckoutStepShipping:
		if payload.ShippingMethodID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping method is required")
		}
		return s.SelectShipping(ctx, id, *payload.ShippingMethodID)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown checkout step %q", step))
	}
}

// SelectAddress records the shipping address. Re-selecting an address after
// shipping was chosen clears the shipping choice.
func (s *Service) SelectAddress(ctx context.Context, id uuid.UUID, address types.Address) (*models.CheckoutSession, error) {
	if err := s.validate.Struct(address); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}
	return s.step(ctx, id, enums.SessionStateAddressSelected, []enums.SessionState{
		enums.SessionStateStarted,
		enums.SessionStateAddressSelected,
		enums.SessionStateShippingSelected,
	}, map[string]any{
		"shipping_address":   address,
		"shipping_method_id": nil,
	})
}

// SelectShipping records an active shipping method once an address exists.
func (s *Service) SelectShipping(ctx context.Context, id uuid.UUID, methodID uuid.UUID) (*models.CheckoutSession, error) {
	if _, err := s.catalog.FindShippingMethod(ctx, methodID); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping method is not available")
		}
		return nil, err
	}
	return s.step(ctx, id, enums.SessionStateShippingSelected, []enums.SessionState{
		enums.SessionStateAddressSelected,
		enums.SessionStateShippingSelected,
	}, map[string]any{"shipping_method_id": methodID})
}

func (s *Service) step(ctx context.Context, id uuid.UUID, to enums.SessionState, allowed []enums.SessionState, updates map[string]any) (*models.CheckoutSession, error) {
	var from enums.SessionState
	var result *models.CheckoutSession
	err := s.withSession(ctx, id, func(tx *gorm.DB, repo Repository, session *models.CheckoutSession, now time.Time) error {
		if !stateIn(session.State, allowed) {
			return stateConflict(session.State, to)
		}
		from = session.State
		updates["state"] = to
		updates["updated_at"] = now
		if err := s.move(ctx, tx, repo, session, to, updates); err != nil {
			return err
		}
		var err error
		result, err = repo.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if from != to {
		s.metrics.Transition(string(to))
	}
	return result, nil
}

// PaymentInput is what the buyer submits to pay for a session.
type PaymentInput struct {
	Method      enums.PaymentMethod
	SourceToken string
	Identity    fraud.Identity
}

// PaymentResult reports the outcome of a payment initiation. Order is set when
// the gateway settled the charge synchronously.
type PaymentResult struct {
	Session          *models.CheckoutSession
	GatewayReference string
	GatewayStatus    gateway.Status
	FraudCheck       *models.FraudCheck
	Snapshot         *models.PriceSnapshot
	Order            *models.Order
}

// InitiatePayment confirms reservations, scores fraud, locks the price snapshot
// and charges the gateway, in that order, stopping at the first rejection.
func (s *Service) InitiatePayment(ctx context.Context, id uuid.UUID, input PaymentInput) (*PaymentResult, error) {
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", input.Method))
	}
	if strings.TrimSpace(input.Identity.Email) == "" || strings.TrimSpace(input.Identity.IP) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and ip are required for payment")
	}
	ctx = s.logg.WithSessionID(ctx, id.String())

	var session *models.CheckoutSession
	err := s.withSession(ctx, id, func(_ *gorm.DB, _ Repository, current *models.CheckoutSession, _ time.Time) error {
		session = current
		if current.State == enums.SessionStatePaymentPending && current.GatewayReference != nil {
			return nil
		}
		if current.State != enums.SessionStateShippingSelected {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "shipping must be selected before payment").
				WithDetails(map[string]any{"state": current.State})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if session.State == enums.SessionStatePaymentPending {
		return &PaymentResult{
			Session:          session,
			GatewayReference: *session.GatewayReference,
			GatewayStatus:    gateway.StatusPending,
		}, nil
	}

	if err := s.confirmReservations(ctx, session); err != nil {
		return nil, err
	}

	identity := input.Identity
	if identity.UserID == nil {
		identity.UserID = session.UserID
	}
	s.recordAttempts(ctx, identity, session.TotalCents)

	check, err := s.fraud.Evaluate(ctx, identity, fraud.OrderContext{SessionID: &session.ID, AmountCents: session.TotalCents})
	if err != nil {
		return nil, err
	}
	if refused, reason := s.refuses(check); refused {
		if _, _, endErr := s.end(ctx, id, enums.SessionStateFailed, reason, map[string]any{"fraud_check_id": check.ID}, nil); endErr != nil {
			s.logg.Error(ctx, "failed to close fraud blocked session", endErr)
		}
		return nil, pkgerrors.New(pkgerrors.CodeFraudBlocked, "payment refused by risk checks").WithDetails(map[string]any{
			"fraud_check_id": check.ID,
			"score":          check.Score,
			"verdict":        check.Result,
			"risk_factors":   []string(check.RiskFactors),
		})
	}

	snapshot, err := s.lockSnapshot(ctx, session)
	if err != nil {
		return nil, err
	}

	err = s.withSession(ctx, id, func(tx *gorm.DB, repo Repository, current *models.CheckoutSession, now time.Time) error {
		if current.State != enums.SessionStateShippingSelected {
			return stateConflict(current.State, enums.SessionStatePaymentPending)
		}
		return s.move(ctx, tx, repo, current, enums.SessionStatePaymentPending, map[string]any{
			"state":             enums.SessionStatePaymentPending,
			"payment_method":    input.Method,
			"fraud_check_id":    check.ID,
			"price_snapshot_id": snapshot.ID,
			"requires_review":   check.Result == enums.FraudVerdictReview,
			"total_cents":       snapshot.FinalAmountCents,
			"updated_at":        now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Transition(string(enums.SessionStatePaymentPending))
	session.FraudCheckID = &check.ID

	resp, err := s.charge(ctx, session, snapshot, input)
	if err != nil {
		s.failPayment(ctx, session, ReasonGatewayError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayFailure, err, "payment gateway unavailable")
	}
	if resp.Status == gateway.StatusFailed {
		s.failPayment(ctx, session, ReasonPaymentDeclined)
		return nil, pkgerrors.New(pkgerrors.CodeGatewayFailure, "payment was declined").WithDetails(map[string]any{
			"gateway_reference": resp.Reference,
			"reason":            resp.FailureReason,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Transition(ctx, id, enums.SessionStatePaymentPending, map[string]any{
			"gateway_reference": resp.Reference,
			"updated_at":        s.now().UTC(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store gateway reference")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "session changed during payment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &PaymentResult{
		GatewayReference: resp.Reference,
		GatewayStatus:    resp.Status,
		FraudCheck:       check,
		Snapshot:         snapshot,
	}
	if resp.Status == gateway.StatusSucceeded {
		order, err := s.ConfirmPayment(ctx, id, GatewayResult{Reference: resp.Reference, Success: true})
		if err != nil {
			return nil, err
		}
		result.Order = order
	}
	result.Session, err = s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"gateway":           s.gateway.Name(),
		"gateway_reference": resp.Reference,
		"gateway_status":    string(resp.Status),
		"verdict":           string(check.Result),
	}), "payment initiated")
	return result, nil
}

func (s *Service) refuses(check *models.FraudCheck) (bool, string) {
	switch check.Result {
	case enums.FraudVerdictBlock:
		return true, ReasonFraudBlocked
	case enums.FraudVerdictReview:
		if !s.cfg.ReviewAllowsPayment {
			return true, ReasonFraudReview
		}
	}
	return false, ""
}

// confirmReservations requires every reservation of the session to still be
// active. A lapsed reservation fails the session.
func (s *Service) confirmReservations(ctx context.Context, session *models.CheckoutSession) error {
	reservations, err := s.inventory.ListForSession(ctx, session.ID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	lapsed := len(reservations) == 0
	for _, reservation := range reservations {
		if reservation.Status != enums.ReservationStatusActive || !reservation.ExpiresAt.After(now) {
			lapsed = true
			break
		}
	}
	if !lapsed {
		return nil
	}
	if _, _, err := s.end(ctx, session.ID, enums.SessionStateFailed, ReasonReservationExpired, nil, nil); err != nil {
		s.logg.Error(ctx, "failed to close session with lapsed reservations", err)
	}
	return pkgerrors.New(pkgerrors.CodeReservationExpired, "reserved stock is no longer held; restart checkout")
}

func (s *Service) lockSnapshot(ctx context.Context, session *models.CheckoutSession) (*models.PriceSnapshot, error) {
	cart, lines, err := s.loadCart(ctx, session.CartID)
	if err != nil {
		return nil, err
	}
	req := pricing.SnapshotRequest{
		SessionID:        session.ID,
		Currency:         session.Currency,
		CouponCode:       cart.CouponCode,
		ShippingMethodID: session.ShippingMethodID,
	}
	if session.ShippingAddress != nil {
		req.Jurisdiction = session.ShippingAddress.Jurisdiction()
	}
	for _, line := range lines {
		req.Lines = append(req.Lines, pricing.Line{
			VariantID:      line.variant.ID,
			UnitPriceCents: line.variant.PriceCents,
			Quantity:       line.item.Quantity,
		})
	}
	snapshot, err := s.pricing.ComputeSnapshot(ctx, nil, req)
	if err != nil {
		return nil, err
	}
	return s.pricing.Lock(ctx, nil, snapshot.ID, session.UserID)
}

func (s *Service) charge(ctx context.Context, session *models.CheckoutSession, snapshot *models.PriceSnapshot, input PaymentInput) (gateway.GatewayResponse, error) {
	if snapshot.FinalAmountCents == 0 {
		return gateway.GatewayResponse{Reference: "no_charge_" + session.ID.String(), Status: gateway.StatusSucceeded}, nil
	}
	return s.gateway.Charge(ctx, gateway.PaymentRequest{
		SessionID:      session.ID,
		AmountCents:    snapshot.FinalAmountCents,
		Currency:       snapshot.Currency,
		Method:         input.Method,
		SourceToken:    input.SourceToken,
		IdempotencyKey: gateway.IdempotencyKey(session.ID, snapshot.ID),
		BuyerEmail:     input.Identity.Email,
	})
}

func (s *Service) failPayment(ctx context.Context, session *models.CheckoutSession, reason string) {
	if _, _, err := s.end(ctx, session.ID, enums.SessionStateFailed, reason, nil, nil); err != nil {
		s.logg.Error(ctx, "failed to close session after payment failure", err)
	}
	s.recordOutcome(ctx, session.FraudCheckID, false)
}

// GatewayResult is the provider's final answer for a pending payment.
type GatewayResult struct {
	Reference     string
	Success       bool
	FailureReason string
}

// ConfirmPayment settles a pending payment. On success every reservation is
// committed and the order is created in one transaction. Confirming a
// completed session returns its order.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID, result GatewayResult) (*models.Order, error) {
	ctx = s.logg.WithSessionID(ctx, id.String())
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if session.State == enums.SessionStateCompleted {
		return s.orders.GetBySession(ctx, nil, id)
	}
	if session.State == enums.SessionStatePaymentPending {
		if err := matchReference(session, result.Reference); err != nil {
			return nil, err
		}
	}

	if !result.Success {
		if session.State != enums.SessionStatePaymentPending {
			return nil, stateConflict(session.State, enums.SessionStateFailed)
		}
		reason := strings.TrimSpace(result.FailureReason)
		if reason == "" {
			reason = ReasonPaymentDeclined
		}
		s.failPayment(ctx, session, reason)
		return nil, pkgerrors.New(pkgerrors.CodeGatewayFailure, "payment failed").WithDetails(map[string]any{
			"gateway_reference": result.Reference,
			"reason":            reason,
		})
	}

	reservations, err := s.inventory.ListForSession(ctx, id)
	if err != nil {
		return nil, err
	}
	_, lines, err := s.loadCart(ctx, session.CartID)
	if err != nil {
		return nil, err
	}

	var order *models.Order
	err = s.withSession(ctx, id, func(tx *gorm.DB, repo Repository, current *models.CheckoutSession, now time.Time) error {
		if current.State != enums.SessionStatePaymentPending {
			return stateConflict(current.State, enums.SessionStateCompleted)
		}
		if err := matchReference(current, result.Reference); err != nil {
			return err
		}
		if current.PriceSnapshotID == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "pending session has no price snapshot")
		}

		var err error
		order, err = s.orders.Create(ctx, tx, orders.CreateInput{
			SessionID:        current.ID,
			UserID:           current.UserID,
			PriceSnapshotID:  *current.PriceSnapshotID,
			Currency:         current.Currency,
			TotalCents:       current.TotalCents,
			GatewayReference: result.Reference,
			RequiresReview:   current.RequiresReview,
			ShippingAddress:  current.ShippingAddress,
			Items:            orderItems(lines),
		})
		if err != nil {
			return err
		}
		for _, reservation := range reservations {
			if _, err := s.inventory.CommitTx(ctx, tx, reservation.ID, &order.ID); err != nil {
				return err
			}
		}

		if err := s.move(ctx, tx, repo, current, enums.SessionStateCompleted, map[string]any{
			"state":        enums.SessionStateCompleted,
			"completed_at": now,
			"updated_at":   now,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutCompleted,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   current.ID,
			Actor:         customer(current.UserID),
			Data: payloads.CheckoutCompletedEvent{
				SessionID:        current.ID,
				OrderID:          order.ID,
				UserID:           current.UserID,
				PriceSnapshotID:  *current.PriceSnapshotID,
				TotalCents:       current.TotalCents,
				Currency:         current.Currency,
				GatewayReference: result.Reference,
				RequiresReview:   current.RequiresReview,
			},
		})
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeReservationExpired) {
			s.logg.Warn(s.logg.WithField(ctx, "gateway_reference", result.Reference), "payment confirmed after reserved stock lapsed")
			if _, _, endErr := s.end(ctx, id, enums.SessionStateFailed, ReasonReservationExpired, nil, nil); endErr != nil {
				s.logg.Error(ctx, "failed to close session with lapsed reservations", endErr)
			}
		}
		return nil, err
	}

	s.metrics.Transition(string(enums.SessionStateCompleted))
	s.recordOutcome(ctx, session.FraudCheckID, true)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":    order.ID.String(),
		"total_cents": order.TotalCents,
	}), "checkout completed")
	return order, nil
}

// Cancel abandons a session at the buyer's request. A session waiting on the
// gateway cannot be canceled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*models.CheckoutSession, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	switch {
	case session.State == enums.SessionStateAbandoned:
		return session, nil
	case session.State == enums.SessionStatePaymentPending:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is in progress")
	case session.State.IsTerminal():
		return nil, stateConflict(session.State, enums.SessionStateAbandoned)
	}
	ended, _, err := s.end(ctx, id, enums.SessionStateAbandoned, ReasonCanceled, nil, actorID)
	return ended, err
}

// ExpireStale expires every non-terminal session whose deadline is at or
// before now and releases its reservations.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.repo.ListExpired(ctx, now.UTC(), expireBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired sessions")
	}
	var (
		expired int
		errs    error
	)
	for _, id := range ids {
		_, changed, err := s.end(ctx, id, enums.SessionStateExpired, ReasonExpired, nil, nil)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire session %s: %w", id, err))
			continue
		}
		if changed {
			expired++
		}
	}
	if expired > 0 {
		s.logg.Info(s.logg.WithField(ctx, "expired", expired), "checkout sessions expired")
	}
	return expired, errs
}

var errNeedsExpiry = errors.New("session deadline passed")

// withSession runs fn against a row-locked session. A live session found past
// its deadline is expired in its own transaction and SESSION_EXPIRED returned.
func (s *Service) withSession(ctx context.Context, id uuid.UUID, fn func(tx *gorm.DB, repo Repository, session *models.CheckoutSession, now time.Time) error) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		session, err := repo.FindForUpdate(ctx, id)
		if err != nil {
			return notFound(err)
		}
		now := s.now().UTC()
		switch {
		case session.State == enums.SessionStateExpired:
			return sessionExpired(id)
		case !session.State.IsTerminal() && !now.Before(session.ExpiresAt):
			return errNeedsExpiry
		}
		return fn(tx, repo, session, now)
	})
	if errors.Is(err, errNeedsExpiry) {
		if _, _, endErr := s.end(ctx, id, enums.SessionStateExpired, ReasonExpired, nil, nil); endErr != nil {
			return endErr
		}
		return sessionExpired(id)
	}
	return err
}

// move applies a conditional state update and audits it.
func (s *Service) move(ctx context.Context, tx *gorm.DB, repo Repository, session *models.CheckoutSession, to enums.SessionState, updates map[string]any) error {
	ok, err := repo.Transition(ctx, session.ID, session.State, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update checkout session")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "checkout session changed concurrently")
	}
	if session.State == to {
		return nil
	}
	return s.audit.Record(ctx, tx, audit.Entry{
		Kind:     enums.AuditEntitySession,
		EntityID: session.ID,
		Action:   enums.AuditActionStateChanged,
		ActorID:  session.UserID,
		Metadata: map[string]any{"from": string(session.State), "to": string(to)},
	})
}

// end moves a live session into a terminal state without an order, releases
// its reservations and publishes checkout.failed. Ending an already terminal
// session returns it unchanged.
func (s *Service) end(ctx context.Context, id uuid.UUID, to enums.SessionState, reason string, extra map[string]any, actorID *uuid.UUID) (*models.CheckoutSession, bool, error) {
	var (
		result  *models.CheckoutSession
		changed bool
		from    enums.SessionState
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		session, err := repo.FindForUpdate(ctx, id)
		if err != nil {
			return notFound(err)
		}
		if session.State.IsTerminal() {
			result = session
			return nil
		}
		from = session.State
		now := s.now().UTC()
		updates := map[string]any{"state": to, "failure_reason": reason, "updated_at": now}
		if to == enums.SessionStateAbandoned || to == enums.SessionStateExpired {
			updates["abandoned_at"] = now
		}
		for key, value := range extra {
			updates[key] = value
		}
		ok, err := repo.Transition(ctx, id, from, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "end checkout session")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "checkout session changed concurrently")
		}
		released, err := s.inventory.ReleaseForSession(ctx, tx, id)
		if err != nil {
			return err
		}
		actor := actorID
		if actor == nil {
			actor = session.UserID
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			Kind:     enums.AuditEntitySession,
			EntityID: id,
			Action:   enums.AuditActionStateChanged,
			ActorID:  actor,
			Metadata: map[string]any{"from": string(from), "to": string(to), "reason": reason, "released": released},
		}); err != nil {
			return err
		}
		ref := customer(session.UserID)
		if to == enums.SessionStateExpired {
			ref = &outbox.ActorRef{Role: string(enums.ActorRoleSystem)}
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutFailed,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   id,
			Actor:         ref,
			Data:          payloads.CheckoutFailedEvent{SessionID: id, State: to, Reason: reason},
		}); err != nil {
			return err
		}
		result, err = repo.FindByID(ctx, id)
		changed = true
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		s.metrics.Transition(string(to))
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"session_id": id.String(),
			"from":       string(from),
			"to":         string(to),
			"reason":     reason,
		}), "checkout session ended")
	}
	return result, changed, nil
}

type velocityKey struct {
	kind  enums.VelocityType
	value string
}

func velocityKeys(userID *uuid.UUID, email, ip, device string, card *string) []velocityKey {
	var keys []velocityKey
	add := func(kind enums.VelocityType, value string) {
		if strings.TrimSpace(value) != "" {
			keys = append(keys, velocityKey{kind: kind, value: value})
		}
	}
	add(enums.VelocityTypeIP, ip)
	add(enums.VelocityTypeEmail, email)
	if card != nil {
		add(enums.VelocityTypeCard, *card)
	}
	add(enums.VelocityTypeDevice, device)
	if userID != nil {
		add(enums.VelocityTypeUser, userID.String())
	}
	return keys
}

// recordAttempts counts the attempt against every identity attribute before
// scoring, so the score reflects it. Tracking errors are logged, not returned.
func (s *Service) recordAttempts(ctx context.Context, identity fraud.Identity, amountCents int64) {
	for _, key := range velocityKeys(identity.UserID, identity.Email, identity.IP, identity.DeviceFingerprint, identity.CardToken) {
		if _, err := s.velocity.RecordAttempt(ctx, key.kind, key.value, amountCents); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "velocity_type", string(key.kind)), "failed to record payment attempt", err)
		}
	}
}

func (s *Service) recordOutcome(ctx context.Context, fraudCheckID *uuid.UUID, success bool) {
	if fraudCheckID == nil {
		return
	}
	check, err := s.fraud.Get(ctx, *fraudCheckID)
	if err != nil {
		s.logg.Error(ctx, "failed to load fraud check for velocity outcome", err)
		return
	}
	for _, key := range velocityKeys(check.UserID, check.Email, check.IP, check.DeviceFingerprint, check.CardFingerprint) {
		record := s.velocity.RecordFailure
		if success {
			record = s.velocity.RecordSuccess
		}
		if _, err := record(ctx, key.kind, key.value); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "velocity_type", string(key.kind)), "failed to record payment outcome", err)
		}
	}
}

type cartLine struct {
	item    models.CartItem
	variant models.ProductVariant
}

func (s *Service) loadCart(ctx context.Context, cartID uuid.UUID) (*models.Cart, []cartLine, error) {
	cart, err := s.catalog.FindCart(ctx, cartID)
	if err != nil {
		return nil, nil, err
	}
	if len(cart.Items) == 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.VariantID)
	}
	variants, err := s.catalog.FindVariants(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	lines := make([]cartLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "cart line quantity must be positive")
		}
		variant, ok := variants[item.VariantID]
		if !ok {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart references an unknown variant").
				WithDetails(map[string]any{"variant_id": item.VariantID})
		}
		if !variant.IsActive {
			return nil, nil, pkgerrors.New(pkgerrors.CodeConflict, "variant is no longer available").
				WithDetails(map[string]any{"variant_id": item.VariantID, "sku": variant.SKU})
		}
		lines = append(lines, cartLine{item: item, variant: variant})
	}
	return cart, lines, nil
}

func orderItems(lines []cartLine) []orders.ItemInput {
	items := make([]orders.ItemInput, 0, len(lines))
	for _, line := range lines {
		items = append(items, orders.ItemInput{
			VariantID:      line.variant.ID,
			ProductID:      line.variant.ProductID,
			SKU:            line.variant.SKU,
			Name:           line.variant.Name,
			UnitPriceCents: line.variant.PriceCents,
			Quantity:       line.item.Quantity,
		})
	}
	return items
}

func matchReference(session *models.CheckoutSession, reference string) error {
	if session.GatewayReference == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment has not been submitted to the gateway")
	}
	if strings.TrimSpace(reference) != *session.GatewayReference {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway reference does not match session")
	}
	return nil
}

func customer(userID *uuid.UUID) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: userID, Role: string(enums.ActorRoleCustomer)}
}

func stateIn(state enums.SessionState, allowed []enums.SessionState) bool {
	for _, candidate := range allowed {
		if candidate == state {
			return true
		}
	}
	return false
}

func stateConflict(from, to enums.SessionState) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("session cannot move from %s to %s", from, to)).
		WithDetails(map[string]any{"state": from, "requested": to})
}

func sessionExpired(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeSessionExpired, "checkout session has expired; restart checkout").
		WithDetails(map[string]any{"session_id": id})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
}
