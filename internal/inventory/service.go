package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/internal/audit"
	"github.com/nandha3d/ecommerce-template-sub002/internal/ledger"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	pkgerrors "github.com/nandha3d/ecommerce-template-sub002/pkg/errors"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/logger"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/metrics"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/outbox"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/outbox/payloads"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	DB             txRunner
	Repo           *Repository
	Ledger         ledger.Service
	Audit          audit.Recorder
	Outbox         outbox.Emitter
	ReservationTTL time.Duration
	Metrics        *metrics.CheckoutMetrics
	Logger         *logger.Logger
}

// Service is the only writer of variant stock. Every stock-affecting
// operation on a variant runs under that variant's lock and row lock.
type Service struct {
	tx      txRunner
	repo    *Repository
	ledger  ledger.Service
	audit   audit.Recorder
	outbox  outbox.Emitter
	ttl     time.Duration
	locks   *variantLocks
	metrics *metrics.CheckoutMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.ReservationTTL <= 0 {
		return nil, fmt.Errorf("reservation ttl must be positive")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		tx:      params.DB,
		repo:    params.Repo,
		ledger:  params.Ledger,
		audit:   params.Audit,
		outbox:  params.Outbox,
		ttl:     params.ReservationTTL,
		locks:   newVariantLocks(),
		metrics: params.Metrics,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// InsufficientStockDetails is attached to INSUFFICIENT_STOCK errors.
type InsufficientStockDetails struct {
	VariantID uuid.UUID `json:"variant_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// Reserve holds quantity units of variantID for sessionID. The availability
// check and the insert share one transaction under the variant lock, so
// concurrent reservations never oversell.
func (s *Service) Reserve(ctx context.Context, variantID, sessionID uuid.UUID, quantity int) (*models.InventoryReservation, error) {
	if variantID == uuid.Nil || sessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id and session id are required")
	}
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	unlock := s.locks.Lock(variantID)
	defer unlock()

	var reservation *models.InventoryReservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now().UTC()

		variant, err := repo.LockVariant(ctx, variantID)
		if err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock variant")
		}
		if !variant.IsActive {
			return pkgerrors.New(pkgerrors.CodeConflict, "variant is not available for sale")
		}

		if _, err := repo.ExpireActive(ctx, &variantID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire stale reservations")
		}
		reserved, err := repo.ActiveQuantity(ctx, variantID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum active reservations")
		}
		available := variant.StockQuantity - reserved
		if available < quantity {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").WithDetails(InsufficientStockDetails{
				VariantID: variantID,
				Requested: quantity,
				Available: max(available, 0),
			})
		}

		reservation = &models.InventoryReservation{
			ID:        uuid.New(),
			VariantID: variantID,
			SessionID: sessionID,
			Quantity:  quantity,
			Status:    enums.ReservationStatusActive,
			ExpiresAt: now.Add(s.ttl),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.Create(ctx, reservation); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reservation")
		}
		return nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
			s.metrics.Reservation("insufficient_stock")
		}
		return nil, err
	}
	s.metrics.Reservation("reserved")
	return reservation, nil
}

// Commit converts an active reservation into a sale. Committing a committed
// reservation returns its existing ledger entry.
func (s *Service) Commit(ctx context.Context, reservationID uuid.UUID, orderID *uuid.UUID) (*models.InventoryLedgerEntry, error) {
	current, err := s.repo.FindByID(ctx, reservationID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
	}

	unlock := s.locks.Lock(current.VariantID)
	defer unlock()

	var entry *models.InventoryLedgerEntry
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = s.CommitTx(ctx, tx, reservationID, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// CommitTx is Commit inside a caller-owned transaction. It relies on the
// variant row lock; callers must not hold the in-process variant lock.
func (s *Service) CommitTx(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID, orderID *uuid.UUID) (*models.InventoryLedgerEntry, error) {
	repo := s.repo.WithTx(tx)
	now := s.now().UTC()

	reservation, err := repo.FindForUpdate(ctx, reservationID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock reservation")
	}

	switch reservation.Status {
	case enums.ReservationStatusCommitted:
		entry, err := s.ledger.ForReservation(ctx, tx, reservation.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger entry")
		}
		if entry == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "committed reservation has no ledger entry")
		}
		return entry, nil
	case enums.ReservationStatusReleased, enums.ReservationStatusExpired:
		return nil, pkgerrors.New(pkgerrors.CodeReservationExpired, fmt.Sprintf("reservation is %s", reservation.Status))
	}
	if !reservation.ExpiresAt.After(now) {
		return nil, pkgerrors.New(pkgerrors.CodeReservationExpired, "reservation has expired")
	}

	variant, err := repo.LockVariant(ctx, reservation.VariantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock variant")
	}
	remaining := variant.StockQuantity - reservation.Quantity
	if remaining < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "stock below reserved quantity")
	}
	if err := repo.SetStock(ctx, variant.ID, remaining); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
	}

	entry, err := s.ledger.RecordEntry(ctx, tx, ledger.RecordEntryInput{
		VariantID:         variant.ID,
		QuantityChange:    -reservation.Quantity,
		ResultingQuantity: remaining,
		Reason:            enums.LedgerReasonSale,
		ReservationID:     &reservation.ID,
		OrderID:           orderID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record sale")
	}

	ok, err := repo.Transition(ctx, reservation.ID, enums.ReservationStatusActive, map[string]any{
		"status":          enums.ReservationStatusCommitted,
		"committed_at":    now,
		"ledger_entry_id": entry.ID,
		"updated_at":      now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commit reservation")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "reservation changed during commit")
	}
	s.metrics.Reservation("committed")
	return entry, nil
}

// Release returns an active reservation to the pool. Released and expired
// reservations are left as they are.
func (s *Service) Release(ctx context.Context, reservationID uuid.UUID) (*models.InventoryReservation, error) {
	var result *models.InventoryReservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		reservation, err := repo.FindForUpdate(ctx, reservationID)
		if err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock reservation")
		}
		switch reservation.Status {
		case enums.ReservationStatusReleased, enums.ReservationStatusExpired:
			result = reservation
			return nil
		case enums.ReservationStatusCommitted:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "committed reservations cannot be released")
		}

		now := s.now().UTC()
		if _, err := repo.Transition(ctx, reservation.ID, enums.ReservationStatusActive, map[string]any{
			"status":      enums.ReservationStatusReleased,
			"released_at": now,
			"updated_at":  now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release reservation")
		}
		reservation.Status = enums.ReservationStatusReleased
		reservation.ReleasedAt = &now
		result = reservation
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Status == enums.ReservationStatusReleased {
		s.metrics.Reservation("released")
	}
	return result, nil
}

// ReleaseForSession releases every active reservation of a session. A nil tx
// runs on the service connection.
func (s *Service) ReleaseForSession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error) {
	released, err := s.repo.WithTx(tx).ReleaseForSession(ctx, sessionID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release session reservations")
	}
	return released, nil
}

func (s *Service) ListForSession(ctx context.Context, sessionID uuid.UUID) ([]models.InventoryReservation, error) {
	rows, err := s.repo.ListForSession(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list session reservations")
	}
	return rows, nil
}

// ExpireStale marks every active reservation with expires_at <= now expired.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	expired, err := s.repo.ExpireActive(ctx, nil, now.UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire reservations")
	}
	if expired > 0 {
		s.logg.Info(s.logg.WithField(ctx, "expired", expired), "reservations expired")
	}
	return expired, nil
}

// Availability is the storefront view of a variant's stock.
type Availability struct {
	VariantID uuid.UUID `json:"variant_id"`
	Stock     int       `json:"stock"`
	Reserved  int       `json:"reserved"`
	Available int       `json:"available"`
}

// Status reads availability without locking. Expired but unswept
// reservations are not counted.
func (s *Service) Status(ctx context.Context, variantID uuid.UUID) (*Availability, error) {
	variant, err := s.repo.FindVariant(ctx, variantID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	reserved, err := s.repo.ActiveQuantity(ctx, variantID, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum active reservations")
	}
	return &Availability{
		VariantID: variantID,
		Stock:     variant.StockQuantity,
		Reserved:  reserved,
		Available: max(variant.StockQuantity-reserved, 0),
	}, nil
}

// AdjustInput is a manual stock change recorded through the ledger.
type AdjustInput struct {
	VariantID uuid.UUID
	Delta     int
	Reason    enums.LedgerReason
	ActorID   *uuid.UUID
	Note      string
}

// AdjustStock applies a restock, return or correction. Stock may not drop
// below the quantity held by active reservations.
func (s *Service) AdjustStock(ctx context.Context, input AdjustInput) (*models.InventoryLedgerEntry, error) {
	if input.VariantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	if !input.Reason.IsValid() || input.Reason == enums.LedgerReasonSale {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reason %q is not allowed for manual adjustments", input.Reason))
	}

	unlock := s.locks.Lock(input.VariantID)
	defer unlock()

	var entry *models.InventoryLedgerEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now().UTC()

		variant, err := repo.LockVariant(ctx, input.VariantID)
		if err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock variant")
		}
		reserved, err := repo.ActiveQuantity(ctx, variant.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum active reservations")
		}
		resulting := variant.StockQuantity + input.Delta
		if resulting < reserved {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "adjustment would drop stock below reserved quantity").WithDetails(InsufficientStockDetails{
				VariantID: variant.ID,
				Requested: -input.Delta,
				Available: variant.StockQuantity - reserved,
			})
		}
		if err := repo.SetStock(ctx, variant.ID, resulting); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stock")
		}

		entry, err = s.ledger.RecordEntry(ctx, tx, ledger.RecordEntryInput{
			VariantID:         variant.ID,
			QuantityChange:    input.Delta,
			ResultingQuantity: resulting,
			Reason:            input.Reason,
			ActorID:           input.ActorID,
			Note:              input.Note,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record adjustment")
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			Kind:     enums.AuditEntityVariant,
			EntityID: variant.ID,
			Action:   enums.AuditActionStockAdjusted,
			ActorID:  input.ActorID,
			Metadata: map[string]any{
				"delta":           input.Delta,
				"reason":          string(input.Reason),
				"resulting":       resulting,
				"ledger_entry_id": entry.ID.String(),
			},
		}); err != nil {
			return err
		}

		var actor *outbox.ActorRef
		if input.ActorID != nil {
			actor = &outbox.ActorRef{UserID: input.ActorID, Role: string(enums.ActorRoleAdmin)}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStockAdjusted,
			AggregateType: enums.AggregateVariant,
			AggregateID:   variant.ID,
			Actor:         actor,
			Data: payloads.StockAdjustedEvent{
				VariantID:         variant.ID,
				QuantityChange:    input.Delta,
				ResultingQuantity: resulting,
				Reason:            input.Reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// LedgerHistory pages through a variant's ledger, newest first.
func (s *Service) LedgerHistory(ctx context.Context, variantID uuid.UUID, params pagination.Params) (pagination.Page[models.InventoryLedgerEntry], error) {
	return s.ledger.History(ctx, variantID, params)
}
