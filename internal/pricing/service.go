package pricing

import (
	"context"
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
	"github.com/nandha3d/ecommerce-template-sub002/pkg/types"
)

// Catalog is the promotion and shipping data pricing reads.
type Catalog interface {
	FindCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	ActiveOffers(ctx context.Context, variantIDs []uuid.UUID, at time.Time) ([]models.PriceOffer, error)
	TaxRules(ctx context.Context, jurisdiction string) ([]models.TaxRule, error)
	FindShippingMethod(ctx context.Context, id uuid.UUID) (*models.ShippingMethod, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	DB      txRunner
	Repo    *Repository
	Catalog Catalog
	Audit   audit.Recorder
	Metrics *metrics.CheckoutMetrics
	Logger  *logger.Logger
}

type Service struct {
	tx      txRunner
	repo    *Repository
	catalog Catalog
	audit   audit.Recorder
	metrics *metrics.CheckoutMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("snapshot repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		tx:      params.DB,
		repo:    params.Repo,
		catalog: params.Catalog,
		audit:   params.Audit,
		metrics: params.Metrics,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// SnapshotRequest identifies the cart pricing inputs by reference.
type SnapshotRequest struct {
	SessionID        uuid.UUID
	Currency         enums.Currency
	Lines            []Line
	CouponCode       *string
	Jurisdiction     string
	ShippingMethodID *uuid.UUID
}

// ComputeSnapshot resolves catalog data, prices the cart and stores the result
// as an unlocked snapshot. A nil tx runs on the service connection.
func (s *Service) ComputeSnapshot(ctx context.Context, tx *gorm.DB, req SnapshotRequest) (*models.PriceSnapshot, error) {
	return s.compute(ctx, tx, req, nil)
}

func (s *Service) compute(ctx context.Context, tx *gorm.DB, req SnapshotRequest, supersedes *uuid.UUID) (*models.PriceSnapshot, error) {
	if req.SessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	if len(req.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot price an empty cart")
	}
	if !req.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported currency %q", req.Currency))
	}
	now := s.now().UTC()

	inputs, coupon, err := s.resolve(ctx, req, now)
	if err != nil {
		return nil, err
	}
	totals, err := Compute(inputs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "price cart")
	}

	snapshot := &models.PriceSnapshot{
		ID:                 uuid.New(),
		SessionID:          req.SessionID,
		SupersedesID:       supersedes,
		Currency:           req.Currency,
		SubtotalCents:      totals.SubtotalCents,
		DiscountTotalCents: totals.DiscountTotalCents,
		DiscountBreakdown:  totals.Discounts,
		TaxTotalCents:      totals.TaxTotalCents,
		TaxBreakdown:       totals.Taxes,
		ShippingCents:      totals.ShippingCents,
		FinalAmountCents:   totals.FinalAmountCents,
		Jurisdiction:       strings.ToUpper(strings.TrimSpace(req.Jurisdiction)),
		CreatedAt:          now,
	}
	if coupon != nil {
		code := strings.ToUpper(coupon.Code)
		snapshot.CouponCode = &code
	}
	if err := s.repo.WithTx(tx).Create(ctx, snapshot); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store price snapshot")
	}
	return snapshot, nil
}

func (s *Service) resolve(ctx context.Context, req SnapshotRequest, now time.Time) (Inputs, *models.Coupon, error) {
	inputs := Inputs{Lines: req.Lines, Jurisdiction: req.Jurisdiction, At: now}

	var coupon *models.Coupon
	if req.CouponCode != nil && strings.TrimSpace(*req.CouponCode) != "" {
		found, err := s.catalog.FindCouponByCode(ctx, *req.CouponCode)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return Inputs{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is not recognized")
			}
			return Inputs{}, nil, err
		}
		if !found.ValidAt(now) {
			return Inputs{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon is not currently valid")
		}
		coupon = found
		inputs.Coupon = found
	}

	variantIDs := make([]uuid.UUID, 0, len(req.Lines))
	for _, line := range req.Lines {
		variantIDs = append(variantIDs, line.VariantID)
	}
	offers, err := s.catalog.ActiveOffers(ctx, variantIDs, now)
	if err != nil {
		return Inputs{}, nil, err
	}
	inputs.Offers = offers

	if strings.TrimSpace(req.Jurisdiction) != "" {
		rules, err := s.catalog.TaxRules(ctx, req.Jurisdiction)
		if err != nil {
			return Inputs{}, nil, err
		}
		inputs.TaxRules = rules
	}

	if req.ShippingMethodID != nil {
		method, err := s.catalog.FindShippingMethod(ctx, *req.ShippingMethodID)
		if err != nil {
			return Inputs{}, nil, err
		}
		inputs.Shipping = method
	}
	return inputs, coupon, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.PriceSnapshot, error) {
	snapshot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "price snapshot not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load price snapshot")
	}
	return snapshot, nil
}

// Lock freezes a snapshot. Locking a locked snapshot returns it unchanged. A
// nil tx runs in its own transaction.
func (s *Service) Lock(ctx context.Context, tx *gorm.DB, id uuid.UUID, actorID *uuid.UUID) (*models.PriceSnapshot, error) {
	if tx == nil {
		var locked *models.PriceSnapshot
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			locked, err = s.lockTx(ctx, tx, id, actorID)
			return err
		})
		return locked, err
	}
	return s.lockTx(ctx, tx, id, actorID)
}

func (s *Service) lockTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, actorID *uuid.UUID) (*models.PriceSnapshot, error) {
	repo := s.repo.WithTx(tx)
	snapshot, err := repo.FindForUpdate(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "price snapshot not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock price snapshot")
	}
	if snapshot.LockedAt != nil {
		return snapshot, nil
	}

	now := s.now().UTC()
	locked, err := repo.Lock(ctx, id, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock price snapshot")
	}
	if !locked {
		return repo.FindByID(ctx, id)
	}
	snapshot.LockedAt = &now
	if err := s.audit.Record(ctx, tx, audit.Entry{
		Kind:     enums.AuditEntitySnapshot,
		EntityID: id,
		Action:   enums.AuditActionLocked,
		ActorID:  actorID,
		Metadata: map[string]any{"final_amount_cents": snapshot.FinalAmountCents},
	}); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Amendment changes breakdowns or shipping on a draft snapshot. Totals are
// recomputed from the breakdowns.
type Amendment struct {
	DiscountBreakdown *types.DiscountBreakdown
	TaxBreakdown      *types.TaxBreakdown
	ShippingCents     *int64
}

func (a Amendment) fields() []string {
	var out []string
	if a.DiscountBreakdown != nil {
		out = append(out, "discount_breakdown")
	}
	if a.TaxBreakdown != nil {
		out = append(out, "tax_breakdown")
	}
	if a.ShippingCents != nil {
		out = append(out, "shipping_cents")
	}
	return out
}

// Amend edits a draft snapshot. On a locked snapshot it changes nothing and
// returns IMMUTABLE_RECORD_VIOLATION.
func (s *Service) Amend(ctx context.Context, id uuid.UUID, amendment Amendment, actorID *uuid.UUID) (*models.PriceSnapshot, error) {
	fields := amendment.fields()
	if len(fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amendment has no changes")
	}

	var result *models.PriceSnapshot
	violation := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		snapshot, err := repo.FindForUpdate(ctx, id)
		if err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "price snapshot not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load price snapshot")
		}
		if snapshot.LockedAt != nil {
			violation = true
			return nil
		}

		if amendment.DiscountBreakdown != nil {
			snapshot.DiscountBreakdown = *amendment.DiscountBreakdown
		}
		if amendment.TaxBreakdown != nil {
			snapshot.TaxBreakdown = *amendment.TaxBreakdown
		}
		if amendment.ShippingCents != nil {
			if *amendment.ShippingCents < 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "shipping cannot be negative")
			}
			snapshot.ShippingCents = *amendment.ShippingCents
		}
		snapshot.DiscountTotalCents = snapshot.DiscountBreakdown.Total()
		if snapshot.DiscountTotalCents > snapshot.SubtotalCents {
			return pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds subtotal")
		}
		snapshot.TaxTotalCents = snapshot.TaxBreakdown.Total()
		snapshot.FinalAmountCents = snapshot.SubtotalCents - snapshot.DiscountTotalCents + snapshot.ShippingCents + snapshot.TaxTotalCents

		updated, err := repo.UpdateDraft(ctx, id, map[string]any{
			"discount_breakdown":   snapshot.DiscountBreakdown,
			"discount_total_cents": snapshot.DiscountTotalCents,
			"tax_breakdown":        snapshot.TaxBreakdown,
			"tax_total_cents":      snapshot.TaxTotalCents,
			"shipping_cents":       snapshot.ShippingCents,
			"final_amount_cents":   snapshot.FinalAmountCents,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "amend price snapshot")
		}
		if !updated {
			violation = true
			return nil
		}
		result = snapshot
		return nil
	})
	if err != nil {
		return nil, err
	}
	if violation {
		return nil, s.violation(ctx, id, "amend", fields, actorID)
	}
	return result, nil
}

// Delete removes a draft snapshot. Locked snapshots are never deleted.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) error {
	snapshot, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if snapshot.LockedAt != nil {
		return s.violation(ctx, id, "delete", nil, actorID)
	}
	deleted, err := s.repo.DeleteDraft(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete price snapshot")
	}
	if !deleted {
		return s.violation(ctx, id, "delete", nil, actorID)
	}
	return nil
}

// Supersede prices req as a correction of id. The original row is untouched.
func (s *Service) Supersede(ctx context.Context, id uuid.UUID, req SnapshotRequest, actorID *uuid.UUID) (*models.PriceSnapshot, error) {
	original, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.SessionID == uuid.Nil {
		req.SessionID = original.SessionID
	}
	if req.Currency == "" {
		req.Currency = original.Currency
	}

	var replacement *models.PriceSnapshot
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		replacement, err = s.compute(ctx, tx, req, &original.ID)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			Kind:     enums.AuditEntitySnapshot,
			EntityID: original.ID,
			Action:   enums.AuditActionSuperseded,
			ActorID:  actorID,
			Metadata: map[string]any{"superseded_by": replacement.ID.String()},
		})
	})
	if err != nil {
		return nil, err
	}
	return replacement, nil
}

// violation records a refused write against a locked snapshot and returns the
// error the caller must surface.
func (s *Service) violation(ctx context.Context, id uuid.UUID, operation string, fields []string, actorID *uuid.UUID) error {
	s.metrics.ImmutableViolation(string(enums.AuditEntitySnapshot))
	details := map[string]any{
		"entity":      string(enums.AuditEntitySnapshot),
		"snapshot_id": id.String(),
		"operation":   operation,
		"fields":      fields,
	}
	if actorID != nil {
		details["actor_id"] = actorID.String()
	}
	s.logg.Security(ctx, "immutable_record_violation", details)
	if err := s.audit.Record(ctx, nil, audit.Entry{
		Kind:     enums.AuditEntitySnapshot,
		EntityID: id,
		Action:   enums.AuditActionImmutableViolation,
		ActorID:  actorID,
		Metadata: map[string]any{"operation": operation, "fields": fields},
	}); err != nil {
		s.logg.Error(ctx, "failed to audit immutable violation", err)
	}
	return pkgerrors.New(pkgerrors.CodeImmutableRecord, "price snapshot is locked").WithDetails(map[string]any{
		"snapshot_id": id,
		"operation":   operation,
	})
}
