package fraud

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/internal/blocklist"
	"github.com/nandha3d/ecommerce-template-sub002/internal/velocity"
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

const maxScore = 100

// Identity is the set of attributes a checkout attempt is scored on.
type Identity struct {
	UserID            *uuid.UUID
	Email             string
	IP                string
	DeviceFingerprint string
	CardToken         *string
}

// OrderContext links a check to the attempt it gates.
type OrderContext struct {
	SessionID   *uuid.UUID
	AmountCents int64
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type EngineParams struct {
	DB        txRunner
	Repo      *Repository
	Blocklist blocklist.Checker
	Velocity  velocity.Scorer
	History   HistoricalScorer
	Outbox    outbox.Emitter
	Config    config.FraudConfig
	Metrics   *metrics.CheckoutMetrics
	Logger    *logger.Logger
}

// Engine scores checkout attempts and persists every verdict.
type Engine struct {
	tx        txRunner
	repo      *Repository
	blocklist blocklist.Checker
	velocity  velocity.Scorer
	history   HistoricalScorer
	outbox    outbox.Emitter
	cfg       config.FraudConfig
	metrics   *metrics.CheckoutMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("fraud repository required")
	}
	if params.Blocklist == nil {
		return nil, fmt.Errorf("blocklist checker required")
	}
	if params.Velocity == nil {
		return nil, fmt.Errorf("velocity scorer required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	cfg := params.Config
	if cfg.ReviewThreshold <= 0 || cfg.ReviewThreshold >= cfg.BlockThreshold || cfg.BlockThreshold > maxScore {
		return nil, fmt.Errorf("invalid fraud thresholds review=%d block=%d", cfg.ReviewThreshold, cfg.BlockThreshold)
	}
	history := params.History
	if history == nil {
		history = NoHistory{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Engine{
		tx:        params.DB,
		repo:      params.Repo,
		blocklist: params.Blocklist,
		velocity:  params.Velocity,
		history:   history,
		outbox:    params.Outbox,
		cfg:       cfg,
		metrics:   params.Metrics,
		logg:      logg,
		now:       time.Now,
	}, nil
}

// Evaluate scores identity and writes the FraudCheck row whatever the verdict.
func (e *Engine) Evaluate(ctx context.Context, identity Identity, order OrderContext) (*models.FraudCheck, error) {
	score, factors, err := e.score(ctx, identity)
	if err != nil {
		return nil, err
	}

	check := &models.FraudCheck{
		ID:                uuid.New(),
		SessionID:         order.SessionID,
		UserID:            identity.UserID,
		Email:             strings.ToLower(strings.TrimSpace(identity.Email)),
		IP:                strings.TrimSpace(identity.IP),
		DeviceFingerprint: strings.TrimSpace(identity.DeviceFingerprint),
		CardFingerprint:   identity.CardToken,
		AmountCents:       order.AmountCents,
		Score:             score,
		Result:            e.verdict(score, factors),
		RiskFactors:       types.NewStringSet(factors...),
		CreatedAt:         e.now().UTC(),
	}

	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := e.repo.WithTx(tx).Create(ctx, check); err != nil {
			return err
		}
		if check.Result != enums.FraudVerdictBlock {
			return nil
		}
		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventFraudBlocked,
			AggregateType: enums.AggregateFraudCheck,
			AggregateID:   check.ID,
			Actor:         &outbox.ActorRef{UserID: identity.UserID, Role: string(enums.ActorRoleCustomer)},
			Data: payloads.FraudBlockedEvent{
				FraudCheckID: check.ID,
				SessionID:    order.SessionID,
				Score:        check.Score,
				RiskFactors:  check.RiskFactors,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist fraud check")
	}

	e.metrics.Verdict(string(check.Result))
	logCtx := e.logg.WithFields(ctx, map[string]any{
		"fraud_check_id": check.ID.String(),
		"score":          check.Score,
		"verdict":        string(check.Result),
	})
	if check.Result == enums.FraudVerdictBlock {
		e.logg.Security(logCtx, "fraud.blocked", map[string]any{"risk_factors": []string(check.RiskFactors)})
	} else {
		e.logg.Info(logCtx, "fraud check recorded")
	}
	return check, nil
}

// Get loads a persisted check.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*models.FraudCheck, error) {
	check, err := e.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "fraud check not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load fraud check")
	}
	return check, nil
}

func (e *Engine) score(ctx context.Context, identity Identity) (int, []string, error) {
	attrs := identityAttributes(identity)

	for _, attr := range attrs {
		if !attr.blockable {
			continue
		}
		blocked, err := e.blocklist.IsBlocked(ctx, enums.BlockedEntityType(attr.kind), attr.value)
		if err != nil {
			return 0, nil, err
		}
		if blocked {
			return maxScore, []string{"blocklisted:" + attr.kind}, nil
		}
	}

	score := 0
	var factors []string
	for _, attr := range attrs {
		velocityType := enums.VelocityType(attr.kind)
		points, err := e.velocity.GetVelocityScore(ctx, velocityType, attr.value)
		if err != nil {
			return 0, nil, err
		}
		if points > 0 {
			score += points
			factors = append(factors, fmt.Sprintf("velocity:%s", attr.kind))
		}
		exceeded, err := e.velocity.IsVelocityExceeded(ctx, velocityType, attr.value)
		if err != nil {
			return 0, nil, err
		}
		if exceeded {
			factors = append(factors, velocityExceededPrefix+attr.kind)
		}
	}
	if score > maxScore {
		score = maxScore
	}

	historical, err := e.history.Score(ctx, identity)
	if err != nil {
		return 0, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "historical fraud signal")
	}
	if historical > 0 {
		score += historical
		factors = append(factors, "history:failure_rate")
	}
	if score > maxScore {
		score = maxScore
	}
	return score, factors, nil
}

const velocityExceededPrefix = "velocity_exceeded:"

func (e *Engine) verdict(score int, factors []string) enums.FraudVerdict {
	if e.cfg.VelocityExceededBlocks {
		for _, factor := range factors {
			if strings.HasPrefix(factor, velocityExceededPrefix) {
				return enums.FraudVerdictBlock
			}
		}
	}
	return Verdict(score, e.cfg.ReviewThreshold, e.cfg.BlockThreshold)
}

// Verdict maps a score onto allow/review/block.
func Verdict(score, reviewThreshold, blockThreshold int) enums.FraudVerdict {
	switch {
	case score >= blockThreshold:
		return enums.FraudVerdictBlock
	case score >= reviewThreshold:
		return enums.FraudVerdictReview
	default:
		return enums.FraudVerdictAllow
	}
}

type attribute struct {
	kind      string
	value     string
	blockable bool
}

// identityAttributes lists present attributes in a fixed order so risk
// factors are stable.
func identityAttributes(identity Identity) []attribute {
	var attrs []attribute
	add := func(kind, value string, blockable bool) {
		if strings.TrimSpace(value) != "" {
			attrs = append(attrs, attribute{kind: kind, value: value, blockable: blockable})
		}
	}
	add(string(enums.BlockedEntityIP), identity.IP, true)
	add(string(enums.BlockedEntityEmail), identity.Email, true)
	if identity.CardToken != nil {
		add(string(enums.BlockedEntityCard), *identity.CardToken, true)
	}
	add(string(enums.BlockedEntityDevice), identity.DeviceFingerprint, true)
	if identity.UserID != nil {
		add(string(enums.VelocityTypeUser), identity.UserID.String(), false)
	}
	return attrs
}

// Report aggregates persisted checks since a point in time.
type Report struct {
	Since          time.Time                  `json:"since"`
	Total          int                        `json:"total"`
	ByVerdict      map[enums.FraudVerdict]int `json:"by_verdict"`
	BlockRate      float64                    `json:"block_rate"`
	TopRiskFactors []FactorCount              `json:"top_risk_factors"`
}

type FactorCount struct {
	Factor string `json:"factor"`
	Count  int    `json:"count"`
}

// Report returns verdict counts, block rate and the topN most frequent risk
// factors.
func (e *Engine) Report(ctx context.Context, since time.Time, topN int) (*Report, error) {
	rows, err := e.repo.ListSince(ctx, since.UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load fraud checks")
	}
	report := &Report{
		Since: since.UTC(),
		Total: len(rows),
		ByVerdict: map[enums.FraudVerdict]int{
			enums.FraudVerdictAllow:  0,
			enums.FraudVerdictReview: 0,
			enums.FraudVerdictBlock:  0,
		},
		TopRiskFactors: []FactorCount{},
	}
	counts := map[string]int{}
	for _, row := range rows {
		report.ByVerdict[row.Result]++
		for _, factor := range row.RiskFactors {
			counts[factor]++
		}
	}
	if report.Total > 0 {
		report.BlockRate = float64(report.ByVerdict[enums.FraudVerdictBlock]) / float64(report.Total)
	}
	for factor, count := range counts {
		report.TopRiskFactors = append(report.TopRiskFactors, FactorCount{Factor: factor, Count: count})
	}
	sort.Slice(report.TopRiskFactors, func(i, j int) bool {
		a, b := report.TopRiskFactors[i], report.TopRiskFactors[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Factor < b.Factor
	})
	if topN > 0 && len(report.TopRiskFactors) > topN {
		report.TopRiskFactors = report.TopRiskFactors[:topN]
	}
	return report, nil
}
