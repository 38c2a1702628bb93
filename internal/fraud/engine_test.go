package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/internal/audit"
	"github.com/nandha3d/ecommerce-template-sub002/internal/blocklist"
	"github.com/nandha3d/ecommerce-template-sub002/internal/velocity"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/config"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/dbtest"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/outbox"
)

type fixture struct {
	conn      *gorm.DB
	engine    *Engine
	blocklist *blocklist.Service
	tracker   *velocity.Tracker
	outbox    *outbox.Repository
}

func newFixture(t *testing.T, cfg config.FraudConfig) *fixture {
	t.Helper()
	conn := dbtest.Open(t, "fraud")
	runner := db.Wrap(conn)
	auditSvc, err := audit.NewService(conn)
	require.NoError(t, err)
	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, nil)

	blocks, err := blocklist.NewService(blocklist.ServiceParams{
		DB:     runner,
		Repo:   blocklist.NewRepository(conn),
		Audit:  auditSvc,
		Outbox: emitter,
	})
	require.NoError(t, err)

	tracker, err := velocity.NewTracker(runner, conn, velocity.SettingsFromConfig(config.VelocityConfig{
		Window:      24 * time.Hour,
		IPLimit:     10,
		EmailLimit:  5,
		CardLimit:   3,
		UserLimit:   10,
		DeviceLimit: 10,
	}))
	require.NoError(t, err)

	engine, err := NewEngine(EngineParams{
		DB:        runner,
		Repo:      NewRepository(conn),
		Blocklist: blocks,
		Velocity:  tracker,
		History:   NewFailureRateScorer(tracker, cfg.HistoryMaxPoints, cfg.HistoryMinSamples),
		Outbox:    emitter,
		Config:    cfg,
	})
	require.NoError(t, err)
	return &fixture{conn: conn, engine: engine, blocklist: blocks, tracker: tracker, outbox: outboxRepo}
}

func defaultConfig() config.FraudConfig {
	return config.FraudConfig{ReviewThreshold: 30, BlockThreshold: 70, HistoryMaxPoints: 30, HistoryMinSamples: 3}
}

func (f *fixture) attempts(t *testing.T, velocityType enums.VelocityType, value string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.tracker.RecordAttempt(context.Background(), velocityType, value, 1000)
		require.NoError(t, err)
	}
}

func TestEvaluateBlocklistedIP(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()

	_, err := f.blocklist.Block(ctx, blocklist.BlockInput{Type: enums.BlockedEntityIP, Value: "203.0.113.5", Reason: "chargebacks"})
	require.NoError(t, err)

	sessionID := uuid.New()
	check, err := f.engine.Evaluate(ctx, Identity{Email: "buyer@example.com", IP: "203.0.113.5"}, OrderContext{SessionID: &sessionID, AmountCents: 5000})
	require.NoError(t, err)
	require.Equal(t, 100, check.Score)
	require.Equal(t, enums.FraudVerdictBlock, check.Result)
	require.Equal(t, []string{"blocklisted:ip"}, []string(check.RiskFactors))

	var stored models.FraudCheck
	require.NoError(t, f.conn.First(&stored, "id = ?", check.ID).Error)
	require.Equal(t, enums.FraudVerdictBlock, stored.Result)
	require.Equal(t, sessionID, *stored.SessionID)

	events, err := f.outbox.ListForAggregate(ctx, enums.AggregateFraudCheck, check.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventFraudBlocked, events[0].EventType)
}

func TestEvaluateBlocklistOrderStopsAtFirstMatch(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()

	card := "tok_card_1"
	for _, input := range []blocklist.BlockInput{
		{Type: enums.BlockedEntityEmail, Value: "fraud@example.com", Reason: "stolen"},
		{Type: enums.BlockedEntityCard, Value: card, Reason: "stolen"},
	} {
		_, err := f.blocklist.Block(ctx, input)
		require.NoError(t, err)
	}

	check, err := f.engine.Evaluate(ctx, Identity{Email: "Fraud@Example.com", IP: "198.51.100.1", CardToken: &card}, OrderContext{})
	require.NoError(t, err)
	require.Equal(t, []string{"blocklisted:email"}, []string(check.RiskFactors))
}

func TestEvaluateSumsVelocity(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()

	f.attempts(t, enums.VelocityTypeEmail, "buyer@example.com", 2)
	f.attempts(t, enums.VelocityTypeIP, "198.51.100.7", 2)

	check, err := f.engine.Evaluate(ctx, Identity{Email: "buyer@example.com", IP: "198.51.100.7"}, OrderContext{AmountCents: 2500})
	require.NoError(t, err)
	// email 2/5 -> 10, ip 2/10 -> 5
	require.Equal(t, 15, check.Score)
	require.Equal(t, enums.FraudVerdictAllow, check.Result)
	require.Equal(t, []string{"velocity:email", "velocity:ip"}, []string(check.RiskFactors))

	events, err := f.outbox.ListForAggregate(ctx, enums.AggregateFraudCheck, check.ID)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestEvaluateReviewWhenLimitsReached(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()

	card := "tok_card_2"
	f.attempts(t, enums.VelocityTypeCard, card, 3)
	f.attempts(t, enums.VelocityTypeEmail, "busy@example.com", 5)

	check, err := f.engine.Evaluate(ctx, Identity{Email: "busy@example.com", CardToken: &card}, OrderContext{})
	require.NoError(t, err)
	require.Equal(t, 50, check.Score)
	require.Equal(t, enums.FraudVerdictReview, check.Result)
	require.True(t, check.RiskFactors.Contains("velocity_exceeded:card"))
	require.True(t, check.RiskFactors.Contains("velocity_exceeded:email"))
}

func TestEvaluateVelocityExceededBlocks(t *testing.T) {
	cfg := defaultConfig()
	cfg.VelocityExceededBlocks = true
	f := newFixture(t, cfg)

	card := "tok_card_3"
	f.attempts(t, enums.VelocityTypeCard, card, 3)

	check, err := f.engine.Evaluate(context.Background(), Identity{Email: "a@example.com", CardToken: &card}, OrderContext{})
	require.NoError(t, err)
	require.Equal(t, 25, check.Score)
	require.Equal(t, enums.FraudVerdictBlock, check.Result)
}

func TestEvaluateAddsFailureHistory(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.tracker.RecordFailure(ctx, enums.VelocityTypeEmail, "declined@example.com")
		require.NoError(t, err)
	}

	check, err := f.engine.Evaluate(ctx, Identity{Email: "declined@example.com"}, OrderContext{})
	require.NoError(t, err)
	require.Equal(t, 30, check.Score)
	require.Equal(t, enums.FraudVerdictReview, check.Result)
	require.True(t, check.RiskFactors.Contains("history:failure_rate"))
}

type failingChecker struct{}

func (failingChecker) IsBlocked(context.Context, enums.BlockedEntityType, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestEvaluatePropagatesBlocklistError(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.engine.blocklist = failingChecker{}

	_, err := f.engine.Evaluate(context.Background(), Identity{IP: "198.51.100.9"}, OrderContext{})
	require.Error(t, err)

	var count int64
	require.NoError(t, f.conn.Model(&models.FraudCheck{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestReport(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()
	start := time.Now().Add(-time.Minute)

	_, err := f.blocklist.Block(ctx, blocklist.BlockInput{Type: enums.BlockedEntityIP, Value: "203.0.113.5", Reason: "abuse"})
	require.NoError(t, err)

	_, err = f.engine.Evaluate(ctx, Identity{IP: "203.0.113.5"}, OrderContext{})
	require.NoError(t, err)
	_, err = f.engine.Evaluate(ctx, Identity{IP: "203.0.113.5"}, OrderContext{})
	require.NoError(t, err)
	f.attempts(t, enums.VelocityTypeEmail, "ok@example.com", 1)
	_, err = f.engine.Evaluate(ctx, Identity{Email: "ok@example.com"}, OrderContext{})
	require.NoError(t, err)

	report, err := f.engine.Report(ctx, start, 1)
	require.NoError(t, err)
	require.Equal(t, 3, report.Total)
	require.Equal(t, 2, report.ByVerdict[enums.FraudVerdictBlock])
	require.Equal(t, 1, report.ByVerdict[enums.FraudVerdictAllow])
	require.InDelta(t, 2.0/3.0, report.BlockRate, 0.0001)
	require.Equal(t, []FactorCount{{Factor: "blocklisted:ip", Count: 2}}, report.TopRiskFactors)
}

func TestVerdictThresholds(t *testing.T) {
	cases := []struct {
		score int
		want  enums.FraudVerdict
	}{
		{0, enums.FraudVerdictAllow},
		{29, enums.FraudVerdictAllow},
		{30, enums.FraudVerdictReview},
		{69, enums.FraudVerdictReview},
		{70, enums.FraudVerdictBlock},
		{100, enums.FraudVerdictBlock},
	}
	for _, tc := range cases {
		if got := Verdict(tc.score, 30, 70); got != tc.want {
			t.Fatalf("score %d: expected %s, got %s", tc.score, tc.want, got)
		}
	}
}

func TestFailureRatePoints(t *testing.T) {
	cases := []struct {
		name                string
		successes, failures int
		want                int
	}{
		{"no history", 0, 0, 0},
		{"below min samples", 0, 2, 0},
		{"all failed", 0, 3, 30},
		{"three of four failed", 1, 3, 23},
		{"all succeeded", 5, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, failureRatePoints(tc.successes, tc.failures, 30, 3))
		})
	}
}

func TestNewEngineRejectsBadThresholds(t *testing.T) {
	f := newFixture(t, defaultConfig())
	_, err := NewEngine(EngineParams{
		DB:        db.Wrap(f.conn),
		Repo:      NewRepository(f.conn),
		Blocklist: f.blocklist,
		Velocity:  f.tracker,
		Outbox:    outbox.NewService(f.outbox, nil),
		Config:    config.FraudConfig{ReviewThreshold: 70, BlockThreshold: 30},
	})
	require.Error(t, err)
}
