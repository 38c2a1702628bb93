package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nandha3d/ecommerce-template-sub002/internal/audit"
	"github.com/nandha3d/ecommerce-template-sub002/internal/blocklist"
	"github.com/nandha3d/ecommerce-template-sub002/internal/catalog"
	"github.com/nandha3d/ecommerce-template-sub002/internal/checkout"
	"github.com/nandha3d/ecommerce-template-sub002/internal/fraud"
	"github.com/nandha3d/ecommerce-template-sub002/internal/gateway"
	"github.com/nandha3d/ecommerce-template-sub002/internal/inventory"
	"github.com/nandha3d/ecommerce-template-sub002/internal/ledger"
	"github.com/nandha3d/ecommerce-template-sub002/internal/orders"
	"github.com/nandha3d/ecommerce-template-sub002/internal/pricing"
	"github.com/nandha3d/ecommerce-template-sub002/internal/velocity"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/config"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/logger"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/metrics"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/outbox"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/redis"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/square"
)

// Services is the wired domain graph shared by the api and cron-worker binaries.
type Services struct {
	Checkout  *checkout.Service
	Inventory *inventory.Service
	Blocklist *blocklist.Service
	Fraud     *fraud.Engine
	Orders    orders.Service
	Gateway   gateway.Gateway
	Outbox    *outbox.Repository
	Catalog   *catalog.Repository
}

// Build wires every domain service against one database and redis client.
func Build(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*Services, error) {
	conn := dbClient.DB()
	checkoutMetrics := metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer)

	auditSvc, err := audit.NewService(conn)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)
	catalogRepo := catalog.NewRepository(conn)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	inventorySvc, err := inventory.NewService(inventory.ServiceParams{
		DB:             dbClient,
		Repo:           inventory.NewRepository(conn),
		Ledger:         ledgerSvc,
		Audit:          auditSvc,
		Outbox:         emitter,
		ReservationTTL: cfg.Checkout.ReservationTTL,
		Metrics:        checkoutMetrics,
		Logger:         logg,
	})
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}

	blocks, err := blocklist.NewService(blocklist.ServiceParams{
		DB:       dbClient,
		Repo:     blocklist.NewRepository(conn),
		Cache:    redisClient,
		CacheTTL: cfg.Blocklist.CacheTTL,
		Audit:    auditSvc,
		Outbox:   emitter,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("blocklist: %w", err)
	}

	tracker, err := velocity.NewTracker(dbClient, conn, velocity.SettingsFromConfig(cfg.Velocity))
	if err != nil {
		return nil, fmt.Errorf("velocity: %w", err)
	}
	engine, err := fraud.NewEngine(fraud.EngineParams{
		DB:        dbClient,
		Repo:      fraud.NewRepository(conn),
		Blocklist: blocks,
		Velocity:  tracker,
		History:   fraud.NewFailureRateScorer(tracker, cfg.Fraud.HistoryMaxPoints, cfg.Fraud.HistoryMinSamples),
		Outbox:    emitter,
		Config:    cfg.Fraud,
		Metrics:   checkoutMetrics,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("fraud: %w", err)
	}

	pricingSvc, err := pricing.NewService(pricing.ServiceParams{
		DB:      dbClient,
		Repo:    pricing.NewRepository(conn),
		Catalog: catalogRepo,
		Audit:   auditSvc,
		Metrics: checkoutMetrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("pricing: %w", err)
	}
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		DB:      dbClient,
		Repo:    orders.NewRepository(conn),
		Audit:   auditSvc,
		Outbox:  emitter,
		Metrics: checkoutMetrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}

	gw, err := NewGateway(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		DB:        dbClient,
		Repo:      checkout.NewRepository(conn),
		Catalog:   catalogRepo,
		Inventory: inventorySvc,
		Fraud:     engine,
		Velocity:  tracker,
		Pricing:   pricingSvc,
		Orders:    ordersSvc,
		Gateway:   gw,
		Audit:     auditSvc,
		Outbox:    emitter,
		Config:    cfg.Checkout,
		Metrics:   checkoutMetrics,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}

	return &Services{
		Checkout:  checkoutSvc,
		Inventory: inventorySvc,
		Blocklist: blocks,
		Fraud:     engine,
		Orders:    ordersSvc,
		Gateway:   gw,
		Outbox:    outboxRepo,
		Catalog:   catalogRepo,
	}, nil
}

// NewGateway selects the payment gateway named by the feature flag.
func NewGateway(ctx context.Context, cfg *config.Config, logg *logger.Logger) (gateway.Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.FeatureFlags.PaymentGateway)) {
	case "", "manual":
		return gateway.NewManual(), nil
	case "square":
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square client: %w", err)
		}
		return gateway.NewSquare(client, cfg.Square.DelayCapture), nil
	default:
		return nil, fmt.Errorf("unknown payment gateway %q", cfg.FeatureFlags.PaymentGateway)
	}
}
