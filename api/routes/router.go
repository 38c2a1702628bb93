package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nandha3d/ecommerce-template-sub002/api/controllers"
	"github.com/nandha3d/ecommerce-template-sub002/api/middleware"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/config"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/logger"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/redis"
)

// Params carries everything the router mounts. Nil stores disable the
// middleware that needs them.
type Params struct {
	Config *config.Config
	Logger *logger.Logger

	Pingers          map[string]controllers.Pinger
	IdempotencyStore redis.IdempotencyStore
	RateLimiter      middleware.RateLimiterStore
	TrustedProxies   middleware.TrustedProxies
	MetricsHandler   http.Handler

	Checkout  controllers.CheckoutService
	Inventory controllers.InventoryService
	Blocklist controllers.BlocklistService
	Fraud     controllers.FraudReporter
	Orders    controllers.OrderService
	Shipping  controllers.ShippingCatalog
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.ClientIPResolver(p.TrustedProxies),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.Pingers, logg))
	})

	metricsHandler := p.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	apiPolicy := middleware.NewRateLimitPolicy("api", cfg.HTTP.RateLimitWindow, cfg.HTTP.RateLimitPerIP)
	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", cfg.HTTP.RateLimitWindow, cfg.HTTP.CheckoutRateLimit)

	idempotent := middleware.Idempotency(p.IdempotencyStore, middleware.DefaultIdempotencyTTL, logg)
	critical := middleware.Idempotency(p.IdempotencyStore, middleware.CriticalIdempotencyTTL, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(apiPolicy, p.RateLimiter, logg))

		r.Route("/checkout/sessions", func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.Use(middleware.RateLimit(checkoutPolicy, p.RateLimiter, logg))

			r.With(idempotent).Post("/", controllers.StartCheckout(p.Checkout, logg))
			r.Get("/{id}", controllers.GetCheckout(p.Checkout, logg))
			r.Post("/{id}/steps/{step}", controllers.AdvanceCheckout(p.Checkout, logg))
			r.With(critical).Post("/{id}/payment", controllers.InitiatePayment(p.Checkout, logg))
			r.With(
				middleware.RequireRole(logg, string(enums.ActorRoleAdmin), string(enums.ActorRoleSystem)),
				critical,
			).Post("/{id}/confirm", controllers.ConfirmPayment(p.Checkout, logg))
			r.Post("/{id}/cancel", controllers.CancelCheckout(p.Checkout, logg))
		})

		r.Get("/inventory/variants/{id}/availability", controllers.VariantAvailability(p.Inventory, logg))
		r.Get("/shipping-methods", controllers.ListShippingMethods(p.Shipping, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Get("/", controllers.ListMyOrders(p.Orders, logg))
			r.Get("/{id}", controllers.GetMyOrder(p.Orders, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(logg, string(enums.ActorRoleAdmin)))

			r.Get("/blocklist", controllers.AdminListBlocklist(p.Blocklist, logg))
			r.With(idempotent).Post("/blocklist", controllers.AdminBlock(p.Blocklist, logg))
			r.Delete("/blocklist/{id}", controllers.AdminUnblock(p.Blocklist, logg))

			r.Get("/fraud/report", controllers.AdminFraudReport(p.Fraud, logg))

			r.With(idempotent).Post("/inventory/variants/{id}/adjust", controllers.AdminAdjustStock(p.Inventory, logg))
			r.Get("/inventory/variants/{id}/ledger", controllers.AdminLedgerHistory(p.Inventory, logg))

			r.Patch("/orders/{id}/items/{itemID}", controllers.AdminUpdateOrderItem(p.Orders, logg))
			r.Delete("/orders/{id}/items/{itemID}", controllers.AdminDeleteOrderItem(p.Orders, logg))
			r.With(idempotent).Post("/orders/{id}/status", controllers.AdminTransitionOrder(p.Orders, logg))
		})
	})

	return r
}
