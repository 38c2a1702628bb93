package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nandha3d/ecommerce-template-sub002/api/controllers"
	"github.com/nandha3d/ecommerce-template-sub002/internal/inventory"
	pkgAuth "github.com/nandha3d/ecommerce-template-sub002/pkg/auth"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/config"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubInventory struct {
	calls int
}

func (s *stubInventory) Status(_ context.Context, variantID uuid.UUID) (*inventory.Availability, error) {
	s.calls++
	return &inventory.Availability{VariantID: variantID, Stock: 4, Available: 4}, nil
}

func (s *stubInventory) AdjustStock(context.Context, inventory.AdjustInput) (*models.InventoryLedgerEntry, error) {
	s.calls++
	return &models.InventoryLedgerEntry{ID: uuid.New()}, nil
}

func (s *stubInventory) LedgerHistory(context.Context, uuid.UUID, pagination.Params) (pagination.Page[models.InventoryLedgerEntry], error) {
	s.calls++
	return pagination.Page[models.InventoryLedgerEntry]{}, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.JWT = config.JWTConfig{Secret: "router-secret", Issuer: "storefront-test"}
	cfg.HTTP.RateLimitWindow = time.Minute
	cfg.HTTP.RateLimitPerIP = 100
	cfg.HTTP.CheckoutRateLimit = 10
	return cfg
}

func bearer(t *testing.T, cfg *config.Config, role enums.ActorRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), time.Hour, pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func newTestRouter(cfg *config.Config, inv *stubInventory) http.Handler {
	return NewRouter(Params{
		Config:    cfg,
		Pingers:   map[string]controllers.Pinger{"db": stubPinger{}},
		Inventory: inv,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	})
}

func TestHealthAndMetricsAreOpen(t *testing.T) {
	router := newTestRouter(testConfig(), &stubInventory{})

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAvailabilityIsPublic(t *testing.T) {
	inv := &stubInventory{}
	router := newTestRouter(testConfig(), inv)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/inventory/variants/"+uuid.NewString()+"/availability", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, inv.calls)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	cfg := testConfig()
	inv := &stubInventory{}
	router := newTestRouter(cfg, inv)
	path := "/api/v1/admin/inventory/variants/" + uuid.NewString() + "/ledger"

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.ActorRoleCustomer))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Zero(t, inv.calls)

	req = httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.ActorRoleAdmin))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, inv.calls)
}

func TestConfirmRequiresPrivilegedRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, &stubInventory{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions/"+uuid.NewString()+"/confirm", nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.ActorRoleCustomer))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
