package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/CoachFox/app/models"
	"github.com/ManuelReschke/CoachFox/app/repository"
	"github.com/ManuelReschke/CoachFox/internal/pkg/billing"
	"github.com/ManuelReschke/CoachFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CoachFox/internal/pkg/usercontext"
)

func newTestApp(t *testing.T, rateLimit int) (*fiber.App, *billing.MemoryStore) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "router.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Organization{}, &models.Client{}))

	store := billing.NewMemoryStore()
	repos := repository.NewRepositories(db)
	repos.Billing = store
	cfg := billing.Config{TrialDays: 14, Prices: map[entitlements.Tier]string{entitlements.TierStarter: "price_starter"}}
	svc := billing.NewService(store, billing.NewMockGateway(), cfg.Catalog(), cfg)

	app := fiber.New()
	InstallRouter(app, Dependencies{
		Repositories:   repos,
		Billing:        svc,
		Reconciler:     billing.NewReconciler(svc, "whsec_router"),
		Gate:           entitlements.NewGate(store, repos.Client, cfg.Catalog()),
		RateLimit:      rateLimit,
		RateWindow:     time.Minute,
		RequestTimeout: time.Second,
	})
	return app, store
}

func request(t *testing.T, app *fiber.App, method, path string, headers map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestPublicRoutes(t *testing.T) {
	app, _ := newTestApp(t, 100)

	resp := request(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = request(t, app, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")

	// Unsigned deliveries are rejected, not routed to 404.
	resp = request(t, app, http.MethodPost, "/webhooks/stripe", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIRoutesRequireActor(t *testing.T) {
	app, store := newTestApp(t, 100)
	store.Put(&models.OrganizationBilling{
		OrganizationID:     "org-1",
		SubscriptionStatus: models.BillingStatusTrialing,
		SubscriptionTier:   "studio",
		ClientLimit:        -1,
	})

	resp := request(t, app, http.MethodGet, "/api/v1/billing/org-1", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	member := map[string]string{
		usercontext.HeaderActorID:           "u1",
		usercontext.HeaderActorRole:         usercontext.RoleCoach,
		usercontext.HeaderActorOrganization: "org-1",
	}
	resp = request(t, app, http.MethodGet, "/api/v1/billing/org-1", member)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Invoices and payment methods are owner-only.
	resp = request(t, app, http.MethodGet, "/api/v1/billing/org-1/invoices", member)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = request(t, app, http.MethodPost, "/api/v1/admin/billing/org-1/terminate", member)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin := map[string]string{usercontext.HeaderActorID: "a1", usercontext.HeaderActorRole: usercontext.RoleAdmin}
	resp = request(t, app, http.MethodPost, "/api/v1/admin/billing/org-1/resync", admin)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIRateLimit(t *testing.T) {
	app, _ := newTestApp(t, 2)
	actor := map[string]string{usercontext.HeaderActorID: "u1"}

	for i := 0; i < 2; i++ {
		resp := request(t, app, http.MethodGet, "/api/", actor)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := request(t, app, http.MethodGet, "/api/", actor)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Limits are tracked per actor.
	resp = request(t, app, http.MethodGet, "/api/", map[string]string{usercontext.HeaderActorID: "u2"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
