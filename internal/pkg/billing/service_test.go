package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CoachFox/app/models"
	"github.com/ManuelReschke/CoachFox/internal/pkg/entitlements"
)

const (
	testWebhookSecret = "whsec_test_123"
	priceStarter      = "price_starter"
	pricePro          = "price_pro"
	priceStudio       = "price_studio"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func testCatalog() *entitlements.StaticCatalog {
	return entitlements.NewStaticCatalog(map[entitlements.Tier]string{
		entitlements.TierStarter:      priceStarter,
		entitlements.TierProfessional: pricePro,
		entitlements.TierStudio:       priceStudio,
	})
}

type fixture struct {
	store *MemoryStore
	gw    *MockGateway
	svc   *Service
	rec   *Reconciler

	mu    sync.Mutex
	notes []Notification
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: NewMemoryStore(), gw: NewMockGateway()}
	notifier := NotifierFunc(func(_ context.Context, n Notification) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.notes = append(f.notes, n)
		return nil
	})
	f.svc = NewService(f.store, f.gw, testCatalog(), Config{TrialDays: 14},
		WithNotifier(notifier),
		WithClock(func() time.Time { return testNow }),
	)
	f.rec = NewReconciler(f.svc, testWebhookSecret)
	return f
}

func (f *fixture) seed(rec *models.OrganizationBilling) {
	f.store.Put(rec)
}

func (f *fixture) get(t *testing.T, orgID string) *models.OrganizationBilling {
	t.Helper()
	rec, err := f.store.Get(context.Background(), orgID)
	require.NoError(t, err)
	return rec
}

func (f *fixture) notifications() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.notes...)
}

func timePtr(t time.Time) *time.Time { return &t }

func trialingRecord(orgID string) *models.OrganizationBilling {
	return &models.OrganizationBilling{
		OrganizationID:     orgID,
		SubscriptionStatus: models.BillingStatusTrialing,
		SubscriptionTier:   "studio",
		ClientLimit:        -1,
		TrialEndsAt:        timePtr(testNow.Add(10 * 24 * time.Hour)),
		BillingEmail:       "owner@example.com",
	}
}

func TestStartTrialIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.svc.StartTrial(ctx, "org-1", "owner@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.BillingStatusTrialing, rec.SubscriptionStatus)
	assert.Equal(t, "studio", rec.SubscriptionTier)
	assert.Equal(t, -1, rec.ClientLimit)
	require.NotNil(t, rec.TrialEndsAt)
	assert.True(t, rec.TrialEndsAt.Equal(testNow.Add(14*24*time.Hour)))

	again, err := f.svc.StartTrial(ctx, "org-1", "other@example.com")
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", again.BillingEmail)
	assert.Equal(t, rec.Version, again.Version)
}

func TestStartTrialRequiresOrganization(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.StartTrial(context.Background(), "  ", "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestMutateRetriesOnVersionConflict(t *testing.T) {
	f := newFixture(t)
	f.seed(trialingRecord("org-1"))

	conflicts := 2
	f.store.BeforeSave = func(rec *models.OrganizationBilling) error {
		if conflicts > 0 {
			conflicts--
			cur, _ := f.store.Get(context.Background(), rec.OrganizationID)
			cur.BillingEmail = "concurrent@example.com"
			f.store.Put(&models.OrganizationBilling{
				OrganizationID:     cur.OrganizationID,
				SubscriptionStatus: cur.SubscriptionStatus,
				SubscriptionTier:   cur.SubscriptionTier,
				ClientLimit:        cur.ClientLimit,
				TrialEndsAt:        cur.TrialEndsAt,
				BillingEmail:       cur.BillingEmail,
				Version:            cur.Version + 1,
			})
		}
		return nil
	}

	calls := 0
	out, err := f.svc.mutate(context.Background(), "org-1", func(rec *models.OrganizationBilling) (bool, error) {
		calls++
		rec.SubscriptionTier = "starter"
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, "starter", out.SubscriptionTier)
	assert.Equal(t, "concurrent@example.com", f.get(t, "org-1").BillingEmail)
}

func TestMutateGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	f.seed(trialingRecord("org-1"))
	f.store.BeforeSave = func(*models.OrganizationBilling) error { return ErrConflict }

	_, err := f.svc.mutate(context.Background(), "org-1", func(rec *models.OrganizationBilling) (bool, error) {
		rec.SubscriptionTier = "starter"
		return true, nil
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSummaryResolvesTrialEndsAtByStatus(t *testing.T) {
	f := newFixture(t)
	trial := trialingRecord("org-trial")
	f.seed(trial)

	canceling := &models.OrganizationBilling{
		OrganizationID:         "org-canceling",
		SubscriptionStatus:     models.BillingStatusCanceling,
		SubscriptionTier:       "professional",
		ClientLimit:            50,
		ExternalSubscriptionID: "sub_1",
		TrialEndsAt:            timePtr(testNow.Add(5 * 24 * time.Hour)),
	}
	f.seed(canceling)

	sum, err := f.svc.Summary(context.Background(), "org-trial")
	require.NoError(t, err)
	assert.NotNil(t, sum.TrialEndsAt)
	assert.Nil(t, sum.CurrentPeriodEnd)
	assert.True(t, sum.HasAccess)
	assert.True(t, sum.Profile.Unlimited())

	sum, err = f.svc.Summary(context.Background(), "org-canceling")
	require.NoError(t, err)
	assert.Nil(t, sum.TrialEndsAt)
	require.NotNil(t, sum.CurrentPeriodEnd)
	assert.True(t, sum.CurrentPeriodEnd.Equal(*canceling.TrialEndsAt))
	assert.Equal(t, 50, sum.Profile.ClientLimit)
}

func TestSummaryOfExpiredTrialHasNoAccess(t *testing.T) {
	f := newFixture(t)
	rec := trialingRecord("org-1")
	rec.TrialEndsAt = timePtr(testNow.Add(-time.Hour))
	f.seed(rec)

	sum, err := f.svc.Summary(context.Background(), "org-1")
	require.NoError(t, err)
	assert.False(t, sum.HasAccess)
}

func TestSummaryUnknownOrganization(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Summary(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvoicesAndPaymentMethod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noCustomer := trialingRecord("org-new")
	f.seed(noCustomer)
	inv, err := f.svc.Invoices(ctx, "org-new", 10)
	require.NoError(t, err)
	assert.Empty(t, inv)
	assert.Empty(t, f.gw.CallsFor(OpListInvoices))

	_, err = f.svc.UpdatePaymentMethod(ctx, "org-new", "pm_1")
	assert.ErrorIs(t, err, ErrNotFound)

	rec := trialingRecord("org-1")
	rec.ExternalCustomerID = "cus_1"
	f.seed(rec)
	f.gw.Invoices["cus_1"] = []Invoice{{ID: "in_2"}, {ID: "in_1"}}

	inv, err = f.svc.Invoices(ctx, "org-1", 1)
	require.NoError(t, err)
	require.Len(t, inv, 1)
	assert.Equal(t, "in_2", inv[0].ID)

	_, err = f.svc.UpdatePaymentMethod(ctx, "org-1", "  ")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	cust, err := f.svc.UpdatePaymentMethod(ctx, "org-1", "pm_1")
	require.NoError(t, err)
	assert.Equal(t, "pm_1", cust.DefaultPaymentMethodID)
}

func TestResyncAppliesProcessorSnapshot(t *testing.T) {
	f := newFixture(t)
	rec := &models.OrganizationBilling{
		OrganizationID:         "org-1",
		SubscriptionStatus:     models.BillingStatusPastDue,
		SubscriptionTier:       "starter",
		ClientLimit:            10,
		ExternalCustomerID:     "cus_1",
		ExternalSubscriptionID: "sub_1",
	}
	f.seed(rec)
	f.gw.AddSubscription("sub_1", "cus_1", "active", pricePro)

	out, err := f.svc.Resync(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.BillingStatusActive, out.SubscriptionStatus)
	assert.Equal(t, "professional", out.SubscriptionTier)
	assert.Equal(t, 50, out.ClientLimit)
}

func TestResyncWithoutSubscription(t *testing.T) {
	f := newFixture(t)
	f.seed(trialingRecord("org-1"))

	_, err := f.svc.Resync(context.Background(), "org-1")
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
	assert.Empty(t, f.gw.Calls)
}

func TestNotifierFailureDoesNotAffectState(t *testing.T) {
	store := NewMemoryStore()
	gw := NewMockGateway()
	svc := NewService(store, gw, testCatalog(), Config{},
		WithNotifier(NotifierFunc(func(context.Context, Notification) error { return errors.New("smtp down") })),
		WithClock(func() time.Time { return testNow }),
	)
	rec := trialingRecord("org-1")
	rec.SubscriptionStatus = models.BillingStatusActive
	rec.ExternalCustomerID = "cus_1"
	rec.ExternalSubscriptionID = "sub_1"
	store.Put(rec)
	gw.AddSubscription("sub_1", "cus_1", "active", priceStudio)

	res, err := svc.Cancel(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.BillingStatusCanceling, res.Status)
}
