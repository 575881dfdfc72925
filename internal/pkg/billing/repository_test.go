package billing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/CoachFox/app/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "billing.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OrganizationBilling{}, &models.BillingWebhookEvent{}))
	return db
}

func TestGormStoreCreateAndGet(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	rec := trialingRecord("org-1")
	require.NoError(t, store.Create(ctx, rec))
	assert.EqualValues(t, 1, rec.Version)

	got, err := store.Get(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.BillingStatusTrialing, got.SubscriptionStatus)
	assert.Equal(t, "studio", got.SubscriptionTier)
	assert.Equal(t, -1, got.ClientLimit)
	require.NotNil(t, got.TrialEndsAt)
	assert.True(t, got.TrialEndsAt.Equal(*rec.TrialEndsAt))

	_, err = store.Get(ctx, "org-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Create(ctx, trialingRecord("org-1")), ErrConflict)
}

func TestGormStoreSaveIsCompareAndSwap(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, trialingRecord("org-1")))

	a, err := store.Get(ctx, "org-1")
	require.NoError(t, err)
	b, err := store.Get(ctx, "org-1")
	require.NoError(t, err)

	a.SubscriptionStatus = models.BillingStatusActive
	a.TrialEndsAt = nil
	a.ExternalCustomerID = "cus_1"
	require.NoError(t, store.Save(ctx, a))
	assert.EqualValues(t, 2, a.Version)

	b.SubscriptionTier = "starter"
	assert.ErrorIs(t, store.Save(ctx, b), ErrConflict)

	got, err := store.Get(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.BillingStatusActive, got.SubscriptionStatus)
	assert.Equal(t, "studio", got.SubscriptionTier)
	assert.Nil(t, got.TrialEndsAt)
	assert.EqualValues(t, 2, got.Version)

	missing := trialingRecord("org-missing")
	missing.Version = 1
	assert.ErrorIs(t, store.Save(ctx, missing), ErrNotFound)
}

func TestGormStoreFindByExternalCustomerID(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, activeRecord("org-1", "sub_1")))
	require.NoError(t, store.Create(ctx, trialingRecord("org-2")))

	got, err := store.FindByExternalCustomerID(ctx, "cus_org-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", got.OrganizationID)

	_, err = store.FindByExternalCustomerID(ctx, "cus_nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	// Records without a customer must not match the empty id.
	_, err = store.FindByExternalCustomerID(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStoreWebhookEventLog(t *testing.T) {
	store := NewStore(newTestDB(t))
	ctx := context.Background()

	event := &models.BillingWebhookEvent{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: "evt_1",
		EventType:       EventInvoicePaymentFailed,
		PayloadJSON:     `{"id":"evt_1"}`,
	}
	created, stored, err := store.RecordWebhookEvent(ctx, event)
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, stored.Done())

	require.NoError(t, store.MarkWebhookProcessed(ctx, stored.ID, models.WebhookOutcomeFailed, "", "db down"))

	created, again, err := store.RecordWebhookEvent(ctx, &models.BillingWebhookEvent{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: "evt_1",
		EventType:       EventInvoicePaymentFailed,
		PayloadJSON:     `{"id":"evt_1"}`,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, stored.ID, again.ID)
	assert.Equal(t, 1, again.Attempts)
	assert.Equal(t, "db down", again.ProcessingError)
	assert.False(t, again.Done())

	require.NoError(t, store.MarkWebhookProcessed(ctx, stored.ID, models.WebhookOutcomeApplied, "org-1", ""))
	_, done, err := store.RecordWebhookEvent(ctx, &models.BillingWebhookEvent{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: "evt_1",
		EventType:       EventInvoicePaymentFailed,
		PayloadJSON:     `{}`,
	})
	require.NoError(t, err)
	assert.True(t, done.Done())
	assert.Equal(t, 2, done.Attempts)
	assert.Equal(t, "org-1", done.OrganizationID)
	assert.Equal(t, models.WebhookOutcomeApplied, done.Outcome)
	require.NotNil(t, done.ProcessedAt)
	assert.WithinDuration(t, time.Now(), *done.ProcessedAt, time.Minute)
}

func TestServiceOnGormStore(t *testing.T) {
	store := NewStore(newTestDB(t))
	gw := NewMockGateway()
	svc := NewService(store, gw, testCatalog(), Config{TrialDays: 14}, WithClock(func() time.Time { return testNow }))
	rec := NewReconciler(svc, testWebhookSecret)
	ctx := context.Background()

	_, err := svc.StartTrial(ctx, "org-1", "owner@example.com")
	require.NoError(t, err)

	res, err := svc.Checkout(ctx, CheckoutRequest{OrganizationID: "org-1", Tier: "starter", Origin: "https://app.example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ClientSecret)

	stored, err := store.Get(ctx, "org-1")
	require.NoError(t, err)
	require.NotEmpty(t, stored.ExternalCustomerID)

	gw.AddSubscription("sub_1", stored.ExternalCustomerID, "trialing", priceStarter)
	payload, sig := signedEvent(t, "evt_checkout", EventCheckoutCompleted, map[string]any{
		"id":           "cs_1",
		"customer":     stored.ExternalCustomerID,
		"subscription": "sub_1",
		"metadata":     map[string]string{"organization_id": "org-1"},
	})
	out, err := rec.Handle(ctx, payload, sig)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookOutcomeApplied, out.Outcome)

	stored, err = store.Get(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.BillingStatusTrialing, stored.SubscriptionStatus)
	assert.Equal(t, "sub_1", stored.ExternalSubscriptionID)
	assert.Equal(t, 10, stored.ClientLimit)

	out, err = rec.Handle(ctx, payload, sig)
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
}
