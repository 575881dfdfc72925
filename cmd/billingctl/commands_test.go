package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CoachFox/app/models"
	"github.com/ManuelReschke/CoachFox/internal/pkg/billing"
	"github.com/ManuelReschke/CoachFox/internal/pkg/entitlements"
)

type cliEnv struct {
	store *billing.MemoryStore
	gw    *billing.MockGateway
	svc   *billing.Service
}

func newCLIEnv() *cliEnv {
	e := &cliEnv{store: billing.NewMemoryStore(), gw: billing.NewMockGateway()}
	cfg := billing.Config{Prices: map[entitlements.Tier]string{
		entitlements.TierStarter:      "price_starter",
		entitlements.TierProfessional: "price_pro",
	}}
	e.svc = billing.NewService(e.store, e.gw, cfg.Catalog(), cfg)
	e.store.Put(&models.OrganizationBilling{
		OrganizationID:         "org-1",
		SubscriptionStatus:     models.BillingStatusActive,
		SubscriptionTier:       "starter",
		ClientLimit:            10,
		ExternalCustomerID:     "cus_1",
		ExternalSubscriptionID: "sub_1",
	})
	return e
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(func() (*billing.Service, error) { return e.svc, nil })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestShowPrintsSummary(t *testing.T) {
	e := newCLIEnv()

	out, err := e.run(t, "show", "--org", "org-1")
	require.NoError(t, err)

	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, true, summary["has_access"])

	_, err = e.run(t, "show")
	assert.Error(t, err)
}

func TestResyncAppliesProcessorState(t *testing.T) {
	e := newCLIEnv()
	e.gw.AddSubscription("sub_1", "cus_1", "past_due", "price_pro")

	_, err := e.run(t, "resync", "--org", "org-1")
	require.NoError(t, err)

	rec, err := e.store.Get(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.BillingStatusPastDue, rec.SubscriptionStatus)
	assert.Equal(t, "professional", rec.SubscriptionTier)
}

func TestTerminateNeedsConfirmation(t *testing.T) {
	e := newCLIEnv()
	e.gw.AddSubscription("sub_1", "cus_1", "active", "price_starter")

	_, err := e.run(t, "terminate", "--org", "org-1")
	require.Error(t, err)
	assert.Empty(t, e.gw.CallsFor(billing.OpCancelSubscription))

	_, err = e.run(t, "terminate", "--org", "org-1", "--yes")
	require.NoError(t, err)

	rec, err := e.store.Get(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.BillingStatusCanceled, rec.SubscriptionStatus)
	assert.Empty(t, rec.ExternalSubscriptionID)
}
