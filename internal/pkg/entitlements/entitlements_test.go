package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CoachFox/app/models"
)

func testCatalog() *StaticCatalog {
	return NewStaticCatalog(map[Tier]string{
		TierStarter:      "price_starter",
		TierProfessional: "price_pro",
		TierStudio:       "price_studio",
	})
}

func TestStaticCatalogLookups(t *testing.T) {
	c := testCatalog()

	tier, ok := c.TierForPrice("price_pro")
	require.True(t, ok)
	assert.Equal(t, TierProfessional, tier)

	_, ok = c.TierForPrice("price_unknown")
	assert.False(t, ok)

	price, ok := c.PriceForTier(TierStarter)
	require.True(t, ok)
	assert.Equal(t, "price_starter", price)

	assert.Equal(t, TierStudio, c.DefaultTrialTier())

	p, ok := c.Profile(TierStarter)
	require.True(t, ok)
	assert.Equal(t, 10, p.ClientLimit)
}

func TestParseTier(t *testing.T) {
	c := testCatalog()
	tests := []struct {
		in   string
		want Tier
		ok   bool
	}{
		{in: "starter", want: TierStarter, ok: true},
		{in: " Professional ", want: TierProfessional, ok: true},
		{in: "STUDIO", want: TierStudio, ok: true},
		{in: "enterprise", ok: false},
		{in: "", ok: false},
	}
	for _, tt := range tests {
		got, ok := c.ParseTier(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCatalogSkipsEmptyPrices(t *testing.T) {
	c := NewStaticCatalog(map[Tier]string{TierStarter: "price_s", TierStudio: ""})

	_, ok := c.PriceForTier(TierStudio)
	assert.False(t, ok)
	_, ok = c.TierForPrice("")
	assert.False(t, ok)
}

func TestProfileFor(t *testing.T) {
	c := testCatalog()

	canceled := &models.OrganizationBilling{SubscriptionStatus: models.BillingStatusCanceled, SubscriptionTier: "studio", ClientLimit: -1}
	assert.Equal(t, NoAccess.ClientLimit, ProfileFor(c, canceled).ClientLimit)
	assert.False(t, ProfileFor(c, canceled).Has(FeatureAnalytics))

	active := &models.OrganizationBilling{SubscriptionStatus: models.BillingStatusActive, SubscriptionTier: "studio", ClientLimit: -1}
	p := ProfileFor(c, active)
	assert.True(t, p.Unlimited())
	assert.True(t, p.Has(FeatureTeamMembers))

	starter := &models.OrganizationBilling{SubscriptionStatus: models.BillingStatusActive, SubscriptionTier: "starter", ClientLimit: 10}
	assert.False(t, ProfileFor(c, starter).Has(FeatureCustomBranding))

	unknown := &models.OrganizationBilling{SubscriptionStatus: models.BillingStatusActive, SubscriptionTier: "legacy"}
	assert.Equal(t, NoAccess.ClientLimit, ProfileFor(c, unknown).ClientLimit)
}
