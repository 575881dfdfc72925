package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CoachFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CoachFox/internal/pkg/env"
)

func TestLoadConfigFromEnv(t *testing.T) {
	prev := env.Env
	env.Env = map[string]string{
		"STRIPE_SECRET_KEY":         " sk_test_1 ",
		"STRIPE_WEBHOOK_SECRET":     "whsec_1",
		"STRIPE_PRICE_STARTER":      "price_s",
		"STRIPE_PRICE_PROFESSIONAL": "price_p",
		"BILLING_TRIAL_DAYS":        "21",
		"BILLING_GATEWAY_TIMEOUT":   "5s",
		"BILLING_RETURN_PATH":       "account/billing",
	}
	t.Cleanup(func() { env.Env = prev })

	cfg := LoadConfigFromEnv()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sk_test_1", cfg.SecretKey)
	assert.Equal(t, 21, cfg.TrialDays)
	assert.Equal(t, 21*24*time.Hour, cfg.TrialDuration())
	assert.Equal(t, 5*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, "/account/billing", cfg.ReturnPath)

	catalog := cfg.Catalog()
	price, ok := catalog.PriceForTier(entitlements.TierProfessional)
	require.True(t, ok)
	assert.Equal(t, "price_p", price)
	_, ok = catalog.PriceForTier(entitlements.TierStudio)
	assert.False(t, ok)
}

func TestConfigDefaultsAndValidation(t *testing.T) {
	cfg := Config{TrialDays: -3}.withDefaults()
	assert.Equal(t, DefaultTrialDays, cfg.TrialDays)
	assert.Equal(t, DefaultGatewayTimeout, cfg.GatewayTimeout)
	assert.Equal(t, DefaultReturnPath, cfg.ReturnPath)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_SECRET_KEY")
	assert.Contains(t, err.Error(), "STRIPE_WEBHOOK_SECRET")
	assert.Contains(t, err.Error(), "STRIPE_PRICE_")
}

func TestNewServiceFromDBUsesEnvironment(t *testing.T) {
	prev := env.Env
	env.Env = map[string]string{
		"STRIPE_SECRET_KEY":         "sk_test_x",
		"STRIPE_WEBHOOK_SECRET":     "whsec_x",
		"STRIPE_PRICE_PROFESSIONAL": "price_pro_env",
		"BILLING_TRIAL_DAYS":        "7",
	}
	t.Cleanup(func() { env.Env = prev })

	svc := NewServiceFromDB(newTestDB(t))
	assert.Equal(t, 7, svc.Config().TrialDays)
	assert.Equal(t, "whsec_x", svc.Config().WebhookSecret)

	tier, ok := svc.Catalog().TierForPrice("price_pro_env")
	require.True(t, ok)
	assert.Equal(t, entitlements.TierProfessional, tier)
}
