package billing

import (
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/CoachFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CoachFox/internal/pkg/env"
)

const (
	DefaultTrialDays      = 14
	DefaultGatewayTimeout = 15 * time.Second
	DefaultReturnPath     = "/settings/billing"
)

// Config holds processor credentials and billing policy knobs.
type Config struct {
	SecretKey      string
	WebhookSecret  string
	Prices         map[entitlements.Tier]string
	TrialDays      int
	GatewayTimeout time.Duration
	ReturnPath     string
}

func LoadConfigFromEnv() Config {
	cfg := Config{
		SecretKey:     strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		Prices: map[entitlements.Tier]string{
			entitlements.TierStarter:      strings.TrimSpace(env.GetEnv("STRIPE_PRICE_STARTER", "")),
			entitlements.TierProfessional: strings.TrimSpace(env.GetEnv("STRIPE_PRICE_PROFESSIONAL", "")),
			entitlements.TierStudio:       strings.TrimSpace(env.GetEnv("STRIPE_PRICE_STUDIO", "")),
		},
		TrialDays:      env.GetEnvInt("BILLING_TRIAL_DAYS", DefaultTrialDays),
		GatewayTimeout: env.GetEnvDuration("BILLING_GATEWAY_TIMEOUT", DefaultGatewayTimeout),
		ReturnPath:     env.GetEnv("BILLING_RETURN_PATH", DefaultReturnPath),
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.TrialDays <= 0 {
		c.TrialDays = DefaultTrialDays
	}
	if c.GatewayTimeout <= 0 {
		c.GatewayTimeout = DefaultGatewayTimeout
	}
	if c.ReturnPath == "" {
		c.ReturnPath = DefaultReturnPath
	}
	if !strings.HasPrefix(c.ReturnPath, "/") {
		c.ReturnPath = "/" + c.ReturnPath
	}
	return c
}

// Validate checks the settings needed to talk to the processor.
func (c Config) Validate() error {
	var errs []error
	if c.SecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
	}
	if c.WebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}
	priced := 0
	for _, p := range c.Prices {
		if p != "" {
			priced++
		}
	}
	if priced == 0 {
		errs = append(errs, errors.New("at least one STRIPE_PRICE_* must be set"))
	}
	return errors.Join(errs...)
}

// Catalog builds the tier catalog from the configured price ids.
func (c Config) Catalog() *entitlements.StaticCatalog {
	return entitlements.NewStaticCatalog(c.Prices)
}

func (c Config) TrialDuration() time.Duration {
	return time.Duration(c.TrialDays) * 24 * time.Hour
}
