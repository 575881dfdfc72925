package billing

import (
	"gorm.io/gorm"
)

// NewServiceFromDB wires a service with the GORM store and the Stripe
// gateway, configured from the environment.
func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	cfg := LoadConfigFromEnv()
	return NewService(
		NewStore(db),
		NewStripeGateway(cfg.SecretKey, cfg.GatewayTimeout),
		cfg.Catalog(),
		cfg,
		opts...,
	)
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}
