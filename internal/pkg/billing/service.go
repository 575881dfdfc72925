package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CoachFox/app/models"
	"github.com/ManuelReschke/CoachFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CoachFox/internal/pkg/metrics"
)

// maxSaveAttempts bounds the read-modify-write retries on version conflicts.
const maxSaveAttempts = 3

// Service owns every mutation of organization billing records: onboarding,
// checkout and tier changes, cancel/reactivate and webhook reconciliation.
type Service struct {
	store    Store
	gateway  Gateway
	catalog  entitlements.Catalog
	notifier Notifier
	cfg      Config
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a billing service from injected collaborators.
func NewService(store Store, gateway Gateway, catalog entitlements.Catalog, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:    store,
		gateway:  gateway,
		catalog:  catalog,
		notifier: nopNotifier{},
		cfg:      cfg.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Catalog() entitlements.Catalog {
	return s.catalog
}

// Get returns the current billing record of an organization.
func (s *Service) Get(ctx context.Context, organizationID string) (*models.OrganizationBilling, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, invalidf("organization_id is required")
	}
	return s.store.Get(ctx, organizationID)
}

// StartTrial creates the billing record of a new organization: trialing on the
// default trial tier for the configured trial length. It is idempotent and
// returns an existing record unchanged.
func (s *Service) StartTrial(ctx context.Context, organizationID, billingEmail string) (*models.OrganizationBilling, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, invalidf("organization_id is required")
	}
	tier := s.catalog.DefaultTrialTier()
	profile, ok := s.catalog.Profile(tier)
	if !ok {
		return nil, fmt.Errorf("default trial tier %q has no profile", tier)
	}

	now := s.now()
	trialEnd := now.Add(s.cfg.TrialDuration())
	rec := &models.OrganizationBilling{
		OrganizationID:     organizationID,
		SubscriptionStatus: models.BillingStatusTrialing,
		SubscriptionTier:   string(tier),
		ClientLimit:        profile.ClientLimit,
		BillingEmail:       strings.TrimSpace(billingEmail),
		TrialEndsAt:        &trialEnd,
		UpdatedAt:          now,
	}
	err := s.store.Create(ctx, rec)
	if errors.Is(err, ErrConflict) {
		return s.store.Get(ctx, organizationID)
	}
	if err != nil {
		return nil, fmt.Errorf("create billing record: %w", err)
	}
	log.Infof("[Billing] Started %d-day trial for org %s on tier %s", s.cfg.TrialDays, organizationID, tier)
	return rec, nil
}

// mutate runs a read-modify-write on one record. apply receives a fresh copy
// and reports whether it changed anything; on a version conflict the whole
// cycle is repeated so apply always works on the latest state.
func (s *Service) mutate(ctx context.Context, organizationID string, apply func(rec *models.OrganizationBilling) (bool, error)) (*models.OrganizationBilling, error) {
	for attempt := 1; ; attempt++ {
		rec, err := s.store.Get(ctx, organizationID)
		if err != nil {
			return nil, err
		}
		changed, err := apply(rec)
		if err != nil {
			return rec, err
		}
		if !changed {
			return rec, nil
		}
		rec.UpdatedAt = s.now()
		err = s.store.Save(ctx, rec)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrConflict) || attempt >= maxSaveAttempts {
			return nil, err
		}
		log.Warnf("[Billing] Version conflict on org %s (attempt %d/%d), retrying", organizationID, attempt, maxSaveAttempts)
	}
}

// staleAfterUpstream reports a failed local write that follows a successful
// processor mutation.
func (s *Service) staleAfterUpstream(op, organizationID string, err error) error {
	metrics.StaleLocalStateTotal.WithLabelValues(op).Inc()
	log.Errorf("[Billing] %s succeeded at processor but local write failed for org %s: %v", op, organizationID, err)
	return fmt.Errorf("%w: %v", ErrLocalStateStale, err)
}

func (s *Service) notify(ctx context.Context, rec *models.OrganizationBilling, kind NotificationKind, periodEnd *time.Time) {
	if rec == nil {
		return
	}
	n := Notification{
		Kind:           kind,
		OrganizationID: rec.OrganizationID,
		Email:          rec.BillingEmail,
		Tier:           rec.SubscriptionTier,
		PeriodEnd:      periodEnd,
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(kind), "error").Inc()
		log.Warnf("[Billing] Notification %s for org %s failed: %v", kind, rec.OrganizationID, err)
		return
	}
	metrics.NotificationsTotal.WithLabelValues(string(kind), "queued").Inc()
}

// Summary is the read model for plan/status UIs.
type Summary struct {
	Record           *models.OrganizationBilling `json:"record"`
	Profile          entitlements.Profile        `json:"entitlements"`
	HasAccess        bool                        `json:"has_access"`
	TrialEndsAt      *time.Time                  `json:"trial_ends_at,omitempty"`
	CurrentPeriodEnd *time.Time                  `json:"current_period_end,omitempty"`
}

func (s *Service) Summary(ctx context.Context, organizationID string) (*Summary, error) {
	rec, err := s.Get(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	access := hasAccess(rec.SubscriptionStatus)
	if rec.SubscriptionStatus == models.BillingStatusTrialing && rec.TrialEndsAt != nil && !rec.InTrialWindow(s.now()) {
		access = false
	}
	return &Summary{
		Record:           rec,
		Profile:          entitlements.ProfileFor(s.catalog, rec),
		HasAccess:        access,
		TrialEndsAt:      rec.TrialEnd(),
		CurrentPeriodEnd: rec.PaidPeriodEnd(),
	}, nil
}

// Invoices lists the organization's processor invoices, newest first.
func (s *Service) Invoices(ctx context.Context, organizationID string, limit int) ([]Invoice, error) {
	rec, err := s.Get(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if !rec.HasCustomer() {
		return []Invoice{}, nil
	}
	return s.gateway.ListInvoices(ctx, rec.ExternalCustomerID, limit)
}

// UpdatePaymentMethod attaches a processor payment method and makes it the default.
func (s *Service) UpdatePaymentMethod(ctx context.Context, organizationID, paymentMethodID string) (*Customer, error) {
	paymentMethodID = strings.TrimSpace(paymentMethodID)
	if paymentMethodID == "" {
		return nil, invalidf("payment_method_id is required")
	}
	rec, err := s.Get(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if !rec.HasCustomer() {
		return nil, fmt.Errorf("%w: organization has no billing customer yet", ErrNotFound)
	}
	return s.gateway.SetDefaultPaymentMethod(ctx, rec.ExternalCustomerID, paymentMethodID)
}

// Resync pulls the subscription from the processor and applies it as an
// authoritative snapshot, the same way a subscription-updated webhook would.
func (s *Service) Resync(ctx context.Context, organizationID string) (*models.OrganizationBilling, error) {
	rec, err := s.Get(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if !rec.HasSubscription() {
		return nil, ErrNoActiveSubscription
	}
	sub, err := s.gateway.GetSubscription(ctx, rec.ExternalSubscriptionID, "items.data.price")
	if err != nil {
		return nil, err
	}
	if sub.CustomerID == "" {
		sub.CustomerID = rec.ExternalCustomerID
	}
	out, _, err := s.applySubscriptionSnapshot(ctx, snapshotFromSubscription(sub))
	if err != nil {
		return nil, err
	}
	if out == nil {
		return s.store.Get(ctx, organizationID)
	}
	return out, nil
}
