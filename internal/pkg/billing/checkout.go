package billing

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CoachFox/app/models"
	"github.com/ManuelReschke/CoachFox/internal/pkg/entitlements"
)

// CheckoutRequest asks for a tier. Origin is the scheme://host of the
// caller's own request and becomes the base of the checkout return URL.
type CheckoutRequest struct {
	OrganizationID string `json:"organization_id" validate:"required,max=36"`
	Tier           string `json:"tier" validate:"required"`
	BillingEmail   string `json:"billing_email" validate:"omitempty,email"`
	Origin         string `json:"-"`
}

// CheckoutResult is either an in-place tier change (Updated) or a new
// embedded checkout (ClientSecret).
type CheckoutResult struct {
	Updated      bool   `json:"updated,omitempty"`
	Message      string `json:"message,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	Tier         string `json:"tier"`
}

// Checkout starts a new subscription checkout or, when a subscription already
// exists, changes its tier in place.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	orgID := strings.TrimSpace(req.OrganizationID)
	if orgID == "" {
		return nil, invalidf("organization_id is required")
	}
	tier, ok := s.catalog.ParseTier(req.Tier)
	if !ok {
		return nil, invalidf("unknown tier %q", req.Tier)
	}
	priceID, ok := s.catalog.PriceForTier(tier)
	if !ok {
		return nil, invalidf("tier %q is not purchasable", tier)
	}
	origin, err := normalizeOrigin(req.Origin)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if !rec.HasCustomer() {
		rec, err = s.ensureCustomer(ctx, rec, req.BillingEmail)
		if err != nil {
			return nil, err
		}
	}

	if rec.HasSubscription() {
		return s.changeTier(ctx, rec, tier, priceID)
	}
	return s.startCheckout(ctx, rec, tier, priceID, origin)
}

// ensureCustomer creates the processor customer and persists its id before
// anything else happens, so a retried checkout never creates a second one.
func (s *Service) ensureCustomer(ctx context.Context, rec *models.OrganizationBilling, email string) (*models.OrganizationBilling, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		email = rec.BillingEmail
	}
	cust, err := s.gateway.CreateCustomer(ctx, rec.OrganizationID, email)
	if err != nil {
		return nil, err
	}

	out, err := s.mutate(ctx, rec.OrganizationID, func(cur *models.OrganizationBilling) (bool, error) {
		if cur.HasCustomer() {
			log.Warnf("[Billing] Org %s got customer %s concurrently, discarding %s", cur.OrganizationID, cur.ExternalCustomerID, cust.ID)
			return false, nil
		}
		cur.ExternalCustomerID = cust.ID
		if cur.BillingEmail == "" {
			cur.BillingEmail = email
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist customer %s: %w", cust.ID, err)
	}
	log.Infof("[Billing] Created customer %s for org %s", out.ExternalCustomerID, out.OrganizationID)
	return out, nil
}

func (s *Service) changeTier(ctx context.Context, rec *models.OrganizationBilling, tier entitlements.Tier, priceID string) (*CheckoutResult, error) {
	profile, _ := s.catalog.Profile(tier)
	subID := rec.ExternalSubscriptionID

	sub, err := s.gateway.GetSubscription(ctx, subID, "items.data.price")
	if err != nil {
		return nil, err
	}
	item, ok := sub.PrimaryItem()
	if !ok {
		return nil, fmt.Errorf("%w: subscription %s has no line item", ErrNoActiveSubscription, subID)
	}

	if item.PriceID != priceID {
		// A trialing tenant must not be charged before the trial ends.
		proration := ProrationCreate
		if rec.SubscriptionStatus == models.BillingStatusTrialing {
			proration = ProrationNone
		}
		if _, err := s.gateway.UpdateSubscriptionItem(ctx, subID, item.ID, priceID, proration); err != nil {
			return nil, err
		}
		log.Infof("[Billing] Org %s subscription %s moved to tier %s (proration=%s)", rec.OrganizationID, subID, tier, proration)
	}

	out, err := s.mutate(ctx, rec.OrganizationID, func(cur *models.OrganizationBilling) (bool, error) {
		if cur.SubscriptionTier == string(tier) && cur.ClientLimit == profile.ClientLimit {
			return false, nil
		}
		cur.SubscriptionTier = string(tier)
		cur.ClientLimit = profile.ClientLimit
		return true, nil
	})
	if err != nil {
		return nil, s.staleAfterUpstream("tier_change", rec.OrganizationID, err)
	}
	s.notify(ctx, out, NotifyTierChanged, nil)

	return &CheckoutResult{
		Updated: true,
		Message: fmt.Sprintf("Subscription updated to %s", tier),
		Tier:    string(tier),
	}, nil
}

func (s *Service) startCheckout(ctx context.Context, rec *models.OrganizationBilling, tier entitlements.Tier, priceID, origin string) (*CheckoutResult, error) {
	in := CheckoutSessionInput{
		OrganizationID: rec.OrganizationID,
		CustomerID:     rec.ExternalCustomerID,
		PriceID:        priceID,
		ReturnURL:      origin + s.cfg.ReturnPath + "?session_id={CHECKOUT_SESSION_ID}",
	}
	if rec.SubscriptionStatus == models.BillingStatusTrialing && rec.InTrialWindow(s.now()) {
		trialEnd := *rec.TrialEndsAt
		in.TrialEnd = &trialEnd
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, in)
	if err != nil {
		return nil, err
	}
	log.Infof("[Billing] Checkout session %s opened for org %s tier %s", session.ID, rec.OrganizationID, tier)
	return &CheckoutResult{
		ClientSecret: session.ClientSecret,
		SessionID:    session.ID,
		Tier:         string(tier),
	}, nil
}

// normalizeOrigin accepts "https://host[:port]" and drops any path.
func normalizeOrigin(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", invalidf("request origin is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", invalidf("invalid request origin %q", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}
