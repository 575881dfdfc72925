package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	stripe "github.com/stripe/stripe-go/v82"

	"github.com/ManuelReschke/CoachFox/app/models"
	"github.com/ManuelReschke/CoachFox/internal/pkg/metrics"
)

// Processor event types handled by the reconciler.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventSubscriptionCreated    = "customer.subscription.created"
	EventSubscriptionUpdated    = "customer.subscription.updated"
	EventSubscriptionDeleted    = "customer.subscription.deleted"
	EventInvoicePaymentFailed   = "invoice.payment_failed"
	EventInvoicePaymentSucceded = "invoice.payment_succeeded"
	EventInvoicePaid            = "invoice.paid"
)

// WebhookResult describes what happened to one delivery.
type WebhookResult struct {
	EventID        string `json:"event_id"`
	EventType      string `json:"event_type"`
	Outcome        string `json:"outcome"`
	OrganizationID string `json:"organization_id,omitempty"`
	Duplicate      bool   `json:"duplicate,omitempty"`
}

// Reconciler verifies processor webhooks and applies them to billing records.
// Every branch writes absolute values taken from the payload, so duplicate and
// out-of-order deliveries converge on the same state.
type Reconciler struct {
	svc    *Service
	secret string
}

func NewReconciler(svc *Service, webhookSecret string) *Reconciler {
	return &Reconciler{svc: svc, secret: webhookSecret}
}

// Handle verifies and processes one delivery. ErrSignatureInvalid means the
// payload was rejected untouched. Any other error is transient and the
// delivery should be retried by the processor. Permanent failures are logged
// with outcome failed and acknowledged.
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := VerifyWebhook(payload, signature, r.secret)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		log.Warnf("[Webhook] Rejected delivery: %v", err)
		return nil, err
	}
	return r.Process(ctx, event, payload)
}

// Process applies an already verified event.
func (r *Reconciler) Process(ctx context.Context, event stripe.Event, payload []byte) (*WebhookResult, error) {
	eventType := string(event.Type)
	res := &WebhookResult{EventID: event.ID, EventType: eventType}

	created, stored, err := r.svc.store.RecordWebhookEvent(ctx, &models.BillingWebhookEvent{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       eventType,
		PayloadJSON:     string(payload),
	})
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(eventType, models.WebhookOutcomeFailed).Inc()
		return nil, fmt.Errorf("record webhook event: %w", err)
	}
	if !created && stored.Done() {
		res.Outcome = stored.Outcome
		res.OrganizationID = stored.OrganizationID
		res.Duplicate = true
		metrics.WebhookEventsTotal.WithLabelValues(eventType, "duplicate").Inc()
		log.Infof("[Webhook] Duplicate %s (%s) already processed, skipping", event.ID, eventType)
		return res, nil
	}

	orgID, procErr := r.dispatch(ctx, event)
	res.OrganizationID = orgID
	errMsg := ""
	switch {
	case procErr != nil:
		res.Outcome = models.WebhookOutcomeFailed
		errMsg = procErr.Error()
	case orgID == "":
		res.Outcome = models.WebhookOutcomeIgnored
	default:
		res.Outcome = models.WebhookOutcomeApplied
	}

	if err := r.svc.store.MarkWebhookProcessed(ctx, stored.ID, res.Outcome, orgID, errMsg); err != nil {
		log.Errorf("[Webhook] Failed to mark %s processed: %v", event.ID, err)
		metrics.WebhookEventsTotal.WithLabelValues(eventType, models.WebhookOutcomeFailed).Inc()
		res.Outcome = models.WebhookOutcomeFailed
		return res, fmt.Errorf("mark webhook processed: %w", err)
	}
	metrics.WebhookEventsTotal.WithLabelValues(eventType, res.Outcome).Inc()
	if procErr != nil {
		if IsPermanent(procErr) {
			log.Errorf("[Webhook] %s (%s) failed permanently, acknowledging: %v", event.ID, eventType, procErr)
			return res, nil
		}
		log.Errorf("[Webhook] %s (%s) failed: %v", event.ID, eventType, procErr)
		return res, procErr
	}
	log.Infof("[Webhook] %s (%s) %s org=%s", event.ID, eventType, res.Outcome, orgID)
	return res, nil
}

// dispatch returns the organization whose record was changed, "" for no-ops.
func (r *Reconciler) dispatch(ctx context.Context, event stripe.Event) (string, error) {
	if event.Data == nil {
		log.Warnf("[Webhook] %s (%s) has no data object", event.ID, event.Type)
		return "", nil
	}
	raw := event.Data.Raw

	switch string(event.Type) {
	case EventCheckoutCompleted:
		var session checkoutSessionPayload
		if err := json.Unmarshal(raw, &session); err != nil {
			return "", malformed("checkout session", err)
		}
		return r.checkoutCompleted(ctx, event.ID, session)

	case EventSubscriptionCreated, EventSubscriptionUpdated:
		var sub subscriptionPayload
		if err := json.Unmarshal(raw, &sub); err != nil {
			return "", malformed("subscription", err)
		}
		rec, changed, err := r.svc.applySubscriptionSnapshot(ctx, sub.snapshot())
		return orgIDOf(rec, changed), err

	case EventSubscriptionDeleted:
		var sub subscriptionPayload
		if err := json.Unmarshal(raw, &sub); err != nil {
			return "", malformed("subscription", err)
		}
		return r.subscriptionDeleted(ctx, event.ID, sub)

	case EventInvoicePaymentFailed:
		var inv invoicePayload
		if err := json.Unmarshal(raw, &inv); err != nil {
			return "", malformed("invoice", err)
		}
		return r.paymentFailed(ctx, event.ID, inv)

	case EventInvoicePaymentSucceded, EventInvoicePaid:
		var inv invoicePayload
		if err := json.Unmarshal(raw, &inv); err == nil {
			log.Infof("[Webhook] Invoice %s paid for customer %s", inv.ID, inv.Customer.ID)
		}
		return "", nil

	default:
		log.Infof("[Webhook] %s ignored (unhandled type %s)", event.ID, event.Type)
		return "", nil
	}
}

func orgIDOf(rec *models.OrganizationBilling, changed bool) string {
	if rec == nil || !changed {
		return ""
	}
	return rec.OrganizationID
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, eventID string, session checkoutSessionPayload) (string, error) {
	orgID := session.Metadata[metadataOrganizationID]
	if orgID == "" {
		log.Warnf("[Webhook] %s checkout session %s carries no organization id, ignoring", eventID, session.ID)
		return "", nil
	}
	if _, err := r.svc.store.Get(ctx, orgID); err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warnf("[Webhook] %s checkout session %s references unknown org %s, ignoring", eventID, session.ID, orgID)
			return "", nil
		}
		return "", err
	}

	// The subscription's own status decides: a checkout carrying over a trial
	// must not end the trial early.
	status := models.BillingStatusActive
	var sub *Subscription
	if session.Subscription.ID != "" {
		var err error
		sub, err = r.svc.gateway.GetSubscription(ctx, session.Subscription.ID, "items.data.price")
		if err != nil {
			return "", err
		}
		if sub.Status == models.BillingStatusTrialing {
			status = models.BillingStatusTrialing
		}
	}

	var changed bool
	out, err := r.svc.mutate(ctx, orgID, func(cur *models.OrganizationBilling) (bool, error) {
		before := *cur
		cur.SubscriptionStatus = status
		if session.Customer.ID != "" {
			cur.ExternalCustomerID = session.Customer.ID
		}
		if session.Subscription.ID != "" {
			cur.ExternalSubscriptionID = session.Subscription.ID
		}
		if status == models.BillingStatusActive {
			cur.TrialEndsAt = nil
		}
		if sub != nil {
			if status == models.BillingStatusTrialing && sub.TrialEnd != nil {
				cur.TrialEndsAt = sub.TrialEnd
			}
			if item, ok := sub.PrimaryItem(); ok {
				r.svc.applyTier(cur, item.PriceID)
			}
		}
		if cur.BillingEmail == "" && session.CustomerDetails.Email != "" {
			cur.BillingEmail = session.CustomerDetails.Email
		}
		changed = !sameBillingFields(&before, cur)
		return changed, nil
	})
	if err != nil {
		return "", err
	}
	if changed {
		r.svc.notify(ctx, out, NotifyCheckoutCompleted, nil)
	}
	return orgID, nil
}

func (r *Reconciler) subscriptionDeleted(ctx context.Context, eventID string, sub subscriptionPayload) (string, error) {
	rec, err := r.svc.store.FindByExternalCustomerID(ctx, sub.Customer.ID)
	if errors.Is(err, ErrNotFound) {
		log.Warnf("[Webhook] %s subscription %s deleted for unknown customer %s, ignoring", eventID, sub.ID, sub.Customer.ID)
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var changed, trialKept bool
	out, err := r.svc.mutate(ctx, rec.OrganizationID, func(cur *models.OrganizationBilling) (bool, error) {
		changed, trialKept = false, false
		if cur.ExternalSubscriptionID != "" && cur.ExternalSubscriptionID != sub.ID {
			log.Infof("[Webhook] %s deletion of %s is stale, org %s now on %s", eventID, sub.ID, cur.OrganizationID, cur.ExternalSubscriptionID)
			return false, nil
		}
		before := *cur
		trialKept = r.svc.endSubscription(cur, sub.ID)
		changed = !sameBillingFields(&before, cur)
		return changed, nil
	})
	if err != nil {
		return "", err
	}
	if !changed {
		return "", nil
	}
	if !trialKept {
		r.svc.notify(ctx, out, NotifySubscriptionCanceled, nil)
	}
	return out.OrganizationID, nil
}

func (r *Reconciler) paymentFailed(ctx context.Context, eventID string, inv invoicePayload) (string, error) {
	rec, err := r.svc.store.FindByExternalCustomerID(ctx, inv.Customer.ID)
	if errors.Is(err, ErrNotFound) {
		log.Warnf("[Webhook] %s payment failure for unknown customer %s, ignoring", eventID, inv.Customer.ID)
		return "", nil
	}
	if err != nil {
		return "", err
	}

	subID := inv.subscriptionID()
	var changed bool
	out, err := r.svc.mutate(ctx, rec.OrganizationID, func(cur *models.OrganizationBilling) (bool, error) {
		changed = false
		if cur.SubscriptionStatus == models.BillingStatusCanceled || cur.SubscriptionStatus == models.BillingStatusPastDue {
			return false, nil
		}
		if subID != "" && cur.ExternalSubscriptionID != "" && cur.ExternalSubscriptionID != subID {
			log.Infof("[Webhook] %s payment failure for old subscription %s, org %s now on %s", eventID, subID, cur.OrganizationID, cur.ExternalSubscriptionID)
			return false, nil
		}
		cur.SubscriptionStatus = models.BillingStatusPastDue
		changed = true
		return true, nil
	})
	if err != nil {
		return "", err
	}
	if !changed {
		return "", nil
	}
	r.svc.notify(ctx, out, NotifyPaymentFailed, nil)
	return out.OrganizationID, nil
}

// subscriptionSnapshot is the processor-side state a subscription event or a
// resync carries.
type subscriptionSnapshot struct {
	ID                string
	CustomerID        string
	Status            string
	CancelAtPeriodEnd bool
	PriceID           string
	PeriodEnd         *time.Time
	TrialEnd          *time.Time
}

func snapshotFromSubscription(sub *Subscription) subscriptionSnapshot {
	snap := subscriptionSnapshot{
		ID:                sub.ID,
		CustomerID:        sub.CustomerID,
		Status:            sub.Status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		PeriodEnd:         sub.PeriodEnd(),
		TrialEnd:          sub.TrialEnd,
	}
	if item, ok := sub.PrimaryItem(); ok {
		snap.PriceID = item.PriceID
	}
	return snap
}

// applySubscriptionSnapshot writes the processor's view of a subscription onto
// the record owning its customer. Records are never created here.
func (s *Service) applySubscriptionSnapshot(ctx context.Context, snap subscriptionSnapshot) (*models.OrganizationBilling, bool, error) {
	rec, err := s.store.FindByExternalCustomerID(ctx, snap.CustomerID)
	if errors.Is(err, ErrNotFound) {
		log.Warnf("[Billing] Subscription %s belongs to unknown customer %s, ignoring", snap.ID, snap.CustomerID)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	status, known := normalizeStatus(snap.Status, snap.CancelAtPeriodEnd)
	if !known {
		log.Warnf("[Billing] Subscription %s reports unmapped status %q, keeping local status", snap.ID, snap.Status)
	}
	terminal := known && status == models.BillingStatusCanceled

	var changed bool
	out, err := s.mutate(ctx, rec.OrganizationID, func(cur *models.OrganizationBilling) (bool, error) {
		changed = false
		if cur.ExternalSubscriptionID != "" && cur.ExternalSubscriptionID != snap.ID && (terminal || !known) {
			log.Infof("[Billing] Ignoring snapshot of old subscription %s, org %s is on %s", snap.ID, cur.OrganizationID, cur.ExternalSubscriptionID)
			return false, nil
		}
		before := *cur
		if terminal {
			s.endSubscription(cur, snap.ID)
		} else {
			s.applyTier(cur, snap.PriceID)
			cur.ExternalSubscriptionID = snap.ID
			if known {
				cur.SubscriptionStatus = status
			}
			switch cur.SubscriptionStatus {
			case models.BillingStatusActive:
				cur.TrialEndsAt = nil
			case models.BillingStatusCanceling:
				if snap.PeriodEnd != nil {
					cur.TrialEndsAt = snap.PeriodEnd
				}
			case models.BillingStatusTrialing:
				if snap.TrialEnd != nil {
					cur.TrialEndsAt = snap.TrialEnd
				}
			}
		}
		changed = !sameBillingFields(&before, cur)
		return changed, nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, changed, nil
}

// endSubscription applies the end of subscription subID. Inside a running
// trial the tenant keeps trialing on the default tier; otherwise the record is
// canceled. It reports whether the trial was kept.
func (s *Service) endSubscription(cur *models.OrganizationBilling, subID string) bool {
	if cur.SubscriptionStatus == models.BillingStatusTrialing && cur.InTrialWindow(s.now()) {
		if cur.ExternalSubscriptionID == subID {
			trialTier := s.catalog.DefaultTrialTier()
			profile, _ := s.catalog.Profile(trialTier)
			cur.ExternalSubscriptionID = ""
			cur.SubscriptionTier = string(trialTier)
			cur.ClientLimit = profile.ClientLimit
		}
		return true
	}
	cur.SubscriptionStatus = models.BillingStatusCanceled
	cur.ExternalSubscriptionID = ""
	return false
}

// applyTier maps a processor price onto tier and client limit. Unknown prices
// leave both untouched.
func (s *Service) applyTier(rec *models.OrganizationBilling, priceID string) {
	if priceID == "" {
		return
	}
	tier, ok := s.catalog.TierForPrice(priceID)
	if !ok {
		log.Warnf("[Billing] Price %s of org %s maps to no tier", priceID, rec.OrganizationID)
		return
	}
	profile, _ := s.catalog.Profile(tier)
	rec.SubscriptionTier = string(tier)
	rec.ClientLimit = profile.ClientLimit
}

func sameBillingFields(a, b *models.OrganizationBilling) bool {
	return a.SubscriptionStatus == b.SubscriptionStatus &&
		a.SubscriptionTier == b.SubscriptionTier &&
		a.ClientLimit == b.ClientLimit &&
		a.ExternalCustomerID == b.ExternalCustomerID &&
		a.ExternalSubscriptionID == b.ExternalSubscriptionID &&
		a.BillingEmail == b.BillingEmail &&
		sameTime(a.TrialEndsAt, b.TrialEndsAt)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Minimal views of processor event objects. Expandable references arrive as
// plain ids in webhook payloads.

type expandableID struct {
	ID string
}

func (e *expandableID) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		e.ID = id
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	e.ID = obj.ID
	return nil
}

type checkoutSessionPayload struct {
	ID              string            `json:"id"`
	Mode            string            `json:"mode"`
	Customer        expandableID      `json:"customer"`
	Subscription    expandableID      `json:"subscription"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

type subscriptionPayload struct {
	ID                string       `json:"id"`
	Customer          expandableID `json:"customer"`
	Status            string       `json:"status"`
	CancelAtPeriodEnd bool         `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64        `json:"current_period_end"`
	TrialEnd          int64        `json:"trial_end"`
	Items             struct {
		Data []struct {
			ID               string `json:"id"`
			CurrentPeriodEnd int64  `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (p subscriptionPayload) snapshot() subscriptionSnapshot {
	snap := subscriptionSnapshot{
		ID:                p.ID,
		CustomerID:        p.Customer.ID,
		Status:            p.Status,
		CancelAtPeriodEnd: p.CancelAtPeriodEnd,
		PeriodEnd:         unixPtr(p.CurrentPeriodEnd),
		TrialEnd:          unixPtr(p.TrialEnd),
	}
	if len(p.Items.Data) > 0 {
		item := p.Items.Data[0]
		snap.PriceID = item.Price.ID
		if snap.PeriodEnd == nil {
			snap.PeriodEnd = unixPtr(item.CurrentPeriodEnd)
		}
	}
	return snap
}

type invoicePayload struct {
	ID           string       `json:"id"`
	Customer     expandableID `json:"customer"`
	Subscription string       `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (p invoicePayload) subscriptionID() string {
	if p.Subscription != "" {
		return p.Subscription
	}
	return p.Parent.SubscriptionDetails.Subscription
}
