package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CoachFox/app/models"
)

type Action string

const (
	ActionCancel     Action = "cancel"
	ActionReactivate Action = "reactivate"
)

type ActionRequest struct {
	OrganizationID string `json:"organization_id" validate:"required,max=36"`
	Action         Action `json:"action" validate:"required,oneof=cancel reactivate"`
}

type ActionResult struct {
	Status    string     `json:"status"`
	Message   string     `json:"message"`
	PeriodEnd *time.Time `json:"period_end,omitempty"`
}

// ApplyAction dispatches a user-initiated cancel or reactivate.
func (s *Service) ApplyAction(ctx context.Context, req ActionRequest) (*ActionResult, error) {
	switch Action(strings.ToLower(strings.TrimSpace(string(req.Action)))) {
	case ActionCancel:
		return s.Cancel(ctx, req.OrganizationID)
	case ActionReactivate:
		return s.Reactivate(ctx, req.OrganizationID)
	default:
		return nil, invalidf("unknown action %q", req.Action)
	}
}

// Cancel branches on the lifecycle phase. A trialing tenant loses the
// subscription immediately but keeps the trial; a paying tenant keeps access
// until the end of the paid period.
func (s *Service) Cancel(ctx context.Context, organizationID string) (*ActionResult, error) {
	rec, err := s.Get(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if !rec.HasSubscription() {
		return nil, ErrNoActiveSubscription
	}

	switch rec.SubscriptionStatus {
	case models.BillingStatusTrialing:
		return s.cancelTrialPlan(ctx, rec)
	case models.BillingStatusActive, models.BillingStatusPastDue:
		return s.cancelAtPeriodEnd(ctx, rec)
	case models.BillingStatusCanceling:
		return &ActionResult{
			Status:    rec.SubscriptionStatus,
			Message:   "Subscription is already scheduled to cancel",
			PeriodEnd: rec.PaidPeriodEnd(),
		}, nil
	default:
		return nil, ErrNoActiveSubscription
	}
}

func (s *Service) cancelTrialPlan(ctx context.Context, rec *models.OrganizationBilling) (*ActionResult, error) {
	subID := rec.ExternalSubscriptionID
	if _, err := s.gateway.CancelSubscription(ctx, subID, false); err != nil {
		return nil, err
	}

	trialTier := s.catalog.DefaultTrialTier()
	profile, _ := s.catalog.Profile(trialTier)

	// The local clear must land before the subscription-deleted webhook so the
	// reconciler sees an already detached record.
	out, err := s.mutate(ctx, rec.OrganizationID, func(cur *models.OrganizationBilling) (bool, error) {
		if cur.ExternalSubscriptionID != subID {
			return false, nil
		}
		cur.ExternalSubscriptionID = ""
		cur.SubscriptionTier = string(trialTier)
		cur.ClientLimit = profile.ClientLimit
		return true, nil
	})
	if err != nil {
		return nil, s.staleAfterUpstream("cancel_trial", rec.OrganizationID, err)
	}
	log.Infof("[Billing] Org %s canceled plan %s during trial", out.OrganizationID, subID)
	s.notify(ctx, out, NotifyTrialPlanCleared, nil)

	return &ActionResult{
		Status:  out.SubscriptionStatus,
		Message: "Plan selection canceled, trial continues",
	}, nil
}

func (s *Service) cancelAtPeriodEnd(ctx context.Context, rec *models.OrganizationBilling) (*ActionResult, error) {
	subID := rec.ExternalSubscriptionID
	sub, err := s.gateway.CancelSubscription(ctx, subID, true)
	if err != nil {
		return nil, err
	}
	periodEnd := sub.PeriodEnd()

	out, err := s.mutate(ctx, rec.OrganizationID, func(cur *models.OrganizationBilling) (bool, error) {
		if cur.ExternalSubscriptionID != subID {
			return false, nil
		}
		cur.SubscriptionStatus = models.BillingStatusCanceling
		cur.TrialEndsAt = periodEnd
		return true, nil
	})
	if err != nil {
		return nil, s.staleAfterUpstream("cancel", rec.OrganizationID, err)
	}
	log.Infof("[Billing] Org %s subscription %s cancels at period end %v", out.OrganizationID, subID, periodEnd)
	s.notify(ctx, out, NotifyCancelScheduled, periodEnd)

	return &ActionResult{
		Status:    out.SubscriptionStatus,
		Message:   "Subscription will cancel at the end of the current period",
		PeriodEnd: periodEnd,
	}, nil
}

// Reactivate undoes a scheduled cancellation.
func (s *Service) Reactivate(ctx context.Context, organizationID string) (*ActionResult, error) {
	rec, err := s.Get(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if !rec.HasSubscription() {
		return nil, ErrNoActiveSubscription
	}

	switch rec.SubscriptionStatus {
	case models.BillingStatusActive:
		return &ActionResult{Status: rec.SubscriptionStatus, Message: "Subscription is already active"}, nil
	case models.BillingStatusCanceling:
	default:
		return nil, invalidf("subscription in status %q cannot be reactivated", rec.SubscriptionStatus)
	}

	subID := rec.ExternalSubscriptionID
	if _, err := s.gateway.ResumeSubscription(ctx, subID); err != nil {
		return nil, err
	}

	out, err := s.mutate(ctx, rec.OrganizationID, func(cur *models.OrganizationBilling) (bool, error) {
		if cur.ExternalSubscriptionID != subID {
			return false, nil
		}
		cur.SubscriptionStatus = models.BillingStatusActive
		cur.TrialEndsAt = nil
		return true, nil
	})
	if err != nil {
		return nil, s.staleAfterUpstream("reactivate", rec.OrganizationID, err)
	}
	log.Infof("[Billing] Org %s reactivated subscription %s", out.OrganizationID, subID)
	s.notify(ctx, out, NotifyReactivated, nil)

	return &ActionResult{Status: out.SubscriptionStatus, Message: "Subscription reactivated"}, nil
}

// HardCancel terminates the subscription immediately and revokes access.
// It is the administrative path, not the user-facing cancel.
func (s *Service) HardCancel(ctx context.Context, organizationID string) (*ActionResult, error) {
	rec, err := s.Get(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if !rec.HasSubscription() {
		return nil, ErrNoActiveSubscription
	}

	subID := rec.ExternalSubscriptionID
	if _, err := s.gateway.CancelSubscription(ctx, subID, false); err != nil {
		pe, ok := IsProcessorError(err)
		if !ok || pe.Code != "resource_missing" {
			return nil, err
		}
		log.Warnf("[Billing] Subscription %s of org %s already gone at processor, canceling locally", subID, rec.OrganizationID)
	}

	out, err := s.mutate(ctx, rec.OrganizationID, func(cur *models.OrganizationBilling) (bool, error) {
		cur.SubscriptionStatus = models.BillingStatusCanceled
		if cur.ExternalSubscriptionID == subID {
			cur.ExternalSubscriptionID = ""
		}
		return true, nil
	})
	if err != nil {
		return nil, s.staleAfterUpstream("hard_cancel", rec.OrganizationID, err)
	}
	log.Infof("[Billing] Org %s subscription %s terminated", out.OrganizationID, subID)
	s.notify(ctx, out, NotifySubscriptionCanceled, nil)

	return &ActionResult{Status: out.SubscriptionStatus, Message: fmt.Sprintf("Subscription %s terminated", subID)}, nil
}
