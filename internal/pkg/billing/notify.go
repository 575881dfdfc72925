package billing

import (
	"context"
	"time"
)

type NotificationKind string

const (
	NotifyCheckoutCompleted    NotificationKind = "checkout_completed"
	NotifyTierChanged          NotificationKind = "tier_changed"
	NotifyPaymentFailed        NotificationKind = "payment_failed"
	NotifyCancelScheduled      NotificationKind = "cancel_scheduled"
	NotifyReactivated          NotificationKind = "reactivated"
	NotifyTrialPlanCleared     NotificationKind = "trial_plan_cleared"
	NotifySubscriptionCanceled NotificationKind = "subscription_canceled"
)

// Notification describes a billing lifecycle change for the tenant's billing contact.
type Notification struct {
	Kind           NotificationKind `json:"kind"`
	OrganizationID string           `json:"organization_id"`
	Email          string           `json:"email"`
	Tier           string           `json:"tier"`
	PeriodEnd      *time.Time       `json:"period_end,omitempty"`
}

// Notifier receives lifecycle notifications. Delivery is best effort and
// never influences billing state.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) error { return nil }

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }
