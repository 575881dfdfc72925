package billing

import (
	"context"
	"time"
)

type ProrationBehavior string

const (
	ProrationNone   ProrationBehavior = "none"
	ProrationCreate ProrationBehavior = "create_prorations"
)

// Subscription is the processor-side subscription snapshot.
type Subscription struct {
	ID                string
	CustomerID        string
	Status            string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
	TrialEnd          *time.Time
	Items             []SubscriptionItem
	Metadata          map[string]string
}

type SubscriptionItem struct {
	ID               string
	PriceID          string
	CurrentPeriodEnd *time.Time
}

// PrimaryItem returns the single billing line item of the subscription.
func (s *Subscription) PrimaryItem() (SubscriptionItem, bool) {
	if s == nil || len(s.Items) == 0 {
		return SubscriptionItem{}, false
	}
	return s.Items[0], true
}

// PeriodEnd returns the subscription period end, falling back to the
// primary item when the subscription itself does not carry it.
func (s *Subscription) PeriodEnd() *time.Time {
	if s == nil {
		return nil
	}
	if s.CurrentPeriodEnd != nil {
		return s.CurrentPeriodEnd
	}
	if item, ok := s.PrimaryItem(); ok {
		return item.CurrentPeriodEnd
	}
	return nil
}

type Customer struct {
	ID                     string            `json:"id"`
	Email                  string            `json:"email,omitempty"`
	DefaultPaymentMethodID string            `json:"default_payment_method_id,omitempty"`
	Metadata               map[string]string `json:"metadata,omitempty"`
}

type CheckoutSessionInput struct {
	OrganizationID string
	CustomerID     string
	PriceID        string
	ReturnURL      string
	// TrialEnd, when set, carries an existing trial over into the new subscription.
	TrialEnd *time.Time
}

type CheckoutSession struct {
	ID           string
	ClientSecret string
}

type Invoice struct {
	ID          string     `json:"id"`
	Number      string     `json:"number"`
	Status      string     `json:"status"`
	Currency    string     `json:"currency"`
	AmountDue   int64      `json:"amount_due"`
	AmountPaid  int64      `json:"amount_paid"`
	HostedURL   string     `json:"hosted_url,omitempty"`
	Created     time.Time  `json:"created"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
}

// Gateway is a thin client over the payment processor API. Implementations
// never mutate local state and never retry on their own; every failure is a
// *ProcessorError.
type Gateway interface {
	CreateCustomer(ctx context.Context, organizationID, email string) (*Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	GetSubscription(ctx context.Context, subscriptionID string, expand ...string) (*Subscription, error)
	UpdateSubscriptionItem(ctx context.Context, subscriptionID, itemID, priceID string, proration ProrationBehavior) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*Subscription, error)
	ResumeSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error)
	ListInvoices(ctx context.Context, customerID string, limit int) ([]Invoice, error)
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (*Customer, error)
}
