package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/ManuelReschke/CoachFox/internal/pkg/metrics"
)

const metadataOrganizationID = "organization_id"

// StripeGateway implements Gateway on top of the stripe-go client.
type StripeGateway struct {
	api     *client.API
	timeout time.Duration
}

// NewStripeGateway creates a gateway with the default stripe backends.
func NewStripeGateway(secretKey string, timeout time.Duration) *StripeGateway {
	return NewStripeGatewayWithBackends(secretKey, timeout, nil)
}

// NewStripeGatewayWithBackends allows pointing the client at a custom backend (tests, stripe-mock).
func NewStripeGatewayWithBackends(secretKey string, timeout time.Duration, backends *stripe.Backends) *StripeGateway {
	if timeout <= 0 {
		timeout = DefaultGatewayTimeout
	}
	return &StripeGateway{
		api:     client.New(secretKey, backends),
		timeout: timeout,
	}
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, organizationID, email string) (*Customer, error) {
	ctx, done := g.begin(ctx, "create_customer")
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if email = strings.TrimSpace(email); email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata(metadataOrganizationID, organizationID)

	c, err := g.api.Customers.New(params)
	if err = done(err); err != nil {
		return nil, err
	}
	return customerFromStripe(c), nil
}

func (g *StripeGateway) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	ctx, done := g.begin(ctx, "get_customer")
	params := &stripe.CustomerParams{}
	params.Context = ctx
	params.AddExpand("invoice_settings.default_payment_method")

	c, err := g.api.Customers.Get(customerID, params)
	if err = done(err); err != nil {
		return nil, err
	}
	return customerFromStripe(c), nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, subscriptionID string, expand ...string) (*Subscription, error) {
	ctx, done := g.begin(ctx, "get_subscription")
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	for _, e := range expand {
		params.AddExpand(e)
	}

	s, err := g.api.Subscriptions.Get(subscriptionID, params)
	if err = done(err); err != nil {
		return nil, err
	}
	return subscriptionFromStripe(s), nil
}

func (g *StripeGateway) UpdateSubscriptionItem(ctx context.Context, subscriptionID, itemID, priceID string, proration ProrationBehavior) (*Subscription, error) {
	ctx, done := g.begin(ctx, "update_subscription_item")
	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(itemID),
				Price: stripe.String(priceID),
			},
		},
		ProrationBehavior: stripe.String(string(proration)),
	}
	params.Context = ctx

	s, err := g.api.Subscriptions.Update(subscriptionID, params)
	if err = done(err); err != nil {
		return nil, err
	}
	return subscriptionFromStripe(s), nil
}

func (g *StripeGateway) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*Subscription, error) {
	if atPeriodEnd {
		ctx, done := g.begin(ctx, "cancel_subscription_at_period_end")
		params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
		params.Context = ctx

		s, err := g.api.Subscriptions.Update(subscriptionID, params)
		if err = done(err); err != nil {
			return nil, err
		}
		return subscriptionFromStripe(s), nil
	}

	ctx, done := g.begin(ctx, "cancel_subscription")
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	s, err := g.api.Subscriptions.Cancel(subscriptionID, params)
	if err = done(err); err != nil {
		return nil, err
	}
	return subscriptionFromStripe(s), nil
}

func (g *StripeGateway) ResumeSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	ctx, done := g.begin(ctx, "resume_subscription")
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(false)}
	params.Context = ctx

	s, err := g.api.Subscriptions.Update(subscriptionID, params)
	if err = done(err); err != nil {
		return nil, err
	}
	return subscriptionFromStripe(s), nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error) {
	ctx, done := g.begin(ctx, "create_checkout_session")
	params := &stripe.CheckoutSessionParams{
		UIMode:            stripe.String(string(stripe.CheckoutSessionUIModeEmbedded)),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(in.CustomerID),
		ClientReferenceID: stripe.String(in.OrganizationID),
		ReturnURL:         stripe.String(in.ReturnURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metadataOrganizationID: in.OrganizationID},
		},
	}
	if in.TrialEnd != nil {
		params.SubscriptionData.TrialEnd = stripe.Int64(in.TrialEnd.Unix())
	}
	params.Context = ctx
	params.AddMetadata(metadataOrganizationID, in.OrganizationID)

	s, err := g.api.CheckoutSessions.New(params)
	if err = done(err); err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: s.ID, ClientSecret: s.ClientSecret}, nil
}

func (g *StripeGateway) ListInvoices(ctx context.Context, customerID string, limit int) ([]Invoice, error) {
	if limit <= 0 {
		limit = 12
	}
	ctx, done := g.begin(ctx, "list_invoices")
	params := &stripe.InvoiceListParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))

	out := make([]Invoice, 0, limit)
	it := g.api.Invoices.List(params)
	for len(out) < limit && it.Next() {
		out = append(out, invoiceFromStripe(it.Invoice()))
	}
	if err := done(it.Err()); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *StripeGateway) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (*Customer, error) {
	attachCtx, done := g.begin(ctx, "attach_payment_method")
	attach := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	attach.Context = attachCtx
	_, err := g.api.PaymentMethods.Attach(paymentMethodID, attach)
	if err = done(err); err != nil {
		return nil, err
	}

	updateCtx, done := g.begin(ctx, "set_default_payment_method")
	params := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	params.Context = updateCtx

	c, err := g.api.Customers.Update(customerID, params)
	if err = done(err); err != nil {
		return nil, err
	}
	return customerFromStripe(c), nil
}

// begin bounds a call with the gateway timeout and returns a completion func
// that records metrics and converts the error.
func (g *StripeGateway) begin(ctx context.Context, op string) (context.Context, func(error) error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	return ctx, func(err error) error {
		cancel()
		metrics.GatewayDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.GatewayRequestsTotal.WithLabelValues(op, "error").Inc()
			pe := processorErrorFrom(op, err)
			log.Warnf("[Billing] Processor %s failed: code=%s status=%d request=%s msg=%s", op, pe.Code, pe.HTTPStatus, pe.RequestID, pe.Message)
			return pe
		}
		metrics.GatewayRequestsTotal.WithLabelValues(op, "ok").Inc()
		return nil
	}
}

func processorErrorFrom(op string, err error) *ProcessorError {
	var se *stripe.Error
	if errors.As(err, &se) {
		code := string(se.Code)
		if code == "" {
			code = string(se.Type)
		}
		return &ProcessorError{
			Op:         op,
			Code:       code,
			Message:    se.Msg,
			HTTPStatus: se.HTTPStatusCode,
			RequestID:  se.RequestID,
			Err:        err,
		}
	}
	code := "network_error"
	if errors.Is(err, context.DeadlineExceeded) {
		code = "timeout"
	}
	return &ProcessorError{Op: op, Code: code, Message: err.Error(), Err: err}
}

func unixPtr(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func subscriptionFromStripe(s *stripe.Subscription) *Subscription {
	if s == nil {
		return nil
	}
	out := &Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		TrialEnd:          unixPtr(s.TrialEnd),
		Metadata:          s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil {
		for _, item := range s.Items.Data {
			if item == nil {
				continue
			}
			si := SubscriptionItem{ID: item.ID, CurrentPeriodEnd: unixPtr(item.CurrentPeriodEnd)}
			if item.Price != nil {
				si.PriceID = item.Price.ID
			}
			out.Items = append(out.Items, si)
		}
	}
	return out
}

func customerFromStripe(c *stripe.Customer) *Customer {
	if c == nil {
		return nil
	}
	out := &Customer{ID: c.ID, Email: c.Email, Metadata: c.Metadata}
	if c.InvoiceSettings != nil && c.InvoiceSettings.DefaultPaymentMethod != nil {
		out.DefaultPaymentMethodID = c.InvoiceSettings.DefaultPaymentMethod.ID
	}
	return out
}

func invoiceFromStripe(in *stripe.Invoice) Invoice {
	return Invoice{
		ID:          in.ID,
		Number:      in.Number,
		Status:      string(in.Status),
		Currency:    string(in.Currency),
		AmountDue:   in.AmountDue,
		AmountPaid:  in.AmountPaid,
		HostedURL:   in.HostedInvoiceURL,
		Created:     time.Unix(in.Created, 0).UTC(),
		PeriodStart: unixPtr(in.PeriodStart),
		PeriodEnd:   unixPtr(in.PeriodEnd),
	}
}
