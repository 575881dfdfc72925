package billing

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Gateway operation names, used by MockGateway for call recording and error injection.
const (
	OpCreateCustomer          = "create_customer"
	OpGetCustomer             = "get_customer"
	OpGetSubscription         = "get_subscription"
	OpUpdateSubscriptionItem  = "update_subscription_item"
	OpCancelSubscription      = "cancel_subscription"
	OpResumeSubscription      = "resume_subscription"
	OpCreateCheckoutSession   = "create_checkout_session"
	OpListInvoices            = "list_invoices"
	OpSetDefaultPaymentMethod = "set_default_payment_method"
)

// GatewayCall records one MockGateway invocation.
type GatewayCall struct {
	Op             string
	SubscriptionID string
	CustomerID     string
	PriceID        string
	Proration      ProrationBehavior
	AtPeriodEnd    bool
	Checkout       *CheckoutSessionInput
}

// MockGateway is an in-memory Gateway that records calls and returns
// configurable results.
type MockGateway struct {
	mu sync.Mutex

	Customers     map[string]*Customer
	Subscriptions map[string]*Subscription
	Invoices      map[string][]Invoice
	Calls         []GatewayCall

	// Errs injects a failure per operation name (Op* constants).
	Errs map[string]error

	// PeriodEnd is reported for subscriptions canceled at period end when
	// the seeded subscription carries none.
	PeriodEnd time.Time

	nextCustomerSeq int
	nextSessionSeq  int
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		Customers:     make(map[string]*Customer),
		Subscriptions: make(map[string]*Subscription),
		Invoices:      make(map[string][]Invoice),
		Errs:          make(map[string]error),
		PeriodEnd:     time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second),
	}
}

// AddSubscription seeds a subscription with a single line item.
func (m *MockGateway) AddSubscription(id, customerID, status, priceID string) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := &Subscription{
		ID:         id,
		CustomerID: customerID,
		Status:     status,
		Items:      []SubscriptionItem{{ID: "si_" + id, PriceID: priceID}},
	}
	m.Subscriptions[id] = sub
	return copySubscription(sub)
}

// CallsFor returns the recorded calls of one operation.
func (m *MockGateway) CallsFor(op string) []GatewayCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []GatewayCall
	for _, c := range m.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (m *MockGateway) record(c GatewayCall) error {
	m.Calls = append(m.Calls, c)
	if err := m.Errs[c.Op]; err != nil {
		if _, ok := IsProcessorError(err); ok {
			return err
		}
		return &ProcessorError{Op: c.Op, Code: "mock_error", Message: err.Error(), Err: err}
	}
	return nil
}

func notFound(op, kind, id string) error {
	return &ProcessorError{Op: op, Code: "resource_missing", Message: fmt.Sprintf("No such %s: '%s'", kind, id), HTTPStatus: 404}
}

func (m *MockGateway) CreateCustomer(_ context.Context, organizationID, email string) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(GatewayCall{Op: OpCreateCustomer}); err != nil {
		return nil, err
	}
	m.nextCustomerSeq++
	c := &Customer{
		ID:       fmt.Sprintf("cus_mock_%d", m.nextCustomerSeq),
		Email:    email,
		Metadata: map[string]string{metadataOrganizationID: organizationID},
	}
	m.Customers[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *MockGateway) GetCustomer(_ context.Context, customerID string) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(GatewayCall{Op: OpGetCustomer, CustomerID: customerID}); err != nil {
		return nil, err
	}
	c, ok := m.Customers[customerID]
	if !ok {
		return nil, notFound(OpGetCustomer, "customer", customerID)
	}
	cp := *c
	return &cp, nil
}

func (m *MockGateway) GetSubscription(_ context.Context, subscriptionID string, _ ...string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(GatewayCall{Op: OpGetSubscription, SubscriptionID: subscriptionID}); err != nil {
		return nil, err
	}
	sub, ok := m.Subscriptions[subscriptionID]
	if !ok {
		return nil, notFound(OpGetSubscription, "subscription", subscriptionID)
	}
	return copySubscription(sub), nil
}

func (m *MockGateway) UpdateSubscriptionItem(_ context.Context, subscriptionID, itemID, priceID string, proration ProrationBehavior) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(GatewayCall{Op: OpUpdateSubscriptionItem, SubscriptionID: subscriptionID, PriceID: priceID, Proration: proration}); err != nil {
		return nil, err
	}
	sub, ok := m.Subscriptions[subscriptionID]
	if !ok {
		return nil, notFound(OpUpdateSubscriptionItem, "subscription", subscriptionID)
	}
	for i := range sub.Items {
		if sub.Items[i].ID == itemID {
			sub.Items[i].PriceID = priceID
			return copySubscription(sub), nil
		}
	}
	return nil, notFound(OpUpdateSubscriptionItem, "subscription_item", itemID)
}

func (m *MockGateway) CancelSubscription(_ context.Context, subscriptionID string, atPeriodEnd bool) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(GatewayCall{Op: OpCancelSubscription, SubscriptionID: subscriptionID, AtPeriodEnd: atPeriodEnd}); err != nil {
		return nil, err
	}
	sub, ok := m.Subscriptions[subscriptionID]
	if !ok {
		return nil, notFound(OpCancelSubscription, "subscription", subscriptionID)
	}
	if atPeriodEnd {
		sub.CancelAtPeriodEnd = true
		if sub.PeriodEnd() == nil {
			pe := m.PeriodEnd
			sub.CurrentPeriodEnd = &pe
		}
	} else {
		sub.Status = "canceled"
	}
	return copySubscription(sub), nil
}

func (m *MockGateway) ResumeSubscription(_ context.Context, subscriptionID string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(GatewayCall{Op: OpResumeSubscription, SubscriptionID: subscriptionID}); err != nil {
		return nil, err
	}
	sub, ok := m.Subscriptions[subscriptionID]
	if !ok {
		return nil, notFound(OpResumeSubscription, "subscription", subscriptionID)
	}
	sub.CancelAtPeriodEnd = false
	return copySubscription(sub), nil
}

func (m *MockGateway) CreateCheckoutSession(_ context.Context, in CheckoutSessionInput) (*CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := in
	if err := m.record(GatewayCall{Op: OpCreateCheckoutSession, CustomerID: in.CustomerID, PriceID: in.PriceID, Checkout: &cp}); err != nil {
		return nil, err
	}
	m.nextSessionSeq++
	id := fmt.Sprintf("cs_mock_%d", m.nextSessionSeq)
	return &CheckoutSession{ID: id, ClientSecret: id + "_secret"}, nil
}

func (m *MockGateway) ListInvoices(_ context.Context, customerID string, limit int) ([]Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(GatewayCall{Op: OpListInvoices, CustomerID: customerID}); err != nil {
		return nil, err
	}
	inv := m.Invoices[customerID]
	if limit > 0 && len(inv) > limit {
		inv = inv[:limit]
	}
	return append([]Invoice(nil), inv...), nil
}

func (m *MockGateway) SetDefaultPaymentMethod(_ context.Context, customerID, paymentMethodID string) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(GatewayCall{Op: OpSetDefaultPaymentMethod, CustomerID: customerID}); err != nil {
		return nil, err
	}
	c, ok := m.Customers[customerID]
	if !ok {
		c = &Customer{ID: customerID}
		m.Customers[customerID] = c
	}
	c.DefaultPaymentMethodID = paymentMethodID
	cp := *c
	return &cp, nil
}

func copySubscription(s *Subscription) *Subscription {
	cp := *s
	cp.Items = append([]SubscriptionItem(nil), s.Items...)
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
