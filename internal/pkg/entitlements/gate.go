package entitlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CoachFox/app/models"
	"github.com/ManuelReschke/CoachFox/internal/pkg/metrics"
)

var (
	ErrSubscriptionInactive = errors.New("subscription inactive")
	ErrClientLimitReached   = errors.New("client limit reached")
)

// RecordReader loads the current billing record of an organization.
type RecordReader interface {
	Get(ctx context.Context, organizationID string) (*models.OrganizationBilling, error)
}

// ClientCounter returns the number of live clients of an organization.
type ClientCounter interface {
	CountClients(ctx context.Context, organizationID string) (int64, error)
}

// CheckClientCreation is the pure policy behind the gate.
func CheckClientCreation(rec *models.OrganizationBilling, clientCount int64, now time.Time) error {
	if rec == nil {
		return ErrSubscriptionInactive
	}
	switch rec.SubscriptionStatus {
	case models.BillingStatusCanceled, models.BillingStatusPastDue:
		return ErrSubscriptionInactive
	case models.BillingStatusTrialing:
		if rec.TrialEndsAt != nil && !rec.TrialEndsAt.After(now) {
			return ErrSubscriptionInactive
		}
	}
	if rec.ClientLimit != models.UnlimitedClients && clientCount >= int64(rec.ClientLimit) {
		return ErrClientLimitReached
	}
	return nil
}

// Gate answers entitlement questions from a fresh read of the billing record.
// It never caches; webhooks may change the record between two requests.
type Gate struct {
	records RecordReader
	clients ClientCounter
	catalog Catalog
	now     func() time.Time
}

func NewGate(records RecordReader, clients ClientCounter, catalog Catalog) *Gate {
	return &Gate{records: records, clients: clients, catalog: catalog, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

func (g *Gate) CanCreateClient(ctx context.Context, organizationID string) error {
	count, err := g.clients.CountClients(ctx, organizationID)
	if err != nil {
		return fmt.Errorf("count clients: %w", err)
	}
	return g.CheckClientCount(ctx, organizationID, count)
}

// CheckClientCount applies the creation policy to a client count the caller
// already holds, typically one read inside the inserting transaction.
func (g *Gate) CheckClientCount(ctx context.Context, organizationID string, count int64) error {
	rec, err := g.records.Get(ctx, organizationID)
	if err != nil {
		return fmt.Errorf("load billing record: %w", err)
	}
	if err := CheckClientCreation(rec, count, g.now()); err != nil {
		reason := "inactive"
		if errors.Is(err, ErrClientLimitReached) {
			reason = "limit_reached"
		}
		metrics.EntitlementDenialsTotal.WithLabelValues(reason).Inc()
		log.Infof("[Entitlements] Deny client creation for org %s: %v (status=%s, limit=%d, count=%d)",
			organizationID, err, rec.SubscriptionStatus, rec.ClientLimit, count)
		return err
	}
	return nil
}

func (g *Gate) HasFeature(ctx context.Context, organizationID string, f Feature) (bool, error) {
	rec, err := g.records.Get(ctx, organizationID)
	if err != nil {
		return false, fmt.Errorf("load billing record: %w", err)
	}
	if rec.SubscriptionStatus == models.BillingStatusPastDue {
		return false, nil
	}
	if rec.SubscriptionStatus == models.BillingStatusTrialing && rec.TrialEndsAt != nil && !rec.InTrialWindow(g.now()) {
		return false, nil
	}
	return ProfileFor(g.catalog, rec).Has(f), nil
}
