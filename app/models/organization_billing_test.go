package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrialEndsAtMeaningDependsOnStatus(t *testing.T) {
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	trialing := &OrganizationBilling{SubscriptionStatus: BillingStatusTrialing, TrialEndsAt: &ts}
	assert.Equal(t, &ts, trialing.TrialEnd())
	assert.Nil(t, trialing.PaidPeriodEnd())

	canceling := &OrganizationBilling{SubscriptionStatus: BillingStatusCanceling, TrialEndsAt: &ts}
	assert.Nil(t, canceling.TrialEnd())
	assert.Equal(t, &ts, canceling.PaidPeriodEnd())

	active := &OrganizationBilling{SubscriptionStatus: BillingStatusActive, TrialEndsAt: &ts}
	assert.Nil(t, active.TrialEnd())
	assert.Nil(t, active.PaidPeriodEnd())
}

func TestCloneDoesNotShareTrialEnd(t *testing.T) {
	ts := time.Now().UTC()
	rec := &OrganizationBilling{OrganizationID: "org", TrialEndsAt: &ts}

	cp := rec.Clone()
	*cp.TrialEndsAt = ts.Add(time.Hour)

	assert.True(t, rec.TrialEndsAt.Equal(ts))
	assert.Nil(t, (*OrganizationBilling)(nil).Clone())
}

func TestInTrialWindow(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	assert.True(t, (&OrganizationBilling{TrialEndsAt: &future}).InTrialWindow(now))
	assert.False(t, (&OrganizationBilling{TrialEndsAt: &past}).InTrialWindow(now))
	assert.False(t, (&OrganizationBilling{}).InTrialWindow(now))
}

func TestIsKnownBillingStatus(t *testing.T) {
	for _, s := range []string{"trialing", "active", "canceling", "canceled", "past_due"} {
		assert.True(t, IsKnownBillingStatus(s), s)
	}
	assert.False(t, IsKnownBillingStatus("incomplete"))
}
