package models

import "time"

const (
	BillingStatusTrialing  = "trialing"
	BillingStatusActive    = "active"
	BillingStatusCanceling = "canceling"
	BillingStatusCanceled  = "canceled"
	BillingStatusPastDue   = "past_due"
)

// UnlimitedClients is the client_limit sentinel for "no limit".
const UnlimitedClients = -1

// OrganizationBilling is the per-tenant billing record. One row per organization;
// it is never deleted by the billing code.
//
// TrialEndsAt carries two meanings depending on SubscriptionStatus: the trial end
// while trialing, the paid period end while canceling. Read it through TrialEnd
// and PaidPeriodEnd instead of directly.
type OrganizationBilling struct {
	ID                     uint       `gorm:"primaryKey" json:"-"`
	OrganizationID         string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"organization_id"`
	SubscriptionStatus     string     `gorm:"type:varchar(20);not null;default:'trialing';index" json:"subscription_status"`
	SubscriptionTier       string     `gorm:"type:varchar(32);not null" json:"subscription_tier"`
	ClientLimit            int        `gorm:"not null;default:-1" json:"client_limit"`
	ExternalCustomerID     string     `gorm:"type:varchar(191);default:'';index" json:"external_customer_id,omitempty"`
	ExternalSubscriptionID string     `gorm:"type:varchar(191);default:'';index" json:"external_subscription_id,omitempty"`
	BillingEmail           string     `gorm:"type:varchar(200);default:''" json:"billing_email,omitempty"`
	TrialEndsAt            *time.Time `gorm:"type:timestamp;default:null" json:"trial_ends_at,omitempty"`
	Version                uint64     `gorm:"not null;default:1" json:"-"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

func (OrganizationBilling) TableName() string {
	return "organization_billing"
}

func (b *OrganizationBilling) HasCustomer() bool {
	return b != nil && b.ExternalCustomerID != ""
}

func (b *OrganizationBilling) HasSubscription() bool {
	return b != nil && b.ExternalSubscriptionID != ""
}

// TrialEnd returns the trial end timestamp, or nil when the record is not trialing.
func (b *OrganizationBilling) TrialEnd() *time.Time {
	if b == nil || b.SubscriptionStatus != BillingStatusTrialing {
		return nil
	}
	return b.TrialEndsAt
}

// PaidPeriodEnd returns the end of the paid period for a subscription scheduled
// to cancel, or nil in every other status.
func (b *OrganizationBilling) PaidPeriodEnd() *time.Time {
	if b == nil || b.SubscriptionStatus != BillingStatusCanceling {
		return nil
	}
	return b.TrialEndsAt
}

// InTrialWindow reports whether the stored trial end lies after now. It looks at
// the raw column and is only meaningful while trialing.
func (b *OrganizationBilling) InTrialWindow(now time.Time) bool {
	return b != nil && b.TrialEndsAt != nil && b.TrialEndsAt.After(now)
}

// Clone returns a copy that does not share the TrialEndsAt pointer.
func (b *OrganizationBilling) Clone() *OrganizationBilling {
	if b == nil {
		return nil
	}
	out := *b
	if b.TrialEndsAt != nil {
		t := *b.TrialEndsAt
		out.TrialEndsAt = &t
	}
	return &out
}

// IsKnownBillingStatus reports whether status belongs to the local lifecycle enum.
func IsKnownBillingStatus(status string) bool {
	switch status {
	case BillingStatusTrialing, BillingStatusActive, BillingStatusCanceling, BillingStatusCanceled, BillingStatusPastDue:
		return true
	default:
		return false
	}
}
