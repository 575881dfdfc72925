package models

import "time"

const BillingProviderStripe = "stripe"

// Webhook event processing outcomes.
const (
	WebhookOutcomeApplied = "applied"
	WebhookOutcomeIgnored = "ignored"
	WebhookOutcomeFailed  = "failed"
)

// BillingWebhookEvent stores verified processor webhook deliveries with
// deduplication metadata for idempotent processing. Unverified payloads are
// never written here.
type BillingWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_billing_webhook_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_billing_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	OrganizationID  string     `gorm:"type:varchar(36);default:'';index" json:"organization_id,omitempty"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	Outcome         string     `gorm:"type:varchar(20);default:''" json:"outcome"`
	Attempts        int        `gorm:"not null;default:0" json:"attempts"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Done reports whether the event was processed without error.
func (e *BillingWebhookEvent) Done() bool {
	return e != nil && e.ProcessedAt != nil && e.ProcessingError == ""
}
