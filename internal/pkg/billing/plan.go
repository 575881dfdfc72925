package billing

import (
	"strings"

	"github.com/ManuelReschke/CoachFox/app/models"
)

// Processor subscription statuses outside the local enum.
const (
	processorStatusIncomplete        = "incomplete"
	processorStatusIncompleteExpired = "incomplete_expired"
	processorStatusUnpaid            = "unpaid"
	processorStatusPaused            = "paused"
)

// normalizeStatus maps a processor subscription status onto the local lifecycle
// enum. ok is false for statuses that cannot be mapped.
func normalizeStatus(processorStatus string, cancelAtPeriodEnd bool) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(processorStatus)) {
	case models.BillingStatusActive:
		if cancelAtPeriodEnd {
			return models.BillingStatusCanceling, true
		}
		return models.BillingStatusActive, true
	case models.BillingStatusTrialing:
		return models.BillingStatusTrialing, true
	case models.BillingStatusPastDue, processorStatusUnpaid, processorStatusIncomplete, processorStatusPaused:
		return models.BillingStatusPastDue, true
	case models.BillingStatusCanceled, processorStatusIncompleteExpired:
		return models.BillingStatusCanceled, true
	default:
		return "", false
	}
}

// hasAccess reports whether a local status grants use of the product.
func hasAccess(status string) bool {
	switch status {
	case models.BillingStatusTrialing, models.BillingStatusActive, models.BillingStatusCanceling:
		return true
	default:
		return false
	}
}
