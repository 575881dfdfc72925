package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/ManuelReschke/CoachFox/internal/pkg/billing"
)

var billingSubjects = map[billing.NotificationKind]string{
	billing.NotifyCheckoutCompleted:    "Your CoachFox subscription is set up",
	billing.NotifyTierChanged:          "Your CoachFox plan was changed",
	billing.NotifyPaymentFailed:        "Action needed: your CoachFox payment failed",
	billing.NotifyCancelScheduled:      "Your CoachFox subscription will end",
	billing.NotifyReactivated:          "Your CoachFox subscription continues",
	billing.NotifyTrialPlanCleared:     "Your selected plan was removed from your trial",
	billing.NotifySubscriptionCanceled: "Your CoachFox subscription has ended",
}

var billingBody = template.Must(template.New("billing").Parse(`<p>Hello,</p>
{{- if eq .Kind "checkout_completed"}}
<p>Thanks for subscribing to the <strong>{{.Tier}}</strong> plan.</p>
{{- else if eq .Kind "tier_changed"}}
<p>Your organization is now on the <strong>{{.Tier}}</strong> plan.</p>
{{- else if eq .Kind "payment_failed"}}
<p>We could not collect your last payment. Please update your payment method to keep adding clients.</p>
{{- else if eq .Kind "cancel_scheduled"}}
<p>Your subscription was canceled and stays usable{{if .PeriodEnd}} until {{.PeriodEnd}}{{end}}. You can reactivate it any time before then.</p>
{{- else if eq .Kind "reactivated"}}
<p>Your subscription was reactivated and renews as usual.</p>
{{- else if eq .Kind "trial_plan_cleared"}}
<p>Your selected plan was removed. Your trial continues on the <strong>{{.Tier}}</strong> plan.</p>
{{- else if eq .Kind "subscription_canceled"}}
<p>Your subscription has ended. Existing clients stay visible, new clients cannot be added.</p>
{{- end}}
<p>Organization: {{.OrganizationID}}</p>`))

// RenderBillingNotification returns subject and HTML body for n.
func RenderBillingNotification(n billing.Notification) (string, string, error) {
	subject, ok := billingSubjects[n.Kind]
	if !ok {
		return "", "", fmt.Errorf("mail: no template for notification %q", n.Kind)
	}
	data := struct {
		Kind           string
		Tier           string
		OrganizationID string
		PeriodEnd      string
	}{
		Kind:           string(n.Kind),
		Tier:           n.Tier,
		OrganizationID: n.OrganizationID,
	}
	if n.PeriodEnd != nil {
		data.PeriodEnd = n.PeriodEnd.UTC().Format(time.DateOnly)
	}

	var buf bytes.Buffer
	if err := billingBody.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return subject, buf.String(), nil
}
