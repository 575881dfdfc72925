package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CoachFox/app/models"
	"github.com/ManuelReschke/CoachFox/internal/pkg/billing"
	"github.com/ManuelReschke/CoachFox/internal/pkg/mail"
	"github.com/ManuelReschke/CoachFox/internal/pkg/metrics"
)

// BillingNotifier implements billing.Notifier by enqueueing an email job.
type BillingNotifier struct {
	queue *Queue
}

func NewBillingNotifier(q *Queue) *BillingNotifier {
	return &BillingNotifier{queue: q}
}

func (n *BillingNotifier) Notify(ctx context.Context, notification billing.Notification) error {
	if notification.Email == "" {
		log.Infof("[JobQueue] Org %s has no billing email, dropping %s notification", notification.OrganizationID, notification.Kind)
		return nil
	}
	payload := BillingNotificationJobPayload{
		Kind:           string(notification.Kind),
		OrganizationID: notification.OrganizationID,
		Email:          notification.Email,
		Tier:           notification.Tier,
		PeriodEnd:      notification.PeriodEnd,
	}
	_, err := n.queue.EnqueueJob(ctx, JobTypeBillingNotification, payload.ToMap())
	return err
}

// BillingNotificationHandler renders and sends lifecycle emails.
func BillingNotificationHandler(sender mail.Sender) Handler {
	return func(ctx context.Context, job *Job) error {
		payload, err := BillingNotificationJobPayloadFromMap(job.Payload)
		if err != nil {
			return Permanent(fmt.Errorf("decode payload: %w", err))
		}
		subject, body, err := mail.RenderBillingNotification(billing.Notification{
			Kind:           billing.NotificationKind(payload.Kind),
			OrganizationID: payload.OrganizationID,
			Email:          payload.Email,
			Tier:           payload.Tier,
			PeriodEnd:      payload.PeriodEnd,
		})
		if err != nil {
			metrics.NotificationsTotal.WithLabelValues(payload.Kind, "failed").Inc()
			return Permanent(err)
		}
		if err := sender.Send(ctx, payload.Email, subject, body); err != nil {
			metrics.NotificationsTotal.WithLabelValues(payload.Kind, "failed").Inc()
			return err
		}
		metrics.NotificationsTotal.WithLabelValues(payload.Kind, "sent").Inc()
		return nil
	}
}

// Resyncer pulls processor state for one organization.
type Resyncer interface {
	Resync(ctx context.Context, organizationID string) (*models.OrganizationBilling, error)
}

// BillingResyncHandler heals local records after a failed local write.
func BillingResyncHandler(r Resyncer) Handler {
	return func(ctx context.Context, job *Job) error {
		payload, err := BillingResyncJobPayloadFromMap(job.Payload)
		if err != nil {
			return Permanent(fmt.Errorf("decode payload: %w", err))
		}
		if payload.OrganizationID == "" {
			return Permanent(errors.New("resync job without organization id"))
		}

		rec, err := r.Resync(ctx, payload.OrganizationID)
		switch {
		case err == nil:
			log.Infof("[JobQueue] Resynced org %s (%s): status=%s tier=%s", rec.OrganizationID, payload.Reason, rec.SubscriptionStatus, rec.SubscriptionTier)
			return nil
		case errors.Is(err, billing.ErrNoActiveSubscription), errors.Is(err, billing.ErrNotFound):
			log.Infof("[JobQueue] Nothing to resync for org %s: %v", payload.OrganizationID, err)
			return nil
		}
		if billing.IsPermanent(err) {
			return Permanent(err)
		}
		return err
	}
}
