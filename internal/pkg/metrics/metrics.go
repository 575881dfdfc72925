package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "coachfox"
	subsystem = "billing"
)

var (
	// WebhookEventsTotal counts processor webhook deliveries by event type and outcome.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "webhook_events_total",
		Help:      "Processor webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})

	// GatewayRequestsTotal counts payment processor calls by operation and outcome.
	GatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "gateway_requests_total",
		Help:      "Payment processor requests by operation and outcome.",
	}, []string{"operation", "outcome"})

	// GatewayDuration tracks payment processor call latency.
	GatewayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "gateway_duration_seconds",
		Help:      "Payment processor request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// EntitlementDenialsTotal counts denied resource creations by reason.
	EntitlementDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "entitlement_denials_total",
		Help:      "Entitlement gate denials by reason.",
	}, []string{"reason"})

	// StaleLocalStateTotal counts upstream mutations whose local write failed.
	StaleLocalStateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "stale_local_state_total",
		Help:      "Upstream mutations that succeeded while the local billing record write failed.",
	}, []string{"operation"})

	// NotificationsTotal counts lifecycle notifications handed to the job queue.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "notifications_total",
		Help:      "Billing lifecycle notifications by kind and outcome.",
	}, []string{"kind", "outcome"})
)
