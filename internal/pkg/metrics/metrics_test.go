package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntitlementDenialsIncrement(t *testing.T) {
	before := testutil.ToFloat64(EntitlementDenialsTotal.WithLabelValues("limit_reached"))
	EntitlementDenialsTotal.WithLabelValues("limit_reached").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(EntitlementDenialsTotal.WithLabelValues("limit_reached")))
}

func TestWebhookEventsExposition(t *testing.T) {
	WebhookEventsTotal.WithLabelValues("invoice.payment_failed", "applied").Inc()

	expected := `
# HELP coachfox_billing_stale_local_state_total Upstream mutations that succeeded while the local billing record write failed.
# TYPE coachfox_billing_stale_local_state_total counter
coachfox_billing_stale_local_state_total{operation="cancel"} 1
`
	StaleLocalStateTotal.WithLabelValues("cancel").Inc()
	require.NoError(t, testutil.CollectAndCompare(StaleLocalStateTotal, strings.NewReader(expected)))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(WebhookEventsTotal), 1)
}
