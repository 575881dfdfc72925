package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "malformed payload", err: malformed("invoice", errors.New("unexpected end of JSON input")), want: true},
		{name: "resource missing", err: notFound(OpGetSubscription, "subscription", "sub_gone"), want: true},
		{name: "bad request", err: &ProcessorError{Op: OpUpdateSubscriptionItem, Code: "parameter_invalid", HTTPStatus: 400}, want: true},
		{name: "wrapped rejection", err: fmt.Errorf("checkout: %w", &ProcessorError{HTTPStatus: 402}), want: true},
		{name: "rate limited", err: &ProcessorError{HTTPStatus: 429}},
		{name: "processor outage", err: &ProcessorError{HTTPStatus: 503}},
		{name: "network error", err: &ProcessorError{Op: OpGetSubscription, Message: "connection reset"}},
		{name: "timeout", err: &ProcessorError{Op: OpGetSubscription, Err: context.DeadlineExceeded}},
		{name: "version conflict", err: ErrConflict},
		{name: "store failure", err: errors.New("db down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPermanent(tt.err))
		})
	}
	assert.ErrorIs(t, malformed("subscription", errors.New("x")), ErrMalformedPayload)
}
