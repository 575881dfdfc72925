package billing

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrNotFound             = errors.New("billing record not found")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrSignatureInvalid     = errors.New("webhook signature invalid")
	ErrConflict             = errors.New("billing record modified concurrently")
	// ErrLocalStateStale means the processor accepted a mutation but the local
	// record could not be written. The next webhook delivery heals it.
	ErrLocalStateStale = errors.New("processor updated, local billing record not yet in sync")
	// ErrMalformedPayload marks a webhook object that cannot be decoded.
	// Redelivering the same bytes cannot fix it.
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// ProcessorError is returned for every failed payment processor call.
type ProcessorError struct {
	Op         string
	Code       string
	Message    string
	HTTPStatus int
	RequestID  string
	Err        error
}

func (e *ProcessorError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("processor %s failed (%s): %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("processor %s failed: %s", e.Op, e.Message)
}

func (e *ProcessorError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the call may succeed: network errors and
// timeouts (no HTTP status), rate limiting and processor-side 5xx.
func (e *ProcessorError) Retryable() bool {
	return e.HTTPStatus == 0 || e.HTTPStatus == http.StatusTooManyRequests || e.HTTPStatus >= http.StatusInternalServerError
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// IsProcessorError reports whether err carries a *ProcessorError and returns it.
func IsProcessorError(err error) (*ProcessorError, bool) {
	var pe *ProcessorError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsPermanent reports whether err will fail again on every retry: malformed
// payloads and processor rejections such as resource_missing. Store errors,
// conflicts and transport failures are not permanent.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrMalformedPayload) {
		return true
	}
	if pe, ok := IsProcessorError(err); ok {
		return !pe.Retryable()
	}
	return false
}

func malformed(kind string, err error) error {
	return fmt.Errorf("%w: decode %s: %w", ErrMalformedPayload, kind, err)
}
