package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CoachFox/app/repository"
	"github.com/ManuelReschke/CoachFox/internal/pkg/billing"
	"github.com/ManuelReschke/CoachFox/internal/pkg/entitlements"
)

const defaultRequestTimeout = 20 * time.Second

var validate = validator.New()

// errorResponse is the JSON error payload of every API endpoint.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func jsonError(c *fiber.Ctx, status int, code, details string) error {
	return c.Status(status).JSON(errorResponse{Error: code, Details: details})
}

// parseAndValidate decodes the JSON body into out and runs struct validation.
func parseAndValidate(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("%w: malformed request body", billing.ErrInvalidRequest)
	}
	return validateStruct(out)
}

func validateStruct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: invalid fields: %s", billing.ErrInvalidRequest, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", billing.ErrInvalidRequest, err)
	}
	return nil
}

// respondError maps domain errors onto HTTP statuses.
func respondError(c *fiber.Ctx, err error) error {
	if pe, ok := billing.IsProcessorError(err); ok {
		return jsonError(c, fiber.StatusBadGateway, "processor_error", pe.Message)
	}
	switch {
	case errors.Is(err, billing.ErrInvalidRequest):
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, billing.ErrSignatureInvalid):
		return jsonError(c, fiber.StatusBadRequest, "signature_invalid", err.Error())
	case errors.Is(err, billing.ErrNotFound), errors.Is(err, repository.ErrOrganizationNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, billing.ErrNoActiveSubscription):
		return jsonError(c, fiber.StatusNotFound, "no_active_subscription", err.Error())
	case errors.Is(err, billing.ErrConflict):
		return jsonError(c, fiber.StatusConflict, "conflict", err.Error())
	case errors.Is(err, billing.ErrLocalStateStale):
		return jsonError(c, fiber.StatusAccepted, "local_state_stale", err.Error())
	case errors.Is(err, entitlements.ErrSubscriptionInactive):
		return jsonError(c, fiber.StatusPaymentRequired, "subscription_inactive", err.Error())
	case errors.Is(err, entitlements.ErrClientLimitReached):
		return jsonError(c, fiber.StatusForbidden, "client_limit_reached", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return jsonError(c, fiber.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func forbidden(c *fiber.Ctx, details string) error {
	return jsonError(c, fiber.StatusForbidden, "forbidden", details)
}

// requestContext bounds the work of one request.
func requestContext(c *fiber.Ctx, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return context.WithTimeout(c.UserContext(), timeout)
}
