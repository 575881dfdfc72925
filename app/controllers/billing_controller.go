package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CoachFox/internal/pkg/billing"
	"github.com/ManuelReschke/CoachFox/internal/pkg/usercontext"
)

const (
	defaultInvoiceLimit = 10
	maxInvoiceLimit     = 100
	webhookTimeout      = 15 * time.Second
)

// ResyncScheduler queues a processor resync for an organization whose local
// record fell behind the processor.
type ResyncScheduler interface {
	EnqueueResync(ctx context.Context, organizationID, reason string) error
}

// BillingController exposes the billing service and the processor webhook.
type BillingController struct {
	service    *billing.Service
	reconciler *billing.Reconciler
	resync     ResyncScheduler
	timeout    time.Duration
}

// NewBillingController creates a billing controller. resync may be nil.
func NewBillingController(service *billing.Service, reconciler *billing.Reconciler, resync ResyncScheduler, timeout time.Duration) *BillingController {
	return &BillingController{
		service:    service,
		reconciler: reconciler,
		resync:     resync,
		timeout:    timeout,
	}
}

type paymentMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id" validate:"required,max=255"`
}

// HandleCheckout starts an embedded checkout or changes the tier in place.
func (bc *BillingController) HandleCheckout(c *fiber.Ctx) error {
	var req billing.CheckoutRequest
	if err := parseAndValidate(c, &req); err != nil {
		return respondError(c, err)
	}
	if !usercontext.GetActor(c).CanManageBilling(req.OrganizationID) {
		return forbidden(c, "organization owner or admin required")
	}
	req.Origin = c.BaseURL()

	ctx, cancel := requestContext(c, bc.timeout)
	defer cancel()

	res, err := bc.service.Checkout(ctx, req)
	if err != nil {
		return bc.respondMutationError(c, req.OrganizationID, "checkout", err)
	}
	return c.JSON(res)
}

// HandleAction applies cancel or reactivate.
func (bc *BillingController) HandleAction(c *fiber.Ctx) error {
	var req billing.ActionRequest
	if err := parseAndValidate(c, &req); err != nil {
		return respondError(c, err)
	}
	if !usercontext.GetActor(c).CanManageBilling(req.OrganizationID) {
		return forbidden(c, "organization owner or admin required")
	}

	ctx, cancel := requestContext(c, bc.timeout)
	defer cancel()

	res, err := bc.service.ApplyAction(ctx, req)
	if err != nil {
		return bc.respondMutationError(c, req.OrganizationID, string(req.Action), err)
	}
	return c.JSON(res)
}

// HandleSummary returns the billing record with its resolved entitlements.
func (bc *BillingController) HandleSummary(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, bc.timeout)
	defer cancel()

	summary, err := bc.service.Summary(ctx, c.Params("organization_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(summary)
}

func (bc *BillingController) HandleInvoices(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultInvoiceLimit)
	if limit <= 0 {
		limit = defaultInvoiceLimit
	}
	if limit > maxInvoiceLimit {
		limit = maxInvoiceLimit
	}

	ctx, cancel := requestContext(c, bc.timeout)
	defer cancel()

	invoices, err := bc.service.Invoices(ctx, c.Params("organization_id"), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"invoices": invoices})
}

func (bc *BillingController) HandlePaymentMethod(c *fiber.Ctx) error {
	var req paymentMethodRequest
	if err := parseAndValidate(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := requestContext(c, bc.timeout)
	defer cancel()

	customer, err := bc.service.UpdatePaymentMethod(ctx, c.Params("organization_id"), req.PaymentMethodID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(customer)
}

// HandleTerminate immediately cancels the subscription (admin only).
func (bc *BillingController) HandleTerminate(c *fiber.Ctx) error {
	orgID := c.Params("organization_id")

	ctx, cancel := requestContext(c, bc.timeout)
	defer cancel()

	res, err := bc.service.HardCancel(ctx, orgID)
	if err != nil {
		return bc.respondMutationError(c, orgID, "terminate", err)
	}
	log.Infof("[Billing] Admin %s terminated subscription of org %s", usercontext.GetActorID(c), orgID)
	return c.JSON(res)
}

// HandleResync pulls the subscription from the processor and applies it (admin only).
func (bc *BillingController) HandleResync(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c, bc.timeout)
	defer cancel()

	rec, err := bc.service.Resync(ctx, c.Params("organization_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rec)
}

// HandleStripeWebhook verifies and applies one processor delivery. Any
// non-2xx answer makes the processor redeliver, so only signature failures and
// transient errors answer one.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	res, err := bc.reconciler.Handle(ctx, payload, signature)
	if err != nil {
		if errors.Is(err, billing.ErrSignatureInvalid) {
			return jsonError(c, fiber.StatusBadRequest, "signature_invalid", "webhook signature verification failed")
		}
		return jsonError(c, fiber.StatusInternalServerError, "webhook_processing_failed", err.Error())
	}
	return c.JSON(fiber.Map{
		"ok":        true,
		"outcome":   res.Outcome,
		"duplicate": res.Duplicate,
	})
}

// respondMutationError answers 202 when the processor accepted the change but
// the local write failed, and queues a resync to close the gap early.
func (bc *BillingController) respondMutationError(c *fiber.Ctx, organizationID, op string, err error) error {
	if errors.Is(err, billing.ErrLocalStateStale) && bc.resync != nil {
		if qerr := bc.resync.EnqueueResync(context.Background(), organizationID, op); qerr != nil {
			log.Warnf("[Billing] Could not queue resync for org %s after %s: %v", organizationID, op, qerr)
		}
	}
	return respondError(c, err)
}
