package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/CoachFox/app/controllers"
	"github.com/ManuelReschke/CoachFox/internal/pkg/middleware"
	"github.com/ManuelReschke/CoachFox/internal/pkg/usercontext"
)

const (
	defaultRateLimit  = 120
	defaultRateWindow = time.Minute
)

type ApiRouter struct {
	deps          Dependencies
	billing       *controllers.BillingController
	organizations *controllers.OrganizationController
	clients       *controllers.ClientController
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(h.limiterConfig()))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1", middleware.RequireActor)

	v1.Post("/organizations", h.organizations.HandleCreate)
	v1.Get("/organizations/:organization_id", middleware.RequireOrganizationMember("organization_id"), h.organizations.HandleGet)
	v1.Get("/organizations/:organization_id/clients", middleware.RequireOrganizationMember("organization_id"), h.clients.HandleList)
	v1.Post("/organizations/:organization_id/clients", middleware.RequireOrganizationMember("organization_id"), h.clients.HandleCreate)

	// Owner checks for checkout and action run in the controller, the
	// organization id is part of the body there.
	v1.Post("/billing/checkout", h.billing.HandleCheckout)
	v1.Post("/billing/action", h.billing.HandleAction)
	v1.Get("/billing/:organization_id", middleware.RequireOrganizationMember("organization_id"), h.billing.HandleSummary)
	v1.Get("/billing/:organization_id/invoices", middleware.RequireBillingManager("organization_id"), h.billing.HandleInvoices)
	v1.Post("/billing/:organization_id/payment-method", middleware.RequireBillingManager("organization_id"), h.billing.HandlePaymentMethod)

	h.registerAdminRoutes(v1)
}

func (h ApiRouter) limiterConfig() limiter.Config {
	limit := h.deps.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	window := h.deps.RateWindow
	if window <= 0 {
		window = defaultRateWindow
	}
	return limiter.Config{
		Max:        limit,
		Expiration: window,
		Storage:    h.deps.LimiterStorage,
		KeyGenerator: func(c *fiber.Ctx) string {
			if id := usercontext.GetActorID(c); id != "" {
				return "actor:" + id
			}
			return "ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"details": "too many requests",
			})
		},
	}
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{
		deps:          deps,
		billing:       controllers.NewBillingController(deps.Billing, deps.Reconciler, deps.Resync, deps.RequestTimeout),
		organizations: controllers.NewOrganizationController(deps.Repositories.Organization, deps.Billing, deps.RequestTimeout),
		clients:       controllers.NewClientController(deps.Repositories.Client, deps.Gate, deps.RequestTimeout),
	}
}
