package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CoachFox/app/controllers"
	"github.com/ManuelReschke/CoachFox/internal/pkg/middleware"
)

type HttpRouter struct {
	billing *controllers.BillingController
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Apply actor middleware globally as first middleware
	app.Use(middleware.ActorContextMiddleware)

	h.registerPublicRoutes(app)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{
		billing: controllers.NewBillingController(deps.Billing, deps.Reconciler, deps.Resync, deps.RequestTimeout),
	}
}
