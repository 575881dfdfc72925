package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CoachFox/internal/pkg/middleware"
)

func (h ApiRouter) registerAdminRoutes(v1 fiber.Router) {
	admin := v1.Group("/admin", middleware.RequireAdmin)

	admin.Post("/billing/:organization_id/terminate", h.billing.HandleTerminate)
	admin.Post("/billing/:organization_id/resync", h.billing.HandleResync)
}
