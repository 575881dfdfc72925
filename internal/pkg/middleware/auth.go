package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CoachFox/internal/pkg/usercontext"
)

// RequireActor ensures a forwarded actor and returns JSON 401 if missing.
func RequireActor(c *fiber.Ctx) error {
	if !usercontext.GetActor(c).IsAuthenticated() {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"details": "actor required",
		})
	}
	return c.Next()
}

// RequireAdmin ensures an admin actor.
func RequireAdmin(c *fiber.Ctx) error {
	actor := usercontext.GetActor(c)
	if !actor.IsAuthenticated() {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"details": "actor required",
		})
	}
	if !actor.IsAdmin() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"details": "admin role required",
		})
	}
	return c.Next()
}

// RequireBillingManager allows the owner of the organization named by the
// route parameter, or an admin.
func RequireBillingManager(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !usercontext.GetActor(c).CanManageBilling(c.Params(param)) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "forbidden",
				"details": "organization owner or admin required",
			})
		}
		return c.Next()
	}
}

// RequireOrganizationMember allows any member of the organization named by
// the route parameter, or an admin.
func RequireOrganizationMember(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !usercontext.GetActor(c).CanAccessOrganization(c.Params(param)) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "forbidden",
				"details": "organization member or admin required",
			})
		}
		return c.Next()
	}
}
