package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CoachFox/internal/pkg/usercontext"
)

// ActorContextMiddleware reads the actor forwarded by the auth layer and
// stores it in Locals. Requests without headers continue as anonymous.
func ActorContextMiddleware(c *fiber.Ctx) error {
	actor := usercontext.Actor{
		ID:             strings.TrimSpace(c.Get(usercontext.HeaderActorID)),
		Role:           strings.ToLower(strings.TrimSpace(c.Get(usercontext.HeaderActorRole))),
		OrganizationID: strings.TrimSpace(c.Get(usercontext.HeaderActorOrganization)),
	}
	c.Locals(usercontext.KeyActor, actor)
	return c.Next()
}
