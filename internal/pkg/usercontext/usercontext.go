package usercontext

import "github.com/gofiber/fiber/v2"

// Actor is the authenticated caller as forwarded by the auth layer in front
// of this service.
type Actor struct {
	ID             string `json:"id"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id"`
}

func (a Actor) IsAuthenticated() bool {
	return a.ID != ""
}

func (a Actor) IsAdmin() bool {
	return a.IsAuthenticated() && a.Role == RoleAdmin
}

// CanManageBilling reports whether the actor may change billing for the
// organization: its owner, or an admin.
func (a Actor) CanManageBilling(organizationID string) bool {
	if a.IsAdmin() {
		return true
	}
	return a.IsAuthenticated() && a.Role == RoleOwner && organizationID != "" && a.OrganizationID == organizationID
}

// CanAccessOrganization reports whether the actor belongs to the organization
// in any role, or is an admin.
func (a Actor) CanAccessOrganization(organizationID string) bool {
	if a.IsAdmin() {
		return true
	}
	return a.IsAuthenticated() && organizationID != "" && a.OrganizationID == organizationID
}

// GetActor retrieves the actor from fiber context
// Returns an anonymous actor if none is set
func GetActor(c *fiber.Ctx) Actor {
	if a, ok := c.Locals(KeyActor).(Actor); ok {
		return a
	}
	return Actor{}
}

// IsAdmin checks if the current actor is an admin
func IsAdmin(c *fiber.Ctx) bool {
	return GetActor(c).IsAdmin()
}

// GetActorID returns the current actor's ID, or "" if anonymous
func GetActorID(c *fiber.Ctx) string {
	return GetActor(c).ID
}
