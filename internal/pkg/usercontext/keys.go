package usercontext

// Shared Locals keys and forwarded headers used across controllers and middlewares
const (
	KeyActor = "actor"

	HeaderActorID           = "X-Actor-ID"
	HeaderActorRole         = "X-Actor-Role"
	HeaderActorOrganization = "X-Actor-Organization"
)

// Roles forwarded by the upstream auth layer
const (
	RoleOwner = "owner"
	RoleCoach = "coach"
	RoleAdmin = "admin"
)
