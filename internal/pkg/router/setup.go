package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CoachFox/app/controllers"
	"github.com/ManuelReschke/CoachFox/app/repository"
	"github.com/ManuelReschke/CoachFox/internal/pkg/billing"
	"github.com/ManuelReschke/CoachFox/internal/pkg/entitlements"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the collaborators the HTTP layer is built from.
type Dependencies struct {
	Repositories *repository.Repositories
	Billing      *billing.Service
	Reconciler   *billing.Reconciler
	Gate         *entitlements.Gate
	// Resync may be nil; stale local state is then left to the next webhook.
	Resync controllers.ResyncScheduler
	// LimiterStorage backs the API rate limiter. nil uses in-memory storage.
	LimiterStorage fiber.Storage
	RateLimit      int
	RateWindow     time.Duration
	RequestTimeout time.Duration
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// HttpRouter installs the actor middleware the API routes depend on.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
