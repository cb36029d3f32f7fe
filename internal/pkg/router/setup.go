package router

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/AutoMarkt/app/controllers"
	"github.com/ManuelReschke/AutoMarkt/app/repository"
)

// Router installs a group of routes on the app
type Router interface {
	InstallRouter(app *fiber.App)
}

// HealthCheck pings one backing service
type HealthCheck func(ctx context.Context) error

// Dependencies are the collaborators the routes are built from
type Dependencies struct {
	Billing      controllers.BillingService
	Users        repository.UserRepository
	Queue        controllers.QueueInspector
	Scheduler    controllers.ReconcileScheduler
	HealthChecks map[string]HealthCheck
	// RateLimitStorage backs the /api limiter; nil keeps counters in memory
	RateLimitStorage fiber.Storage
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
