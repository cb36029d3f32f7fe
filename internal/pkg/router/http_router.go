package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AutoMarkt/app/controllers"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", h.handleHealth)

	// provider callbacks authenticate by signature, not by API key
	billingController := controllers.NewBillingController(h.deps.Billing)
	app.Post("/webhooks/:provider", billingController.HandleWebhook)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}

func (h HttpRouter) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	status := fiber.StatusOK
	checks := fiber.Map{}
	for name, check := range h.deps.HealthChecks {
		if err := check(ctx); err != nil {
			log.Warnf("[Health] %s check failed: %v", name, err)
			checks[name] = "down"
			status = fiber.StatusServiceUnavailable
			continue
		}
		checks[name] = "up"
	}
	return c.Status(status).JSON(fiber.Map{"ok": status == fiber.StatusOK, "checks": checks})
}
