package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/AutoMarkt/app/controllers"
	"github.com/ManuelReschke/AutoMarkt/internal/pkg/env"
	"github.com/ManuelReschke/AutoMarkt/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        env.GetEnvInt("API_RATE_LIMIT_PER_MINUTE", 60),
		Expiration: time.Minute,
		Storage:    h.deps.RateLimitStorage,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware(h.deps.Users))

	billingController := controllers.NewBillingController(h.deps.Billing)
	billingGroup := v1.Group("/billing")
	billingGroup.Get("/subscription", billingController.HandleGetSubscription)
	billingGroup.Get("/invoices", billingController.HandleListInvoices)
	billingGroup.Post("/checkout", billingController.HandleCreateCheckout)
	billingGroup.Post("/subscription/cancel", billingController.HandleCancelSubscription)

	adminController := controllers.NewAdminBillingController(h.deps.Users, h.deps.Queue, h.deps.Scheduler)
	adminGroup := v1.Group("/admin/billing", middleware.RequireAdminAPI)
	adminGroup.Get("/stats", adminController.HandleStats)
	adminGroup.Get("/jobs/:id", adminController.HandleGetJob)
	adminGroup.Post("/reconcile", adminController.HandleReconcile)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
