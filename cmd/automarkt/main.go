package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/AutoMarkt/app/repository"
	"github.com/ManuelReschke/AutoMarkt/internal/pkg/billing"
	"github.com/ManuelReschke/AutoMarkt/internal/pkg/cache"
	"github.com/ManuelReschke/AutoMarkt/internal/pkg/database"
	"github.com/ManuelReschke/AutoMarkt/internal/pkg/env"
	"github.com/ManuelReschke/AutoMarkt/internal/pkg/jobqueue"
	"github.com/ManuelReschke/AutoMarkt/internal/pkg/mail"
	"github.com/ManuelReschke/AutoMarkt/internal/pkg/router"
)

func main() {
	if err := env.SetupEnvFile(); err != nil {
		log.Warnf("No .env file loaded, using process environment: %v", err)
	}

	if len(os.Args) > 1 {
		os.Exit(runCommand(os.Args[1:]))
	}

	app, manager := NewApplication()
	manager.Start()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorf("HTTP shutdown: %v", err)
	}
	manager.Stop()
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	database.SetupDatabase()
	cache.SetupCache()
	db := database.GetDB()
	repository.InitializeFactory(db)

	cfg := billing.LoadConfigFromEnv()
	if cfg.WebhookSecret == "" {
		log.Warn("STRIPE_WEBHOOK_SECRET is empty; webhook deliveries will be rejected")
	}

	manager := jobqueue.GetManager()
	svc := billing.NewServiceFromDB(db, jobqueue.NewQueueNotifier(manager.GetQueue()), cfg)
	manager.Configure(mail.NewSMTPMailer(mail.LoadSMTPConfig()), svc, cfg.ReconcileInterval)

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // provider payloads are small
	})

	// recovery and logging
	app.Use(recover.New(recover.Config{EnableStackTrace: env.IsDev()}), logger.New())

	// fiber metrics
	if !installMetrics(app, env.GetEnv("METRICS_USER", "admin"), env.GetEnv("METRICS_PASSWORD", "")) {
		log.Warn("METRICS_PASSWORD is empty; /metrics is not mounted")
	}

	router.InstallRouter(app, router.Dependencies{
		Billing:   svc,
		Users:     repository.GetGlobalRepositories().User,
		Queue:     manager.GetQueue(),
		Scheduler: manager,
		HealthChecks: map[string]router.HealthCheck{
			"database": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"cache": cache.Ping,
		},
		RateLimitStorage: cache.NewLimiterStorage(),
	})

	return app, manager
}

// installMetrics mounts the monitor page behind basic auth. It refuses to
// mount without a password.
func installMetrics(app *fiber.App, user, password string) bool {
	if password == "" {
		return false
	}
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{user: password},
	}), monitor.New())
	return true
}
