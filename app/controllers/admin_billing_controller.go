package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AutoMarkt/app/models"
	"github.com/ManuelReschke/AutoMarkt/app/repository"
	"github.com/ManuelReschke/AutoMarkt/internal/pkg/jobqueue"
)

// QueueInspector exposes job queue state to admins
type QueueInspector interface {
	Stats(ctx context.Context) (jobqueue.Stats, error)
	GetJob(ctx context.Context, id string) (*jobqueue.Job, error)
}

// ReconcileScheduler enqueues an entitlement sweep. A nil job means it was skipped.
type ReconcileScheduler interface {
	EnqueueReconcile(ctx context.Context) (*jobqueue.Job, error)
}

// AdminBillingController serves admin-only billing operations
type AdminBillingController struct {
	userRepo  repository.UserRepository
	queue     QueueInspector
	scheduler ReconcileScheduler
}

// NewAdminBillingController creates a new admin billing controller
func NewAdminBillingController(userRepo repository.UserRepository, queue QueueInspector, scheduler ReconcileScheduler) *AdminBillingController {
	return &AdminBillingController{userRepo: userRepo, queue: queue, scheduler: scheduler}
}

// HandleStats answers GET /api/v1/admin/billing/stats
func (ac *AdminBillingController) HandleStats(c *fiber.Ctx) error {
	total, err := ac.userRepo.Count()
	if err != nil {
		log.Errorf("[AdminBilling] user count failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error", "message": "Failed to load user counts"})
	}
	counts, err := ac.userRepo.CountByRole()
	if err != nil {
		log.Errorf("[AdminBilling] role counts failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error", "message": "Failed to load user counts"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	queue := fiber.Map{"available": false}
	if stats, err := ac.queue.Stats(ctx); err != nil {
		log.Warnf("[AdminBilling] queue stats unavailable: %v", err)
	} else {
		queue = fiber.Map{
			"available":  true,
			"pending":    stats.Pending,
			"processing": stats.Processing,
			"delayed":    stats.Delayed,
			"completed":  stats.Completed,
			"failed":     stats.Failed,
		}
	}

	return c.JSON(fiber.Map{
		"users": fiber.Map{
			"total":   total,
			"user":    counts[models.ROLE_USER],
			"premium": counts[models.ROLE_PREMIUM],
			"admin":   counts[models.ROLE_ADMIN],
		},
		"queue": queue,
	})
}

// HandleGetJob answers GET /api/v1/admin/billing/jobs/:id
func (ac *AdminBillingController) HandleGetJob(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	job, err := ac.queue.GetJob(ctx, c.Params("id"))
	if errors.Is(err, jobqueue.ErrJobNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Job not found or expired"})
	}
	if err != nil {
		log.Errorf("[AdminBilling] job lookup failed: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "queue_unavailable", "message": "Could not load job"})
	}
	return c.JSON(fiber.Map{"job": job})
}

// HandleReconcile answers POST /api/v1/admin/billing/reconcile
func (ac *AdminBillingController) HandleReconcile(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	job, err := ac.scheduler.EnqueueReconcile(ctx)
	if err != nil {
		log.Errorf("[AdminBilling] enqueue reconcile failed: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "queue_unavailable", "message": "Could not schedule reconciliation"})
	}
	if job == nil {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"enqueued": false})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"enqueued": true, "job_id": job.ID})
}
