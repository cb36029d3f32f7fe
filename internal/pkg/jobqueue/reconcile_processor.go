package jobqueue

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AutoMarkt/internal/pkg/billing"
)

// EntitlementReconciler repairs drift between subscriptions and user roles
type EntitlementReconciler interface {
	ReconcileEntitlements(ctx context.Context) (billing.ReconcileReport, error)
}

// processReconcileJob runs one entitlement reconciliation sweep
func (q *Queue) processReconcileJob(ctx context.Context, job *Job) error {
	reconciler := q.getReconciler()
	if reconciler == nil {
		return fmt.Errorf("%w: no reconciler configured", ErrPermanent)
	}

	report, err := reconciler.ReconcileEntitlements(ctx)
	if err != nil {
		return fmt.Errorf("reconcile entitlements: %w", err)
	}

	log.Infof("[JobQueue] Reconcile job %s: checked=%d cleared=%d promoted=%d demoted=%d",
		job.ID, report.Checked, report.PointersCleared, report.Promoted, report.Demoted)
	return nil
}
