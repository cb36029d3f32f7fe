package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AutoMarkt/internal/pkg/env"
	"github.com/ManuelReschke/AutoMarkt/internal/pkg/mail"
)

const (
	defaultWorkerCount       = 5
	defaultReconcileInterval = 30 * time.Minute

	// ReconcileLockKey keeps several app instances from enqueueing the same sweep
	ReconcileLockKey = "billing:reconcile:lock"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue             *Queue
	reconcileInterval time.Duration
	reconcileTicker   *time.Ticker
	stopCh            chan struct{}
	wg                sync.WaitGroup
	mu                sync.Mutex
	running           bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			queue:             NewQueue(env.GetEnvInt("JOBQUEUE_WORKERS", defaultWorkerCount)),
			reconcileInterval: defaultReconcileInterval,
			stopCh:            make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Configure wires the job handlers. A non-positive interval keeps the current one.
func (m *Manager) Configure(mailer mail.Sender, reconciler EntitlementReconciler, interval time.Duration) {
	m.queue.SetMailer(mailer)
	m.queue.SetReconciler(reconciler)

	m.mu.Lock()
	defer m.mu.Unlock()
	if interval > 0 {
		m.reconcileInterval = interval
	}
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.queue.getReconciler() != nil {
		m.reconcileTicker = time.NewTicker(m.reconcileInterval)
		m.wg.Add(1)
		go m.reconcileWorker(m.stopCh, m.reconcileTicker.C)
	} else {
		log.Warn("[JobQueue Manager] No entitlement reconciler configured; sweep disabled")
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.reconcileTicker != nil {
		m.reconcileTicker.Stop()
		m.reconcileTicker = nil
	}

	close(m.stopCh)
	m.stopCh = nil
	m.running = false

	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// reconcileWorker periodically enqueues an entitlement reconciliation sweep
func (m *Manager) reconcileWorker(stopCh <-chan struct{}, tick <-chan time.Time) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started reconcile worker (interval: %s)", m.reconcileInterval)

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Reconcile worker stopping")
			return
		case <-tick:
			if _, err := m.EnqueueReconcile(context.Background()); err != nil {
				log.Errorf("[JobQueue Manager] Error enqueueing reconcile sweep: %v", err)
			}
		}
	}
}

// EnqueueReconcile schedules one reconciliation sweep unless another instance
// already did so within the current interval. A nil job means the sweep was skipped.
func (m *Manager) EnqueueReconcile(ctx context.Context) (*Job, error) {
	ttl := m.reconcileInterval / 2
	if ttl <= 0 {
		ttl = time.Minute
	}
	acquired, err := m.queue.client.SetNX(ctx, ReconcileLockKey, "1", ttl).Result()
	if err != nil {
		return nil, err
	}
	if !acquired {
		log.Debug("[JobQueue Manager] Reconcile sweep already scheduled elsewhere")
		return nil, nil
	}
	job, err := m.queue.Enqueue(ctx, JobTypeReconcileEntitlements, struct{}{})
	if err != nil {
		// release the lock so the next tick or an admin can try again
		_ = m.queue.client.Del(ctx, ReconcileLockKey).Err()
		return nil, err
	}
	return job, nil
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
