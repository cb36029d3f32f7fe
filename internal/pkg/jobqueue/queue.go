package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/AutoMarkt/internal/pkg/cache"
	"github.com/ManuelReschke/AutoMarkt/internal/pkg/mail"
)

const (
	// Redis keys, all under the billing namespace
	JobKeyPrefix  = "billing:jobs:job:"
	PendingKey    = "billing:jobs:pending"
	ProcessingKey = "billing:jobs:processing"
	DelayedKey    = "billing:jobs:delayed" // sorted set, score = due time in unix ms
	StatsKey      = "billing:jobs:stats"

	DefaultMaxRetries = 3
	JobTTL            = 24 * time.Hour
	FinishedJobTTL    = time.Hour // completed jobs stay readable through GetJob

	retryBaseDelay = 30 * time.Second
	stuckAfter     = 10 * time.Minute
	sweepInterval  = 5 * time.Second
)

var (
	// ErrPermanent marks a job failure that retrying cannot fix
	ErrPermanent = errors.New("permanent job failure")
	// ErrJobNotFound is returned by GetJob for unknown or expired jobs
	ErrJobNotFound = errors.New("job not found")
)

// Stats is a snapshot of the queue
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// Queue runs billing jobs from Redis with a fixed set of workers
type Queue struct {
	client  *redis.Client
	workers int
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	depsMu     sync.RWMutex
	mailer     mail.Sender
	reconciler EntitlementReconciler
}

// NewQueue creates a job queue on the shared cache client
func NewQueue(workers int) *Queue {
	return NewQueueWithClient(cache.GetClient(), workers)
}

// NewQueueWithClient creates a job queue on the given Redis client
func NewQueueWithClient(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = 3
	}
	return &Queue{
		client:  client,
		workers: workers,
		stopCh:  make(chan struct{}),
	}
}

// SetMailer sets the sender used by notification jobs
func (q *Queue) SetMailer(m mail.Sender) {
	q.depsMu.Lock()
	defer q.depsMu.Unlock()
	q.mailer = m
}

// SetReconciler sets the target of reconcile jobs
func (q *Queue) SetReconciler(r EntitlementReconciler) {
	q.depsMu.Lock()
	defer q.depsMu.Unlock()
	q.reconciler = r
}

func (q *Queue) getMailer() mail.Sender {
	q.depsMu.RLock()
	defer q.depsMu.RUnlock()
	return q.mailer
}

func (q *Queue) getReconciler() EntitlementReconciler {
	q.depsMu.RLock()
	defer q.depsMu.RUnlock()
	return q.reconciler
}

// Start launches the workers and the sweeper
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i, q.stopCh)
	}
	q.wg.Add(1)
	go q.sweeper(q.stopCh)
}

// Stop signals the workers and waits for in-flight jobs
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}
	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

func (q *Queue) worker(id int, stopCh <-chan struct{}) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Worker %d started", id)
	ctx := context.Background()

	for {
		select {
		case <-stopCh:
			log.Infof("[JobQueue] Worker %d stopping", id)
			return
		default:
		}

		job, err := q.dequeue(ctx)
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Errorf("[JobQueue] Worker %d: dequeue failed: %v", id, err)
				time.Sleep(time.Second)
			}
			continue
		}
		log.Infof("[JobQueue] Worker %d processing job %s (%s)", id, job.ID, job.Type)
		q.processJob(ctx, job)
	}
}

// sweeper moves due retries back to pending and recovers jobs a crashed worker left behind
func (q *Queue) sweeper(stopCh <-chan struct{}) {
	defer q.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	ctx := context.Background()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			if _, err := q.promoteDue(ctx, now); err != nil {
				log.Errorf("[JobQueue] Promoting delayed jobs failed: %v", err)
			}
			if err := q.recoverStuck(ctx, now); err != nil {
				log.Errorf("[JobQueue] Recovering stuck jobs failed: %v", err)
			}
		}
	}
}

// promoteDue pushes delayed jobs whose retry time has come onto the pending list.
// ZRem decides ownership, so concurrent instances never promote a job twice.
func (q *Queue) promoteDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, DelayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, DelayedKey, id).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, PendingKey, id).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

func (q *Queue) recoverStuck(ctx context.Context, now time.Time) error {
	ids, err := q.client.LRange(ctx, ProcessingKey, 0, -1).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil {
			// expired or unreadable, nothing left to run
			_ = q.client.LRem(ctx, ProcessingKey, 1, id).Err()
			continue
		}
		if job.Status != JobStatusProcessing || job.ProcessedAt == nil || now.Sub(*job.ProcessedAt) < stuckAfter {
			continue
		}
		log.Warnf("[JobQueue] Recovering job %s (%s) stuck for %s", job.ID, job.Type, now.Sub(*job.ProcessedAt))
		job.Status = JobStatusPending
		job.ErrorMsg = "recovered after worker stopped responding"
		job.UpdatedAt = now
		if _, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			q.saveJob(ctx, pipe, job, JobTTL)
			pipe.LRem(ctx, ProcessingKey, 1, id)
			pipe.RPush(ctx, PendingKey, id)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// Enqueue stores a new job and puts it on the pending list
func (q *Queue) Enqueue(ctx context.Context, jobType JobType, payload any) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", jobType, err)
	}

	now := time.Now()
	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    raw,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: DefaultMaxRetries,
	}

	if _, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		q.saveJob(ctx, pipe, job, JobTTL)
		pipe.LPush(ctx, PendingKey, job.ID)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("enqueue %s job: %w", jobType, err)
	}

	log.Infof("[JobQueue] Enqueued job %s (%s)", job.ID, job.Type)
	return job, nil
}

func (q *Queue) dequeue(ctx context.Context) (*Job, error) {
	id, err := q.client.BLMove(ctx, PendingKey, ProcessingKey, "RIGHT", "LEFT", time.Second).Result()
	if err != nil {
		return nil, err
	}
	job, err := q.GetJob(ctx, id)
	if err != nil {
		q.client.LRem(ctx, ProcessingKey, 1, id)
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return job, nil
}

func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	if _, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		q.saveJob(ctx, pipe, job, JobTTL)
		return nil
	}); err != nil {
		log.Errorf("[JobQueue] Failed to mark job %s processing: %v", job.ID, err)
	}

	var err error
	switch job.Type {
	case JobTypeSendNotification:
		err = q.processNotificationJob(ctx, job)
	case JobTypeReconcileEntitlements:
		err = q.processReconcileJob(ctx, job)
	default:
		err = fmt.Errorf("%w: unknown job type %s", ErrPermanent, job.Type)
	}

	if _, perr := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, ProcessingKey, 1, job.ID)
		q.finish(ctx, pipe, job, err)
		return nil
	}); perr != nil {
		log.Errorf("[JobQueue] Failed to record result of job %s: %v", job.ID, perr)
	}
}

// finish records the job outcome: completed, scheduled for retry, or failed
func (q *Queue) finish(ctx context.Context, pipe redis.Pipeliner, job *Job, err error) {
	if err == nil {
		log.Infof("[JobQueue] Job %s completed", job.ID)
		job.MarkAsCompleted()
		q.saveJob(ctx, pipe, job, FinishedJobTTL)
		pipe.HIncrBy(ctx, StatsKey, string(JobStatusCompleted), 1)
		return
	}

	log.Errorf("[JobQueue] Job %s failed: %v", job.ID, err)
	job.MarkAsFailed(err.Error())
	if errors.Is(err, ErrPermanent) {
		job.RetryCount = job.MaxRetries
	}
	if !job.IsRetryable() {
		log.Errorf("[JobQueue] Job %s gave up after %d attempts", job.ID, job.RetryCount)
		q.saveJob(ctx, pipe, job, JobTTL)
		pipe.HIncrBy(ctx, StatsKey, string(JobStatusFailed), 1)
		return
	}

	due := time.Now().Add(retryDelay(job.RetryCount))
	log.Infof("[JobQueue] Retrying job %s at %s (attempt %d/%d)", job.ID, due.Format(time.RFC3339), job.RetryCount, job.MaxRetries)
	job.MarkAsRetrying()
	q.saveJob(ctx, pipe, job, JobTTL)
	pipe.ZAdd(ctx, DelayedKey, redis.Z{Score: float64(due.UnixMilli()), Member: job.ID})
}

// retryDelay doubles per attempt: 30s, 1m, 2m, ...
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return retryBaseDelay << (attempt - 1)
}

func (q *Queue) saveJob(ctx context.Context, pipe redis.Pipeliner, job *Job, ttl time.Duration) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}
	pipe.Set(ctx, JobKeyPrefix+job.ID, data, ttl)
}

// GetJob loads a job by id. Completed jobs stay readable for FinishedJobTTL.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, JobKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// Stats reads the list sizes and the finished-job counters in one round trip
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var (
		pending, processing, delayed *redis.IntCmd
		counters                     *redis.MapStringStringCmd
	)
	if _, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pending = pipe.LLen(ctx, PendingKey)
		processing = pipe.LLen(ctx, ProcessingKey)
		delayed = pipe.ZCard(ctx, DelayedKey)
		counters = pipe.HGetAll(ctx, StatsKey)
		return nil
	}); err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Delayed:    delayed.Val(),
	}
	c := counters.Val()
	stats.Completed, _ = strconv.ParseInt(c[string(JobStatusCompleted)], 10, 64)
	stats.Failed, _ = strconv.ParseInt(c[string(JobStatusFailed)], 10, 64)
	return stats, nil
}
