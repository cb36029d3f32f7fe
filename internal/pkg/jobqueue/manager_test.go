package jobqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetManagerSingleton() {
	globalManager = nil
	managerOnce = sync.Once{}
}

func TestGetManager(t *testing.T) {
	resetManagerSingleton()

	manager1 := GetManager()
	manager2 := GetManager()

	assert.NotNil(t, manager1)
	assert.Same(t, manager1, manager2, "GetManager should return the same instance")

	assert.NotNil(t, manager1.queue)
	assert.NotNil(t, manager1.stopCh)
	assert.False(t, manager1.running)
	assert.Equal(t, defaultReconcileInterval, manager1.reconcileInterval)
}

func TestGetManager_WorkerCountFromEnv(t *testing.T) {
	t.Setenv("JOBQUEUE_WORKERS", "2")
	resetManagerSingleton()
	defer resetManagerSingleton()

	assert.Equal(t, 2, GetManager().queue.workers)
}

func TestManager_Configure(t *testing.T) {
	m := &Manager{queue: NewQueueWithClient(nil, 1), reconcileInterval: defaultReconcileInterval}
	sender := &fakeSender{}
	reconciler := &fakeReconciler{}

	m.Configure(sender, reconciler, 10*time.Minute)
	assert.Same(t, sender, m.queue.getMailer())
	assert.Same(t, reconciler, m.queue.getReconciler())
	assert.Equal(t, 10*time.Minute, m.reconcileInterval)

	m.Configure(sender, reconciler, 0)
	assert.Equal(t, 10*time.Minute, m.reconcileInterval, "zero interval keeps the previous one")
}

func TestManager_IsRunning(t *testing.T) {
	resetManagerSingleton()
	manager := GetManager()

	assert.False(t, manager.IsRunning())

	manager.mu.Lock()
	manager.running = true
	manager.mu.Unlock()
	assert.True(t, manager.IsRunning())

	manager.mu.Lock()
	manager.running = false
	manager.mu.Unlock()
	assert.False(t, manager.IsRunning())
}

func TestManager_StopWithoutStart(t *testing.T) {
	resetManagerSingleton()
	manager := GetManager()

	assert.False(t, manager.IsRunning())
	manager.Stop()
	assert.False(t, manager.IsRunning())
}

func TestManagerSingletonReset(t *testing.T) {
	resetManagerSingleton()
	manager1 := GetManager()

	resetManagerSingleton()
	manager2 := GetManager()

	assert.NotSame(t, manager1, manager2)
}

func TestManager_EnqueueReconcileOncePerInterval(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	ctx := context.Background()

	m := &Manager{queue: NewQueueWithClient(client, 1), reconcileInterval: time.Hour}

	job, err := m.EnqueueReconcile(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobTypeReconcileEntitlements, job.Type)

	again, err := m.EnqueueReconcile(ctx)
	require.NoError(t, err)
	assert.Nil(t, again, "second sweep within the interval is skipped")

	stats, err := m.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
}

func TestManager_StartStopWithReconciler(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	ctx := context.Background()

	reconciler := &fakeReconciler{}
	m := &Manager{queue: NewQueueWithClient(client, 1), reconcileInterval: 50 * time.Millisecond}
	m.Configure(&fakeSender{}, reconciler, 0)

	m.Start()
	assert.True(t, m.IsRunning())
	require.True(t, waitFor(func() bool {
		stats, err := m.queue.Stats(ctx)
		return err == nil && stats.Completed >= 1
	}, 5*time.Second), "reconcile sweep did not run")
	m.Stop()
	assert.False(t, m.IsRunning())
}
