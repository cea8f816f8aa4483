package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/petitor/internal/common"
	"github.com/ternarybob/petitor/internal/models"
)

func newTestPool(t *testing.T, mgr *Manager) *WorkerPool {
	t.Helper()
	config := DefaultWorkerPoolConfig()
	config.Workers = 2
	config.PollInterval = 10 * time.Millisecond
	return NewWorkerPool(mgr, config, common.GetLogger())
}

func waitForResult(t *testing.T, mgr *Manager, jobID string) *models.JobResult {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("no result for %s within deadline", jobID)
			return nil
		case <-time.After(20 * time.Millisecond):
			result, err := mgr.GetResult(context.Background(), jobID)
			require.NoError(t, err)
			if result != nil {
				return result
			}
		}
	}
}

func TestWorkerPool_RunsHandler(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()

	pool := newTestPool(t, mgr)
	pool.RegisterHandler(models.JobTypeJobSearch, func(ctx context.Context, job *models.JobRequest) (interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	})
	require.NoError(t, pool.Start())
	defer pool.Stop()

	job, err := mgr.Submit(context.Background(), "user-a", models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
	require.NoError(t, err)

	result := waitForResult(t, mgr, job.JobID)
	assert.Equal(t, models.JobStatusCompleted, result.Status)
	assert.NotNil(t, result.StartedAt)
	assert.NotNil(t, result.CompletedAt)
	assert.Equal(t, 0, mgr.ActiveCount())
}

func TestWorkerPool_HandlerErrorFails(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()

	pool := newTestPool(t, mgr)
	pool.RegisterHandler(models.JobTypeJobSearch, func(ctx context.Context, job *models.JobRequest) (interface{}, error) {
		return nil, errors.New("upstream unavailable")
	})
	require.NoError(t, pool.Start())
	defer pool.Stop()

	job, err := mgr.Submit(context.Background(), "user-a", models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
	require.NoError(t, err)

	result := waitForResult(t, mgr, job.JobID)
	assert.Equal(t, models.JobStatusFailed, result.Status)
	assert.Contains(t, result.Error, "upstream unavailable")
	assert.Equal(t, 0, mgr.ActiveCount())
}

func TestWorkerPool_PanicBecomesFailure(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()

	pool := newTestPool(t, mgr)
	pool.RegisterHandler(models.JobTypeJobSearch, func(ctx context.Context, job *models.JobRequest) (interface{}, error) {
		panic("boom")
	})
	require.NoError(t, pool.Start())
	defer pool.Stop()

	job, err := mgr.Submit(context.Background(), "user-a", models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
	require.NoError(t, err)

	result := waitForResult(t, mgr, job.JobID)
	assert.Equal(t, models.JobStatusFailed, result.Status)
	assert.Contains(t, result.Error, "handler panicked")
	assert.Equal(t, 0, mgr.ActiveCount())
}

func TestWorkerPool_UnknownTypeFails(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()

	pool := newTestPool(t, mgr)
	require.NoError(t, pool.Start())
	defer pool.Stop()

	job, err := mgr.Submit(context.Background(), "user-a", models.JobTypeProjectAnalysis, nil, models.PriorityNormal, nil, 0)
	require.NoError(t, err)

	result := waitForResult(t, mgr, job.JobID)
	assert.Equal(t, models.JobStatusFailed, result.Status)
	assert.Contains(t, result.Error, "no handler registered")
}

func TestWorkerPool_CancelBeforeExecution(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()

	handlerRan := false
	pool := newTestPool(t, mgr)
	pool.RegisterHandler(models.JobTypeJobApplication, func(ctx context.Context, job *models.JobRequest) (interface{}, error) {
		handlerRan = true
		return nil, nil
	})

	ctx := context.Background()
	job, err := mgr.Submit(ctx, "user-a", models.JobTypeJobApplication, nil, models.PriorityNormal, nil, 0)
	require.NoError(t, err)

	// Claim and cancel before the pool ever sees the job, then hand it
	// back so a worker picks it up with the signal already set.
	popped, err := mgr.Pop(ctx)
	require.NoError(t, err)
	require.NoError(t, mgr.kv.SetWithTTL(ctx, cancelKey(job.JobID), "1", cancelSignalTTL))
	now := time.Now()
	require.NoError(t, mgr.Finish(ctx, &models.JobResult{JobID: popped.JobID, Status: models.JobStatusCancelled, CompletedAt: &now}))

	result, err := mgr.GetResult(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, result.Status)
	assert.False(t, handlerRan)
	assert.False(t, mgr.IsCancelled(ctx, job.JobID))
}

func TestWorkerPool_TimeoutFor(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()

	pool := newTestPool(t, mgr)
	assert.Equal(t, 10*time.Minute, pool.timeoutFor(&models.JobRequest{JobType: models.JobTypeResumeTailoring}))
	assert.Equal(t, 30*time.Minute, pool.timeoutFor(&models.JobRequest{JobType: models.JobTypeJobApplication}))
	assert.Equal(t, 5*time.Minute, pool.timeoutFor(&models.JobRequest{JobType: models.JobTypeJobSearch}))
	assert.Equal(t, 90*time.Second, pool.timeoutFor(&models.JobRequest{JobType: models.JobTypeJobSearch, TimeoutSeconds: 90}))
}
