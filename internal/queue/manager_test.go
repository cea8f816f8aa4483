package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/petitor/internal/common"
	"github.com/ternarybob/petitor/internal/models"
	badgerstore "github.com/ternarybob/petitor/internal/storage/badger"
)

func newTestManager(t *testing.T) (*Manager, func()) {
	t.Helper()
	logger := common.GetLogger()
	db, err := badgerstore.NewInMemoryDB(logger)
	require.NoError(t, err)
	kv := badgerstore.NewKVStorage(db, logger)
	mgr := NewManager(db, kv, 2, logger)
	return mgr, func() { db.Close() }
}

func TestSubmitAndPop_PriorityOrdering(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	clock := base
	mgr.now = func() time.Time { return clock }

	low, err := mgr.Submit(ctx, "user-a", models.JobTypeJobSearch, nil, models.PriorityLow, nil, 0)
	require.NoError(t, err)

	clock = base.Add(time.Second)
	critical, err := mgr.Submit(ctx, "user-b", models.JobTypeJobSearch, nil, models.PriorityCritical, nil, 0)
	require.NoError(t, err)

	clock = base.Add(2 * time.Second)
	normal, err := mgr.Submit(ctx, "user-c", models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
	require.NoError(t, err)

	// Despite submission order low, critical, normal, dispatch order
	// follows priority.
	first, err := mgr.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, critical.JobID, first.JobID)

	second, err := mgr.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, normal.JobID, second.JobID)

	third, err := mgr.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, low.JobID, third.JobID)

	_, err = mgr.Pop(ctx)
	assert.ErrorIs(t, err, ErrNoJob)
}

func TestSubmitAndPop_FIFOWithinPriority(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	var order []string
	for i, user := range []string{"u1", "u2", "u3"} {
		clock := base.Add(time.Duration(i) * time.Second)
		mgr.now = func() time.Time { return clock }
		job, err := mgr.Submit(ctx, user, models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
		require.NoError(t, err)
		order = append(order, job.JobID)
	}

	for _, want := range order {
		got, err := mgr.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got.JobID)
	}
}

func TestSubmit_PerUserCap(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := mgr.Submit(ctx, "user-a", models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
		require.NoError(t, err)
	}

	_, err := mgr.Submit(ctx, "user-a", models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserCapReached)
	assert.Contains(t, err.Error(), "reached maximum concurrent jobs limit (2)")

	// The denied submit mutated nothing
	stats, err := mgr.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalQueued)

	userJobs, err := mgr.UserJobs(ctx, "user-a")
	require.NoError(t, err)
	assert.Len(t, userJobs, 2)

	// A different user is unaffected
	_, err = mgr.Submit(ctx, "user-b", models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
	assert.NoError(t, err)
}

func TestSubmit_ConcurrentSubmitsHonorCap(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()

	// Racing submits for one user must not overshoot the cap of 2
	const attempts = 10
	var wg sync.WaitGroup
	var accepted atomic.Int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Submit(ctx, "user-a", models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
			if err == nil {
				accepted.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrUserCapReached)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), accepted.Load())

	stats, err := mgr.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalQueued)

	userJobs, err := mgr.UserJobs(ctx, "user-a")
	require.NoError(t, err)
	assert.Len(t, userJobs, 2)
}

func TestSubmit_CapCountsActiveJobs(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()

	job1, err := mgr.Submit(ctx, "user-a", models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
	require.NoError(t, err)
	_, err = mgr.Submit(ctx, "user-a", models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
	require.NoError(t, err)

	// Claiming job1 moves it queued -> active; the cap still counts it
	popped, err := mgr.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, job1.JobID, popped.JobID)

	_, err = mgr.Submit(ctx, "user-a", models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
	assert.ErrorIs(t, err, ErrUserCapReached)

	// Finishing frees a slot
	now := time.Now()
	require.NoError(t, mgr.Finish(ctx, &models.JobResult{
		JobID:       job1.JobID,
		Status:      models.JobStatusCompleted,
		CompletedAt: &now,
	}))
	_, err = mgr.Submit(ctx, "user-a", models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
	assert.NoError(t, err)
}

func TestStatus_Precedence(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()

	job, err := mgr.Submit(ctx, "user-a", models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
	require.NoError(t, err)

	status, err := mgr.Status(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, status)

	_, err = mgr.Pop(ctx)
	require.NoError(t, err)
	status, err = mgr.Status(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, status)

	now := time.Now()
	require.NoError(t, mgr.Finish(ctx, &models.JobResult{
		JobID:       job.JobID,
		Status:      models.JobStatusCompleted,
		CompletedAt: &now,
	}))
	status, err = mgr.Status(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, status)

	status, err = mgr.Status(ctx, "job_nonexistent")
	require.NoError(t, err)
	assert.Empty(t, status)
}

func TestCancel_QueuedJob(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()

	job, err := mgr.Submit(ctx, "user-a", models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
	require.NoError(t, err)

	// Only the owner can cancel
	err = mgr.Cancel(ctx, job.JobID, "user-b")
	assert.ErrorContains(t, err, "not owned")

	require.NoError(t, mgr.Cancel(ctx, job.JobID, "user-a"))

	status, err := mgr.Status(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, status)

	// The job never dispatches
	_, err = mgr.Pop(ctx)
	assert.ErrorIs(t, err, ErrNoJob)
}

func TestCancel_RunningJobSetsSignal(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()

	job, err := mgr.Submit(ctx, "user-a", models.JobTypeJobApplication, nil, models.PriorityNormal, nil, 0)
	require.NoError(t, err)
	_, err = mgr.Pop(ctx)
	require.NoError(t, err)

	assert.False(t, mgr.IsCancelled(ctx, job.JobID))
	require.NoError(t, mgr.Cancel(ctx, job.JobID, "user-a"))
	assert.True(t, mgr.IsCancelled(ctx, job.JobID))

	// The worker's cleanup path clears the signal and the active entry,
	// freeing the user's slot immediately.
	now := time.Now()
	require.NoError(t, mgr.Finish(ctx, &models.JobResult{
		JobID:       job.JobID,
		Status:      models.JobStatusCancelled,
		CompletedAt: &now,
	}))
	assert.False(t, mgr.IsCancelled(ctx, job.JobID))
	assert.Equal(t, 0, mgr.ActiveCount())

	_, err = mgr.Submit(ctx, "user-a", models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
	assert.NoError(t, err)
}

func TestPop_ScheduledJobHoldsPlace(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time { return base }

	future := base.Add(time.Hour)
	job, err := mgr.Submit(ctx, "user-a", models.JobTypeJobSearch, nil, models.PriorityNormal, &future, 0)
	require.NoError(t, err)

	_, err = mgr.Pop(ctx)
	assert.ErrorIs(t, err, ErrNoJob)

	mgr.now = func() time.Time { return base.Add(2 * time.Hour) }
	popped, err := mgr.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.JobID, popped.JobID)
}

func TestStats_PerPriorityBreakdown(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()

	_, err := mgr.Submit(ctx, "u1", models.JobTypeJobSearch, nil, models.PriorityCritical, nil, 0)
	require.NoError(t, err)
	_, err = mgr.Submit(ctx, "u2", models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
	require.NoError(t, err)
	_, err = mgr.Submit(ctx, "u3", models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
	require.NoError(t, err)

	stats, err := mgr.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalQueued)
	assert.Equal(t, 0, stats.TotalActive)
	assert.Equal(t, 1, stats.ByPriority[models.PriorityCritical])
	assert.Equal(t, 2, stats.ByPriority[models.PriorityNormal])
}

func TestUserJobs_NewestFirst(t *testing.T) {
	mgr, cleanup := newTestManager(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	clock := base
	mgr.now = func() time.Time { return clock }

	first, err := mgr.Submit(ctx, "user-a", models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
	require.NoError(t, err)
	clock = base.Add(time.Minute)
	second, err := mgr.Submit(ctx, "user-a", models.JobTypeJobSearch, nil, models.PriorityNormal, nil, 0)
	require.NoError(t, err)

	listed, err := mgr.UserJobs(ctx, "user-a")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, second.JobID, listed[0].Job.JobID)
	assert.Equal(t, first.JobID, listed[1].Job.JobID)
}
