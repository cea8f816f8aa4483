package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/petitor/internal/common"
	badgerstore "github.com/ternarybob/petitor/internal/storage/badger"
)

func newTestLimiter(t *testing.T, limits []Limit) *Limiter {
	t.Helper()
	logger := common.GetLogger()
	db, err := badgerstore.NewInMemoryDB(logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLimiter(badgerstore.NewKVStorage(db, logger), limits, logger)
}

func TestCheckLimit_WindowExhaustion(t *testing.T) {
	limiter := newTestLimiter(t, []Limit{
		{Name: "tailoring", WindowSeconds: 3600, MaxCount: 2, Scope: ScopeUser},
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		info, err := limiter.CheckLimit(ctx, "tailoring", "user-a")
		require.NoError(t, err)
		assert.True(t, info.Allowed)
		assert.Equal(t, int64(i+1), info.Used)
	}

	info, err := limiter.CheckLimit(ctx, "tailoring", "user-a")
	require.Error(t, err)
	assert.False(t, info.Allowed)
	assert.Greater(t, info.RetryAfter, time.Duration(0))

	var exceeded *LimitExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, "tailoring", exceeded.Name)

	// Other users have their own window
	info, err = limiter.CheckLimit(ctx, "tailoring", "user-b")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
}

func TestCheckLimit_UnknownLimit(t *testing.T) {
	limiter := newTestLimiter(t, nil)
	_, err := limiter.CheckLimit(context.Background(), "nope", "user-a")
	assert.Error(t, err)
}

func TestCheckLimit_ConcurrentAcquireRelease(t *testing.T) {
	limiter := newTestLimiter(t, []Limit{
		{Name: "apps", MaxCount: 1, Scope: ScopeConcurrent},
	})
	ctx := context.Background()

	info, err := limiter.CheckLimit(ctx, "apps", "user-a")
	require.NoError(t, err)
	assert.True(t, info.Allowed)

	_, err = limiter.CheckLimit(ctx, "apps", "user-a")
	require.Error(t, err)

	// Slots are per scope key
	info, err = limiter.CheckLimit(ctx, "apps", "user-b")
	require.NoError(t, err)
	assert.True(t, info.Allowed)

	limiter.Release("apps", "user-a")
	info, err = limiter.CheckLimit(ctx, "apps", "user-a")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
}

func TestRelease_WindowLimitNoOp(t *testing.T) {
	limiter := newTestLimiter(t, []Limit{
		{Name: "searches", WindowSeconds: 3600, MaxCount: 1, Scope: ScopeUser},
	})
	ctx := context.Background()

	_, err := limiter.CheckLimit(ctx, "searches", "user-a")
	require.NoError(t, err)

	// Releasing a window limit never refunds the counter
	limiter.Release("searches", "user-a")
	_, err = limiter.CheckLimit(ctx, "searches", "user-a")
	assert.Error(t, err)
}

func TestGetUserLimits_Snapshot(t *testing.T) {
	limiter := newTestLimiter(t, DefaultLimits(&common.RateLimitConfig{
		ResumeTailoringPerDay:  10,
		JobApplicationsPerDay:  5,
		ConcurrentApplications: 2,
		JobSearchPerDay:        20,
		GeminiPerMinute:        60,
		GeminiPerDay:           1500,
	}))
	ctx := context.Background()

	_, err := limiter.CheckLimit(ctx, LimitResumeTailoringDaily, "user-a")
	require.NoError(t, err)
	_, err = limiter.CheckLimit(ctx, LimitConcurrentApps, "user-a")
	require.NoError(t, err)

	limits, err := limiter.GetUserLimits(ctx, "user-a")
	require.NoError(t, err)

	assert.Equal(t, int64(1), limits[LimitResumeTailoringDaily].Used)
	assert.Equal(t, 10, limits[LimitResumeTailoringDaily].Max)
	assert.Equal(t, int64(1), limits[LimitConcurrentApps].Used)

	// Global-scope limits are not part of a user snapshot
	_, present := limits[LimitGeminiPerMinute]
	assert.False(t, present)
}

func TestIncrementUsage_CountsWithoutAdmission(t *testing.T) {
	limiter := newTestLimiter(t, []Limit{
		{Name: "searches", WindowSeconds: 3600, MaxCount: 2, Scope: ScopeUser},
	})
	ctx := context.Background()

	require.NoError(t, limiter.IncrementUsage(ctx, "searches", "user-a"))
	require.NoError(t, limiter.IncrementUsage(ctx, "searches", "user-a"))

	_, err := limiter.CheckLimit(ctx, "searches", "user-a")
	assert.Error(t, err)
}
