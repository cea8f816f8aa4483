package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/petitor/internal/common"
	"github.com/ternarybob/petitor/internal/models"
	badgerstore "github.com/ternarybob/petitor/internal/storage/badger"
	"golang.org/x/time/rate"
)

func newTestManager(t *testing.T, cfg *common.RateLimitConfig) *Manager {
	t.Helper()
	logger := common.GetLogger()
	db, err := badgerstore.NewInMemoryDB(logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mgr := NewManager(badgerstore.NewKVStorage(db, logger), cfg, logger)
	// Budget tests use tiny per-minute caps; disable the send smoother
	// so admissions return immediately.
	mgr.pacer = rate.NewLimiter(rate.Inf, 1)
	return mgr
}

func TestReserveRelease_Lifecycle(t *testing.T) {
	mgr := newTestManager(t, &common.RateLimitConfig{GeminiPerMinute: 3, GeminiPerDay: 100})
	ctx := context.Background()

	id, err := mgr.ReserveQuota(ctx, "user-a", models.PriorityNormal)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, mgr.LiveReservations())

	require.NoError(t, mgr.ReleaseQuota(ctx, id))
	assert.Equal(t, 0, mgr.LiveReservations())

	// Consumption moved from the reservation to the counters
	ok, info, err := mgr.CanMakeRequest(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), info.MinuteUsed)
	assert.Equal(t, int64(1), info.DayUsed)
}

func TestReserveQuota_MinuteBudgetExhausted(t *testing.T) {
	mgr := newTestManager(t, &common.RateLimitConfig{GeminiPerMinute: 2, GeminiPerDay: 100})
	ctx := context.Background()

	_, err := mgr.ReserveQuota(ctx, "user-a", models.PriorityNormal)
	require.NoError(t, err)
	_, err = mgr.ReserveQuota(ctx, "user-a", models.PriorityNormal)
	require.NoError(t, err)

	// Live reservations count against the cap before any call completes
	_, err = mgr.ReserveQuota(ctx, "user-a", models.PriorityNormal)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	ok, _, err := mgr.CanMakeRequest(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReserveQuota_PriorityHeadroom(t *testing.T) {
	mgr := newTestManager(t, &common.RateLimitConfig{GeminiPerMinute: 1, GeminiPerDay: 100, PriorityHeadroom: 1})
	ctx := context.Background()

	_, err := mgr.ReserveQuota(ctx, "user-a", models.PriorityNormal)
	require.NoError(t, err)

	// Normal priority is capped; high priority rides the head-room
	_, err = mgr.ReserveQuota(ctx, "user-b", models.PriorityNormal)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	_, err = mgr.ReserveQuota(ctx, "user-b", models.PriorityHigh)
	assert.NoError(t, err)
}

func TestReserveQuota_DailyBudgetExhausted(t *testing.T) {
	mgr := newTestManager(t, &common.RateLimitConfig{GeminiPerMinute: 10, GeminiPerDay: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		id, err := mgr.ReserveQuota(ctx, "user-a", models.PriorityNormal)
		require.NoError(t, err)
		require.NoError(t, mgr.ReleaseQuota(ctx, id))
	}

	_, err := mgr.ReserveQuota(ctx, "user-a", models.PriorityNormal)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Contains(t, err.Error(), "daily budget exhausted")
}

func TestReserveQuota_SpacesBackToBackAdmissions(t *testing.T) {
	logger := common.GetLogger()
	db, err := badgerstore.NewInMemoryDB(logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// 600/min is a 100ms send interval
	mgr := NewManager(badgerstore.NewKVStorage(db, logger),
		&common.RateLimitConfig{GeminiPerMinute: 600, GeminiPerDay: 10_000}, logger)
	ctx := context.Background()

	start := time.Now()
	_, err = mgr.ReserveQuota(ctx, "user-a", models.PriorityNormal)
	require.NoError(t, err)
	_, err = mgr.ReserveQuota(ctx, "user-a", models.PriorityNormal)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond,
		"second admission should wait for the send interval")
}

func TestReserveQuota_PacingStopsOnCancel(t *testing.T) {
	logger := common.GetLogger()
	db, err := badgerstore.NewInMemoryDB(logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// 1/min: the second admission would wait a full minute
	mgr := NewManager(badgerstore.NewKVStorage(db, logger),
		&common.RateLimitConfig{GeminiPerMinute: 1, GeminiPerDay: 100, PriorityHeadroom: 5}, logger)
	ctx := context.Background()

	_, err = mgr.ReserveQuota(ctx, "user-a", models.PriorityHigh)
	require.NoError(t, err)

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = mgr.ReserveQuota(cancelCtx, "user-a", models.PriorityHigh)
	require.Error(t, err)

	// The interrupted caller holds no slot
	assert.Equal(t, 1, mgr.LiveReservations())
}

func TestReleaseQuota_UnknownReservationStillCounts(t *testing.T) {
	mgr := newTestManager(t, &common.RateLimitConfig{GeminiPerMinute: 5, GeminiPerDay: 100})
	ctx := context.Background()

	require.NoError(t, mgr.ReleaseQuota(ctx, "res_never_issued"))

	_, info, err := mgr.CanMakeRequest(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.MinuteUsed)
}
