package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/common"
	"github.com/ternarybob/petitor/internal/interfaces"
	"github.com/ternarybob/petitor/internal/models"
	"golang.org/x/time/rate"
)

// ErrQuotaExceeded is returned when a reservation would exceed the budget
var ErrQuotaExceeded = errors.New("gemini quota exceeded")

// reservationTTL bounds how long a crashed holder can block the budget
const reservationTTL = 60 * time.Second

const (
	minuteCounterKey = "quota:gemini:minute"
	dayCounterKey    = "quota:gemini:day"
)

// Reservation is a short-lived claim on the per-minute budget
type Reservation struct {
	ReservationID string             `json:"reservation_id"`
	UserID        string             `json:"user_id"`
	Priority      models.JobPriority `json:"priority"`
	ReservedAt    time.Time          `json:"reserved_at"`
	ExpiresAt     time.Time          `json:"expires_at"`
}

// Info snapshots quota state for diagnostics and error messages
type Info struct {
	MinuteUsed   int64 `json:"minute_used"`
	MinuteLive   int   `json:"minute_live"` // in-flight reservations
	MinuteMax    int   `json:"minute_max"`
	DayUsed      int64 `json:"day_used"`
	DayMax       int   `json:"day_max"`
	Reservations int   `json:"reservations"`
}

// Manager implements the reservation protocol over the global Gemini
// budget. In-flight reservations count toward the per-minute cap; actual
// consumption is recorded on release. A rate.Limiter smooths admitted
// reservations across the minute window.
type Manager struct {
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger

	perMinute int
	perDay    int
	headroom  int

	pacer *rate.Limiter

	mu           sync.Mutex
	reservations map[string]*Reservation
}

// NewManager creates a Gemini quota manager from configuration
func NewManager(kv interfaces.KeyValueStorage, cfg *common.RateLimitConfig, logger arbor.ILogger) *Manager {
	perMinute := cfg.GeminiPerMinute
	if perMinute <= 0 {
		perMinute = 15
	}
	perDay := cfg.GeminiPerDay
	if perDay <= 0 {
		perDay = 1500
	}

	return &Manager{
		kv:           kv,
		logger:       logger,
		perMinute:    perMinute,
		perDay:       perDay,
		headroom:     cfg.PriorityHeadroom,
		pacer:        rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		reservations: make(map[string]*Reservation),
	}
}

// gcExpired drops reservations past their expiry. Must hold m.mu.
// Runs on every admission check so a crashed handler cannot permanently
// starve the budget.
func (m *Manager) gcExpired() {
	now := time.Now()
	for id, r := range m.reservations {
		if now.After(r.ExpiresAt) {
			delete(m.reservations, id)
			m.logger.Warn().
				Str("reservation_id", id).
				Str("user_id", r.UserID).
				Msg("Expired quota reservation garbage-collected")
		}
	}
}

// CanMakeRequest reports whether a request would currently be admitted
func (m *Manager) CanMakeRequest(ctx context.Context) (bool, *Info, error) {
	m.mu.Lock()
	m.gcExpired()
	live := len(m.reservations)
	m.mu.Unlock()

	minuteUsed, err := m.kv.GetCounter(ctx, minuteCounterKey)
	if err != nil {
		return false, nil, fmt.Errorf("failed to read minute counter: %w", err)
	}
	dayUsed, err := m.kv.GetCounter(ctx, dayCounterKey)
	if err != nil {
		return false, nil, fmt.Errorf("failed to read day counter: %w", err)
	}

	info := &Info{
		MinuteUsed:   minuteUsed,
		MinuteLive:   live,
		MinuteMax:    m.perMinute,
		DayUsed:      dayUsed,
		DayMax:       m.perDay,
		Reservations: live,
	}

	ok := minuteUsed+int64(live) < int64(m.perMinute) && dayUsed < int64(m.perDay)
	return ok, info, nil
}

// ReserveQuota claims one slot of the per-minute budget. High-priority
// callers may overcommit by the configured head-room margin. Admitted
// callers are paced through the request-rate smoother before the
// reservation is handed out, so back-to-back sends spread across the
// minute window instead of bursting its head.
func (m *Manager) ReserveQuota(ctx context.Context, userID string, priority models.JobPriority) (string, error) {
	minuteUsed, err := m.kv.GetCounter(ctx, minuteCounterKey)
	if err != nil {
		return "", fmt.Errorf("failed to read minute counter: %w", err)
	}
	dayUsed, err := m.kv.GetCounter(ctx, dayCounterKey)
	if err != nil {
		return "", fmt.Errorf("failed to read day counter: %w", err)
	}

	m.mu.Lock()
	m.gcExpired()

	cap := int64(m.perMinute)
	if priority <= models.PriorityHigh {
		cap += int64(m.headroom)
	}

	if dayUsed >= int64(m.perDay) {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: daily budget exhausted (%d/%d)", ErrQuotaExceeded, dayUsed, m.perDay)
	}
	if minuteUsed+int64(len(m.reservations)) >= cap {
		reserved := len(m.reservations)
		m.mu.Unlock()
		return "", fmt.Errorf("%w: per-minute budget exhausted (%d used, %d reserved, cap %d)",
			ErrQuotaExceeded, minuteUsed, reserved, cap)
	}

	r := &Reservation{
		ReservationID: common.NewReservationID(),
		UserID:        userID,
		Priority:      priority,
		ReservedAt:    time.Now(),
		ExpiresAt:     time.Now().Add(reservationTTL),
	}
	m.reservations[r.ReservationID] = r
	live := len(m.reservations)
	m.mu.Unlock()

	// The wait happens outside m.mu so paced callers do not block
	// releases or admission checks.
	if err := m.pacer.Wait(ctx); err != nil {
		m.mu.Lock()
		delete(m.reservations, r.ReservationID)
		m.mu.Unlock()
		return "", fmt.Errorf("quota pacing interrupted: %w", err)
	}

	m.logger.Debug().
		Str("reservation_id", r.ReservationID).
		Str("user_id", userID).
		Int("live_reservations", live).
		Msg("Gemini quota reserved")

	return r.ReservationID, nil
}

// ReleaseQuota forgets the reservation and records actual consumption
// against the per-minute and per-day counters. Safe to call for an
// already-expired reservation.
func (m *Manager) ReleaseQuota(ctx context.Context, reservationID string) error {
	m.mu.Lock()
	_, found := m.reservations[reservationID]
	delete(m.reservations, reservationID)
	m.mu.Unlock()

	if !found {
		m.logger.Debug().Str("reservation_id", reservationID).Msg("Release for unknown or expired reservation")
	}

	if _, _, err := m.kv.IncrementWithTTL(ctx, minuteCounterKey, time.Minute); err != nil {
		return fmt.Errorf("failed to record minute consumption: %w", err)
	}
	if _, _, err := m.kv.IncrementWithTTL(ctx, dayCounterKey, 24*time.Hour); err != nil {
		return fmt.Errorf("failed to record day consumption: %w", err)
	}
	return nil
}

// LiveReservations returns the number of unexpired reservations
func (m *Manager) LiveReservations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gcExpired()
	return len(m.reservations)
}
