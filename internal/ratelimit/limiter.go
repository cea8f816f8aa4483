package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/interfaces"
)

// Scope determines how a limit's counters are keyed
type Scope string

const (
	ScopeUser       Scope = "user"
	ScopeGlobal     Scope = "global"
	ScopeConcurrent Scope = "concurrent"
)

// Limit defines a named rate limit
type Limit struct {
	Name          string
	WindowSeconds int
	MaxCount      int
	Scope         Scope
}

// Info is the outcome of a limit check
type Info struct {
	Allowed         bool          `json:"allowed"`
	Used            int64         `json:"used"`
	Max             int           `json:"max"`
	RetryAfter      time.Duration `json:"retry_after,omitempty"`
	WindowRemaining time.Duration `json:"window_remaining,omitempty"`
}

// LimitExceededError is returned when a check is denied
type LimitExceededError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit exceeded, try again in %d seconds", e.Name, int(e.RetryAfter.Seconds()))
}

// Limiter enforces fixed-window and concurrent limits. Window counters
// live in the key/value store so they survive restarts; concurrent
// limits are bounded semaphores held in process.
type Limiter struct {
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger

	limits map[string]Limit

	mu      sync.Mutex
	holders map[string]int // "{name}:{scopeKey}" -> live holds
}

// NewLimiter creates a limiter with the given limit table
func NewLimiter(kv interfaces.KeyValueStorage, limits []Limit, logger arbor.ILogger) *Limiter {
	table := make(map[string]Limit, len(limits))
	for _, l := range limits {
		table[l.Name] = l
	}
	return &Limiter{
		kv:      kv,
		logger:  logger,
		limits:  table,
		holders: make(map[string]int),
	}
}

func counterKey(name, scopeKey string) string {
	return fmt.Sprintf("ratelimit:%s:%s", name, scopeKey)
}

// CheckLimit admits or denies one unit of work against the named limit.
// Window-scope checks atomically increment the counter; concurrent-scope
// checks acquire a semaphore slot the caller must Release.
func (l *Limiter) CheckLimit(ctx context.Context, name, scopeKey string) (*Info, error) {
	limit, ok := l.limits[name]
	if !ok {
		return nil, fmt.Errorf("unknown rate limit: %s", name)
	}

	if limit.Scope == ScopeConcurrent {
		return l.acquire(limit, scopeKey)
	}

	window := time.Duration(limit.WindowSeconds) * time.Second
	count, remaining, err := l.kv.IncrementWithTTL(ctx, counterKey(name, scopeKey), window)
	if err != nil {
		// User-scope limits fail closed: a broken store must not grant
		// unmetered access. Global observability counters fail open.
		if limit.Scope == ScopeUser {
			l.logger.Error().Err(err).Str("limit", name).Msg("Rate limit store unavailable, denying")
			return &Info{Allowed: false, Max: limit.MaxCount, RetryAfter: window},
				&LimitExceededError{Name: name, RetryAfter: window}
		}
		l.logger.Warn().Err(err).Str("limit", name).Msg("Rate limit store unavailable, allowing global-scope request")
		return &Info{Allowed: true, Max: limit.MaxCount}, nil
	}

	info := &Info{
		Used:            count,
		Max:             limit.MaxCount,
		WindowRemaining: remaining,
	}

	if count > int64(limit.MaxCount) {
		info.RetryAfter = remaining
		return info, &LimitExceededError{Name: name, RetryAfter: remaining}
	}

	info.Allowed = true
	return info, nil
}

// acquire claims a concurrent-limit slot
func (l *Limiter) acquire(limit Limit, scopeKey string) (*Info, error) {
	key := limit.Name + ":" + scopeKey

	l.mu.Lock()
	defer l.mu.Unlock()

	held := l.holders[key]
	if held >= limit.MaxCount {
		return &Info{Allowed: false, Used: int64(held), Max: limit.MaxCount},
			&LimitExceededError{Name: limit.Name, RetryAfter: 0}
	}

	l.holders[key] = held + 1
	return &Info{Allowed: true, Used: int64(held + 1), Max: limit.MaxCount}, nil
}

// Release returns a concurrent-limit slot. No-op for window limits.
func (l *Limiter) Release(name, scopeKey string) {
	limit, ok := l.limits[name]
	if !ok || limit.Scope != ScopeConcurrent {
		return
	}

	key := name + ":" + scopeKey

	l.mu.Lock()
	defer l.mu.Unlock()

	if held := l.holders[key]; held > 0 {
		l.holders[key] = held - 1
		if l.holders[key] == 0 {
			delete(l.holders, key)
		}
	}
}

// IncrementUsage unconditionally records consumption. Used when admission
// was checked separately from the expensive work actually happening.
func (l *Limiter) IncrementUsage(ctx context.Context, name, scopeKey string) error {
	limit, ok := l.limits[name]
	if !ok {
		return fmt.Errorf("unknown rate limit: %s", name)
	}
	if limit.Scope == ScopeConcurrent {
		return nil
	}

	window := time.Duration(limit.WindowSeconds) * time.Second
	if _, _, err := l.kv.IncrementWithTTL(ctx, counterKey(name, scopeKey), window); err != nil {
		return fmt.Errorf("failed to record usage for %s: %w", name, err)
	}
	return nil
}

// GetUserLimits snapshots every user-scope limit for a user
func (l *Limiter) GetUserLimits(ctx context.Context, userID string) (map[string]Info, error) {
	out := make(map[string]Info)
	for name, limit := range l.limits {
		switch limit.Scope {
		case ScopeUser:
			count, err := l.kv.GetCounter(ctx, counterKey(name, userID))
			if err != nil {
				return nil, fmt.Errorf("failed to read counter for %s: %w", name, err)
			}
			out[name] = Info{
				Allowed: count < int64(limit.MaxCount),
				Used:    count,
				Max:     limit.MaxCount,
			}
		case ScopeConcurrent:
			l.mu.Lock()
			held := l.holders[name+":"+userID]
			l.mu.Unlock()
			out[name] = Info{
				Allowed: held < limit.MaxCount,
				Used:    int64(held),
				Max:     limit.MaxCount,
			}
		}
	}
	return out, nil
}
