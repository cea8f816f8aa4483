package browser

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/common"
)

// Session is a live browser context owned by one user. Each session runs
// against a persistent profile directory so login cookies survive between
// applications.
type Session struct {
	UserID string

	ctx             context.Context
	cancel          context.CancelFunc
	allocatorCancel context.CancelFunc

	inUse     bool
	lastUsed  time.Time
	createdAt time.Time
}

// Context returns the chromedp context for running browser actions
func (s *Session) Context() context.Context {
	return s.ctx
}

// Pool manages browser sessions up to a configured capacity. Sessions are
// checked out exclusively: a form fill owns its tab until released. Idle
// sessions are kept warm per user and evicted oldest-first when the pool
// is full.
type Pool struct {
	config      common.BrowserConfig
	sessionsDir string
	logger      arbor.ILogger

	mu       sync.Mutex
	sessions map[string]*Session
	shutdown bool
}

// NewPool creates a browser session pool. Sessions are created lazily on
// first acquire.
func NewPool(config common.BrowserConfig, sessionsDir string, logger arbor.ILogger) (*Pool, error) {
	if config.MaxSessions <= 0 {
		return nil, fmt.Errorf("max_sessions must be greater than 0, got: %d", config.MaxSessions)
	}
	if config.MaxSessions > 20 {
		logger.Warn().
			Int("max_sessions", config.MaxSessions).
			Msg("Large browser pool size detected - this may consume significant memory")
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
		logger.Debug().Msg("Using default user agent")
	}
	config.UserAgent = userAgent

	logger.Info().
		Int("max_sessions", config.MaxSessions).
		Bool("headless", config.Headless).
		Str("sessions_dir", sessionsDir).
		Msg("Browser session pool initialized")

	return &Pool{
		config:      config,
		sessionsDir: sessionsDir,
		logger:      logger,
		sessions:    make(map[string]*Session),
	}, nil
}

// Acquire checks out the user's session, creating it if needed. Returns
// an error if the user's session is already in use or the pool is at
// capacity with no idle session to evict.
func (p *Pool) Acquire(ctx context.Context, userID string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return nil, fmt.Errorf("browser pool is shut down")
	}

	if s, ok := p.sessions[userID]; ok {
		if s.inUse {
			return nil, fmt.Errorf("browser session for user %s is already in use", userID)
		}
		// Verify the warm session still responds before handing it out
		if err := p.probeSession(s); err != nil {
			p.logger.Warn().
				Err(err).
				Str("user_id", userID).
				Msg("Warm browser session unresponsive, recreating")
			p.destroySession(s)
			delete(p.sessions, userID)
		} else {
			s.inUse = true
			s.lastUsed = time.Now()
			p.logger.Debug().Str("user_id", userID).Msg("Reusing warm browser session")
			return s, nil
		}
	}

	if len(p.sessions) >= p.config.MaxSessions {
		if !p.evictIdleLocked() {
			return nil, fmt.Errorf("browser pool at capacity (%d sessions, none idle)", p.config.MaxSessions)
		}
	}

	s, err := p.createSession(userID)
	if err != nil {
		return nil, err
	}

	s.inUse = true
	p.sessions[userID] = s
	return s, nil
}

// Release returns the user's session to the pool. The browser stays warm
// for the next acquire.
func (p *Pool) Release(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[userID]
	if !ok {
		return
	}

	s.inUse = false
	s.lastUsed = time.Now()
	p.logger.Debug().Str("user_id", userID).Msg("Browser session released")
}

// Discard destroys the user's session outright. Used when a fill leaves
// the page in an unknown state.
func (p *Pool) Discard(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[userID]
	if !ok {
		return
	}

	p.destroySession(s)
	delete(p.sessions, userID)
	p.logger.Debug().Str("user_id", userID).Msg("Browser session discarded")
}

// evictIdleLocked removes the least recently used idle session. Must hold
// p.mu. Returns false if every session is in use.
func (p *Pool) evictIdleLocked() bool {
	var victim *Session
	for _, s := range p.sessions {
		if s.inUse {
			continue
		}
		if victim == nil || s.lastUsed.Before(victim.lastUsed) {
			victim = s
		}
	}
	if victim == nil {
		return false
	}

	p.destroySession(victim)
	delete(p.sessions, victim.UserID)
	p.logger.Debug().
		Str("user_id", victim.UserID).
		Msg("Idle browser session evicted")
	return true
}

// createSession starts a browser with the user's persistent profile
func (p *Pool) createSession(userID string) (*Session, error) {
	startTime := time.Now()

	profileDir := filepath.Join(p.sessionsDir, userID)

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.config.Headless),
		chromedp.Flag("disable-gpu", p.config.DisableGPU),
		chromedp.Flag("no-sandbox", p.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", false),
		chromedp.Flag("disable-backgrounding-occluded-windows", false),
		chromedp.Flag("disable-renderer-backgrounding", false),
		chromedp.UserDataDir(profileDir),
		chromedp.UserAgent(p.config.UserAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(
		context.Background(),
		allocatorOpts...,
	)

	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	testTimeout := 30 * time.Second
	if p.config.RequestTimeout > 0 {
		testTimeout = p.config.RequestTimeout
	}

	testCtx, testCancel := context.WithTimeout(browserCtx, testTimeout)
	defer testCancel()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browser session failed startup test: %w", err)
	}

	var title string
	if err := chromedp.Run(testCtx, chromedp.Title(&title)); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browser session failed responsiveness test: %w", err)
	}

	s := &Session{
		UserID:          userID,
		ctx:             browserCtx,
		cancel:          browserCancel,
		allocatorCancel: allocatorCancel,
		lastUsed:        time.Now(),
		createdAt:       time.Now(),
	}

	p.logger.Debug().
		Str("user_id", userID).
		Str("profile_dir", profileDir).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser session created")

	return s, nil
}

// probeSession checks a warm session still answers CDP commands
func (p *Pool) probeSession(s *Session) error {
	probeCtx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	var title string
	return chromedp.Run(probeCtx, chromedp.Title(&title))
}

// destroySession tears down a session's contexts. Must hold p.mu.
func (p *Pool) destroySession(s *Session) {
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocatorCancel != nil {
		s.allocatorCancel()
	}
}

// Shutdown destroys every session. Cleanup is bounded so a wedged browser
// cannot hang process exit.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return nil
	}
	p.shutdown = true

	startTime := time.Now()
	sessionCount := len(p.sessions)

	p.logger.Info().
		Int("session_count", sessionCount).
		Msg("Shutting down browser session pool")

	done := make(chan struct{})
	go func() {
		for _, s := range p.sessions {
			p.destroySession(s)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		p.logger.Warn().
			Int("session_count", sessionCount).
			Msg("Browser pool shutdown timed out")
	}

	p.sessions = make(map[string]*Session)

	p.logger.Info().
		Int("sessions_shutdown", sessionCount).
		Dur("shutdown_time", time.Since(startTime)).
		Msg("Browser session pool shut down")

	return nil
}

// Stats returns pool occupancy for diagnostics
func (p *Pool) Stats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := 0
	for _, s := range p.sessions {
		if s.inUse {
			active++
		}
	}

	return map[string]interface{}{
		"max_sessions":  p.config.MaxSessions,
		"live_sessions": len(p.sessions),
		"in_use":        active,
	}
}
