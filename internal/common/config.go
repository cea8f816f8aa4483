package common

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueueConfig     `toml:"queue"`
	RateLimits  RateLimitConfig `toml:"rate_limits"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	LLM         LLMConfig       `toml:"llm"`
	Browser     BrowserConfig   `toml:"browser"`
	Backup      BackupConfig    `toml:"backup"`
	Logging     LoggingConfig   `toml:"logging"`
	Tailor      TailorConfig    `toml:"tailor"`
	Discovery   DiscoveryConfig `toml:"discovery"`
	Mimikree    MimikreeConfig  `toml:"mimikree"`
}

type StorageConfig struct {
	Badger     BadgerConfig     `toml:"badger"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type FilesystemConfig struct {
	Resumes  string `toml:"resumes"`  // Directory for resume/cover-letter copies made for uploads
	Sessions string `toml:"sessions"` // Root directory for per-user browser session profiles
}

// QueueConfig contains job queue and worker pool configuration
type QueueConfig struct {
	MaxWorkers           int    `toml:"max_workers"`             // Number of concurrent workers (default: 5)
	MaxConcurrentPerUser int    `toml:"max_concurrent_per_user"` // Max queued+running jobs per user (default: 2)
	PollInterval         string `toml:"poll_interval"`           // e.g., "1s" - how often workers poll for jobs
	ResultTTL            string `toml:"result_ttl"`              // Retention for job requests/results (default: "24h")
	TailoringTimeout     string `toml:"tailoring_timeout"`       // Per-job timeout for resume_tailoring (default: "10m")
	ApplicationTimeout   string `toml:"application_timeout"`     // Per-job timeout for job_application (default: "30m")
	SearchTimeout        string `toml:"search_timeout"`          // Per-job timeout for job_search (default: "5m")
}

// RateLimitConfig contains the numeric caps for the predefined limits.
// Values are environment-dependent and intentionally not hard-coded.
type RateLimitConfig struct {
	ResumeTailoringPerDay  int `toml:"resume_tailoring_per_day"`   // Per-user daily tailoring cap (default: 5)
	JobApplicationsPerDay  int `toml:"job_applications_per_day"`   // Per-user daily application cap (default: 20)
	JobSearchPerDay        int `toml:"job_search_per_day"`         // Per-user daily search cap (default: 10)
	ConcurrentApplications int `toml:"concurrent_applications"`    // Per-user concurrent application sessions (default: 2)
	GeminiPerMinute        int `toml:"gemini_requests_per_minute"` // Global Gemini per-minute budget (default: 15)
	GeminiPerDay           int `toml:"gemini_requests_per_day"`    // Global Gemini per-day budget (default: 1500)
	PriorityHeadroom       int `toml:"priority_headroom"`          // Extra per-minute slots high-priority callers may use (default: 2)
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key
	Model       string  `toml:"model"`       // Model for AI operations (default: "gemini-2.0-flash")
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "2m")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.2)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key
	Model       string  `toml:"model"`       // Model name (default: "claude-sonnet-4-5")
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "2m")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum response tokens (default: 8192)
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.2)
}

// LLMConfig selects the chat provider used for field mapping and review
type LLMConfig struct {
	Provider string `toml:"provider"` // "gemini" (default) or "claude"
}

// BrowserConfig contains chromedp session pool configuration
type BrowserConfig struct {
	MaxSessions    int           `toml:"max_sessions"`    // Maximum concurrent browser sessions
	Headless       bool          `toml:"headless"`        // Run browsers headless
	DisableGPU     bool          `toml:"disable_gpu"`     // Pass --disable-gpu
	NoSandbox      bool          `toml:"no_sandbox"`      // Pass --no-sandbox
	UserAgent      string        `toml:"user_agent"`      // User agent string
	RequestTimeout time.Duration `toml:"request_timeout"` // Navigation/startup timeout
}

// BackupConfig contains backup manager configuration
type BackupConfig struct {
	Enabled           bool     `toml:"enabled"`
	Dir               string   `toml:"dir"`                // Local backup directory
	RemoteDir         string   `toml:"remote_dir"`         // Optional off-site object store root ("" = disabled)
	FileDirectories   []string `toml:"file_directories"`   // Directories included in file backups
	LogDirectories    []string `toml:"log_directories"`    // Directories included in log backups
	DatabaseSchedule  string   `toml:"database_schedule"`  // Cron spec (default: "0 2 * * *")
	FilesSchedule     string   `toml:"files_schedule"`     // Cron spec (default: "0 3 * * *")
	LogsSchedule      string   `toml:"logs_schedule"`      // Cron spec (default: "0 4 * * 0")
	RetentionSchedule string   `toml:"retention_schedule"` // Cron spec (default: "0 5 * * *")
	DatabaseRetention int      `toml:"database_retention"` // Days to keep database backups (default: 30)
	FilesRetention    int      `toml:"files_retention"`    // Days to keep file backups (default: 14)
	LogsRetention     int      `toml:"logs_retention"`     // Days to keep log backups (default: 7)
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// TailorConfig contains configuration for the external resume tailoring subsystem
type TailorConfig struct {
	Endpoint  string `toml:"endpoint"`   // Tailoring service base URL
	OutputDir string `toml:"output_dir"` // Directory for generated documents
	Timeout   string `toml:"timeout"`    // Request timeout (default: "5m")
}

// DiscoveryConfig contains job discovery aggregator configuration
type DiscoveryConfig struct {
	Providers         []string `toml:"providers"`           // Enabled provider names
	MinRelevanceScore int      `toml:"min_relevance_score"` // Default relevance floor (default: 30)
}

// MimikreeConfig contains configuration for the external Q&A service
type MimikreeConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Timeout string `toml:"timeout"` // Request timeout (default: "1m")
}

// DefaultConfig returns a config populated with defaults
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/petitor",
			},
			Filesystem: FilesystemConfig{
				Resumes:  "./data/resumes",
				Sessions: "./data/sessions",
			},
		},
		Queue: QueueConfig{
			MaxWorkers:           5,
			MaxConcurrentPerUser: 2,
			PollInterval:         "1s",
			ResultTTL:            "24h",
			TailoringTimeout:     "10m",
			ApplicationTimeout:   "30m",
			SearchTimeout:        "5m",
		},
		RateLimits: RateLimitConfig{
			ResumeTailoringPerDay:  5,
			JobApplicationsPerDay:  20,
			JobSearchPerDay:        10,
			ConcurrentApplications: 2,
			GeminiPerMinute:        15,
			GeminiPerDay:           1500,
			PriorityHeadroom:       2,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.0-flash",
			Timeout:     "2m",
			Temperature: 0.2,
		},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-5",
			Timeout:     "2m",
			MaxTokens:   8192,
			Temperature: 0.2,
		},
		LLM: LLMConfig{
			Provider: "gemini",
		},
		Browser: BrowserConfig{
			MaxSessions:    4,
			Headless:       true,
			DisableGPU:     true,
			NoSandbox:      false,
			UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			RequestTimeout: 30 * time.Second,
		},
		Backup: BackupConfig{
			Enabled:           true,
			Dir:               "./data/backups",
			FileDirectories:   []string{"./data/resumes"},
			LogDirectories:    []string{"./logs"},
			DatabaseSchedule:  "0 2 * * *",
			FilesSchedule:     "0 3 * * *",
			LogsSchedule:      "0 4 * * 0",
			RetentionSchedule: "0 5 * * *",
			DatabaseRetention: 30,
			FilesRetention:    14,
			LogsRetention:     7,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Tailor: TailorConfig{
			OutputDir: "./data/tailored",
			Timeout:   "5m",
		},
		Discovery: DiscoveryConfig{
			MinRelevanceScore: 30,
		},
		Mimikree: MimikreeConfig{
			Timeout: "1m",
		},
	}
}

// LoadFromFiles loads configuration from one or more TOML files.
// Later files override earlier ones; environment variables override files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides for secrets
// so API keys never need to live in config files.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("PETITOR_GEMINI_API_KEY"); v != "" {
		config.Gemini.APIKey = v
	}
	if v := os.Getenv("PETITOR_CLAUDE_API_KEY"); v != "" {
		config.Claude.APIKey = v
	}
	if v := os.Getenv("PETITOR_MIMIKREE_API_KEY"); v != "" {
		config.Mimikree.APIKey = v
	}
	if v := os.Getenv("PETITOR_BADGER_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("PETITOR_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// Validate checks configuration invariants that would otherwise surface
// as confusing runtime failures.
func (c *Config) Validate() error {
	if c.Queue.MaxWorkers <= 0 {
		return fmt.Errorf("queue.max_workers must be greater than 0, got %d", c.Queue.MaxWorkers)
	}
	if c.Queue.MaxConcurrentPerUser <= 0 {
		return fmt.Errorf("queue.max_concurrent_per_user must be greater than 0, got %d", c.Queue.MaxConcurrentPerUser)
	}
	if c.RateLimits.GeminiPerMinute <= 0 {
		return fmt.Errorf("rate_limits.gemini_requests_per_minute must be greater than 0, got %d", c.RateLimits.GeminiPerMinute)
	}
	if c.LLM.Provider != "gemini" && c.LLM.Provider != "claude" {
		return fmt.Errorf("llm.provider must be 'gemini' or 'claude', got '%s'", c.LLM.Provider)
	}
	for _, d := range []struct {
		name  string
		value string
	}{
		{"queue.poll_interval", c.Queue.PollInterval},
		{"queue.result_ttl", c.Queue.ResultTTL},
		{"queue.tailoring_timeout", c.Queue.TailoringTimeout},
		{"queue.application_timeout", c.Queue.ApplicationTimeout},
		{"queue.search_timeout", c.Queue.SearchTimeout},
	} {
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", d.name, err)
		}
	}
	return nil
}

// ParseDuration parses a duration string from config, falling back to
// the supplied default when empty or invalid.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
