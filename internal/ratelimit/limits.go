package ratelimit

import (
	"github.com/ternarybob/petitor/internal/common"
)

// Predefined limit names. Numeric caps come from configuration.
const (
	LimitResumeTailoringDaily = "resume_tailoring_per_user_per_day"
	LimitJobApplicationsDaily = "job_applications_per_user_per_day"
	LimitConcurrentApps       = "concurrent_job_applications"
	LimitJobSearchDaily       = "job_search_per_user_per_day"
	LimitGeminiPerMinute      = "gemini_requests_per_minute"
	LimitGeminiPerDay         = "gemini_requests_per_day"
)

const (
	dayWindow    = 86400
	minuteWindow = 60
)

// DefaultLimits builds the predefined limit table from configuration
func DefaultLimits(cfg *common.RateLimitConfig) []Limit {
	return []Limit{
		{Name: LimitResumeTailoringDaily, WindowSeconds: dayWindow, MaxCount: cfg.ResumeTailoringPerDay, Scope: ScopeUser},
		{Name: LimitJobApplicationsDaily, WindowSeconds: dayWindow, MaxCount: cfg.JobApplicationsPerDay, Scope: ScopeUser},
		{Name: LimitConcurrentApps, MaxCount: cfg.ConcurrentApplications, Scope: ScopeConcurrent},
		{Name: LimitJobSearchDaily, WindowSeconds: dayWindow, MaxCount: cfg.JobSearchPerDay, Scope: ScopeUser},
		{Name: LimitGeminiPerMinute, WindowSeconds: minuteWindow, MaxCount: cfg.GeminiPerMinute, Scope: ScopeGlobal},
		{Name: LimitGeminiPerDay, WindowSeconds: dayWindow, MaxCount: cfg.GeminiPerDay, Scope: ScopeGlobal},
	}
}
