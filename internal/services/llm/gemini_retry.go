package llm

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// quotaBackoff schedules retries against Gemini's per-minute quota
// window. The floor matches the window reset time so a hintless retry
// still lands after the quota refills.
type quotaBackoff struct {
	maxAttempts int
	floor       time.Duration
	ceiling     time.Duration
	growth      float64
}

// hintBuffer pads the API-suggested delay so the retry lands after the
// window actually resets, not on its edge.
const hintBuffer = 5 * time.Second

func defaultQuotaBackoff() quotaBackoff {
	return quotaBackoff{
		maxAttempts: 5,
		floor:       45 * time.Second,
		ceiling:     90 * time.Second,
		growth:      1.5,
	}
}

// quotaExhausted reports whether err carries Gemini's quota signal:
// a 429 status or a RESOURCE_EXHAUSTED payload.
func quotaExhausted(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "quota")
}

// Quota errors embed a suggested delay in two shapes:
// "Please retry in 41.3s" and "retryDelay: 41s".
var retryHintPattern = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// retryHint extracts the API-suggested delay from a quota error
func retryHint(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}

	match := retryHintPattern.FindStringSubmatch(err.Error())
	if len(match) < 2 {
		return 0, false
	}

	seconds, parseErr := strconv.ParseFloat(match[1], 64)
	if parseErr != nil {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

// wait returns how long to sleep before retry attempt (0-based). The
// base is the padded hint when the error carried one, the floor
// otherwise; the base grows exponentially per attempt and is capped at
// the ceiling.
func (b quotaBackoff) wait(attempt int, err error) time.Duration {
	base := b.floor
	if hint, ok := retryHint(err); ok {
		base = hint + hintBuffer
	}

	scaled := float64(base)
	for i := 0; i < attempt; i++ {
		scaled *= b.growth
	}

	d := time.Duration(scaled)
	if d > b.ceiling {
		d = b.ceiling
	}
	return d
}
