package models

import "time"

// LearnedPattern maps a normalized form label to a profile field with a
// confidence score. Recorded when the AI mapper succeeds, decayed when a
// recorded mapping later fails.
type LearnedPattern struct {
	PatternID       string    `json:"pattern_id" badgerhold:"key"`
	LabelNormalized string    `json:"label_normalized" badgerhold:"index"`
	FieldCategory   string    `json:"field_category"`
	ProfileField    string    `json:"profile_field"`
	Confidence      float64   `json:"confidence"`
	SuccessCount    int       `json:"success_count"`
	FailureCount    int       `json:"failure_count"`
	LastUsedAt      time.Time `json:"last_used_at"`
	UserID          string    `json:"user_id,omitempty" badgerhold:"index"`
}
