package interfaces

import (
	"context"

	"github.com/ternarybob/petitor/internal/models"
)

// PatternStorage persists learned label-to-profile-field mappings
type PatternStorage interface {
	// Lookup returns the highest-confidence pattern for the normalized
	// label and category, preferring the user's own patterns over global
	// ones. Returns nil when nothing matches.
	Lookup(ctx context.Context, labelNormalized, fieldCategory, userID string) (*models.LearnedPattern, error)

	// RecordSuccess creates or reinforces a pattern. Idempotent for a given
	// (label, category, profile_field, user) tuple.
	RecordSuccess(ctx context.Context, labelNormalized, fieldCategory, profileField, userID string) error

	// RecordFailure decays the confidence of an existing pattern.
	RecordFailure(ctx context.Context, labelNormalized, fieldCategory, userID string) error
}
