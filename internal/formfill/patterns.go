package formfill

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/interfaces"
	"github.com/ternarybob/petitor/internal/models"
)

// learnedConfidenceFloor is the minimum confidence a stored pattern
// needs before it is applied without a model call.
const learnedConfidenceFloor = 0.5

// LearnedMapper resolves fields from previously successful AI mappings
type LearnedMapper struct {
	store  interfaces.PatternStorage
	logger arbor.ILogger
}

// NewLearnedMapper creates a learned-pattern mapper
func NewLearnedMapper(store interfaces.PatternStorage, logger arbor.ILogger) *LearnedMapper {
	return &LearnedMapper{store: store, logger: logger}
}

// Map looks up a stored pattern for the field and reads its profile
// value. Returns false when no pattern clears the confidence floor or
// the profile carries no value for the learned key.
func (m *LearnedMapper) Map(ctx context.Context, field *models.FormField, profile *models.Profile, userID string) (*models.FieldMapping, bool) {
	label := field.Label
	if label == "" {
		label = field.Question
	}
	normalized := NormalizeLabel(label)
	if normalized == "" {
		return nil, false
	}

	pattern, err := m.store.Lookup(ctx, normalized, string(field.Category), userID)
	if err != nil {
		m.logger.Warn().Err(err).Str("label", normalized).Msg("Pattern lookup failed")
		return nil, false
	}
	if pattern == nil || pattern.Confidence < learnedConfidenceFloor {
		return nil, false
	}

	value := profile.StringOr(pattern.ProfileField, "")
	if value == "" {
		// The learned key has no data for this profile; decay so a
		// wrong association eventually drops below the floor.
		if err := m.store.RecordFailure(ctx, normalized, string(field.Category), userID); err != nil {
			m.logger.Warn().Err(err).Str("label", normalized).Msg("Pattern failure record failed")
		}
		return nil, false
	}

	m.logger.Debug().
		Str("label", normalized).
		Str("profile_field", pattern.ProfileField).
		Float64("confidence", pattern.Confidence).
		Msg("Learned pattern applied")

	return &models.FieldMapping{
		ProfileKey: pattern.ProfileField,
		Value:      value,
		Confidence: pattern.Confidence,
		Method:     models.MethodLearned,
	}, true
}

// RecordSuccess reinforces the pattern behind a successful fill
func (m *LearnedMapper) RecordSuccess(ctx context.Context, field *models.FormField, profileField, userID string) {
	label := field.Label
	if label == "" {
		label = field.Question
	}
	normalized := NormalizeLabel(label)
	if normalized == "" || profileField == "" {
		return
	}
	if err := m.store.RecordSuccess(ctx, normalized, string(field.Category), profileField, userID); err != nil {
		m.logger.Warn().Err(err).Str("label", normalized).Msg("Pattern success record failed")
	}
}
