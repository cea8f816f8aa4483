package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/interfaces"
	"github.com/ternarybob/petitor/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// Confidence update rates for the learned-pattern store. Success moves
// confidence toward 1, failure decays it multiplicatively.
const (
	alphaSuccess = 0.3
	alphaFailure = 0.5

	initialConfidence = 0.6
)

// PatternStorage implements the PatternStorage interface for Badger
type PatternStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPatternStorage creates a new PatternStorage instance
func NewPatternStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PatternStorage {
	return &PatternStorage{
		db:     db,
		logger: logger,
	}
}

// patternKey makes writes idempotent per (label, category, field, user)
func patternKey(labelNormalized, fieldCategory, profileField, userID string) string {
	return fmt.Sprintf("%s|%s|%s|%s", labelNormalized, fieldCategory, profileField, userID)
}

// Lookup returns the highest-confidence pattern for the normalized label
// and category. User-scoped patterns are preferred over global ones.
func (s *PatternStorage) Lookup(ctx context.Context, labelNormalized, fieldCategory, userID string) (*models.LearnedPattern, error) {
	var patterns []models.LearnedPattern
	query := badgerhold.Where("LabelNormalized").Eq(labelNormalized).And("FieldCategory").Eq(fieldCategory)
	if err := s.db.Store().Find(&patterns, query); err != nil {
		return nil, fmt.Errorf("failed to query learned patterns: %w", err)
	}

	var best *models.LearnedPattern
	for i := range patterns {
		p := &patterns[i]
		if p.UserID != "" && p.UserID != userID {
			continue
		}
		if best == nil {
			best = p
			continue
		}
		// Same confidence: the user's own pattern wins
		if p.Confidence > best.Confidence ||
			(p.Confidence == best.Confidence && p.UserID == userID && best.UserID == "") {
			best = p
		}
	}

	if best == nil {
		return nil, nil
	}
	return best, nil
}

// RecordSuccess creates or reinforces a pattern
func (s *PatternStorage) RecordSuccess(ctx context.Context, labelNormalized, fieldCategory, profileField, userID string) error {
	key := patternKey(labelNormalized, fieldCategory, profileField, userID)

	var pattern models.LearnedPattern
	err := s.db.Store().Get(key, &pattern)
	if err == badgerhold.ErrNotFound {
		pattern = models.LearnedPattern{
			PatternID:       key,
			LabelNormalized: labelNormalized,
			FieldCategory:   fieldCategory,
			ProfileField:    profileField,
			Confidence:      initialConfidence,
			SuccessCount:    1,
			LastUsedAt:      time.Now(),
			UserID:          userID,
		}
	} else if err != nil {
		return fmt.Errorf("failed to load pattern: %w", err)
	} else {
		pattern.Confidence = pattern.Confidence + (1-pattern.Confidence)*alphaSuccess
		pattern.SuccessCount++
		pattern.LastUsedAt = time.Now()
	}

	if err := s.db.Store().Upsert(key, &pattern); err != nil {
		return fmt.Errorf("failed to save pattern: %w", err)
	}

	s.logger.Debug().
		Str("label", labelNormalized).
		Str("profile_field", profileField).
		Float64("confidence", pattern.Confidence).
		Msg("Learned pattern reinforced")

	return nil
}

// RecordFailure decays the confidence of every pattern matching the label
// and category for the user (and global patterns).
func (s *PatternStorage) RecordFailure(ctx context.Context, labelNormalized, fieldCategory, userID string) error {
	var patterns []models.LearnedPattern
	query := badgerhold.Where("LabelNormalized").Eq(labelNormalized).And("FieldCategory").Eq(fieldCategory)
	if err := s.db.Store().Find(&patterns, query); err != nil {
		return fmt.Errorf("failed to query learned patterns: %w", err)
	}

	for i := range patterns {
		p := &patterns[i]
		if p.UserID != "" && p.UserID != userID {
			continue
		}
		p.Confidence = p.Confidence * (1 - alphaFailure)
		p.FailureCount++
		if err := s.db.Store().Upsert(p.PatternID, p); err != nil {
			return fmt.Errorf("failed to decay pattern: %w", err)
		}
	}

	return nil
}
