package formfill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/petitor/internal/common"
	"github.com/ternarybob/petitor/internal/interfaces"
	"github.com/ternarybob/petitor/internal/models"
	badgerstore "github.com/ternarybob/petitor/internal/storage/badger"
)

func newTestLearnedMapper(t *testing.T) (*LearnedMapper, interfaces.PatternStorage, func()) {
	t.Helper()
	logger := common.GetLogger()
	db, err := badgerstore.NewInMemoryDB(logger)
	require.NoError(t, err)
	store := badgerstore.NewPatternStorage(db, logger)
	return NewLearnedMapper(store, logger), store, func() { db.Close() }
}

func TestLearnedMapper_AppliesStoredPattern(t *testing.T) {
	mapper, store, cleanup := newTestLearnedMapper(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.RecordSuccess(ctx, "preferred pronouns", string(models.CategoryTextInput), "pronouns", "user-1"))

	profile := models.NewProfile()
	profile.Set("pronouns", "they/them")

	field := &models.FormField{Label: "Preferred Pronouns *", Category: models.CategoryTextInput}
	mapping, ok := mapper.Map(ctx, field, profile, "user-1")
	require.True(t, ok)
	assert.Equal(t, "pronouns", mapping.ProfileKey)
	assert.Equal(t, "they/them", mapping.Value)
	assert.Equal(t, models.MethodLearned, mapping.Method)
	assert.GreaterOrEqual(t, mapping.Confidence, learnedConfidenceFloor)
}

func TestLearnedMapper_NoPattern(t *testing.T) {
	mapper, _, cleanup := newTestLearnedMapper(t)
	defer cleanup()

	profile := models.NewProfile()
	profile.Set("pronouns", "they/them")

	field := &models.FormField{Label: "Preferred Pronouns", Category: models.CategoryTextInput}
	_, ok := mapper.Map(context.Background(), field, profile, "user-1")
	assert.False(t, ok)
}

func TestLearnedMapper_MissingProfileValueDecaysPattern(t *testing.T) {
	mapper, store, cleanup := newTestLearnedMapper(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.RecordSuccess(ctx, "preferred pronouns", string(models.CategoryTextInput), "pronouns", "user-1"))

	// Profile without the learned key: the lookup fails and the pattern
	// loses confidence.
	field := &models.FormField{Label: "Preferred Pronouns", Category: models.CategoryTextInput}
	_, ok := mapper.Map(ctx, field, models.NewProfile(), "user-1")
	assert.False(t, ok)

	pattern, err := store.Lookup(ctx, "preferred pronouns", string(models.CategoryTextInput), "user-1")
	require.NoError(t, err)
	require.NotNil(t, pattern)
	assert.Less(t, pattern.Confidence, learnedConfidenceFloor)
	assert.Equal(t, 1, pattern.FailureCount)

	// Below the floor the pattern no longer applies even with data present
	profile := models.NewProfile()
	profile.Set("pronouns", "they/them")
	_, ok = mapper.Map(ctx, field, profile, "user-1")
	assert.False(t, ok)
}

func TestLearnedMapper_ReinforcementRaisesConfidence(t *testing.T) {
	mapper, store, cleanup := newTestLearnedMapper(t)
	defer cleanup()
	ctx := context.Background()

	field := &models.FormField{Label: "Preferred Pronouns", Category: models.CategoryTextInput}
	mapper.RecordSuccess(ctx, field, "pronouns", "user-1")
	mapper.RecordSuccess(ctx, field, "pronouns", "user-1")

	pattern, err := store.Lookup(ctx, "preferred pronouns", string(models.CategoryTextInput), "user-1")
	require.NoError(t, err)
	require.NotNil(t, pattern)
	assert.Equal(t, 2, pattern.SuccessCount)
	assert.Greater(t, pattern.Confidence, 0.6)
}

func TestLearnedMapper_OtherUsersPatternsInvisible(t *testing.T) {
	mapper, store, cleanup := newTestLearnedMapper(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.RecordSuccess(ctx, "preferred pronouns", string(models.CategoryTextInput), "pronouns", "user-2"))

	profile := models.NewProfile()
	profile.Set("pronouns", "they/them")

	field := &models.FormField{Label: "Preferred Pronouns", Category: models.CategoryTextInput}
	_, ok := mapper.Map(ctx, field, profile, "user-1")
	assert.False(t, ok)

	// Global patterns apply to everyone
	require.NoError(t, store.RecordSuccess(ctx, "preferred pronouns", string(models.CategoryTextInput), "pronouns", ""))
	mapping, ok := mapper.Map(ctx, field, profile, "user-1")
	require.True(t, ok)
	assert.Equal(t, "pronouns", mapping.ProfileKey)
}
