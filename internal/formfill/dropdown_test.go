package formfill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDegree(t *testing.T) {
	assert.Equal(t, "master's", NormalizeDegree("Master of Science in Computer Science"))
	assert.Equal(t, "master's", NormalizeDegree("MS"))
	assert.Equal(t, "bachelor's", NormalizeDegree("Bachelor of Arts"))
	assert.Equal(t, "doctorate", NormalizeDegree("Ph.D."))
	assert.Equal(t, "high school", NormalizeDegree("GED"))

	// Unknown degrees pass through lower-cased
	assert.Equal(t, "diploma of nursing", NormalizeDegree("Diploma of Nursing"))
}

func TestMapDropdownValue_CanonicalExact(t *testing.T) {
	options := []string{"Male", "Female", "Non-binary", "Decline to self-identify"}
	option, score, ok := MapDropdownValue("Female", "gender", options)
	require.True(t, ok)
	assert.Equal(t, "Female", option)
	assert.Equal(t, 1.0, score)
}

func TestMapDropdownValue_CanonicalVariant(t *testing.T) {
	options := []string{"Woman", "Man", "Prefer not to say"}
	option, score, ok := MapDropdownValue("female", "gender", options)
	require.True(t, ok)
	assert.Equal(t, "Woman", option)
	assert.Equal(t, 1.0, score)
}

func TestMapDropdownValue_DegreeNormalization(t *testing.T) {
	options := []string{"Bachelor's Degree", "Master's Degree", "Doctorate"}
	option, score, ok := MapDropdownValue("Master of Science in Computer Science", "degree", options)
	require.True(t, ok)
	assert.Equal(t, "Master's Degree", option)
	assert.GreaterOrEqual(t, score, 0.9)
}

func TestMapDropdownValue_FuzzyFallback(t *testing.T) {
	options := []string{"Senior Software Engineer", "Product Manager", "Data Analyst"}
	option, score, ok := MapDropdownValue("Software Engineer", "", options)
	require.True(t, ok)
	assert.Equal(t, "Senior Software Engineer", option)
	assert.GreaterOrEqual(t, score, fuzzyMatchThreshold)
}

func TestMapDropdownValue_BelowThreshold(t *testing.T) {
	options := []string{"Red", "Green", "Blue"}
	_, score, ok := MapDropdownValue("Quantum Computing", "", options)
	assert.False(t, ok)
	assert.Less(t, score, fuzzyMatchThreshold)
}

func TestFuzzyScore(t *testing.T) {
	assert.Equal(t, 1.0, FuzzyScore("stripe", "stripe"))
	assert.Equal(t, 0.0, FuzzyScore("", "stripe"))

	// Containment scores by length ratio
	assert.InDelta(t, 0.5, FuzzyScore("abc", "abcdef"), 0.01)

	// Token overlap with a significant shared token
	score := FuzzyScore("software engineer", "senior software engineer")
	assert.GreaterOrEqual(t, score, 0.7)
}

func TestScoreGreenhouseOption(t *testing.T) {
	// Exact text
	assert.Equal(t, 1.0, ScoreGreenhouseOption("Master's", "master's"))

	// Degree-normalized equality
	score := ScoreGreenhouseOption("Master's", "Master of Science in Computer Science")
	assert.GreaterOrEqual(t, score, 0.9)

	// Unrelated option
	assert.Less(t, ScoreGreenhouseOption("Master's", "High School Diploma"), 0.3)
}

func TestBestOption(t *testing.T) {
	options := []string{"High School", "Bachelor's Degree", "Master's Degree"}
	idx, score := BestOption("Masters", options)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "Master's Degree", options[idx])
	assert.GreaterOrEqual(t, score, optionClickThreshold)
}
