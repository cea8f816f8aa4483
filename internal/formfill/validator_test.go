package formfill

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/petitor/internal/models"
)

func TestClean_PassThrough(t *testing.T) {
	assert.Equal(t, "Maya", Clean("  Maya  ", "First Name", models.CategoryTextInput))
	assert.Equal(t, "Yes", Clean("Yes", "Willing to relocate?", models.CategoryRadioGroup))
}

func TestClean_EmptyValue(t *testing.T) {
	assert.Empty(t, Clean("", "First Name", models.CategoryTextInput))
	assert.Empty(t, Clean("   ", "First Name", models.CategoryTextInput))
}

func TestClean_NarrativeProseRejected(t *testing.T) {
	assert.Empty(t, Clean("As a software engineer I built...", "Current Title", models.CategoryTextInput))
	assert.Empty(t, Clean("I am passionate about infra", "Summary", models.CategoryTextInput))
	assert.Empty(t, Clean("During my time at Stripe", "Company", models.CategoryTextInput))
}

func TestClean_OverflowRejectedForTextInputsOnly(t *testing.T) {
	long := strings.Repeat("x", 51)
	assert.Empty(t, Clean(long, "First Name", models.CategoryTextInput))
	assert.Equal(t, strings.Repeat("x", 50), Clean(strings.Repeat("x", 50), "First Name", models.CategoryTextInput))

	// Textareas take essays
	essay := "My experience spans a decade of distributed systems work. " + strings.Repeat("More detail. ", 20)
	assert.Equal(t, strings.TrimSpace(essay), Clean(essay, "Cover Letter", models.CategoryTextarea))
}

func TestClean_StateNameInWorkAuthRejected(t *testing.T) {
	assert.Empty(t, Clean("California", "Work Authorization", models.CategoryDropdown))
	assert.Empty(t, Clean("new york", "Are you authorized to work?", models.CategoryRadioGroup))

	// The same value is fine under a location label
	assert.Equal(t, "California", Clean("California", "State", models.CategoryDropdown))
}
