package formfill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/petitor/internal/models"
)

func TestChooseNextButton(t *testing.T) {
	assert.Equal(t, "Continue", ChooseNextButton([]string{"Save", "Submit application", "Continue"}))
	assert.Equal(t, "Next Step", ChooseNextButton([]string{"Back", "Next Step"}))
	assert.Equal(t, "Save & Continue", ChooseNextButton([]string{"Save & Continue"}))

	// Nothing advance-shaped on the page
	assert.Empty(t, ChooseNextButton([]string{"Back", "Save draft", "Cancel"}))
	assert.Empty(t, ChooseNextButton(nil))
}

func TestChooseNextButton_NeverPicksSubmit(t *testing.T) {
	// Submit-shaped text wins the refusal even when it also matches the
	// advance pattern.
	submits := []string{
		"Submit",
		"Apply",
		"Apply Now",
		"Review and submit",
		"Continue and Submit",
		"Submit and continue",
		"Finish",
		"Complete Application",
	}
	for _, text := range submits {
		assert.Empty(t, ChooseNextButton([]string{text}), text)
	}

	// A real next button after a submit still gets picked
	assert.Equal(t, "Continue", ChooseNextButton([]string{"Submit application", "Continue"}))
}

func TestCleanFields_FiltersAndSeedsState(t *testing.T) {
	o := &Orchestrator{}
	states := make(map[string]*fieldState)

	fields := []models.FormField{
		{StableID: "input_first", Label: "First Name", Category: models.CategoryTextInput, Visible: true},
		{StableID: "input_hidden", Label: "Hidden", Category: models.CategoryTextInput, Visible: false},
		{StableID: "input_disabled", Label: "Disabled", Category: models.CategoryTextInput, Visible: true, Disabled: true},
		{Label: "", StableID: "", Category: models.CategoryTextInput, Visible: true},
	}

	pending := o.cleanFields(fields, states)
	assert.Len(t, pending, 1)
	assert.Equal(t, "input_first", pending[0].StableID)
	assert.Contains(t, states, "input_first")

	// Completed fields drop out of later iterations
	states["input_first"].completed = true
	pending = o.cleanFields(fields, states)
	assert.Empty(t, pending)
}

func TestAllSettled(t *testing.T) {
	o := &Orchestrator{}

	assert.False(t, o.allSettled(map[string]*fieldState{}))
	assert.False(t, o.allSettled(map[string]*fieldState{
		"a": {completed: true},
		"b": {},
	}))
	assert.True(t, o.allSettled(map[string]*fieldState{
		"a": {completed: true},
		"b": {terminal: true},
	}))
}

func TestReverseLookupProfileKey(t *testing.T) {
	profile := models.NewProfile()
	profile.Set("first_name", "Maya")
	profile.Set("visa_status", "Green Card")

	assert.Equal(t, "visa_status", reverseLookupProfileKey(profile, "green card"))
	assert.Equal(t, "first_name", reverseLookupProfileKey(profile, "  Maya "))
	assert.Empty(t, reverseLookupProfileKey(profile, "H-1B"))
	assert.Empty(t, reverseLookupProfileKey(profile, ""))
}
