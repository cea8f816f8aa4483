package formfill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/petitor/internal/models"
)

func TestStableID_Deterministic(t *testing.T) {
	// Identity prefers id, then name, then the label hash
	assert.Equal(t, "input_first_name", StableID("input", "first_name", "fn", "First Name"))
	assert.Equal(t, "input_fn", StableID("input", "", "fn", "First Name"))

	hashed := StableID("input", "", "", "First Name")
	assert.Equal(t, hashed, StableID("input", "", "", "First Name"))
	assert.NotEqual(t, hashed, StableID("input", "", "", "Last Name"))
	assert.Len(t, hashed, len("input_")+8)
}

func TestConsolidateFields_RadioGroup(t *testing.T) {
	raws := []rawField{
		{TagName: "input", InputType: "radio", Name: "authorized", ID: "auth-yes", Value: "yes", OptionLabel: "Yes", Question: "Are you authorized to work?", Visible: true},
		{TagName: "input", InputType: "radio", Name: "authorized", ID: "auth-no", Value: "no", OptionLabel: "No", Question: "Are you authorized to work?", Visible: true},
	}

	fields := consolidateFields(raws)
	require.Len(t, fields, 1)

	group := fields[0]
	assert.Equal(t, models.CategoryRadioGroup, group.Category)
	assert.Equal(t, "Are you authorized to work?", group.Label)
	require.Len(t, group.Options, 2)
	assert.Equal(t, "Yes", group.Options[0].Label)
	assert.Equal(t, "No", group.Options[1].Label)
	assert.True(t, group.Visible)

	// Consolidation preserves document order across groups
	raws = append(raws,
		rawField{TagName: "input", InputType: "radio", Name: "relocate", ID: "rel-yes", OptionLabel: "Yes", Visible: true},
		rawField{TagName: "input", InputType: "radio", Name: "relocate", ID: "rel-no", OptionLabel: "No", Visible: true},
	)
	fields = consolidateFields(raws)
	require.Len(t, fields, 2)
	assert.Equal(t, "authorized", fields[0].Name)
	assert.Equal(t, "relocate", fields[1].Name)
}

func TestConsolidateFields_CheckboxClusterByQuestion(t *testing.T) {
	raws := []rawField{
		{TagName: "input", InputType: "checkbox", ID: "lang-go", OptionLabel: "Go", Question: "Which languages do you know?", Visible: true},
		{TagName: "input", InputType: "checkbox", ID: "lang-py", OptionLabel: "Python", Question: "Which languages do you know?", Visible: true},
		{TagName: "input", InputType: "checkbox", ID: "lang-rs", OptionLabel: "Rust", Question: "Which languages do you know?", Visible: true},
	}

	fields := consolidateFields(raws)
	require.Len(t, fields, 1)
	assert.Equal(t, models.CategoryCheckboxGroup, fields[0].Category)
	assert.Len(t, fields[0].Options, 3)
	assert.Equal(t, "Which languages do you know?", fields[0].Label)
}

func TestConsolidateFields_CheckboxClusterByUUIDPrefix(t *testing.T) {
	raws := []rawField{
		{TagName: "input", InputType: "checkbox", ID: "q-4fa2b1c8-9d1e-4f3a-b2c1-0", OptionLabel: "Option A", Visible: true},
		{TagName: "input", InputType: "checkbox", ID: "q-4fa2b1c8-9d1e-4f3a-b2c1-1", OptionLabel: "Option B", Visible: true},
	}

	fields := consolidateFields(raws)
	require.Len(t, fields, 1)
	assert.Equal(t, models.CategoryCheckboxGroup, fields[0].Category)
	assert.Len(t, fields[0].Options, 2)
}

func TestConsolidateFields_LoneCheckboxKeepsQuestionLabel(t *testing.T) {
	raws := []rawField{
		{TagName: "input", InputType: "checkbox", ID: "terms-1", OptionLabel: "", Question: "I agree to the terms", Visible: true},
	}

	fields := consolidateFields(raws)
	require.Len(t, fields, 1)
	assert.Equal(t, models.CategoryCheckbox, fields[0].Category)
	assert.Equal(t, "I agree to the terms", fields[0].Label)
}

func TestIDGroupPrefix(t *testing.T) {
	assert.Equal(t, "q-4fa2b1c8-9d1e-4f3a-b2c1", idGroupPrefix("q-4fa2b1c8-9d1e-4f3a-b2c1-0"))
	assert.Empty(t, idGroupPrefix("plain-id"))
}
