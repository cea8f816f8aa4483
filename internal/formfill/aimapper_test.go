package formfill

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/petitor/internal/common"
	"github.com/ternarybob/petitor/internal/interfaces"
	"github.com/ternarybob/petitor/internal/models"
)

type cannedLLM struct {
	response string
}

func (c *cannedLLM) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	return c.response, nil
}

func (c *cannedLLM) Name() string { return "canned" }

func (c *cannedLLM) HealthCheck(ctx context.Context) error { return nil }

func (c *cannedLLM) Close() error { return nil }

func TestParseAnswers(t *testing.T) {
	response := `input_first_name: SIMPLE: Maya
select_degree: DROPDOWN: Master's Degree
input_skills: MULTISELECT_SKILLS: Go, Python
textarea_cover: MANUAL: short pitch referencing the role
input_salary: NEEDS_HUMAN_INPUT: compensation expectations are personal
this line is chatter the model added
input_langs: MULTISELECT: English, French`

	mappings := parseAnswers(response)
	require.Len(t, mappings, 6)

	assert.Equal(t, DirectiveSimple, mappings["input_first_name"].Directive)
	assert.Equal(t, "Maya", mappings["input_first_name"].Value)

	assert.Equal(t, DirectiveDropdown, mappings["select_degree"].Directive)
	assert.Equal(t, "Master's Degree", mappings["select_degree"].Value)

	// MULTISELECT_SKILLS must not be swallowed by the MULTISELECT alternative
	assert.Equal(t, DirectiveMultiselectSkill, mappings["input_skills"].Directive)
	assert.Equal(t, DirectiveMultiselect, mappings["input_langs"].Directive)

	assert.Equal(t, DirectiveManual, mappings["textarea_cover"].Directive)
	assert.Equal(t, DirectiveNeedsHuman, mappings["input_salary"].Directive)
}

func TestParseAnswers_ToleratesWhitespaceAndEmptyValue(t *testing.T) {
	mappings := parseAnswers("  input_x :  SIMPLE:   padded value  \ninput_y: NEEDS_HUMAN_INPUT: ")
	require.Len(t, mappings, 2)
	assert.Equal(t, "padded value", mappings["input_x"].Value)
	assert.Empty(t, mappings["input_y"].Value)
}

func TestManualMaxLength(t *testing.T) {
	assert.Equal(t, 1000, ManualMaxLength(models.CategoryTextarea))
	assert.Equal(t, 300, ManualMaxLength(models.CategoryTextInput))
	assert.Equal(t, 300, ManualMaxLength(models.CategoryFileUpload))
}

func TestTruncateAtSentence(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "brief answer", truncateAtSentence("brief answer", 300))
	})

	t.Run("ends on sentence punctuation", func(t *testing.T) {
		text := strings.Repeat("x", 200) + "." + strings.Repeat("y", 200)
		got := truncateAtSentence(text, 300)
		assert.Equal(t, strings.Repeat("x", 200)+".", got)
	})

	t.Run("punctuation in first half ignored", func(t *testing.T) {
		text := "Hi." + strings.Repeat("z", 400)
		got := truncateAtSentence(text, 300)
		assert.Len(t, got, 300)
	})

	t.Run("cap counts runes not bytes", func(t *testing.T) {
		text := strings.Repeat("résumé", 100)
		got := truncateAtSentence(text, 300)
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, 300, utf8.RuneCountInString(got))
	})
}

func TestGenerateText_RuneSafeTruncation(t *testing.T) {
	// A multibyte answer whose byte length far exceeds the rune cap
	long := "a" + strings.Repeat("申", 400)
	mapper := NewAIMapper(&cannedLLM{response: `"` + long + `"`}, common.GetLogger())

	got, err := mapper.GenerateText(context.Background(), "Why do you want this role?", "short pitch", manualMaxTextInput, models.NewProfile())
	require.NoError(t, err)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, manualMaxTextInput, utf8.RuneCountInString(got))
	assert.True(t, strings.HasPrefix(long, got))
}

func TestRenderProfile(t *testing.T) {
	profile := models.NewProfile()
	profile.Set("first_name", "Maya")
	profile.Set("email", "maya.okafor@example.com")
	profile.WorkExperience = []models.WorkExperience{
		{Company: "Stripe", Title: "Software Engineer", StartDate: "2021-03", Current: true},
	}
	profile.Education = []models.Education{
		{Institution: "UCLA", Degree: "BS", FieldOfStudy: "CS", StartDate: "2017", EndDate: "2021"},
	}

	rendered := RenderProfile(profile)
	assert.Contains(t, rendered, "first_name: Maya")
	assert.Contains(t, rendered, "Software Engineer at Stripe (2021-03 to present)")
	assert.Contains(t, rendered, "BS, CS at UCLA (2017 to 2021)")
}
