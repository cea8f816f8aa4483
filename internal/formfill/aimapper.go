package formfill

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/interfaces"
	"github.com/ternarybob/petitor/internal/models"
)

// Directive is the per-field instruction the model returns
type Directive string

const (
	DirectiveSimple           Directive = "SIMPLE"
	DirectiveDropdown         Directive = "DROPDOWN"
	DirectiveMultiselect      Directive = "MULTISELECT"
	DirectiveMultiselectSkill Directive = "MULTISELECT_SKILLS"
	DirectiveManual           Directive = "MANUAL"
	DirectiveNeedsHuman       Directive = "NEEDS_HUMAN_INPUT"
)

// AIMapping is one parsed model answer
type AIMapping struct {
	StableID  string
	Directive Directive
	Value     string
}

// maxOptionsInCatalog bounds option lists sent to the model
const maxOptionsInCatalog = 15

// Text generation caps by target control
const (
	manualMaxTextarea  = 1000
	manualMaxTextInput = 300
)

const mapperSystemPrompt = `You map job-application form fields to applicant profile data.
For every field id you receive, answer with exactly one line:

<field_id>: SIMPLE: <value>            - direct profile data for text inputs
<field_id>: DROPDOWN: <option text>    - for selects and radios; MUST be the exact text of one listed option
<field_id>: MULTISELECT: <a, b, c>     - comma list for checkbox groups
<field_id>: MULTISELECT_SKILLS: <a, b> - comma list drawn from the applicant's skills
<field_id>: MANUAL: <description>      - the field needs generated prose (essays, cover letters)
<field_id>: NEEDS_HUMAN_INPUT: <reason> - nothing in the profile can answer this

Rules:
- Be confidence-based: when the profile contains a value, use it. Never answer "Prefer not to say" when data exists.
- When race_ethnicity is absent, infer race/ethnicity and hispanic-or-not from nationality.
- Use require_sponsorship and visa_status to answer work-authorization questions.
- Output only answer lines, one per field id, nothing else.`

// answerLineRegex parses "<id>: DIRECTIVE: value"
var answerLineRegex = regexp.MustCompile(`^\s*([^\s:]+)\s*:\s*(SIMPLE|DROPDOWN|MULTISELECT_SKILLS|MULTISELECT|MANUAL|NEEDS_HUMAN_INPUT)\s*:\s*(.*)$`)

// AIMapper maps batches of unresolved fields with a single model call
type AIMapper struct {
	llm    interfaces.LLMProvider
	logger arbor.ILogger
}

// NewAIMapper creates a model-backed field mapper
func NewAIMapper(llm interfaces.LLMProvider, logger arbor.ILogger) *AIMapper {
	return &AIMapper{llm: llm, logger: logger}
}

// catalogEntry is the per-field record rendered into the prompt
type catalogEntry struct {
	Label       string   `json:"label"`
	Category    string   `json:"field_category"`
	Options     []string `json:"options,omitempty"`
	Required    bool     `json:"required"`
	Placeholder string   `json:"placeholder,omitempty"`
	Question    string   `json:"field_question,omitempty"`
}

// MapBatch asks the model to resolve every field in one call. The
// returned map is keyed by stable id; fields the model skipped are
// absent.
func (m *AIMapper) MapBatch(ctx context.Context, fields []models.FormField, profile *models.Profile) (map[string]AIMapping, error) {
	if len(fields) == 0 {
		return map[string]AIMapping{}, nil
	}

	catalog := make(map[string]catalogEntry, len(fields))
	for _, f := range fields {
		options := make([]string, 0, len(f.Options))
		for _, o := range f.Options {
			if o.Label != "" {
				options = append(options, o.Label)
			}
			if len(options) == maxOptionsInCatalog {
				break
			}
		}
		catalog[f.StableID] = catalogEntry{
			Label:       f.Label,
			Category:    string(f.Category),
			Options:     options,
			Required:    f.Required,
			Placeholder: f.Placeholder,
			Question:    f.Question,
		}
	}

	catalogJSON, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render field catalog: %w", err)
	}

	prompt := fmt.Sprintf("APPLICANT PROFILE:\n%s\n\nFORM FIELDS:\n%s\n\nAnswer every field id.",
		RenderProfile(profile), string(catalogJSON))

	response, err := m.llm.Chat(ctx, []interfaces.Message{
		{Role: "system", Content: mapperSystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("batch field mapping failed: %w", err)
	}

	mappings := parseAnswers(response)
	m.logger.Debug().
		Int("fields_sent", len(fields)).
		Int("answers_parsed", len(mappings)).
		Msg("Batch field mapping complete")
	return mappings, nil
}

// parseAnswers extracts one mapping per answer line
func parseAnswers(response string) map[string]AIMapping {
	out := make(map[string]AIMapping)
	for _, line := range strings.Split(response, "\n") {
		match := answerLineRegex.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		out[match[1]] = AIMapping{
			StableID:  match[1],
			Directive: Directive(match[2]),
			Value:     strings.TrimSpace(match[3]),
		}
	}
	return out
}

// ManualMaxLength picks the generation cap for a MANUAL target
func ManualMaxLength(category models.FieldCategory) int {
	if category == models.CategoryTextarea {
		return manualMaxTextarea
	}
	return manualMaxTextInput
}

// GenerateText produces prose for a MANUAL field, capped at maxLength
func (m *AIMapper) GenerateText(ctx context.Context, fieldLabel, description string, maxLength int, profile *models.Profile) (string, error) {
	prompt := fmt.Sprintf(`Write the applicant's answer for the application question below.
Question: %s
Guidance: %s
Maximum length: %d characters. Write in first person, no preamble, no quotes.

APPLICANT PROFILE:
%s`, fieldLabel, description, maxLength, RenderProfile(profile))

	response, err := m.llm.Chat(ctx, []interfaces.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", fmt.Errorf("text generation failed: %w", err)
	}

	text := strings.TrimSpace(response)
	text = strings.Trim(text, `"`)
	return truncateAtSentence(text, maxLength), nil
}

// truncateAtSentence caps text at maxLength runes, preferring to end on
// sentence punctuation when one falls in the second half of the cut.
func truncateAtSentence(text string, maxLength int) string {
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	cut := string(runes[:maxLength])
	if idx := strings.LastIndexAny(cut, ".!?"); idx > len(cut)/2 {
		cut = cut[:idx+1]
	}
	return cut
}

// RenderProfile flattens a profile into the structured text block the
// prompts embed.
func RenderProfile(profile *models.Profile) string {
	var b strings.Builder

	keys := profile.SortedKeys()
	for _, key := range keys {
		if list, err := profile.List(key); err == nil && len(list) > 1 {
			fmt.Fprintf(&b, "%s: %s\n", key, strings.Join(list, ", "))
			continue
		}
		if value := profile.StringOr(key, ""); value != "" {
			fmt.Fprintf(&b, "%s: %s\n", key, value)
		}
	}

	if len(profile.WorkExperience) > 0 {
		b.WriteString("\nWORK EXPERIENCE:\n")
		for _, exp := range profile.WorkExperience {
			fmt.Fprintf(&b, "- %s at %s (%s to %s)", exp.Title, exp.Company, exp.StartDate, endOrPresent(exp.EndDate, exp.Current))
			if exp.Description != "" {
				fmt.Fprintf(&b, ": %s", exp.Description)
			}
			b.WriteString("\n")
		}
	}

	if len(profile.Education) > 0 {
		b.WriteString("\nEDUCATION:\n")
		for _, edu := range profile.Education {
			fmt.Fprintf(&b, "- %s, %s at %s (%s to %s)\n", edu.Degree, edu.FieldOfStudy, edu.Institution, edu.StartDate, edu.EndDate)
		}
	}

	if len(profile.Projects) > 0 {
		b.WriteString("\nPROJECTS:\n")
		for _, p := range profile.Projects {
			fmt.Fprintf(&b, "- %s: %s (%s)\n", p.Name, p.Description, strings.Join(p.Technologies, ", "))
		}
	}

	return b.String()
}

func endOrPresent(endDate string, current bool) string {
	if current || endDate == "" {
		return "present"
	}
	return endDate
}
