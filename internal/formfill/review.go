package formfill

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/petitor/internal/interfaces"
	"github.com/ternarybob/petitor/internal/models"
)

// ReviewEntry is one (label, value) pair submitted for final review
type ReviewEntry struct {
	FieldName string `json:"field_name"`
	Value     string `json:"value"`
}

// ReviewResult is the model's verdict over a filled page
type ReviewResult struct {
	Approved   bool     `json:"approved"`
	Issues     []string `json:"issues"`
	Confidence float64  `json:"confidence"`
}

// Correction is one structured fix from the corrective pass. An empty
// CorrectedValue clears the field.
type Correction struct {
	FieldName      string `json:"field_name"`
	CurrentValue   string `json:"current_value"`
	CorrectedValue string `json:"corrected_value"`
	Reason         string `json:"reason"`
}

const reviewSystemPrompt = `You review values entered into a job-application form against the applicant's profile.
Respond with strict JSON only, no markdown, matching:
{"approved": bool, "issues": ["..."], "confidence": 0.0}
approved is false only when an entered value contradicts the profile or plainly answers the wrong question.`

const correctionsSystemPrompt = `You correct wrong values on a job-application form.
Respond with strict JSON only, no markdown: an array of
{"field_name": "...", "current_value": "...", "corrected_value": "...", "reason": "..."}
Use an empty corrected_value to clear a field. Only include fields that need changing.`

// FinalReview asks the model to approve the filled page
func (m *AIMapper) FinalReview(ctx context.Context, entries []ReviewEntry, profile *models.Profile) (*ReviewResult, error) {
	entriesJSON, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render review entries: %w", err)
	}

	prompt := fmt.Sprintf("APPLICANT PROFILE:\n%s\n\nENTERED VALUES:\n%s",
		RenderProfile(profile), string(entriesJSON))

	response, err := m.llm.Chat(ctx, []interfaces.Message{
		{Role: "system", Content: reviewSystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("final review failed: %w", err)
	}

	var result ReviewResult
	if err := json.Unmarshal([]byte(stripJSONFences(response)), &result); err != nil {
		return nil, fmt.Errorf("final review returned unparseable JSON: %w", err)
	}
	return &result, nil
}

// RequestCorrections asks for structured fixes to the flagged issues
func (m *AIMapper) RequestCorrections(ctx context.Context, entries []ReviewEntry, issues []string, profile *models.Profile) ([]Correction, error) {
	entriesJSON, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render review entries: %w", err)
	}

	prompt := fmt.Sprintf("APPLICANT PROFILE:\n%s\n\nENTERED VALUES:\n%s\n\nISSUES FOUND:\n- %s",
		RenderProfile(profile), string(entriesJSON), strings.Join(issues, "\n- "))

	response, err := m.llm.Chat(ctx, []interfaces.Message{
		{Role: "system", Content: correctionsSystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("correction request failed: %w", err)
	}

	var corrections []Correction
	if err := json.Unmarshal([]byte(stripJSONFences(response)), &corrections); err != nil {
		return nil, fmt.Errorf("corrections returned unparseable JSON: %w", err)
	}
	return corrections, nil
}

// stripJSONFences removes markdown code fences models wrap JSON in
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
