package formfill

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/models"
)

// maxIterations bounds the per-page fill loop; dynamic forms reveal
// fields as earlier ones are answered.
const maxIterations = 5

// iterationSettle waits for dynamic content between iterations
const iterationSettle = 1 * time.Second

// nextButtonRegex identifies page-advance controls
var nextButtonRegex = regexp.MustCompile(`(?i)next|continue|proceed|save and continue|save\s*&\s*continue|save and next|next step|next page|→|>`)

// submitButtonRegex identifies controls that must never be clicked
var submitButtonRegex = regexp.MustCompile(`(?i)submit|apply|send application|finish|complete application|review and submit|confirm and submit`)

// PageResult summarizes one page of the fill loop
type PageResult struct {
	Success           bool           `json:"success"`
	Iterations        int            `json:"iterations"`
	FieldsByMethod    map[string]int `json:"fields_by_method"`
	SkippedFields     []string       `json:"skipped_fields"`
	NeedsHumanInput   []string       `json:"needs_human_input"`
	NextButtonClicked bool           `json:"next_button_clicked"`
	ReviewApproved    bool           `json:"review_approved"`
}

// phase is the escalation ladder position for one field
type phase int

const (
	phaseDeterministic phase = iota
	phaseLearned
	phaseAI
	phaseExhausted
)

// fieldState tracks one stable id across iterations. Trackers reference
// ids, never elements; elements are re-resolved every iteration.
type fieldState struct {
	nextPhase  phase
	completed  bool
	terminal   bool // needs human input, never retried
	filledWith string
	profileKey string
	label      string
}

// Orchestrator runs the page fill loop: detect, consolidate, then the
// three mapping phases, then one final model review.
type Orchestrator struct {
	detector   *Detector
	det        *DeterministicMapper
	learned    *LearnedMapper
	ai         *AIMapper
	interactor *Interactor
	uploader   *Uploader
	logger     arbor.ILogger
}

// NewOrchestrator wires the fill pipeline
func NewOrchestrator(
	detector *Detector,
	det *DeterministicMapper,
	learned *LearnedMapper,
	ai *AIMapper,
	interactor *Interactor,
	uploader *Uploader,
	logger arbor.ILogger,
) *Orchestrator {
	return &Orchestrator{
		detector:   detector,
		det:        det,
		learned:    learned,
		ai:         ai,
		interactor: interactor,
		uploader:   uploader,
		logger:     logger,
	}
}

// FillPage fills every automatable field on the current page, reviews
// the result, and clicks the next button when one exists. resumePath is
// uploaded on the first iteration when non-empty. cancelled is polled
// between iterations for cooperative cancellation.
func (o *Orchestrator) FillPage(
	ctx context.Context,
	profile *models.Profile,
	userID string,
	resumePath string,
	cancelled func() bool,
) (*PageResult, error) {
	result := &PageResult{
		FieldsByMethod: map[string]int{},
	}
	states := make(map[string]*fieldState)

	for iteration := 0; iteration < maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if cancelled != nil && cancelled() {
			return result, fmt.Errorf("fill cancelled")
		}
		result.Iterations = iteration + 1

		if iteration == 0 && resumePath != "" {
			if ok, err := o.uploader.Upload(ctx, resumePath); err != nil {
				o.logger.Warn().Err(err).Msg("Resume upload errored")
			} else if ok {
				o.logger.Info().Msg("Resume uploaded")
			}
		}

		fields, err := o.detector.DetectFields(ctx)
		if err != nil {
			return result, WrapFieldError(ErrKindBrowser, "", "field detection failed", err)
		}

		pending := o.cleanFields(fields, states)
		if len(pending) == 0 {
			break
		}

		// Phase 1: deterministic
		remaining := pending[:0:0]
		for _, f := range pending {
			st := states[f.StableID]
			if st.nextPhase != phaseDeterministic {
				remaining = append(remaining, f)
				continue
			}
			st.nextPhase = phaseLearned

			mapping, ok := o.det.Map(&f, profile)
			if !ok {
				remaining = append(remaining, f)
				continue
			}
			if o.applyMapping(ctx, &f, mapping, profile, st, result, "deterministic") {
				continue
			}
			remaining = append(remaining, f)
		}

		// Phase 1.5: learned patterns
		pending, remaining = remaining, pending[:0:0]
		for _, f := range pending {
			st := states[f.StableID]
			if st.nextPhase > phaseLearned {
				remaining = append(remaining, f)
				continue
			}
			st.nextPhase = phaseAI

			mapping, ok := o.learned.Map(ctx, &f, profile, userID)
			if !ok {
				remaining = append(remaining, f)
				continue
			}
			if o.applyMapping(ctx, &f, mapping, profile, st, result, "learned") {
				continue
			}
			remaining = append(remaining, f)
		}

		// Phase 2: one batched model call for everything left
		if len(remaining) > 0 {
			o.runAIPhase(ctx, remaining, profile, userID, states, result)
		}

		if o.allSettled(states) {
			break
		}
		if err := chromedp.Run(ctx, chromedp.Sleep(iterationSettle)); err != nil {
			return result, err
		}
	}

	o.finalReview(ctx, profile, states, result)

	clicked, err := o.ClickNextButton(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Next-button scan failed")
	}
	result.NextButtonClicked = clicked

	// Unfilled non-human-input fields do not fail the page
	result.Success = true
	return result, nil
}

// cleanFields drops undetectable or untouchable controls and anything
// already completed, seeding tracker state for the rest.
func (o *Orchestrator) cleanFields(fields []models.FormField, states map[string]*fieldState) []models.FormField {
	var out []models.FormField
	for _, f := range fields {
		if f.Label == "" && f.StableID == "" {
			continue
		}
		if f.Category == "listbox" || strings.EqualFold(f.InputType, "listbox") {
			continue
		}
		if f.Disabled || !f.Visible {
			continue
		}

		st, ok := states[f.StableID]
		if !ok {
			st = &fieldState{label: f.Label}
			states[f.StableID] = st
		}
		if st.completed || st.terminal {
			continue
		}
		out = append(out, f)
	}
	return out
}

// applyMapping cleans and writes one mapped value. Returns true when the
// field is settled (filled or marked terminal).
func (o *Orchestrator) applyMapping(
	ctx context.Context,
	field *models.FormField,
	mapping *models.FieldMapping,
	profile *models.Profile,
	st *fieldState,
	result *PageResult,
	methodBucket string,
) bool {
	value := mapping.Value
	if !field.Category.IsDropdown() && field.Category != models.CategoryRadioGroup {
		value = Clean(value, field.Label, field.Category)
		if value == "" {
			o.logger.Debug().Str("label", field.Label).Msg("Value rejected by validator")
			return false
		}
	}

	// Dropdowns and groups get the canonical option resolution first
	if field.Category.IsDropdown() && len(field.Options) > 0 {
		optionTexts := make([]string, 0, len(field.Options))
		for _, opt := range field.Options {
			optionTexts = append(optionTexts, opt.Label)
		}
		if resolved, _, ok := MapDropdownValue(value, FieldTypeForKey(mapping.ProfileKey), optionTexts); ok {
			value = resolved
		}
	}

	fill, err := o.interactor.Fill(ctx, field, value, profile)
	if err != nil {
		if fe, ok := IsFieldError(err); ok && fe.Kind == ErrKindBrowser {
			o.logger.Error().Err(err).Str("label", field.Label).Msg("Browser-fatal fill error")
		} else {
			o.logger.Debug().Err(err).Str("label", field.Label).Msg("Fill failed, will escalate")
		}
		return false
	}

	st.completed = true
	st.filledWith = fill.FinalValue
	st.profileKey = mapping.ProfileKey
	if fill.Method == MethodSkippedAlreadyFilled {
		result.FieldsByMethod["skipped"]++
	} else {
		result.FieldsByMethod[methodBucket]++
	}
	return true
}

// runAIPhase maps the remaining fields with one batched model call
func (o *Orchestrator) runAIPhase(
	ctx context.Context,
	fields []models.FormField,
	profile *models.Profile,
	userID string,
	states map[string]*fieldState,
	result *PageResult,
) {
	mappings, err := o.ai.MapBatch(ctx, fields, profile)
	if err != nil {
		o.logger.Warn().Err(err).Int("fields", len(fields)).Msg("AI batch mapping failed")
		return
	}

	for i := range fields {
		f := &fields[i]
		st := states[f.StableID]
		st.nextPhase = phaseExhausted

		mapping, ok := mappings[f.StableID]
		if !ok {
			result.SkippedFields = append(result.SkippedFields, f.Label)
			continue
		}

		switch mapping.Directive {
		case DirectiveNeedsHuman:
			st.terminal = true
			result.NeedsHumanInput = append(result.NeedsHumanInput, f.Label)
			continue

		case DirectiveManual:
			maxLen := ManualMaxLength(f.Category)
			text, err := o.ai.GenerateText(ctx, f.Label, mapping.Value, maxLen, profile)
			if err != nil {
				o.logger.Warn().Err(err).Str("label", f.Label).Msg("Manual text generation failed")
				result.SkippedFields = append(result.SkippedFields, f.Label)
				continue
			}
			if f.Category == models.CategoryFileUpload {
				// Long prose aimed at an upload control becomes a document
				path, err := o.materializeTextFile(text, profile)
				if err != nil {
					o.logger.Warn().Err(err).Str("label", f.Label).Msg("Could not materialize generated document")
					result.SkippedFields = append(result.SkippedFields, f.Label)
					continue
				}
				text = path
			}
			mapping.Value = text

		case DirectiveSimple, DirectiveDropdown, DirectiveMultiselect, DirectiveMultiselectSkill:
			// fall through to fill

		default:
			result.SkippedFields = append(result.SkippedFields, f.Label)
			continue
		}

		fill, err := o.interactor.Fill(ctx, f, mapping.Value, profile)
		if err != nil {
			o.logger.Debug().Err(err).Str("label", f.Label).Msg("AI-mapped fill failed")
			result.SkippedFields = append(result.SkippedFields, f.Label)
			continue
		}

		st.completed = true
		st.filledWith = fill.FinalValue
		if fill.Method == MethodSkippedAlreadyFilled {
			result.FieldsByMethod["skipped"]++
		} else {
			result.FieldsByMethod["ai"]++
		}

		// Learn the association for next time. MANUAL and human-input
		// answers carry no reusable profile key.
		if mapping.Directive != DirectiveManual {
			if key := reverseLookupProfileKey(profile, mapping.Value); key != "" {
				st.profileKey = key
				o.learned.RecordSuccess(ctx, f, key, userID)
			}
		}
	}
}

// materializeTextFile writes generated prose as a text document for
// upload controls that expect a file.
func (o *Orchestrator) materializeTextFile(text string, profile *models.Profile) (string, error) {
	return o.interactor.stageTextDocument(text, profile.FullName())
}

// allSettled reports whether every tracked field is completed or terminal
func (o *Orchestrator) allSettled(states map[string]*fieldState) bool {
	for _, st := range states {
		if !st.completed && !st.terminal {
			return false
		}
	}
	return len(states) > 0
}

// finalReview runs the post-fill model review exactly once, with at most
// one corrective pass.
func (o *Orchestrator) finalReview(ctx context.Context, profile *models.Profile, states map[string]*fieldState, result *PageResult) {
	entries := o.reviewEntries(states)
	if len(entries) == 0 {
		result.ReviewApproved = true
		return
	}

	review, err := o.ai.FinalReview(ctx, entries, profile)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Final review failed, proceeding unreviewed")
		result.ReviewApproved = true
		return
	}

	if review.Approved {
		result.ReviewApproved = true
		return
	}

	o.logger.Info().
		Int("issues", len(review.Issues)).
		Float64("confidence", review.Confidence).
		Msg("Review rejected page, requesting corrections")

	corrections, err := o.ai.RequestCorrections(ctx, entries, review.Issues, profile)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Correction request failed")
		return
	}

	o.applyCorrections(ctx, corrections, profile, states)

	second, err := o.ai.FinalReview(ctx, o.reviewEntries(states), profile)
	if err == nil {
		result.ReviewApproved = second.Approved
	}
}

// reviewEntries builds the (label, value) list for the review prompt
func (o *Orchestrator) reviewEntries(states map[string]*fieldState) []ReviewEntry {
	var entries []ReviewEntry
	for _, st := range states {
		if st.completed && st.label != "" {
			entries = append(entries, ReviewEntry{FieldName: st.label, Value: st.filledWith})
		}
	}
	return entries
}

// applyCorrections writes structured fixes back to the page. An empty
// corrected value clears the field.
func (o *Orchestrator) applyCorrections(ctx context.Context, corrections []Correction, profile *models.Profile, states map[string]*fieldState) {
	fields, err := o.detector.DetectFields(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Re-detection for corrections failed")
		return
	}

	byLabel := make(map[string]*models.FormField, len(fields))
	for i := range fields {
		byLabel[NormalizeLabel(fields[i].Label)] = &fields[i]
	}

	for _, c := range corrections {
		f, ok := byLabel[NormalizeLabel(c.FieldName)]
		if !ok {
			o.logger.Debug().Str("field", c.FieldName).Msg("Correction target not found")
			continue
		}

		if c.CorrectedValue == "" {
			if err := o.clearField(ctx, f); err != nil {
				o.logger.Warn().Err(err).Str("field", c.FieldName).Msg("Failed clearing field")
			}
			if st, ok := states[f.StableID]; ok {
				st.filledWith = ""
			}
			continue
		}

		// Re-fill over the existing value
		f.Filled = false
		if _, err := o.interactor.Fill(ctx, f, c.CorrectedValue, profile); err != nil {
			o.logger.Warn().Err(err).Str("field", c.FieldName).Msg("Failed applying correction")
			continue
		}
		if st, ok := states[f.StableID]; ok {
			st.filledWith = c.CorrectedValue
		}
	}
}

// clearField empties a text-like control
func (o *Orchestrator) clearField(ctx context.Context, field *models.FormField) error {
	return chromedp.Run(ctx, chromedp.Clear(freshSelector(field), chromedp.ByQuery))
}

// ClickNextButton clicks the first visible page-advance control that is
// not a submit. Submit buttons are never clicked under any circumstances.
func (o *Orchestrator) ClickNextButton(ctx context.Context) (bool, error) {
	const scanJS = `(() => {
		const out = [];
		for (const el of document.querySelectorAll('button, a[href], [role="button"], input[type="button"]')) {
			const style = window.getComputedStyle(el);
			if (style.display === 'none' || style.visibility === 'hidden') continue;
			const rect = el.getBoundingClientRect();
			if (rect.width === 0 && rect.height === 0) continue;
			const text = ((el.textContent || '') + ' ' + (el.value || '') + ' ' + (el.getAttribute('aria-label') || '')).trim();
			if (text) out.push(text);
		}
		return out;
	})()`

	var buttonTexts []string
	if err := chromedp.Run(ctx, chromedp.Evaluate(scanJS, &buttonTexts)); err != nil {
		return false, fmt.Errorf("button scan failed: %w", err)
	}

	target := ChooseNextButton(buttonTexts)
	if target == "" {
		return false, nil
	}

	clickJS := fmt.Sprintf(`(() => {
		const wanted = %q;
		for (const el of document.querySelectorAll('button, a[href], [role="button"], input[type="button"]')) {
			const text = ((el.textContent || '') + ' ' + (el.value || '') + ' ' + (el.getAttribute('aria-label') || '')).trim();
			if (text === wanted) { el.click(); return true; }
		}
		return false;
	})()`, target)

	var clicked bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(clickJS, &clicked)); err != nil {
		return false, err
	}
	if clicked {
		o.logger.Info().Str("button", target).Msg("Advanced to next page")
	}
	return clicked, nil
}

// ChooseNextButton picks the first advance control from visible button
// texts, refusing anything submit-shaped.
func ChooseNextButton(buttonTexts []string) string {
	for _, text := range buttonTexts {
		if submitButtonRegex.MatchString(text) {
			continue
		}
		if nextButtonRegex.MatchString(text) {
			return text
		}
	}
	return ""
}

// reverseLookupProfileKey finds the profile key whose value produced the
// model's answer, so the association can be learned.
func reverseLookupProfileKey(profile *models.Profile, value string) string {
	wanted := strings.ToLower(strings.TrimSpace(value))
	if wanted == "" {
		return ""
	}
	for _, key := range profile.SortedKeys() {
		if v := profile.StringOr(key, ""); v != "" && strings.ToLower(strings.TrimSpace(v)) == wanted {
			return key
		}
	}
	return ""
}
