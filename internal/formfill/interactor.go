package formfill

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/models"
)

// dropdownDeadline bounds one vendor-driver attempt so a wedged widget
// escalates to the model instead of stalling the page loop.
const dropdownDeadline = 8 * time.Second

// MethodSkippedAlreadyFilled marks fields that carried a value before we
// touched them.
const MethodSkippedAlreadyFilled = "skipped_already_filled"

// truthyValues are accepted as "check this box"
var truthyValues = map[string]bool{
	"true": true, "yes": true, "1": true, "on": true, "checked": true,
}

// Interactor performs the actual page writes for one field at a time
type Interactor struct {
	logger     arbor.ILogger
	drivers    *DropdownDrivers
	uploadsDir string
}

// NewInteractor creates a field interactor. uploadsDir receives renamed
// copies of files before upload.
func NewInteractor(drivers *DropdownDrivers, uploadsDir string, logger arbor.ILogger) *Interactor {
	return &Interactor{
		logger:     logger,
		drivers:    drivers,
		uploadsDir: uploadsDir,
	}
}

// freshSelector builds a locator from the field's stored identity.
// Constructed on every call because ATS pages re-render between
// iterations and stale handles are worthless.
func freshSelector(field *models.FormField) string {
	switch {
	case field.ID != "":
		return fmt.Sprintf(`[id="%s"]`, field.ID)
	case field.Name != "":
		return fmt.Sprintf(`%s[name="%s"]`, field.TagName, field.Name)
	default:
		return field.Selector
	}
}

// Fill writes value into the field and verifies it landed. Every exit
// path produces a FillResult; errors worth escalating are also returned
// as FieldError.
func (in *Interactor) Fill(ctx context.Context, field *models.FormField, value string, profile *models.Profile) (*models.FillResult, error) {
	start := time.Now()

	result := func(success bool, method, finalValue string, verified bool, err error) (*models.FillResult, error) {
		r := &models.FillResult{
			Success:    success,
			Method:     method,
			FinalValue: finalValue,
			Verified:   verified,
			TimeMs:     time.Since(start).Milliseconds(),
		}
		if err != nil {
			r.Error = err.Error()
		}
		return r, err
	}

	// Skip fields that already carry a value. Report the intended value,
	// not the DOM value, which vendors truncate for display.
	if filled, err := in.alreadyFilled(ctx, field); err == nil && filled {
		in.logger.Debug().Str("label", field.Label).Msg("Field already filled, skipping")
		return result(true, MethodSkippedAlreadyFilled, value, true, nil)
	}

	switch field.Category {
	case models.CategoryFileUpload:
		verified, err := in.fillFileUpload(ctx, field, value, profile.FullName())
		return result(err == nil, "file_upload", value, verified, err)

	case models.CategoryWorkdayMultiselect:
		err := in.fillWorkdayMultiselect(ctx, field, splitList(value))
		return result(err == nil, "workday_multiselect", value, err == nil, err)

	case models.CategoryGreenhouseMulti:
		err := in.fillGreenhouseMulti(ctx, field, splitList(value))
		return result(err == nil, "greenhouse_multiselect", value, err == nil, err)

	case models.CategoryDropdown, models.CategoryGreenhouseDropdown,
		models.CategoryWorkdayDropdown, models.CategoryLeverDropdown,
		models.CategoryAshbyButtonGroup:
		verified, err := in.fillDropdown(ctx, field, value)
		return result(err == nil, "dropdown", value, verified, err)

	case models.CategoryRadioGroup:
		err := in.fillRadioGroup(ctx, field, value)
		return result(err == nil, "radio_group", value, err == nil, err)

	case models.CategoryCheckboxGroup:
		err := in.fillCheckboxGroup(ctx, field, splitList(value))
		return result(err == nil, "checkbox_group", value, err == nil, err)

	case models.CategoryCheckbox:
		err := in.fillCheckbox(ctx, field, value)
		return result(err == nil, "checkbox", value, err == nil, err)

	case models.CategoryRadio:
		err := in.fillRadio(ctx, field, value)
		return result(err == nil, "radio", value, err == nil, err)

	case models.CategoryTextarea:
		verified, err := in.fillTextarea(ctx, field, value)
		return result(err == nil, "textarea", value, verified, err)

	default:
		verified, err := in.fillText(ctx, field, value)
		return result(err == nil, "text", value, verified, err)
	}
}

// alreadyFilled reads whether the control carries a value or check
func (in *Interactor) alreadyFilled(ctx context.Context, field *models.FormField) (bool, error) {
	if field.Filled {
		return true, nil
	}
	if field.Category == models.CategoryRadioGroup || field.Category == models.CategoryCheckboxGroup {
		script := fmt.Sprintf(`(() => {
			const els = document.querySelectorAll(%q);
			for (const el of els) if (el.checked) return true;
			return false;
		})()`, freshSelector(field))
		var checked bool
		err := chromedp.Run(ctx, chromedp.Evaluate(script, &checked))
		return checked, err
	}

	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		if (el.type === 'checkbox' || el.type === 'radio') return !!el.checked;
		return !!(el.value && el.value.trim());
	})()`, freshSelector(field))
	var filled bool
	err := chromedp.Run(ctx, chromedp.Evaluate(script, &filled))
	return filled, err
}

// fillDropdown runs the vendor driver under the dropdown deadline
func (in *Interactor) fillDropdown(ctx context.Context, field *models.FormField, value string) (bool, error) {
	deadlineCtx, cancel := context.WithTimeout(ctx, dropdownDeadline)
	defer cancel()

	ok, err := in.drivers.Fill(deadlineCtx, field, value)
	if deadlineCtx.Err() == context.DeadlineExceeded {
		return false, NewFieldError(ErrKindTimeout, field.Label,
			fmt.Sprintf("dropdown driver exceeded %s", dropdownDeadline))
	}
	return ok, err
}

// fillGreenhouseMulti selects each value, closing the menu after the last
func (in *Interactor) fillGreenhouseMulti(ctx context.Context, field *models.FormField, values []string) error {
	for i, v := range values {
		deadlineCtx, cancel := context.WithTimeout(ctx, dropdownDeadline)
		_, err := in.drivers.FillGreenhouse(deadlineCtx, field, v, true)
		cancel()
		if err != nil {
			in.logger.Warn().Err(err).Str("value", v).Str("label", field.Label).Msg("Multi-select value failed")
			continue
		}
		if i == len(values)-1 {
			if err := in.drivers.CloseGreenhouse(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// fillWorkdayMultiselect opens the widget once and picks each value via
// the search input.
func (in *Interactor) fillWorkdayMultiselect(ctx context.Context, field *models.FormField, values []string) error {
	sel := freshSelector(field)
	if err := chromedp.Run(ctx, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
		return WrapFieldError(ErrKindDropdown, field.Label, "failed to open multiselect", err)
	}

	for _, v := range values {
		script := fmt.Sprintf(`(() => {
			const search = document.querySelector('[data-automation-id*="searchBox"] input, [data-automation-id*="search"] input');
			if (search) {
				const setter = Object.getOwnPropertyDescriptor(window.HTMLInputElement.prototype, 'value').set;
				setter.call(search, %q);
				search.dispatchEvent(new Event('input', { bubbles: true }));
			}
			return true;
		})()`, v)
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(script, nil),
			chromedp.Sleep(filterSettle),
		); err != nil {
			return err
		}

		clickScript := fmt.Sprintf(`(() => {
			const wanted = %q.toLowerCase();
			const opts = Array.from(document.querySelectorAll('[data-automation-id*="dropdown-list"] li, [role="option"]'))
				.filter(el => (el.textContent || '').trim());
			let hit = opts.find(el => el.textContent.trim().toLowerCase() === wanted);
			if (!hit) hit = opts.find(el => el.textContent.trim().toLowerCase().includes(wanted));
			if (!hit) return false;
			hit.click();
			return true;
		})()`, v)
		var clicked bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(clickScript, &clicked)); err != nil {
			return err
		}
		if !clicked {
			in.logger.Warn().Str("value", v).Str("label", field.Label).Msg("Workday multiselect value not found")
		}
	}

	return in.drivers.CloseGreenhouse(ctx)
}

// fillRadioGroup clicks the member whose option label best matches value.
// Exact match scores 100, containment with length-ratio >= 0.5 scores 80.
func (in *Interactor) fillRadioGroup(ctx context.Context, field *models.FormField, value string) error {
	wanted := strings.ToLower(strings.TrimSpace(value))

	bestIdx := -1
	bestScore := 0
	for i, opt := range field.Options {
		label := strings.ToLower(strings.TrimSpace(opt.Label))
		if label == "" {
			label = strings.ToLower(strings.TrimSpace(opt.Value))
		}
		score := 0
		switch {
		case label == wanted:
			score = 100
		case label != "" && (strings.Contains(label, wanted) || strings.Contains(wanted, label)):
			shorter, longer := len(label), len(wanted)
			if shorter > longer {
				shorter, longer = longer, shorter
			}
			if float64(shorter)/float64(longer) >= 0.5 {
				score = 80
			}
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestIdx < 0 {
		return NewFieldError(ErrKindDropdown, field.Label,
			fmt.Sprintf("no radio option matched %q", value))
	}

	return in.clickControl(ctx, field.Options[bestIdx].Selector, field.Label)
}

// fillCheckboxGroup checks each named option. Single-member groups
// accept boolean strings.
func (in *Interactor) fillCheckboxGroup(ctx context.Context, field *models.FormField, values []string) error {
	if len(field.Options) == 1 && len(values) == 1 && truthyValues[strings.ToLower(values[0])] {
		return in.setChecked(ctx, field.Options[0].Selector, field.Label, true)
	}

	for _, v := range values {
		wanted := strings.ToLower(strings.TrimSpace(v))
		found := false
		for _, opt := range field.Options {
			label := strings.ToLower(strings.TrimSpace(opt.Label))
			if label == wanted || strings.Contains(label, wanted) || strings.Contains(wanted, label) {
				if err := in.setChecked(ctx, opt.Selector, field.Label, true); err != nil {
					return err
				}
				found = true
				break
			}
		}
		if !found {
			in.logger.Warn().Str("value", v).Str("label", field.Label).Msg("No checkbox matched value")
		}
	}
	return nil
}

// fillCheckbox checks or unchecks per boolean truthiness
func (in *Interactor) fillCheckbox(ctx context.Context, field *models.FormField, value string) error {
	return in.setChecked(ctx, freshSelector(field), field.Label, truthyValues[strings.ToLower(strings.TrimSpace(value))])
}

// fillRadio clicks a standalone radio when its label, aria-label, value
// attribute, or field label matches the desired value.
func (in *Interactor) fillRadio(ctx context.Context, field *models.FormField, value string) error {
	wanted := strings.ToLower(strings.TrimSpace(value))
	candidates := []string{field.Label, field.AriaLabel, field.Name}

	matched := false
	for _, c := range candidates {
		cl := strings.ToLower(strings.TrimSpace(c))
		if cl != "" && (cl == wanted || strings.Contains(cl, wanted) || strings.Contains(wanted, cl)) {
			matched = true
			break
		}
	}
	if !matched {
		// Check the element's value attribute on the page
		script := fmt.Sprintf(`(() => {
			const el = document.querySelector(%q);
			return el ? (el.value || '').toLowerCase() : '';
		})()`, freshSelector(field))
		var attrValue string
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, &attrValue)); err == nil {
			matched = attrValue == wanted || strings.Contains(attrValue, wanted)
		}
	}
	if !matched {
		return NewFieldError(ErrKindDropdown, field.Label,
			fmt.Sprintf("radio does not correspond to value %q", value))
	}

	return in.clickControl(ctx, freshSelector(field), field.Label)
}

// clickControl clicks natively, then through a page script
func (in *Interactor) clickControl(ctx context.Context, selector, label string) error {
	if err := chromedp.Run(ctx, chromedp.Click(selector, chromedp.ByQuery)); err == nil {
		return nil
	}

	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.click();
		return true;
	})()`, selector)
	var clicked bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &clicked)); err != nil || !clicked {
		return NewFieldError(ErrKindStale, label, fmt.Sprintf("could not click %s", selector))
	}
	return nil
}

// setChecked sets a checkbox to the desired state
func (in *Interactor) setChecked(ctx context.Context, selector, label string, checked bool) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		if (el.checked !== %t) el.click();
		if (el.checked !== %t) {
			el.checked = %t;
			el.dispatchEvent(new Event('change', { bubbles: true }));
		}
		return el.checked === %t;
	})()`, selector, checked, checked, checked, checked)

	var ok bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return WrapFieldError(ErrKindStale, label, "checkbox script failed", err)
	}
	if !ok {
		return NewFieldError(ErrKindVerification, label, "checkbox state did not change")
	}
	return nil
}

// fillTextarea fills and verifies, falling back to a native-setter write
// that dispatches the event sequence React controlled components expect.
func (in *Interactor) fillTextarea(ctx context.Context, field *models.FormField, value string) (bool, error) {
	sel := freshSelector(field)

	err := chromedp.Run(ctx,
		chromedp.Focus(sel, chromedp.ByQuery),
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	)
	if err == nil {
		if ok, _ := in.verifyValue(ctx, sel, value); ok {
			return true, nil
		}
	}

	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		const setter = Object.getOwnPropertyDescriptor(window.HTMLTextAreaElement.prototype, 'value').set;
		setter.call(el, %q);
		for (const type of ['focus', 'input', 'change', 'blur', 'keydown', 'keyup']) {
			el.dispatchEvent(new Event(type, { bubbles: true }));
		}
		return true;
	})()`, sel, value)
	var assigned bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &assigned)); err != nil || !assigned {
		return false, NewFieldError(ErrKindVerification, field.Label, "textarea fill failed after native-setter fallback")
	}
	return in.verifyValue(ctx, sel, value)
}

// fillText clears, fills, verifies; JS-injection fallback on failure
func (in *Interactor) fillText(ctx context.Context, field *models.FormField, value string) (bool, error) {
	sel := freshSelector(field)

	err := chromedp.Run(ctx,
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	)
	if err == nil {
		if ok, _ := in.verifyValue(ctx, sel, value); ok {
			return true, nil
		}
	}

	script := fmt.Sprintf(`(() => {
		let el = document.getElementById(%q);
		if (!el) el = document.querySelector('[name=%q]');
		if (!el) el = document.querySelector(%q);
		if (!el) return false;
		el.value = %q;
		for (const type of ['input', 'change', 'blur']) {
			el.dispatchEvent(new Event(type, { bubbles: true }));
		}
		return true;
	})()`, field.ID, field.Name, sel, value)
	var assigned bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &assigned)); err != nil || !assigned {
		return false, NewFieldError(ErrKindVerification, field.Label, "text fill failed after JS fallback")
	}
	return in.verifyValue(ctx, sel, value)
}

// verifyValue reads the control back and compares against the intent
func (in *Interactor) verifyValue(ctx context.Context, selector, wanted string) (bool, error) {
	var current string
	if err := chromedp.Run(ctx, chromedp.Value(selector, &current, chromedp.ByQuery)); err != nil {
		return false, err
	}
	return strings.TrimSpace(current) == strings.TrimSpace(wanted) ||
		strings.Contains(current, wanted), nil
}

// fillFileUpload copies the file under a recruiter-friendly name and
// sets it on the input. value carries the source path; the field label
// decides resume vs cover letter naming.
func (in *Interactor) fillFileUpload(ctx context.Context, field *models.FormField, value, uploaderName string) (bool, error) {
	srcPath, err := filepath.Abs(value)
	if err != nil {
		return false, WrapFieldError(ErrKindHumanInput, field.Label, "cannot resolve upload path", err)
	}
	if _, err := os.Stat(srcPath); err != nil {
		return false, WrapFieldError(ErrKindHumanInput, field.Label, "upload file missing", err)
	}

	kind := "Resume"
	if strings.Contains(strings.ToLower(field.Label), "cover") {
		kind = "CoverLetter"
	}
	renamed, err := in.renameForUpload(srcPath, uploaderName, kind)
	if err != nil {
		return false, WrapFieldError(ErrKindHumanInput, field.Label, "failed to stage upload copy", err)
	}

	sel := freshSelector(field)
	if err := chromedp.Run(ctx, chromedp.SetUploadFiles(sel, []string{renamed}, chromedp.ByQuery)); err != nil {
		return false, WrapFieldError(ErrKindDropdown, field.Label, "setting upload files failed", err)
	}

	// Verify the filename shows up on the page
	filename := filepath.Base(renamed)
	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	script := fmt.Sprintf(`document.body.innerText.includes(%q)`, filename)
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		var present bool
		if err := chromedp.Run(verifyCtx, chromedp.Evaluate(script, &present)); err != nil {
			return false, err
		}
		if present {
			return true, nil
		}
		select {
		case <-verifyCtx.Done():
			return false, NewFieldError(ErrKindVerification, field.Label, "uploaded filename never appeared")
		case <-time.After(500 * time.Millisecond):
		}
	}
	return false, NewFieldError(ErrKindVerification, field.Label, "uploaded filename never appeared")
}

// renameForUpload copies src into the staging dir as
// FirstName_LastName_{Resume|CoverLetter}.ext
func (in *Interactor) renameForUpload(srcPath, uploaderName, kind string) (string, error) {
	ext := filepath.Ext(srcPath)
	name := strings.ReplaceAll(strings.TrimSpace(uploaderName), " ", "_")
	if name == "" {
		name = "Applicant"
	}
	destName := fmt.Sprintf("%s_%s%s", name, kind, ext)
	destPath := filepath.Join(in.uploadsDir, destName)

	if err := os.MkdirAll(in.uploadsDir, 0o755); err != nil {
		return "", err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return "", err
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		return "", err
	}
	return destPath, nil
}

// stageTextDocument renders generated prose into a PDF so it can be
// handed to an upload control.
func (in *Interactor) stageTextDocument(text, uploaderName string) (string, error) {
	name := strings.ReplaceAll(strings.TrimSpace(uploaderName), " ", "_")
	if name == "" {
		name = "Applicant"
	}
	destPath := filepath.Join(in.uploadsDir, fmt.Sprintf("%s_CoverLetter.pdf", name))

	if err := os.MkdirAll(in.uploadsDir, 0o755); err != nil {
		return "", err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 6, text, "", "L", false)
	if err := pdf.OutputFileAndClose(destPath); err != nil {
		return "", fmt.Errorf("failed to write generated document: %w", err)
	}
	return destPath, nil
}

// splitList splits a comma-separated value into trimmed items
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
