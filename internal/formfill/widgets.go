package formfill

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/models"
)

// optionClickThreshold is the minimum score before a driver clicks an
// option rather than reporting no match.
const optionClickThreshold = 0.3

// typeDelay paces keystrokes so React-Select filters keep up
const typeDelay = 20 * time.Millisecond

// filterSettle is the wait after typing before scanning the option menu
const filterSettle = 400 * time.Millisecond

// greenhouseMenuSelectors locate the open option menu, most specific
// first. React-Select class names churn between Greenhouse deployments.
var greenhouseMenuSelectors = []string{
	`[class*="select__menu"]`,
	`[id*="react-select"][id*="listbox"]`,
	`div[class*="MenuList"]`,
	`[role="listbox"]`,
	`div[class*="option"]`,
}

// greenhouseOptionSelectors enumerate option elements within the menu
var greenhouseOptionSelectors = []string{
	`[class*="select__option"]`,
	`div[class*="option"]:not([class*="placeholder"]):not([class*="input"])`,
	`[role="option"]`,
	`[id*="react-select"][id*="option"]`,
	`div[class*="Option"]`,
	`li[role="option"]`,
}

// DropdownDrivers implements vendor-specific dropdown interaction.
// Every driver returns (true, nil) only after read-back verification.
type DropdownDrivers struct {
	logger arbor.ILogger
}

// NewDropdownDrivers creates the driver set
func NewDropdownDrivers(logger arbor.ILogger) *DropdownDrivers {
	return &DropdownDrivers{logger: logger}
}

// Fill dispatches to the driver for the field's category
func (d *DropdownDrivers) Fill(ctx context.Context, field *models.FormField, value string) (bool, error) {
	switch field.Category {
	case models.CategoryGreenhouseDropdown:
		return d.FillGreenhouse(ctx, field, value, false)
	case models.CategoryGreenhouseMulti:
		return d.FillGreenhouse(ctx, field, value, true)
	case models.CategoryWorkdayDropdown:
		return d.fillWorkday(ctx, field, value)
	case models.CategoryLeverDropdown:
		return d.fillLever(ctx, field, value)
	case models.CategoryAshbyButtonGroup:
		return d.fillAshby(ctx, field, value)
	default:
		return d.fillGeneric(ctx, field, value)
	}
}

// ScoreGreenhouseOption rates how well an option text matches the
// desired value. Degree-normalized equality scores just below exact so
// "Master's" picks "Master of Science in Computer Science".
func ScoreGreenhouseOption(value, optionText string) float64 {
	v := strings.ToLower(strings.TrimSpace(value))
	o := strings.ToLower(strings.TrimSpace(optionText))
	if v == "" || o == "" {
		return 0
	}

	if v == o {
		return 1.0
	}

	if nv, no := NormalizeDegree(v), NormalizeDegree(o); nv != "" && nv == no {
		return 0.95
	}

	if overlap := tokenOverlapScore(v, o); overlap >= 0.5 {
		if overlap > 1.0 {
			return 1.0
		}
		return overlap
	}

	if strings.Contains(o, v) || strings.Contains(v, o) {
		shorter, longer := len(v), len(o)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return float64(shorter) / float64(longer)
	}

	return 0
}

// BestOption picks the highest-scoring option index, or -1 when nothing
// clears the click threshold.
func BestOption(value string, options []string) (int, float64) {
	bestIdx := -1
	bestScore := 0.0
	for i, opt := range options {
		if score := ScoreGreenhouseOption(value, opt); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestScore < optionClickThreshold {
		return -1, bestScore
	}
	return bestIdx, bestScore
}

// FillGreenhouse drives a React-Select combobox. multi leaves the menu
// open for subsequent values; the caller closes with CloseGreenhouse
// after the last one.
func (d *DropdownDrivers) FillGreenhouse(ctx context.Context, field *models.FormField, value string, multi bool) (bool, error) {
	sel := field.Selector

	// Collapse a stale open menu first
	var expanded bool
	_ = chromedp.Run(ctx, chromedp.Evaluate(
		fmt.Sprintf(`document.querySelector(%q)?.getAttribute('aria-expanded') === 'true'`, sel), &expanded))
	if expanded {
		if err := chromedp.Run(ctx,
			chromedp.KeyEvent(kb.Escape),
			chromedp.Sleep(200*time.Millisecond),
		); err != nil {
			return false, WrapFieldError(ErrKindDropdown, field.Label, "failed to collapse open menu", err)
		}
	}

	// Focus, clear, open
	if err := chromedp.Run(ctx,
		chromedp.Focus(sel, chromedp.ByQuery),
		chromedp.KeyEvent("a", chromedp.KeyModifiers(input.ModifierCtrl)),
		chromedp.KeyEvent(kb.Backspace),
		chromedp.Click(sel, chromedp.ByQuery),
	); err != nil {
		return false, WrapFieldError(ErrKindDropdown, field.Label, "failed to open dropdown", err)
	}

	// Type the value slowly so the filter keeps pace
	for _, r := range value {
		if err := chromedp.Run(ctx,
			chromedp.SendKeys(sel, string(r), chromedp.ByQuery),
			chromedp.Sleep(typeDelay),
		); err != nil {
			return false, WrapFieldError(ErrKindDropdown, field.Label, "failed typing filter text", err)
		}
	}
	if err := chromedp.Run(ctx, chromedp.Sleep(filterSettle)); err != nil {
		return false, err
	}

	options, err := d.scanGreenhouseOptions(ctx)
	if err != nil {
		return false, err
	}

	if len(options) == 0 {
		// Clear the filter and re-scan the unfiltered menu
		if err := chromedp.Run(ctx,
			chromedp.KeyEvent("a", chromedp.KeyModifiers(input.ModifierCtrl)),
			chromedp.KeyEvent(kb.Backspace),
			chromedp.Sleep(filterSettle),
		); err != nil {
			return false, err
		}
		options, err = d.scanGreenhouseOptions(ctx)
		if err != nil {
			return false, err
		}
	}

	if len(options) > 0 {
		idx, score := BestOption(value, options)
		if idx >= 0 {
			d.logger.Debug().
				Str("value", value).
				Str("option", options[idx]).
				Float64("score", score).
				Msg("Greenhouse option matched")

			if err := d.clickGreenhouseOption(ctx, idx); err != nil {
				return false, err
			}
			if !multi {
				_ = chromedp.Run(ctx, chromedp.Sleep(200*time.Millisecond))
			}
			return d.verifyGreenhouse(ctx, field, options[idx], value)
		}
		return false, NewFieldError(ErrKindDropdown, field.Label,
			fmt.Sprintf("no option matched %q among %d options", value, len(options)))
	}

	// Last resort: accept whatever Enter selects
	d.logger.Warn().Str("label", field.Label).Msg("No visible options, falling back to Enter")
	if err := chromedp.Run(ctx, chromedp.KeyEvent(kb.Enter), chromedp.Sleep(200*time.Millisecond)); err != nil {
		return false, err
	}
	return d.verifyGreenhouse(ctx, field, "", value)
}

// CloseGreenhouse dismisses an open multi-select menu
func (d *DropdownDrivers) CloseGreenhouse(ctx context.Context) error {
	return chromedp.Run(ctx, chromedp.KeyEvent(kb.Escape), chromedp.Sleep(100*time.Millisecond))
}

// scanGreenhouseOptions returns the visible option texts from the first
// productive selector pair.
func (d *DropdownDrivers) scanGreenhouseOptions(ctx context.Context) ([]string, error) {
	script := fmt.Sprintf(`(() => {
		const menuSelectors = %s;
		const optionSelectors = %s;
		let menu = null;
		for (const ms of menuSelectors) {
			menu = document.querySelector(ms);
			if (menu) break;
		}
		const root = menu || document;
		for (const os of optionSelectors) {
			const opts = Array.from(root.querySelectorAll(os))
				.map(el => (el.textContent || '').trim())
				.filter(t => t.length > 0);
			if (opts.length > 0) return opts;
		}
		return [];
	})()`, jsStringArray(greenhouseMenuSelectors), jsStringArray(greenhouseOptionSelectors))

	var options []string
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &options)); err != nil {
		return nil, fmt.Errorf("option scan failed: %w", err)
	}
	return options, nil
}

// clickGreenhouseOption clicks the option at index with four escalating
// strategies. Any success wins.
func (d *DropdownDrivers) clickGreenhouseOption(ctx context.Context, index int) error {
	script := fmt.Sprintf(`(() => {
		const menuSelectors = %s;
		const optionSelectors = %s;
		let menu = null;
		for (const ms of menuSelectors) {
			menu = document.querySelector(ms);
			if (menu) break;
		}
		const root = menu || document;
		let els = [];
		for (const os of optionSelectors) {
			els = Array.from(root.querySelectorAll(os)).filter(el => (el.textContent || '').trim());
			if (els.length > 0) break;
		}
		const el = els[%d];
		if (!el) return false;

		// 1. plain click
		try { el.click(); return true; } catch (e) {}
		// 2. click on the deepest child
		try { (el.firstElementChild || el).click(); return true; } catch (e) {}
		// 3. synthesized mouse events
		try {
			for (const type of ['mousedown', 'mouseup', 'click']) {
				el.dispatchEvent(new MouseEvent(type, { bubbles: true, cancelable: true, view: window }));
			}
			return true;
		} catch (e) {}
		// 4. forced pointer event
		try {
			el.dispatchEvent(new PointerEvent('pointerdown', { bubbles: true }));
			el.dispatchEvent(new PointerEvent('pointerup', { bubbles: true }));
			el.dispatchEvent(new MouseEvent('click', { bubbles: true }));
			return true;
		} catch (e) {}
		return false;
	})()`, jsStringArray(greenhouseMenuSelectors), jsStringArray(greenhouseOptionSelectors), index)

	var clicked bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return fmt.Errorf("option click failed: %w", err)
	}
	if !clicked {
		return fmt.Errorf("all click strategies failed for option %d", index)
	}
	return nil
}

// verifyGreenhouse reads back the selection. React-Select stores it in a
// singleValue display element outside the input.
func (d *DropdownDrivers) verifyGreenhouse(ctx context.Context, field *models.FormField, clicked, wanted string) (bool, error) {
	script := fmt.Sprintf(`(() => {
		const input = document.querySelector(%q);
		if (input && input.value && input.value.trim()) return input.value.trim();
		const container = input ? input.closest('[class*="select"]') || input.parentElement : null;
		const display = (container || document).querySelector('[class*="singleValue"], [class*="single-value"], [class*="multiValue"]');
		return display ? (display.textContent || '').trim() : '';
	})()`, field.Selector)

	var current string
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &current)); err != nil {
		return false, fmt.Errorf("verification read-back failed: %w", err)
	}

	if current == "" {
		return false, NewFieldError(ErrKindVerification, field.Label, "control reports no selection after click")
	}

	target := clicked
	if target == "" {
		target = wanted
	}
	if ScoreGreenhouseOption(target, current) >= optionClickThreshold ||
		strings.Contains(strings.ToLower(current), strings.ToLower(wanted)) {
		return true, nil
	}
	return false, NewFieldError(ErrKindVerification, field.Label,
		fmt.Sprintf("selection %q does not match wanted %q", current, wanted))
}

// fillWorkday drives a Workday dropdown: open, wait for the list, click
// the option whose text matches exactly, then by containment.
func (d *DropdownDrivers) fillWorkday(ctx context.Context, field *models.FormField, value string) (bool, error) {
	if err := chromedp.Run(ctx,
		chromedp.Click(field.Selector, chromedp.ByQuery),
		chromedp.WaitVisible(`[data-automation-id*="dropdown-list"]`, chromedp.ByQuery),
	); err != nil {
		return false, WrapFieldError(ErrKindDropdown, field.Label, "dropdown list did not appear", err)
	}

	script := fmt.Sprintf(`(() => {
		const list = document.querySelector('[data-automation-id*="dropdown-list"]');
		if (!list) return false;
		const wanted = %q.toLowerCase();
		const opts = Array.from(list.querySelectorAll('li, [role="option"], div'))
			.filter(el => (el.textContent || '').trim());
		let hit = opts.find(el => el.textContent.trim().toLowerCase() === wanted);
		if (!hit) hit = opts.find(el => el.textContent.trim().toLowerCase().includes(wanted));
		if (!hit) return false;
		hit.click();
		return true;
	})()`, value)

	var clicked bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return false, err
	}
	if !clicked {
		return false, NewFieldError(ErrKindDropdown, field.Label, fmt.Sprintf("no Workday option matched %q", value))
	}
	return d.verifyText(ctx, field, value)
}

// fillLever selects on a native select element: by label first, then by
// index containment.
func (d *DropdownDrivers) fillLever(ctx context.Context, field *models.FormField, value string) (bool, error) {
	script := fmt.Sprintf(`(() => {
		const sel = document.querySelector(%q);
		if (!sel || sel.tagName !== 'SELECT') return false;
		const wanted = %q.toLowerCase();
		let idx = Array.from(sel.options).findIndex(o => o.text.trim().toLowerCase() === wanted);
		if (idx < 0) idx = Array.from(sel.options).findIndex(o => o.text.trim().toLowerCase().includes(wanted));
		if (idx < 0) return false;
		sel.selectedIndex = idx;
		sel.dispatchEvent(new Event('input', { bubbles: true }));
		sel.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})()`, field.Selector, value)

	var selected bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &selected)); err != nil {
		return false, err
	}
	if !selected {
		return false, NewFieldError(ErrKindDropdown, field.Label, fmt.Sprintf("no select option matched %q", value))
	}
	return d.verifyText(ctx, field, value)
}

// fillAshby clicks the sibling button whose text contains the value
func (d *DropdownDrivers) fillAshby(ctx context.Context, field *models.FormField, value string) (bool, error) {
	script := fmt.Sprintf(`(() => {
		const anchor = document.querySelector(%q);
		const container = anchor ? anchor.parentElement : null;
		if (!container) return false;
		const wanted = %q.toLowerCase();
		const buttons = Array.from(container.querySelectorAll('button[role="button"], [role="button"]'));
		const hit = buttons.find(b => (b.textContent || '').trim().toLowerCase().includes(wanted));
		if (!hit) return false;
		hit.click();
		return true;
	})()`, field.Selector, value)

	var clicked bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return false, err
	}
	if !clicked {
		return false, NewFieldError(ErrKindDropdown, field.Label, fmt.Sprintf("no button matched %q", value))
	}
	return true, nil
}

// fillGeneric tries every strategy in turn for unrecognized widgets
func (d *DropdownDrivers) fillGeneric(ctx context.Context, field *models.FormField, value string) (bool, error) {
	if ok, err := d.FillGreenhouse(ctx, field, value, false); ok {
		return true, nil
	} else if err != nil {
		d.logger.Debug().Err(err).Str("label", field.Label).Msg("Greenhouse pattern failed, trying native select")
	}

	if field.TagName == "select" {
		if ok, _ := d.fillLever(ctx, field, value); ok {
			return true, nil
		}
	}

	// Click, type, Enter
	if err := chromedp.Run(ctx,
		chromedp.Click(field.Selector, chromedp.ByQuery),
		chromedp.SendKeys(field.Selector, value, chromedp.ByQuery),
		chromedp.Sleep(filterSettle),
		chromedp.KeyEvent(kb.Enter),
	); err == nil {
		if ok, _ := d.verifyText(ctx, field, value); ok {
			return true, nil
		}
	}

	// Direct assignment with dispatched events
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.value = %q;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})()`, field.Selector, value)
	var assigned bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &assigned)); err != nil || !assigned {
		return false, NewFieldError(ErrKindDropdown, field.Label, "every generic strategy failed")
	}
	return d.verifyText(ctx, field, value)
}

// verifyText reads back the control value and fuzzy-matches the target
func (d *DropdownDrivers) verifyText(ctx context.Context, field *models.FormField, wanted string) (bool, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return '';
		if (el.tagName === 'SELECT') {
			const opt = el.options[el.selectedIndex];
			return opt ? opt.text.trim() : '';
		}
		return (el.value || el.textContent || '').trim();
	})()`, field.Selector)

	var current string
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &current)); err != nil {
		return false, fmt.Errorf("verification read-back failed: %w", err)
	}

	if current == "" {
		return false, NewFieldError(ErrKindVerification, field.Label, "control is empty after fill")
	}
	cl, wl := strings.ToLower(current), strings.ToLower(wanted)
	if strings.Contains(cl, wl) || strings.Contains(wl, cl) || FuzzyScore(cl, wl) >= 0.7 {
		return true, nil
	}
	return false, NewFieldError(ErrKindVerification, field.Label,
		fmt.Sprintf("control reports %q, wanted %q", current, wanted))
}

// jsStringArray renders a Go string slice as a JS array literal
func jsStringArray(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
