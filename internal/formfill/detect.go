package formfill

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/common"
	"github.com/ternarybob/petitor/internal/models"
)

// rawField is the per-element record the detection script returns
type rawField struct {
	TagName          string `json:"tagName"`
	InputType        string `json:"inputType"`
	ID               string `json:"id"`
	Name             string `json:"name"`
	Label            string `json:"label"`
	OptionLabel      string `json:"optionLabel"`
	Question         string `json:"question"`
	Placeholder      string `json:"placeholder"`
	AriaLabel        string `json:"ariaLabel"`
	Role             string `json:"role"`
	AriaHaspopup     string `json:"ariaHaspopup"`
	DataAutomationID string `json:"dataAutomationId"`
	DataTestID       string `json:"dataTestid"`
	ClassName        string `json:"className"`
	Required         bool   `json:"required"`
	Visible          bool   `json:"visible"`
	Disabled         bool   `json:"disabled"`
	Filled           bool   `json:"filled"`
	Value            string `json:"value"`
	Multiple         bool   `json:"multiple"`
}

// detectFieldsJS scans the page for form controls and extracts, per
// control, its attributes, best label, and question text. The question
// climb mirrors how ATS forms nest controls: fieldset legend, ARIA
// references, shared-name containers, then preceding siblings.
const detectFieldsJS = `(() => {
	const QUESTION_SHAPE = /\?\s*$|are you|do you|have you|which|what|please select|select your|how did|how many|when do|would you|will you/i;

	function visible(el) {
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
		const rect = el.getBoundingClientRect();
		return rect.width > 0 || rect.height > 0 || el.type === 'file';
	}

	function text(el) {
		return el ? (el.textContent || '').trim().replace(/\s+/g, ' ') : '';
	}

	function looksLikeQuestion(t) {
		return t && t.length > 3 && QUESTION_SHAPE.test(t);
	}

	function optionLabelFor(el) {
		if (el.id) {
			const lab = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
			if (lab) return text(lab);
		}
		const parentLabel = el.closest('label');
		if (parentLabel) {
			const clone = parentLabel.cloneNode(true);
			clone.querySelectorAll('input,select,textarea').forEach(n => n.remove());
			const t = text(clone);
			if (t) return t;
		}
		if (el.getAttribute('aria-label')) return el.getAttribute('aria-label').trim();
		let sib = el.nextElementSibling;
		if (sib && !sib.matches('input,select,textarea,button')) {
			const t = text(sib);
			if (t) return t;
		}
		sib = el.previousElementSibling;
		if (sib && !sib.matches('input,select,textarea,button')) {
			const t = text(sib);
			if (t) return t;
		}
		return '';
	}

	function questionFor(el) {
		// 1. fieldset legend within 5 ancestors
		let node = el;
		for (let i = 0; i < 5 && node; i++) {
			node = node.parentElement;
			if (node && node.tagName === 'FIELDSET') {
				const legend = node.querySelector('legend');
				const t = text(legend);
				if (t) return t;
			}
		}
		// 2/3. aria-labelledby / aria-describedby with question-shaped text
		for (const attr of ['aria-labelledby', 'aria-describedby']) {
			const refs = (el.getAttribute(attr) || '').split(/\s+/).filter(Boolean);
			for (const ref of refs) {
				const t = text(document.getElementById(ref));
				if (looksLikeQuestion(t)) return t;
			}
		}
		// 4. ancestor containing other controls sharing this name; first
		// heading/label/legend at or above the first shared control
		if (el.name) {
			let anc = el.parentElement;
			for (let i = 0; i < 8 && anc; i++, anc = anc.parentElement) {
				const shared = anc.querySelectorAll('[name="' + CSS.escape(el.name) + '"]');
				if (shared.length > 1) {
					const firstTop = shared[0].getBoundingClientRect().top;
					for (const cand of anc.querySelectorAll('h1,h2,h3,h4,h5,h6,label,legend,p,span,div')) {
						const t = text(cand);
						if (!t || t.length < 4 || t.length > 300) continue;
						if (cand.querySelector('input,select,textarea')) continue;
						if (cand.getBoundingClientRect().top <= firstTop + 2) return t;
					}
					break;
				}
			}
		}
		// 5. preceding siblings of the control
		let sib = el.previousElementSibling;
		for (let i = 0; i < 5 && sib; i++, sib = sib.previousElementSibling) {
			const t = text(sib);
			if (looksLikeQuestion(t)) return t;
		}
		// 6. parent's preceding siblings
		if (el.parentElement) {
			sib = el.parentElement.previousElementSibling;
			for (let i = 0; i < 3 && sib; i++, sib = sib.previousElementSibling) {
				const t = text(sib);
				if (looksLikeQuestion(t)) return t;
			}
		}
		// 7. role=group/radiogroup ancestor with aria-label
		const group = el.closest('[role="group"],[role="radiogroup"]');
		if (group && group.getAttribute('aria-label')) return group.getAttribute('aria-label').trim();
		return '';
	}

	const controls = document.querySelectorAll(
		'input, select, textarea, [role="combobox"], [role="button"][data-testid*="option"]'
	);
	const out = [];
	for (const el of controls) {
		const tag = el.tagName.toLowerCase();
		const type = (el.type || '').toLowerCase();
		if (type === 'hidden' || type === 'submit' || type === 'button' || type === 'image') continue;

		const optLabel = optionLabelFor(el);
		const isChoice = type === 'radio' || type === 'checkbox';
		out.push({
			tagName: tag,
			inputType: type,
			id: el.id || '',
			name: el.name || el.getAttribute('name') || '',
			label: isChoice ? '' : optLabel,
			optionLabel: isChoice ? optLabel : '',
			question: questionFor(el),
			placeholder: el.placeholder || '',
			ariaLabel: el.getAttribute('aria-label') || '',
			role: el.getAttribute('role') || '',
			ariaHaspopup: el.getAttribute('aria-haspopup') || '',
			dataAutomationId: el.getAttribute('data-automation-id') || '',
			dataTestid: el.getAttribute('data-testid') || '',
			className: (typeof el.className === 'string') ? el.className : '',
			required: !!el.required || el.getAttribute('aria-required') === 'true',
			visible: visible(el),
			disabled: !!el.disabled || el.getAttribute('aria-disabled') === 'true',
			filled: isChoice ? !!el.checked : !!(el.value && el.value.trim()),
			value: isChoice ? (el.value || '') : '',
			multiple: !!el.multiple
		});
	}
	return out;
})()`

// Detector scans a live page for form controls and consolidates them
// into logical fields.
type Detector struct {
	logger arbor.ILogger
}

// NewDetector creates a field detector
func NewDetector(logger arbor.ILogger) *Detector {
	return &Detector{logger: logger}
}

// DetectFields scans the page and returns consolidated logical fields.
// Dropdown options are intentionally not enumerated here; the vendor
// drivers discover them during interaction.
func (d *Detector) DetectFields(ctx context.Context) ([]models.FormField, error) {
	var raws []rawField
	if err := chromedp.Run(ctx, chromedp.Evaluate(detectFieldsJS, &raws)); err != nil {
		return nil, fmt.Errorf("field detection script failed: %w", err)
	}

	fields := consolidateFields(raws)
	d.logger.Debug().
		Int("raw_controls", len(raws)).
		Int("logical_fields", len(fields)).
		Msg("Page fields detected")
	return fields, nil
}

// classifyCategory applies the vendor predicates to a raw control
func classifyCategory(r rawField) models.FieldCategory {
	switch {
	case r.InputType == "file":
		return models.CategoryFileUpload
	case r.Role == "combobox" && r.AriaHaspopup == "true":
		if r.Multiple || strings.Contains(strings.ToLower(r.ClassName), "multi") {
			return models.CategoryGreenhouseMulti
		}
		return models.CategoryGreenhouseDropdown
	case strings.Contains(strings.ToLower(r.DataAutomationID), "dropdown"):
		if strings.Contains(strings.ToLower(r.DataAutomationID), "multi") {
			return models.CategoryWorkdayMultiselect
		}
		return models.CategoryWorkdayDropdown
	case r.TagName == "select" &&
		(strings.Contains(strings.ToLower(r.ClassName), "lever") ||
			strings.Contains(strings.ToLower(r.ClassName), "application-field")):
		return models.CategoryLeverDropdown
	case r.Role == "button" && strings.Contains(strings.ToLower(r.DataTestID), "option"):
		return models.CategoryAshbyButtonGroup
	case r.TagName == "select":
		return models.CategoryDropdown
	case r.TagName == "textarea":
		return models.CategoryTextarea
	case r.InputType == "radio":
		return models.CategoryRadio
	case r.InputType == "checkbox":
		return models.CategoryCheckbox
	default:
		return models.CategoryTextInput
	}
}

// StableID derives a deterministic identifier for a control. Identity
// prefers the DOM id, then name, then a short hash of the label, so the
// same control resolves to the same id across detection passes.
func StableID(tag, id, name, label string) string {
	switch {
	case id != "":
		return fmt.Sprintf("%s_%s", tag, id)
	case name != "":
		return fmt.Sprintf("%s_%s", tag, name)
	default:
		return fmt.Sprintf("%s_%s", tag, common.ShortHash(label))
	}
}

// selectorFor builds the locator stored with a field. Fresh locators are
// constructed from this on every interaction.
func selectorFor(r rawField) string {
	switch {
	case r.ID != "":
		return fmt.Sprintf(`[id="%s"]`, r.ID)
	case r.Name != "":
		return fmt.Sprintf(`%s[name="%s"]`, r.TagName, r.Name)
	case r.DataAutomationID != "":
		return fmt.Sprintf(`[data-automation-id="%s"]`, r.DataAutomationID)
	default:
		return r.TagName
	}
}

// toFormField converts a raw standalone control
func toFormField(r rawField) models.FormField {
	label := r.Label
	if label == "" {
		label = r.OptionLabel
	}
	if label == "" {
		label = r.AriaLabel
	}
	if label == "" {
		label = r.Placeholder
	}

	return models.FormField{
		StableID:    StableID(r.TagName, r.ID, r.Name, label),
		Label:       label,
		Category:    classifyCategory(r),
		Name:        r.Name,
		ID:          r.ID,
		Placeholder: r.Placeholder,
		AriaLabel:   r.AriaLabel,
		TagName:     r.TagName,
		InputType:   r.InputType,
		Required:    r.Required,
		Question:    r.Question,
		Selector:    selectorFor(r),
		Visible:     r.Visible,
		Disabled:    r.Disabled,
		Filled:      r.Filled,
	}
}
