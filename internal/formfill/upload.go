package formfill

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/interfaces"
)

// uploadTriggerPattern matches controls that open a file chooser
const uploadTriggerPattern = `select file|upload|attach|resume|cv|choose file|browse`

// workdayUploadSelectors are tried first; Workday hides its real input
var workdayUploadSelectors = []string{
	`input[data-automation-id="file-upload-input-ref"]`,
	`input[data-automation-id*="file-upload"]`,
	`[data-automation-id*="attachments"] input[type="file"]`,
}

// Uploader places a resume or cover letter on whatever upload control
// the page exposes, escalating from vendor-specific selectors to a
// model-guided guess.
type Uploader struct {
	llm    interfaces.LLMProvider
	logger arbor.ILogger
}

// NewUploader creates the upload helper
func NewUploader(llm interfaces.LLMProvider, logger arbor.ILogger) *Uploader {
	return &Uploader{llm: llm, logger: logger}
}

// Upload tries each strategy in order and reports whether any worked
func (u *Uploader) Upload(ctx context.Context, filePath string) (bool, error) {
	// 1. Workday automation ids
	for _, sel := range workdayUploadSelectors {
		if ok := u.trySetFiles(ctx, sel, filePath); ok {
			u.logger.Debug().Str("selector", sel).Msg("Upload via Workday selector")
			return true, nil
		}
	}

	// 2. Any file input, visible or not
	if ok := u.trySetFiles(ctx, `input[type="file"]`, filePath); ok {
		u.logger.Debug().Msg("Upload via direct file input")
		return true, nil
	}

	// 3. A button that opens the chooser; clicking often reveals or
	// creates the real input
	if ok, err := u.tryClickTrigger(ctx, filePath, "button, [role=\"button\"]"); err == nil && ok {
		return true, nil
	}

	// 4. Any clickable with upload-ish text
	if ok, err := u.tryClickTrigger(ctx, filePath, "a, div, span, label"); err == nil && ok {
		return true, nil
	}

	// 5. Model-guided fallback
	return u.tryModelGuided(ctx, filePath)
}

// trySetFiles sets files on the first element the selector resolves
func (u *Uploader) trySetFiles(ctx context.Context, selector, filePath string) bool {
	var exists bool
	script := fmt.Sprintf(`!!document.querySelector(%q)`, selector)
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &exists)); err != nil || !exists {
		return false
	}

	setCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := chromedp.Run(setCtx, chromedp.SetUploadFiles(selector, []string{filePath}, chromedp.ByQuery)); err != nil {
		u.logger.Debug().Err(err).Str("selector", selector).Msg("SetUploadFiles failed")
		return false
	}
	return true
}

// tryClickTrigger clicks the first matching trigger and retries the
// file-input scan afterwards.
func (u *Uploader) tryClickTrigger(ctx context.Context, filePath, candidateSelector string) (bool, error) {
	script := fmt.Sprintf(`(() => {
		const pattern = new RegExp(%q, 'i');
		const els = Array.from(document.querySelectorAll(%q));
		const hit = els.find(el => {
			const t = (el.textContent || '') + ' ' + (el.getAttribute('aria-label') || '');
			const style = window.getComputedStyle(el);
			return pattern.test(t) && style.display !== 'none' && style.visibility !== 'hidden';
		});
		if (!hit) return false;
		hit.click();
		return true;
	})()`, uploadTriggerPattern, candidateSelector)

	var clicked bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return false, err
	}
	if !clicked {
		return false, nil
	}

	if err := chromedp.Run(ctx, chromedp.Sleep(500*time.Millisecond)); err != nil {
		return false, err
	}
	if u.trySetFiles(ctx, `input[type="file"]`, filePath) {
		u.logger.Debug().Msg("Upload via click-revealed file input")
		return true, nil
	}
	return false, nil
}

// uploadGuess is the model's structured answer for the guided fallback
type uploadGuess struct {
	Method     string  `json:"method"` // "set_files" or "click"
	Selector   string  `json:"selector"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// tryModelGuided extracts candidate elements and asks the model which
// one takes the file.
func (u *Uploader) tryModelGuided(ctx context.Context, filePath string) (bool, error) {
	const extractJS = `(() => {
		const out = [];
		for (const el of document.querySelectorAll('input, button, a, [role="button"], label, div[class*="upload"], div[class*="attach"]')) {
			const text = (el.textContent || '').trim().slice(0, 120);
			const cls = (typeof el.className === 'string') ? el.className.slice(0, 120) : '';
			if (!text && !cls && !el.id) continue;
			out.push({
				tag: el.tagName.toLowerCase(),
				type: el.type || '',
				id: el.id || '',
				class: cls,
				text: text,
				automationId: el.getAttribute('data-automation-id') || ''
			});
			if (out.length >= 40) break;
		}
		return out;
	})()`

	var candidates []map[string]string
	if err := chromedp.Run(ctx, chromedp.Evaluate(extractJS, &candidates)); err != nil {
		return false, fmt.Errorf("candidate extraction failed: %w", err)
	}
	if len(candidates) == 0 {
		return false, nil
	}

	candidatesJSON, err := json.Marshal(candidates)
	if err != nil {
		return false, err
	}

	prompt := fmt.Sprintf(`A job-application page needs a resume uploaded but no standard upload control was found.
Candidate elements:
%s

Respond with strict JSON only: {"method": "set_files"|"click", "selector": "<css selector>", "reason": "...", "confidence": 0.0}
set_files targets a file input; click targets a trigger that opens the chooser.`, string(candidatesJSON))

	response, err := u.llm.Chat(ctx, []interfaces.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return false, fmt.Errorf("model-guided upload failed: %w", err)
	}

	var guess uploadGuess
	if err := json.Unmarshal([]byte(stripJSONFences(response)), &guess); err != nil {
		return false, fmt.Errorf("model returned unparseable upload guess: %w", err)
	}
	if guess.Selector == "" || guess.Confidence < 0.5 {
		u.logger.Debug().
			Str("reason", guess.Reason).
			Float64("confidence", guess.Confidence).
			Msg("Model upload guess too weak, giving up")
		return false, nil
	}

	u.logger.Info().
		Str("method", guess.Method).
		Str("selector", guess.Selector).
		Str("reason", guess.Reason).
		Msg("Trying model-guided upload")

	if strings.EqualFold(guess.Method, "set_files") {
		return u.trySetFiles(ctx, guess.Selector, filePath), nil
	}

	if err := chromedp.Run(ctx,
		chromedp.Click(guess.Selector, chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
	); err != nil {
		return false, nil
	}
	return u.trySetFiles(ctx, `input[type="file"]`, filePath), nil
}
