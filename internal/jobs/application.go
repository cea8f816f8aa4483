package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/petitor/internal/models"
	"github.com/ternarybob/petitor/internal/ratelimit"
)

// maxApplicationPages caps multi-page flows so a looping wizard cannot
// hold a worker for the full timeout.
const maxApplicationPages = 12

// applicationPayload is the job_application job contract
type applicationPayload struct {
	JobURL            string `json:"job_url" validate:"required,url"`
	ResumeURL         string `json:"resume_url" validate:"required"`
	UseTailored       bool   `json:"use_tailored"`
	TailoredResumeURL string `json:"tailored_resume_url" validate:"omitempty"`
}

// HandleJobApplication fills a job application form page by page until
// no next button remains. The form is never submitted.
func (h *Handlers) HandleJobApplication(ctx context.Context, job *models.JobRequest) (interface{}, error) {
	started := time.Now()

	payload := &applicationPayload{}
	if err := h.decodePayload(job.Payload, payload); err != nil {
		return nil, err
	}

	if _, err := h.limiter.CheckLimit(ctx, ratelimit.LimitJobApplicationsDaily, job.UserID); err != nil {
		return nil, err
	}
	if _, err := h.limiter.CheckLimit(ctx, ratelimit.LimitConcurrentApps, job.UserID); err != nil {
		return nil, err
	}
	defer h.limiter.Release(ratelimit.LimitConcurrentApps, job.UserID)

	reservationID, err := h.quota.ReserveQuota(ctx, job.UserID, job.Priority)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := h.quota.ReleaseQuota(ctx, reservationID); err != nil {
			h.logger.Warn().Err(err).Str("reservation_id", reservationID).Msg("Failed to release quota reservation")
		}
	}()

	profile, err := h.loadProfile(ctx, job.UserID)
	if err != nil {
		return nil, err
	}

	resumePath := payload.ResumeURL
	if payload.UseTailored && payload.TailoredResumeURL != "" {
		resumePath = payload.TailoredResumeURL
	}

	session, err := h.browsers.Acquire(ctx, job.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire browser session: %w", err)
	}
	defer h.browsers.Release(job.UserID)

	pageCtx := session.Context()
	if err := chromedp.Run(pageCtx,
		chromedp.Navigate(payload.JobURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		h.browsers.Discard(job.UserID)
		return nil, fmt.Errorf("failed to open %s: %w", payload.JobURL, err)
	}

	cancelled := func() bool { return h.queueMgr.IsCancelled(ctx, job.JobID) }

	result := &models.ApplicationResult{
		JobURL:         payload.JobURL,
		ResumeUsed:     resumePath,
		FieldsByMethod: map[string]int{},
		ReviewApproved: true,
	}

	for page := 0; page < maxApplicationPages; page++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if cancelled() {
			result.StoppedReason = "cancelled"
			return result, context.Canceled
		}

		// The resume only uploads on the first page
		uploadPath := ""
		if page == 0 {
			uploadPath = resumePath
		}

		pageResult, err := h.fill.FillPage(pageCtx, profile, job.UserID, uploadPath, cancelled)
		if err != nil {
			return result, fmt.Errorf("page %d fill failed: %w", page+1, err)
		}

		result.PagesFilled++
		for method, count := range pageResult.FieldsByMethod {
			result.FieldsByMethod[method] += count
		}
		result.NeedsHumanInput = append(result.NeedsHumanInput, pageResult.NeedsHumanInput...)
		if !pageResult.ReviewApproved {
			result.ReviewApproved = false
		}

		if !pageResult.NextButtonClicked {
			result.StoppedReason = "no next button"
			break
		}

		if err := chromedp.Run(pageCtx,
			chromedp.Sleep(2*time.Second),
			chromedp.WaitReady("body", chromedp.ByQuery),
		); err != nil {
			return result, fmt.Errorf("page transition failed: %w", err)
		}
	}

	h.recordAudit(ctx, "job_application", job.UserID, "fill_application", started, map[string]interface{}{
		"job_url":           payload.JobURL,
		"pages_filled":      result.PagesFilled,
		"needs_human_input": len(result.NeedsHumanInput),
	})
	return result, nil
}
