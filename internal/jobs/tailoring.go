package jobs

import (
	"context"
	"time"

	"github.com/ternarybob/petitor/internal/models"
	"github.com/ternarybob/petitor/internal/ratelimit"
	"github.com/ternarybob/petitor/internal/services/tailor"
)

// tailoringPayload is the resume_tailoring job contract
type tailoringPayload struct {
	OriginalResumeURL string                   `json:"original_resume_url" validate:"required,url"`
	JobDescription    string                   `json:"job_description" validate:"required"`
	JobTitle          string                   `json:"job_title"`
	Company           string                   `json:"company"`
	Credentials       tailor.GoogleCredentials `json:"credentials" validate:"required"`
	UserFullName      string                   `json:"user_full_name" validate:"required"`
}

// HandleResumeTailoring rewrites the user's resume against a job
// description and returns the tailored document's location.
func (h *Handlers) HandleResumeTailoring(ctx context.Context, job *models.JobRequest) (interface{}, error) {
	started := time.Now()

	payload := &tailoringPayload{
		JobTitle: "Unknown Position",
		Company:  "Unknown Company",
	}
	if err := h.decodePayload(job.Payload, payload); err != nil {
		return nil, err
	}

	if _, err := h.limiter.CheckLimit(ctx, ratelimit.LimitResumeTailoringDaily, job.UserID); err != nil {
		return nil, err
	}

	reservationID, err := h.quota.ReserveQuota(ctx, job.UserID, job.Priority)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := h.quota.ReleaseQuota(ctx, reservationID); err != nil {
			h.logger.Warn().Err(err).Str("reservation_id", reservationID).Msg("Failed to release quota reservation")
		}
	}()

	result, err := h.tailor.Tailor(ctx, &tailor.Request{
		OriginalResumeURL: payload.OriginalResumeURL,
		JobDescription:    payload.JobDescription,
		JobTitle:          payload.JobTitle,
		Company:           payload.Company,
		Credentials:       payload.Credentials,
		UserFullName:      payload.UserFullName,
	})
	if err != nil {
		return nil, err
	}

	h.recordAudit(ctx, "resume_tailoring", job.UserID, "tailor_resume", started, map[string]interface{}{
		"job_title":    payload.JobTitle,
		"company":      payload.Company,
		"tailored_url": result.TailoredURL,
	})
	return result, nil
}
