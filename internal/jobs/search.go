package jobs

import (
	"context"
	"time"

	"github.com/ternarybob/petitor/internal/models"
	"github.com/ternarybob/petitor/internal/ratelimit"
)

// searchPayload is the job_search job contract
type searchPayload struct {
	MinRelevanceScore int `json:"min_relevance_score" validate:"gte=0,lte=100"`
}

// HandleJobSearch runs the discovery aggregator for the user
func (h *Handlers) HandleJobSearch(ctx context.Context, job *models.JobRequest) (interface{}, error) {
	started := time.Now()

	payload := &searchPayload{MinRelevanceScore: 30}
	if err := h.decodePayload(job.Payload, payload); err != nil {
		return nil, err
	}

	if _, err := h.limiter.CheckLimit(ctx, ratelimit.LimitJobSearchDaily, job.UserID); err != nil {
		return nil, err
	}

	profile, err := h.loadProfile(ctx, job.UserID)
	if err != nil {
		return nil, err
	}

	result, err := h.discovery.Search(ctx, profile, payload.MinRelevanceScore)
	if err != nil {
		return nil, err
	}

	h.recordAudit(ctx, "job_search", job.UserID, "search_jobs", started, map[string]interface{}{
		"min_relevance_score": payload.MinRelevanceScore,
		"total_matched":       result.TotalMatched,
	})
	return result, nil
}
