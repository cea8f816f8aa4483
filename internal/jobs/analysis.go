package jobs

import (
	"context"
	"time"

	"github.com/ternarybob/petitor/internal/models"
	"github.com/ternarybob/petitor/internal/services/projects"
)

// analysisPayload is the project_analysis job contract
type analysisPayload struct {
	JobDescription       string   `json:"job_description" validate:"required"`
	JobKeywords          []string `json:"job_keywords" validate:"required,min=1"`
	DiscoverNewProjects  bool     `json:"discover_new_projects"`
	RequiredTechnologies []string `json:"required_technologies"`
	JobDomain            string   `json:"job_domain"`
}

// HandleProjectAnalysis scores and ranks portfolio projects against a
// job description.
func (h *Handlers) HandleProjectAnalysis(ctx context.Context, job *models.JobRequest) (interface{}, error) {
	started := time.Now()

	payload := &analysisPayload{}
	if err := h.decodePayload(job.Payload, payload); err != nil {
		return nil, err
	}

	profile, err := h.loadProfile(ctx, job.UserID)
	if err != nil {
		return nil, err
	}

	username := profile.StringOr("mimikree_username", profile.StringOr("email", job.UserID))
	result, err := h.projects.Analyze(ctx, profile, username, &projects.AnalyzeRequest{
		JobDescription:       payload.JobDescription,
		JobKeywords:          payload.JobKeywords,
		DiscoverNewProjects:  payload.DiscoverNewProjects,
		RequiredTechnologies: payload.RequiredTechnologies,
		JobDomain:            payload.JobDomain,
	})
	if err != nil {
		return nil, err
	}

	h.recordAudit(ctx, "project_analysis", job.UserID, "analyze_projects", started, map[string]interface{}{
		"keywords":   payload.JobKeywords,
		"discovered": len(result.DiscoveredProjects),
		"swaps":      len(result.Swaps),
	})
	return result, nil
}
