package projects

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/models"
	"github.com/ternarybob/petitor/internal/services/mimikree"
)

// maxResumeProjects is how many projects a one-page resume carries
const maxResumeProjects = 3

// AnalyzeRequest carries one project_analysis run's inputs
type AnalyzeRequest struct {
	JobDescription       string
	JobKeywords          []string
	DiscoverNewProjects  bool
	RequiredTechnologies []string
	JobDomain            string
}

// Service scores the user's portfolio projects against a job
// description, ranks them, and recommends resume swaps. Discovery of
// projects not yet in the portfolio goes through Mimikree.
type Service struct {
	mimikree *mimikree.Client
	logger   arbor.ILogger
}

// NewService creates the project analysis service. mimikree may be nil.
func NewService(mimikreeClient *mimikree.Client, logger arbor.ILogger) *Service {
	return &Service{mimikree: mimikreeClient, logger: logger}
}

// Analyze scores and ranks the profile's projects. The first
// maxResumeProjects are treated as currently on the resume; swaps are
// recommended when an off-resume project outscores an on-resume one.
func (s *Service) Analyze(ctx context.Context, profile *models.Profile, username string, req *AnalyzeRequest) (*models.ProjectAnalysis, error) {
	if len(profile.Projects) == 0 {
		return nil, fmt.Errorf("profile has no projects to analyze")
	}

	keywords := normalizeTerms(req.JobKeywords)
	required := normalizeTerms(req.RequiredTechnologies)
	description := strings.ToLower(req.JobDescription)

	scored := make([]models.ProjectScore, 0, len(profile.Projects))
	for i, project := range profile.Projects {
		score := scoreProject(project, description, keywords, required, req.JobDomain)
		score.OnResume = i < maxResumeProjects
		scored = append(scored, score)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	analysis := &models.ProjectAnalysis{
		Ranked: scored,
		Swaps:  recommendSwaps(scored),
	}

	if req.DiscoverNewProjects && s.mimikree != nil && s.mimikree.Enabled() {
		discovered, err := s.discover(ctx, username, req)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Project discovery failed")
		} else {
			analysis.DiscoveredProjects = discovered
		}
	}

	s.logger.Info().
		Int("projects", len(scored)).
		Int("swaps", len(analysis.Swaps)).
		Int("discovered", len(analysis.DiscoveredProjects)).
		Msg("Project analysis completed")
	return analysis, nil
}

// scoreProject computes a 0-100 score: keyword hits 40, required-tech
// coverage 30, description mentions 20, domain match 10.
func scoreProject(project models.Project, description string, keywords, required []string, domain string) models.ProjectScore {
	text := strings.ToLower(project.Name + " " + project.Description + " " + strings.Join(project.Technologies, " "))

	var matchedKeywords []string
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			matchedKeywords = append(matchedKeywords, kw)
		}
	}
	keywordScore := 0
	if len(keywords) > 0 {
		keywordScore = 40 * len(matchedKeywords) / len(keywords)
	}

	var matchedTech []string
	for _, tech := range required {
		if strings.Contains(text, tech) {
			matchedTech = append(matchedTech, tech)
		}
	}
	techScore := 0
	if len(required) > 0 {
		techScore = 30 * len(matchedTech) / len(required)
	}

	mentionScore := 0
	if description != "" {
		hits := 0
		for _, tech := range project.Technologies {
			if tech != "" && strings.Contains(description, strings.ToLower(tech)) {
				hits++
				matchedTech = appendUnique(matchedTech, strings.ToLower(tech))
			}
		}
		if len(project.Technologies) > 0 {
			mentionScore = 20 * hits / len(project.Technologies)
		}
	}

	domainScore := 0
	if domain != "" && strings.Contains(text, strings.ToLower(domain)) {
		domainScore = 10
	}

	return models.ProjectScore{
		Project:            project,
		Score:              keywordScore + techScore + mentionScore + domainScore,
		MatchedKeywords:    matchedKeywords,
		MatchedTechologies: matchedTech,
	}
}

// recommendSwaps pairs each on-resume project with the best off-resume
// project that outscores it.
func recommendSwaps(ranked []models.ProjectScore) []models.SwapRecommendation {
	var onResume, offResume []models.ProjectScore
	for _, score := range ranked {
		if score.OnResume {
			onResume = append(onResume, score)
		} else {
			offResume = append(offResume, score)
		}
	}

	// Weakest resume entries paired against strongest alternatives
	sort.SliceStable(onResume, func(i, j int) bool { return onResume[i].Score < onResume[j].Score })

	var swaps []models.SwapRecommendation
	used := 0
	for _, current := range onResume {
		if used >= len(offResume) {
			break
		}
		candidate := offResume[used]
		if candidate.Score <= current.Score {
			break
		}
		swaps = append(swaps, models.SwapRecommendation{
			Remove: current.Project.Name,
			Add:    candidate.Project.Name,
			Reason: fmt.Sprintf("%s scores %d against this role, %s scores %d", candidate.Project.Name, candidate.Score, current.Project.Name, current.Score),
		})
		used++
	}
	return swaps
}

// discover asks Mimikree for projects the stored profile does not list
func (s *Service) discover(ctx context.Context, username string, req *AnalyzeRequest) ([]models.Project, error) {
	question := fmt.Sprintf(`List personal or professional software projects involving any of: %s.
For each, respond on one line as JSON: {"name": "...", "description": "...", "technologies": ["..."]}.
Only include real projects, one JSON object per line.`, strings.Join(req.JobKeywords, ", "))

	answer, err := s.mimikree.Ask(ctx, username, question)
	if err != nil {
		return nil, err
	}

	var out []models.Project
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var project models.Project
		if err := json.Unmarshal([]byte(line), &project); err != nil || project.Name == "" {
			continue
		}
		out = append(out, project)
	}
	return out, nil
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		if trimmed := strings.ToLower(strings.TrimSpace(term)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func appendUnique(items []string, item string) []string {
	for _, existing := range items {
		if existing == item {
			return items
		}
	}
	return append(items, item)
}
