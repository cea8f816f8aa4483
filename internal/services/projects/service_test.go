package projects

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/petitor/internal/common"
	"github.com/ternarybob/petitor/internal/models"
)

func portfolioProfile() *models.Profile {
	p := models.NewProfile()
	p.Projects = []models.Project{
		{Name: "Chat App", Description: "Realtime messaging", Technologies: []string{"Node", "Redis"}},
		{Name: "Photo Blog", Description: "Static photo site", Technologies: []string{"Hugo"}},
		{Name: "Budget Tracker", Description: "Personal finance CLI", Technologies: []string{"Python"}},
		{Name: "K8s Operator", Description: "Kubernetes controller for batch jobs", Technologies: []string{"Go", "Kubernetes"}},
	}
	return p
}

func TestAnalyze_RanksAndFlagsResumeProjects(t *testing.T) {
	svc := NewService(nil, common.GetLogger())

	analysis, err := svc.Analyze(context.Background(), portfolioProfile(), "maya", &AnalyzeRequest{
		JobDescription:       "We build Go services on Kubernetes.",
		JobKeywords:          []string{"Go", "Kubernetes", "controllers"},
		RequiredTechnologies: []string{"Go"},
	})
	require.NoError(t, err)
	require.Len(t, analysis.Ranked, 4)

	// The off-resume operator project fits the role best
	assert.Equal(t, "K8s Operator", analysis.Ranked[0].Project.Name)
	assert.False(t, analysis.Ranked[0].OnResume)
	assert.Contains(t, analysis.Ranked[0].MatchedKeywords, "go")
	assert.Contains(t, analysis.Ranked[0].MatchedKeywords, "kubernetes")
	assert.Greater(t, analysis.Ranked[0].Score, analysis.Ranked[3].Score)
}

func TestAnalyze_RecommendsSwaps(t *testing.T) {
	svc := NewService(nil, common.GetLogger())

	analysis, err := svc.Analyze(context.Background(), portfolioProfile(), "maya", &AnalyzeRequest{
		JobDescription: "Kubernetes platform team",
		JobKeywords:    []string{"Kubernetes", "Go"},
	})
	require.NoError(t, err)
	require.Len(t, analysis.Swaps, 1)

	swap := analysis.Swaps[0]
	assert.Equal(t, "K8s Operator", swap.Add)
	// One of the zero-scoring on-resume projects gets displaced
	assert.Contains(t, []string{"Chat App", "Photo Blog", "Budget Tracker"}, swap.Remove)
	assert.NotEmpty(t, swap.Reason)
}

func TestAnalyze_NoProjects(t *testing.T) {
	svc := NewService(nil, common.GetLogger())
	_, err := svc.Analyze(context.Background(), models.NewProfile(), "maya", &AnalyzeRequest{JobKeywords: []string{"Go"}})
	assert.Error(t, err)
}

func TestScoreProject_ComponentCaps(t *testing.T) {
	project := models.Project{
		Name:         "K8s Operator",
		Description:  "Kubernetes controller for batch jobs",
		Technologies: []string{"Go", "Kubernetes"},
	}

	score := scoreProject(project, "we use go and kubernetes in fintech", []string{"go", "kubernetes"}, []string{"go"}, "fintech")
	// Full keyword (40) and required-tech (30) marks, full description
	// mentions (20); the domain term is absent from the project text.
	assert.Equal(t, 90, score.Score)
	assert.ElementsMatch(t, []string{"go", "kubernetes"}, score.MatchedKeywords)

	empty := scoreProject(models.Project{Name: "Photo Blog"}, "", nil, nil, "")
	assert.Zero(t, empty.Score)
}

func TestRecommendSwaps_NoBetterCandidates(t *testing.T) {
	ranked := []models.ProjectScore{
		{Project: models.Project{Name: "A"}, Score: 80, OnResume: true},
		{Project: models.Project{Name: "B"}, Score: 70, OnResume: true},
		{Project: models.Project{Name: "C"}, Score: 10, OnResume: false},
	}
	assert.Empty(t, recommendSwaps(ranked))
}

func TestNormalizeTerms(t *testing.T) {
	assert.Equal(t, []string{"go", "kubernetes"}, normalizeTerms([]string{" Go ", "", "Kubernetes"}))
}
