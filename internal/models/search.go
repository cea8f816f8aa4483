package models

import "time"

// JobPosting is a normalized job listing from a discovery provider
type JobPosting struct {
	Title          string    `json:"title"`
	Company        string    `json:"company"`
	Location       string    `json:"location"`
	URL            string    `json:"url"`
	Description    string    `json:"description"` // markdown after normalization
	Source         string    `json:"source"`
	PostedAt       time.Time `json:"posted_at,omitempty"`
	RelevanceScore int       `json:"relevance_score"` // 0-100
	MatchedSkills  []string  `json:"matched_skills,omitempty"`
}

// SearchResult is the outcome of one discovery run
type SearchResult struct {
	Query        string       `json:"query,omitempty"`
	MinRelevance int          `json:"min_relevance"`
	TotalFound   int          `json:"total_found"`
	TotalMatched int          `json:"total_matched"`
	Jobs         []JobPosting `json:"jobs"`
}

// ProjectScore is one portfolio project scored against a job description
type ProjectScore struct {
	Project            Project  `json:"project"`
	Score              int      `json:"score"` // 0-100
	MatchedKeywords    []string `json:"matched_keywords,omitempty"`
	MatchedTechologies []string `json:"matched_technologies,omitempty"`
	OnResume           bool     `json:"on_resume"`
}

// SwapRecommendation suggests replacing a resume project with a
// better-scoring one from the portfolio.
type SwapRecommendation struct {
	Remove string `json:"remove"`
	Add    string `json:"add"`
	Reason string `json:"reason"`
}

// ProjectAnalysis is the outcome of a project_analysis job
type ProjectAnalysis struct {
	Ranked             []ProjectScore       `json:"ranked"`
	Swaps              []SwapRecommendation `json:"swaps,omitempty"`
	DiscoveredProjects []Project            `json:"discovered_projects,omitempty"`
}

// TailoringResult is the outcome of a resume_tailoring job
type TailoringResult struct {
	TailoredURL   string  `json:"tailored_url"`
	JobTitle      string  `json:"job_title"`
	Company       string  `json:"company"`
	DurationSecs  float64 `json:"duration_seconds"`
	SourceResume  string  `json:"source_resume"`
	GeneratedPath string  `json:"generated_path,omitempty"`
}

// ApplicationResult is the outcome of a job_application job
type ApplicationResult struct {
	JobURL          string         `json:"job_url"`
	ResumeUsed      string         `json:"resume_used"`
	PagesFilled     int            `json:"pages_filled"`
	FieldsByMethod  map[string]int `json:"fields_by_method,omitempty"`
	NeedsHumanInput []string       `json:"needs_human_input,omitempty"`
	ReviewApproved  bool           `json:"review_approved"`
	StoppedReason   string         `json:"stopped_reason,omitempty"`
}
