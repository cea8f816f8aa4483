package discovery

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/common"
	"github.com/ternarybob/petitor/internal/models"
)

// maxDescriptionChars bounds normalized descriptions so downstream
// prompts stay small.
const maxDescriptionChars = 4000

// Service aggregates job listings from the configured providers, scores
// them against the user's profile, and keeps those above the relevance
// floor.
type Service struct {
	config    *common.DiscoveryConfig
	providers []Provider
	converter *md.Converter
	logger    arbor.ILogger
}

// NewService creates the discovery aggregator
func NewService(config *common.DiscoveryConfig, logger arbor.ILogger) *Service {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	var providers []Provider
	for _, name := range config.Providers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "remotive":
			providers = append(providers, &remotiveProvider{httpClient: httpClient})
		case "remoteok":
			providers = append(providers, &remoteOKProvider{httpClient: httpClient})
		default:
			logger.Warn().Str("provider", name).Msg("Unknown discovery provider, skipping")
		}
	}
	if len(providers) == 0 {
		providers = []Provider{&remotiveProvider{httpClient: httpClient}}
	}

	return &Service{
		config:    config,
		providers: providers,
		converter: md.NewConverter("", true, nil),
		logger:    logger,
	}
}

// Search runs all providers, normalizes and scores each listing, and
// returns matches at or above minRelevance sorted by score descending.
// A failed provider is logged and skipped.
func (s *Service) Search(ctx context.Context, profile *models.Profile, minRelevance int) (*models.SearchResult, error) {
	if minRelevance <= 0 {
		minRelevance = s.config.MinRelevanceScore
	}

	query := profile.StringOr("desired_role", profile.StringOr("current_title", ""))
	skills := profile.Skills()

	result := &models.SearchResult{
		Query:        query,
		MinRelevance: minRelevance,
	}

	for _, provider := range s.providers {
		postings, err := provider.Fetch(ctx, query)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("provider", provider.Name()).
				Msg("Discovery provider failed")
			continue
		}
		result.TotalFound += len(postings)

		for _, posting := range postings {
			posting.Description = s.normalizeDescription(posting.Description)
			posting.RelevanceScore, posting.MatchedSkills = scoreRelevance(posting, query, skills)
			if posting.RelevanceScore >= minRelevance {
				result.Jobs = append(result.Jobs, posting)
			}
		}
	}

	sort.Slice(result.Jobs, func(i, j int) bool {
		return result.Jobs[i].RelevanceScore > result.Jobs[j].RelevanceScore
	})
	result.TotalMatched = len(result.Jobs)

	s.logger.Info().
		Int("total_found", result.TotalFound).
		Int("total_matched", result.TotalMatched).
		Int("min_relevance", minRelevance).
		Msg("Job discovery completed")
	return result, nil
}

// normalizeDescription strips page chrome and converts the remainder to
// markdown. Input that is already plain text passes through trimmed.
func (s *Service) normalizeDescription(html string) string {
	if !strings.Contains(html, "<") {
		return truncate(strings.TrimSpace(html), maxDescriptionChars)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return truncate(strings.TrimSpace(html), maxDescriptionChars)
	}
	doc.Find("script, style, nav, header, footer, iframe, noscript").Remove()

	body, err := doc.Find("body").Html()
	if err != nil || strings.TrimSpace(body) == "" {
		body = html
	}

	markdown, err := s.converter.ConvertString(body)
	if err != nil {
		return truncate(strings.TrimSpace(html), maxDescriptionChars)
	}
	return truncate(strings.TrimSpace(markdown), maxDescriptionChars)
}

// scoreRelevance computes a 0-100 score: up to 70 points for skill
// mentions in the description, up to 30 for query terms in the title.
func scoreRelevance(posting models.JobPosting, query string, skills []string) (int, []string) {
	description := strings.ToLower(posting.Description)
	title := strings.ToLower(posting.Title)

	var matched []string
	for _, skill := range skills {
		if skill == "" {
			continue
		}
		if strings.Contains(description, strings.ToLower(skill)) {
			matched = append(matched, skill)
		}
	}

	skillScore := 0
	if len(skills) > 0 {
		skillScore = 70 * len(matched) / len(skills)
		if skillScore > 70 {
			skillScore = 70
		}
	}

	titleScore := 0
	queryTerms := strings.Fields(strings.ToLower(query))
	if len(queryTerms) > 0 {
		hits := 0
		for _, term := range queryTerms {
			if strings.Contains(title, term) {
				hits++
			}
		}
		titleScore = 30 * hits / len(queryTerms)
	}

	return skillScore + titleScore, matched
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
