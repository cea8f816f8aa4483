package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/petitor/internal/models"
)

// Provider fetches raw job listings from one upstream source
type Provider interface {
	Name() string
	Fetch(ctx context.Context, query string) ([]models.JobPosting, error)
}

// remotiveProvider reads Remotive's public remote-jobs feed
type remotiveProvider struct {
	httpClient *http.Client
	baseURL    string // defaults to the public endpoint
}

func (p *remotiveProvider) Name() string { return "remotive" }

type remotiveResponse struct {
	Jobs []struct {
		Title       string `json:"title"`
		CompanyName string `json:"company_name"`
		Location    string `json:"candidate_required_location"`
		URL         string `json:"url"`
		Description string `json:"description"`
		Date        string `json:"publication_date"`
	} `json:"jobs"`
}

func (p *remotiveProvider) Fetch(ctx context.Context, query string) ([]models.JobPosting, error) {
	url := p.baseURL
	if url == "" {
		url = "https://remotive.com/api/remote-jobs"
	}
	if query != "" {
		url += "?search=" + query
	}
	var parsed remotiveResponse
	if err := fetchJSON(ctx, p.httpClient, url, &parsed); err != nil {
		return nil, err
	}

	out := make([]models.JobPosting, 0, len(parsed.Jobs))
	for _, job := range parsed.Jobs {
		posting := models.JobPosting{
			Title:       job.Title,
			Company:     job.CompanyName,
			Location:    job.Location,
			URL:         job.URL,
			Description: job.Description,
			Source:      p.Name(),
		}
		if t, err := time.Parse("2006-01-02T15:04:05", job.Date); err == nil {
			posting.PostedAt = t
		}
		out = append(out, posting)
	}
	return out, nil
}

// remoteOKProvider reads RemoteOK's public feed. The first array element
// is a legal notice, not a job.
type remoteOKProvider struct {
	httpClient *http.Client
	baseURL    string
}

func (p *remoteOKProvider) Name() string { return "remoteok" }

type remoteOKJob struct {
	Position    string `json:"position"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

func (p *remoteOKProvider) Fetch(ctx context.Context, query string) ([]models.JobPosting, error) {
	url := p.baseURL
	if url == "" {
		url = "https://remoteok.com/api"
	}
	var parsed []remoteOKJob
	if err := fetchJSON(ctx, p.httpClient, url, &parsed); err != nil {
		return nil, err
	}

	var out []models.JobPosting
	for _, job := range parsed {
		if job.Position == "" {
			continue
		}
		posting := models.JobPosting{
			Title:       job.Position,
			Company:     job.Company,
			Location:    job.Location,
			URL:         job.URL,
			Description: job.Description,
			Source:      p.Name(),
		}
		if t, err := time.Parse(time.RFC3339, job.Date); err == nil {
			posting.PostedAt = t
		}
		out = append(out, posting)
	}
	return out, nil
}

func fetchJSON(ctx context.Context, client *http.Client, url string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "petitor/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}
