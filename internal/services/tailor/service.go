package tailor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/common"
	"github.com/ternarybob/petitor/internal/interfaces"
	"github.com/ternarybob/petitor/internal/models"
	"golang.org/x/oauth2"
)

// GoogleCredentials is the OAuth credential dict carried in tailoring
// payloads. Reconstructed into a token source per request; never stored.
type GoogleCredentials struct {
	Token        string   `json:"token" validate:"required"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri" validate:"required,url"`
	ClientID     string   `json:"client_id" validate:"required"`
	ClientSecret string   `json:"client_secret" validate:"required"`
	Scopes       []string `json:"scopes"`
}

// Request carries one tailoring run's inputs
type Request struct {
	OriginalResumeURL string
	JobDescription    string
	JobTitle          string
	Company           string
	Credentials       GoogleCredentials
	UserFullName      string
}

var docIDPattern = regexp.MustCompile(`/document/d/([a-zA-Z0-9_-]+)`)

// Service rewrites a resume against a specific job description. When an
// external tailoring endpoint is configured the work is delegated;
// otherwise the resume is fetched with the user's Google credentials,
// rewritten by the LLM, and rendered to a local PDF.
type Service struct {
	config     *common.TailorConfig
	llm        interfaces.LLMProvider
	logger     arbor.ILogger
	httpClient *http.Client
}

// NewService creates the tailoring service
func NewService(config *common.TailorConfig, llm interfaces.LLMProvider, logger arbor.ILogger) (*Service, error) {
	if err := os.MkdirAll(config.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tailoring output directory: %w", err)
	}
	return &Service{
		config: config,
		llm:    llm,
		logger: logger,
		httpClient: &http.Client{
			Timeout: common.ParseDuration(config.Timeout, 5*time.Minute),
		},
	}, nil
}

// Tailor runs one tailoring job and returns the tailored document location
func (s *Service) Tailor(ctx context.Context, req *Request) (*models.TailoringResult, error) {
	start := time.Now()

	if s.config.Endpoint != "" {
		return s.delegate(ctx, req, start)
	}

	original, err := s.fetchResume(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch original resume: %w", err)
	}

	tailored, err := s.rewrite(ctx, original, req)
	if err != nil {
		return nil, fmt.Errorf("tailoring failed: %w", err)
	}

	path, err := s.renderPDF(tailored, req)
	if err != nil {
		return nil, fmt.Errorf("failed to render tailored resume: %w", err)
	}

	s.logger.Info().
		Str("job_title", req.JobTitle).
		Str("company", req.Company).
		Str("path", path).
		Dur("duration", time.Since(start)).
		Msg("Resume tailored")

	return &models.TailoringResult{
		TailoredURL:   path,
		JobTitle:      req.JobTitle,
		Company:       req.Company,
		SourceResume:  req.OriginalResumeURL,
		GeneratedPath: path,
		DurationSecs:  time.Since(start).Seconds(),
	}, nil
}

// delegate forwards the run to the external tailoring endpoint
func (s *Service) delegate(ctx context.Context, req *Request, start time.Time) (*models.TailoringResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"original_resume_url": req.OriginalResumeURL,
		"job_description":     req.JobDescription,
		"job_title":           req.JobTitle,
		"company":             req.Company,
		"user_full_name":      req.UserFullName,
		"credentials": map[string]interface{}{
			"token":         req.Credentials.Token,
			"refresh_token": req.Credentials.RefreshToken,
			"token_uri":     req.Credentials.TokenURI,
			"client_id":     req.Credentials.ClientID,
			"client_secret": req.Credentials.ClientSecret,
			"scopes":        req.Credentials.Scopes,
		},
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(s.config.Endpoint, "/")+"/tailor", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tailoring service request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tailoring service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed struct {
		TailoredURL string `json:"tailored_url"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("tailoring service returned unparseable response: %w", err)
	}
	if parsed.TailoredURL == "" {
		return nil, fmt.Errorf("tailoring service returned no tailored_url")
	}

	return &models.TailoringResult{
		TailoredURL:  parsed.TailoredURL,
		JobTitle:     req.JobTitle,
		Company:      req.Company,
		SourceResume: req.OriginalResumeURL,
		DurationSecs: time.Since(start).Seconds(),
	}, nil
}

// fetchResume downloads the resume text. Google Docs URLs are exported
// as plain text through the Docs export endpoint with the user's
// reconstructed OAuth token; anything else is fetched directly.
func (s *Service) fetchResume(ctx context.Context, req *Request) (string, error) {
	url := req.OriginalResumeURL
	client := s.httpClient

	if match := docIDPattern.FindStringSubmatch(url); match != nil {
		url = fmt.Sprintf("https://docs.google.com/document/d/%s/export?format=txt", match[1])
		client = s.oauthClient(ctx, &req.Credentials)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("resume fetch returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// oauthClient reconstructs an authorized HTTP client from the payload
// credential dict.
func (s *Service) oauthClient(ctx context.Context, creds *GoogleCredentials) *http.Client {
	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Scopes:       creds.Scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL: creds.TokenURI,
		},
	}
	token := &oauth2.Token{
		AccessToken:  creds.Token,
		RefreshToken: creds.RefreshToken,
	}
	return config.Client(ctx, token)
}

const tailorSystemPrompt = `You rewrite resumes to emphasize experience relevant to a specific job posting.
Keep every statement truthful to the original resume. Never invent employers, titles, dates, or credentials.
Reorder and reword bullet points to surface the most relevant experience first.
Return only the rewritten resume as plain text, no commentary.`

// rewrite asks the LLM for a tailored version of the resume
func (s *Service) rewrite(ctx context.Context, original string, req *Request) (string, error) {
	description := req.JobDescription
	if strings.Contains(description, "<") {
		if converted, err := md.NewConverter("", true, nil).ConvertString(description); err == nil {
			description = converted
		}
	}

	prompt := fmt.Sprintf(`Tailor this resume for the role below.

ROLE: %s at %s

JOB DESCRIPTION:
%s

ORIGINAL RESUME:
%s`, req.JobTitle, req.Company, description, original)

	response, err := s.llm.Chat(ctx, []interfaces.Message{
		{Role: "system", Content: tailorSystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(response) == "" {
		return "", fmt.Errorf("model returned empty tailored resume")
	}
	return response, nil
}

// renderPDF writes the tailored text into a PDF in the output directory
func (s *Service) renderPDF(text string, req *Request) (string, error) {
	name := strings.ReplaceAll(strings.TrimSpace(req.UserFullName), " ", "_")
	if name == "" {
		name = "Resume"
	}
	company := strings.ReplaceAll(strings.TrimSpace(req.Company), " ", "_")
	filename := fmt.Sprintf("%s_%s_%s.pdf", name, company, time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(s.config.OutputDir, filename)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 11)

	for _, line := range strings.Split(text, "\n") {
		pdf.MultiCell(0, 5.5, line, "", "L", false)
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", err
	}
	return path, nil
}
