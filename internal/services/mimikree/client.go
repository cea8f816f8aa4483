package mimikree

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/common"
)

// Client talks to the external Mimikree Q&A service, which answers
// free-form questions against a user's uploaded personal data.
type Client struct {
	config     *common.MimikreeConfig
	logger     arbor.ILogger
	httpClient *http.Client
}

// NewClient creates a Mimikree client
func NewClient(config *common.MimikreeConfig, logger arbor.ILogger) *Client {
	return &Client{
		config: config,
		logger: logger,
		httpClient: &http.Client{
			Timeout: common.ParseDuration(config.Timeout, time.Minute),
		},
	}
}

// Enabled reports whether a base URL is configured
func (c *Client) Enabled() bool {
	return strings.TrimSpace(c.config.BaseURL) != ""
}

type askRequest struct {
	Username string `json:"username"`
	Query    string `json:"query"`
}

type askResponse struct {
	Answer string `json:"answer"`
	Error  string `json:"error,omitempty"`
}

// Ask sends one question about the user and returns the service's answer
func (c *Client) Ask(ctx context.Context, username, question string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("mimikree is not configured")
	}

	body, err := json.Marshal(askRequest{Username: username, Query: question})
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/api/ask"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("mimikree request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mimikree returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed askResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("mimikree returned unparseable response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("mimikree error: %s", parsed.Error)
	}

	c.logger.Debug().
		Str("username", username).
		Int("answer_len", len(parsed.Answer)).
		Msg("Mimikree answered")
	return parsed.Answer, nil
}
