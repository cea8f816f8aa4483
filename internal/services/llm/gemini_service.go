package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/common"
	"github.com/ternarybob/petitor/internal/interfaces"
	"google.golang.org/genai"
)

// GeminiService implements the LLMProvider interface using the Google
// genai client.
type GeminiService struct {
	config  *common.GeminiConfig
	logger  arbor.ILogger
	client  *genai.Client
	timeout time.Duration
	backoff quotaBackoff
}

// convertMessagesToGemini converts []interfaces.Message to Gemini Content
// format. System messages are extracted separately for SystemInstruction.
func convertMessagesToGemini(messages []interfaces.Message) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	hasUserMessage := false
	for _, msg := range messages {
		if msg.Role == "user" {
			hasUserMessage = true
			break
		}
	}
	if !hasUserMessage {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}

	contents := make([]*genai.Content, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		var geminiRole string
		switch msg.Role {
		case "assistant":
			geminiRole = genai.RoleModel
		default:
			geminiRole = genai.RoleUser
		}

		part := genai.NewPartFromText(msg.Content)
		contents = append(contents, &genai.Content{
			Role:  geminiRole,
			Parts: []*genai.Part{part},
		})
	}

	return contents, systemText, nil
}

// NewGeminiService creates a new Gemini LLM provider instance
func NewGeminiService(config *common.GeminiConfig, logger arbor.ILogger) (*GeminiService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Google API key is required for Gemini service (set PETITOR_GEMINI_API_KEY or gemini.api_key in config)")
	}

	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}

	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", config.Timeout, err)
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	service := &GeminiService{
		config:  config,
		logger:  logger,
		client:  client,
		timeout: timeout,
		backoff: defaultQuotaBackoff(),
	}

	logger.Info().
		Str("model", config.Model).
		Dur("timeout", timeout).
		Msg("Gemini LLM service initialized")

	return service, nil
}

// Name identifies the provider
func (s *GeminiService) Name() string {
	return "gemini"
}

// Chat generates a completion response based on the conversation history.
// Rate-limit errors are retried with the API-suggested delay when present.
func (s *GeminiService) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("messages cannot be empty for chat completion")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()

	var response string
	var err error
	for attempt := 0; ; attempt++ {
		response, err = s.generateCompletion(timeoutCtx, messages)
		if err == nil {
			break
		}
		if !quotaExhausted(err) || attempt >= s.backoff.maxAttempts {
			s.logger.Error().
				Err(err).
				Int("message_count", len(messages)).
				Int("attempts", attempt+1).
				Msg("Chat completion failed")
			return "", fmt.Errorf("chat completion failed: %w", err)
		}

		wait := s.backoff.wait(attempt, err)
		s.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Msg("Gemini quota exhausted, backing off")

		select {
		case <-timeoutCtx.Done():
			return "", timeoutCtx.Err()
		case <-time.After(wait):
		}
	}

	s.logger.Debug().
		Int("message_count", len(messages)).
		Int("response_length", len(response)).
		Dur("duration", time.Since(startTime)).
		Msg("Chat completion succeeded")

	return response, nil
}

// HealthCheck verifies the service can reach the chat model
func (s *GeminiService) HealthCheck(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("genai client is not initialized")
	}

	healthCheckCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	testMessages := []interfaces.Message{
		{Role: "user", Content: "ping"},
	}

	response, err := s.generateCompletion(healthCheckCtx, testMessages)
	if err != nil {
		return fmt.Errorf("chat probe failed: %w", err)
	}
	if len(strings.TrimSpace(response)) == 0 {
		return fmt.Errorf("chat probe returned empty response")
	}

	return nil
}

// Close releases the client reference
func (s *GeminiService) Close() error {
	s.client = nil
	return nil
}

// generateCompletion performs a single GenerateContent call
func (s *GeminiService) generateCompletion(ctx context.Context, messages []interfaces.Message) (string, error) {
	geminiContents, systemText, err := convertMessagesToGemini(messages)
	if err != nil {
		return "", fmt.Errorf("failed to convert messages to Gemini format: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(s.config.Temperature),
	}
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.config.Model, geminiContents, config)
	if err != nil {
		return "", fmt.Errorf("chat generation failed: %w", err)
	}

	// Iterate candidates until non-empty text is found
	var response strings.Builder
	if resp != nil && len(resp.Candidates) > 0 {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					response.WriteString(part.Text)
				}
			}
			if response.Len() > 0 {
				break
			}
		}
	}

	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from chat model")
	}

	return response.String(), nil
}
