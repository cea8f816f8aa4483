package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/common"
	"github.com/ternarybob/petitor/internal/interfaces"
)

// ClaudeService implements the LLMProvider interface using the Anthropic
// Messages API.
type ClaudeService struct {
	config    *common.ClaudeConfig
	logger    arbor.ILogger
	client    anthropic.Client
	timeout   time.Duration
	maxTokens int
}

// convertMessagesToClaude converts []interfaces.Message to Anthropic
// message params. System messages are returned separately since the
// Messages API carries them as a top-level parameter.
func convertMessagesToClaude(messages []interfaces.Message) ([]anthropic.MessageParam, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	claudeMessages := make([]anthropic.MessageParam, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if systemText == "" {
				systemText = msg.Content
			}
		case "assistant":
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	if len(claudeMessages) == 0 {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}

	return claudeMessages, systemText, nil
}

// NewClaudeService creates a new Claude LLM provider instance
func NewClaudeService(config *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required for Claude service (set PETITOR_ANTHROPIC_API_KEY or claude.api_key in config)")
	}

	if config.Model == "" {
		config.Model = "claude-sonnet-4-5"
	}

	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", config.Timeout, err)
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.APIKey),
	)

	service := &ClaudeService{
		config:    config,
		logger:    logger,
		client:    client,
		timeout:   timeout,
		maxTokens: maxTokens,
	}

	logger.Info().
		Str("model", config.Model).
		Dur("timeout", timeout).
		Int("max_tokens", maxTokens).
		Msg("Claude LLM service initialized")

	return service, nil
}

// Name identifies the provider
func (s *ClaudeService) Name() string {
	return "claude"
}

// Chat generates a completion response based on the conversation history
func (s *ClaudeService) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("messages cannot be empty for chat completion")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()

	response, err := s.generateCompletion(timeoutCtx, messages)
	if err != nil {
		s.logger.Error().
			Err(err).
			Int("message_count", len(messages)).
			Msg("Chat completion failed")
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	s.logger.Debug().
		Int("message_count", len(messages)).
		Int("response_length", len(response)).
		Dur("duration", time.Since(startTime)).
		Msg("Chat completion succeeded")

	return response, nil
}

// HealthCheck verifies the service can reach the Messages API
func (s *ClaudeService) HealthCheck(ctx context.Context) error {
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

// Close releases the service. The Anthropic client needs no explicit cleanup.
func (s *ClaudeService) Close() error {
	return nil
}

// generateCompletion performs a single Messages API call
func (s *ClaudeService) generateCompletion(ctx context.Context, messages []interfaces.Message) (string, error) {
	claudeMessages, systemText, err := convertMessagesToClaude(messages)
	if err != nil {
		return "", fmt.Errorf("failed to convert messages to Claude format: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: int64(s.maxTokens),
		Messages:  claudeMessages,
	}
	params.Temperature = anthropic.Float(float64(s.config.Temperature))
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemText}}
	}

	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat generation failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}

	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from chat model")
	}

	return response.String(), nil
}
