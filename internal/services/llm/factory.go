package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/common"
	"github.com/ternarybob/petitor/internal/interfaces"
)

// NewProvider creates the chat provider selected by configuration.
// Gemini is the default; Claude is opt-in via llm.provider.
func NewProvider(cfg *common.Config, logger arbor.ILogger) (interfaces.LLMProvider, error) {
	provider := cfg.LLM.Provider
	if provider == "" {
		provider = "gemini"
	}

	logger.Info().Str("provider", provider).Msg("Initializing LLM provider")

	switch provider {
	case "gemini":
		return NewGeminiService(&cfg.Gemini, logger)

	case "claude":
		return NewClaudeService(&cfg.Claude, logger)

	default:
		return nil, fmt.Errorf("unsupported LLM provider '%s': must be 'gemini' or 'claude'", provider)
	}
}
