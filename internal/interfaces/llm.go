package interfaces

import "context"

// Message is a single turn in an LLM conversation
type Message struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// LLMProvider generates chat completions. Implementations wrap Gemini or
// Claude behind the same contract so the form-fill engine stays
// provider-agnostic.
type LLMProvider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Name() string
	HealthCheck(ctx context.Context) error
	Close() error
}
