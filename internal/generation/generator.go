// Package generation provides answer generation via remote language model
// providers, with a deterministic mock for tests.
package generation

import (
	"context"
	"fmt"
	"time"

	"docqa/internal/config"
)

// Generator produces text from a prompt. Implementations are single-shot:
// no conversational state is retained between calls.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// New creates a generator from config. Supported providers: "ollama",
// "openai" (OpenAI-compatible chat endpoints), "mock".
func New(cfg config.GenerationConfig) (Generator, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaGenerator(cfg.BaseURL, cfg.Model, timeout), nil
	case "openai":
		return NewOpenAIGenerator(cfg.BaseURL, cfg.Model, cfg.APIKeyEnv, timeout)
	case "mock":
		return NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s (supported: ollama, openai, mock)", cfg.Provider)
	}
}
