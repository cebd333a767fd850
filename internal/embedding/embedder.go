// Package embedding provides text embedding via remote providers, with an
// LRU cache and a deterministic mock for tests.
package embedding

import (
	"context"
	"fmt"

	"docqa/internal/config"
)

// Embedder produces vector embeddings for text. Implementations return unit
// L2-normalized vectors so inner product equals cosine similarity.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimensions() int
	Close() error
}

// New creates an embedder from config. Supported providers: "ollama",
// "openai" (OpenAI-compatible endpoints), "mock". The returned embedder is
// wrapped in a cache when cfg.CacheSize > 0.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	var e Embedder
	var err error
	switch cfg.Provider {
	case "ollama", "":
		e = NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimensions)
	case "openai":
		e, err = NewOpenAIEmbedder(cfg.BaseURL, cfg.Model, cfg.APIKeyEnv, cfg.Dimensions)
		if err != nil {
			return nil, err
		}
	case "mock":
		e = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: ollama, openai, mock)", cfg.Provider)
	}
	if cfg.CacheSize > 0 {
		e = NewCachedEmbedder(e, cfg.CacheSize)
	}
	return e, nil
}

// matchDimension truncates or zero-pads v to target. A non-positive target
// leaves v unchanged.
func matchDimension(v []float32, target int) []float32 {
	if target <= 0 || len(v) == target {
		return v
	}
	if len(v) > target {
		return v[:target]
	}
	out := make([]float32, target)
	copy(out, v)
	return out
}
