package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docqa/pkg/utils"
)

// OllamaEmbedder produces embeddings via a local Ollama server.
// Example model: nomic-embed-text.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

// NewOllamaEmbedder creates an embedder against the Ollama embeddings API.
func NewOllamaEmbedder(baseURL, model string, dimensions int) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaEmbedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{Timeout: 90 * time.Second},
	}
}

// Embed returns a normalized embedding for text.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, _ := json.Marshal(map[string]any{
		"model":  o.model,
		"prompt": text,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding request failed: %w", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("ollama embedding error %d: %s", resp.StatusCode, utils.Truncate(string(body), 200))
	}
	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode ollama embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding")
	}
	vec := matchDimension(parsed.Embedding, o.dimensions)
	utils.NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch embeds each text sequentially; the Ollama embeddings API is per-prompt.
func (o *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := o.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Model returns the embedding model identifier.
func (o *OllamaEmbedder) Model() string { return o.model }

// Dimensions returns the configured embedding dimension.
func (o *OllamaEmbedder) Dimensions() int { return o.dimensions }

// Close is a no-op.
func (o *OllamaEmbedder) Close() error { return nil }
