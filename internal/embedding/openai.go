package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"docqa/pkg/utils"
)

// OpenAIEmbedder produces embeddings via an OpenAI-compatible endpoint.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
}

// NewOpenAIEmbedder creates an embedder against an OpenAI-compatible
// embeddings API. The API key is read from the environment variable named by
// apiKeyEnv (default OPENAI_API_KEY).
func NewOpenAIEmbedder(baseURL, model, apiKeyEnv string, dimensions int) (*OpenAIEmbedder, error) {
	if apiKeyEnv == "" {
		apiKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(apiKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", apiKeyEnv)
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIEmbedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     key,
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Embed returns a normalized embedding for text.
func (c *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in one API call.
func (c *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	payload, _ := json.Marshal(map[string]any{
		"input": texts,
		"model": c.model,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai embedding request failed: %w", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai embedding error %d: %s", resp.StatusCode, utils.Truncate(string(body), 200))
	}
	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode openai embedding response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(parsed.Data), len(texts))
	}
	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("openai returned empty embedding at position %d", i)
		}
		vec := matchDimension(d.Embedding, c.dimensions)
		utils.NormalizeL2(vec)
		out[i] = vec
	}
	return out, nil
}

// Model returns the embedding model identifier.
func (c *OpenAIEmbedder) Model() string { return c.model }

// Dimensions returns the configured embedding dimension.
func (c *OpenAIEmbedder) Dimensions() int { return c.dimensions }

// Close is a no-op.
func (c *OpenAIEmbedder) Close() error { return nil }
