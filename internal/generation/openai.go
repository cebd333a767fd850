package generation

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

// OpenAIGenerator generates answers via an OpenAI-compatible chat endpoint.
type OpenAIGenerator struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIGenerator creates a generator against an OpenAI-compatible chat
// completions API. The API key is read from the environment variable named by
// apiKeyEnv (default OPENAI_API_KEY).
func NewOpenAIGenerator(baseURL, model, apiKeyEnv string, timeout time.Duration) (*OpenAIGenerator, error) {
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
		model = "gpt-4o-mini"
	}
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIGenerator{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  key,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Generate sends the prompt as a single user message and returns the reply.
func (c *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	payload, _ := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.1,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai generate request failed: %w", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai generate error %d: %s", resp.StatusCode, utils.Truncate(string(body), 200))
	}
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode openai generate response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai returned no completion")
	}
	return parsed.Choices[0].Message.Content, nil
}

// Model returns the generative model identifier.
func (c *OpenAIGenerator) Model() string { return c.model }
