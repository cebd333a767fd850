package generation

import (
	"context"
	"strings"
)

// MockGenerator is a deterministic generator for tests. It echoes a short
// answer derived from the prompt so assertions can check grounding.
type MockGenerator struct{}

// NewMockGenerator returns a deterministic mock generator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate returns a fixed answer; when the prompt carries no context section
// content it reports that no information was found.
func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, emptyContextMarker) {
		return "The provided document contains no information to answer this question.", nil
	}
	return "Deterministic answer based on the provided context.", nil
}

// Model returns the mock model identifier.
func (m *MockGenerator) Model() string { return "mock-llm" }

// emptyContextMarker matches the placeholder the prompt builder inserts when
// retrieval returned no chunks.
const emptyContextMarker = "(no context available)"
