// Package rag answers questions about a document by retrieving its most
// similar chunks and prompting a generation model with them.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docqa/internal/errdefs"
	"docqa/internal/models"
	"docqa/internal/storage"
	"docqa/internal/vector"
)

// Embedder embeds a single query string.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces an answer from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Result is the outcome of one answered question.
type Result struct {
	InteractionID string   `json:"interaction_id"`
	Answer        string   `json:"answer"`
	ContextChunks []string `json:"context_chunks"`
	Model         string   `json:"model"`
	DurationMS    int64    `json:"duration_ms"`
}

// Engine runs retrieval-augmented question answering against completed
// documents. Every attempt is recorded as an interaction, including failed
// generations.
type Engine struct {
	storage   storage.Storage
	embedder  Embedder
	index     vector.Index
	generator Generator
	topK      int
	logger    *zap.Logger
}

// NewEngine creates a query engine retrieving up to topK chunks per question.
func NewEngine(st storage.Storage, embedder Embedder, index vector.Index, generator Generator, topK int, logger *zap.Logger) *Engine {
	if topK <= 0 {
		topK = 5
	}
	return &Engine{
		storage:   st,
		embedder:  embedder,
		index:     index,
		generator: generator,
		topK:      topK,
		logger:    logger,
	}
}

// Answer answers a question about one document. The document must be in
// completed status; anything else is rejected with ErrNotReady. A generation
// failure still records the interaction, with an empty answer and the error
// detail, before returning ErrGenerationFailed.
func (e *Engine) Answer(ctx context.Context, documentID, question string) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}

	doc, err := e.storage.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.StatusCompleted {
		return nil, fmt.Errorf("document %s is %s: %w", documentID, doc.Status, errdefs.ErrNotReady)
	}

	start := time.Now()

	qvec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: embed question: %v", errdefs.ErrEmbeddingFailed, err)
	}
	hits, err := e.index.Search(ctx, documentID, qvec, e.topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	chunkIDs := make([]string, 0, len(hits))
	contexts := make([]string, 0, len(hits))
	for _, h := range hits {
		ch, err := e.storage.GetChunk(ctx, h.ChunkID)
		if err != nil {
			return nil, fmt.Errorf("load chunk %s: %w", h.ChunkID, err)
		}
		chunkIDs = append(chunkIDs, ch.ID)
		contexts = append(contexts, ch.Content)
	}

	prompt := BuildPrompt(question, contexts)
	answer, genErr := e.generator.Generate(ctx, prompt)
	duration := time.Since(start).Milliseconds()

	interaction := &models.Interaction{
		ID:             uuid.New().String(),
		DocumentID:     documentID,
		Question:       question,
		Answer:         answer,
		ContextChunks:  chunkIDs,
		QuestionLength: len(question),
		AnswerLength:   len(answer),
		DurationMS:     duration,
	}
	if genErr != nil {
		interaction.Answer = ""
		interaction.AnswerLength = 0
		interaction.Error = genErr.Error()
	}
	if err := e.storage.CreateInteraction(ctx, interaction); err != nil {
		e.logger.Error("failed to record interaction",
			zap.String("document_id", documentID),
			zap.Error(err),
		)
		if genErr == nil {
			return nil, fmt.Errorf("record interaction: %w", err)
		}
	}

	if genErr != nil {
		e.logger.Warn("generation failed",
			zap.String("document_id", documentID),
			zap.String("interaction_id", interaction.ID),
			zap.Error(genErr),
		)
		return nil, fmt.Errorf("%w: %v", errdefs.ErrGenerationFailed, genErr)
	}

	e.logger.Info("question answered",
		zap.String("document_id", documentID),
		zap.String("interaction_id", interaction.ID),
		zap.Int("context_chunks", len(chunkIDs)),
		zap.Int64("duration_ms", duration),
	)
	return &Result{
		InteractionID: interaction.ID,
		Answer:        answer,
		ContextChunks: chunkIDs,
		Model:         e.generator.Model(),
		DurationMS:    duration,
	}, nil
}

// RecordFeedback attaches a rating and optional free-form feedback to an
// interaction. Rating must be between 1 and 5 when set.
func (e *Engine) RecordFeedback(ctx context.Context, interactionID string, rating *int, feedback string) error {
	if rating != nil && (*rating < 1 || *rating > 5) {
		return fmt.Errorf("rating %d out of range 1..5", *rating)
	}
	if err := e.storage.UpdateInteractionFeedback(ctx, interactionID, rating, feedback); err != nil {
		return err
	}
	e.logger.Info("feedback recorded", zap.String("interaction_id", interactionID))
	return nil
}
