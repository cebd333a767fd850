// Package ingest drives a document through extract, chunk, embed, and index,
// tracking the processing-status state machine.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docqa/internal/chunker"
	"docqa/internal/contentstore"
	"docqa/internal/errdefs"
	"docqa/internal/extract"
	"docqa/internal/models"
	"docqa/internal/storage"
	"docqa/internal/vector"
)

// Embedder is the embedding capability the pipeline depends on.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Extractor extracts per-page text from stored document bytes.
type Extractor interface {
	Pages(content []byte) ([]extract.Page, error)
}

// Ingestor orchestrates ingestion runs. At most one run is active per
// document at a time; embedding calls are issued without holding any
// process-wide lock.
type Ingestor struct {
	storage   storage.Storage
	content   *contentstore.Store
	extractor Extractor
	chunker   *chunker.Chunker
	embedder  Embedder
	index     vector.Index
	indexPath string
	logger    *zap.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

// NewIngestor creates an ingestor. indexPath may be empty; when set, the
// vector index is persisted there after each successful run.
func NewIngestor(
	st storage.Storage,
	content *contentstore.Store,
	extractor Extractor,
	ch *chunker.Chunker,
	embedder Embedder,
	index vector.Index,
	indexPath string,
	logger *zap.Logger,
) *Ingestor {
	return &Ingestor{
		storage:   st,
		content:   content,
		extractor: extractor,
		chunker:   ch,
		embedder:  embedder,
		index:     index,
		indexPath: indexPath,
		logger:    logger,
		inflight:  make(map[string]bool),
	}
}

// Run executes one ingestion run for the document. The document must be in
// pending or failed status; failed documents are reset to pending first. A
// document with an active run is rejected with ErrIngestionInProgress. On
// failure the run's chunk rows and vectors are removed before the document is
// marked failed, so from the caller's point of view either all chunks exist
// or none do.
func (ing *Ingestor) Run(ctx context.Context, documentID string) error {
	if !ing.acquire(documentID) {
		return fmt.Errorf("document %s: %w", documentID, errdefs.ErrIngestionInProgress)
	}
	defer ing.release(documentID)

	doc, err := ing.storage.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	switch doc.Status {
	case models.StatusProcessing:
		return fmt.Errorf("document %s: %w", documentID, errdefs.ErrIngestionInProgress)
	case models.StatusCompleted:
		return fmt.Errorf("document %s is already completed", documentID)
	case models.StatusFailed:
		doc.Status = models.StatusPending
		doc.ErrorDetail = ""
	}

	doc.Status = models.StatusProcessing
	if err := ing.storage.UpdateDocument(ctx, doc); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	ing.logger.Info("ingestion started",
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.OriginalFilename),
	)

	if err := ing.pipeline(ctx, doc); err != nil {
		ing.rollback(ctx, doc, err)
		return err
	}
	return nil
}

// pipeline runs the extract -> chunk -> embed -> index steps and marks the
// document completed.
func (ing *Ingestor) pipeline(ctx context.Context, doc *models.Document) error {
	data, err := ing.content.ReadContent(doc)
	if err != nil {
		return fmt.Errorf("%w: read stored bytes: %v", errdefs.ErrExtractionFailed, err)
	}
	pages, err := ing.extractor.Pages(data)
	if err != nil {
		return fmt.Errorf("%w: %v", errdefs.ErrExtractionFailed, err)
	}

	pieces := ing.chunker.Split(pages)

	chunks := make([]*models.Chunk, len(pieces))
	texts := make([]string, len(pieces))
	for i, p := range pieces {
		id := uuid.New().String()
		chunks[i] = &models.Chunk{
			ID:             id,
			DocumentID:     doc.ID,
			ChunkIndex:     p.Index,
			Content:        p.Content,
			ContentLength:  len(p.Content),
			PageNumber:     p.PageNumber,
			EmbeddingModel: ing.embedder.Model(),
			VectorID:       id,
		}
		texts[i] = p.Content
	}

	if len(chunks) > 0 {
		// Chunk rows are created before their vectors so the index never
		// references a chunk that does not exist.
		if err := ing.storage.BatchCreateChunks(ctx, chunks); err != nil {
			return fmt.Errorf("persist chunks: %w", err)
		}
		embeddings, err := ing.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("%w: %v", errdefs.ErrEmbeddingFailed, err)
		}
		entries := make([]vector.Entry, len(chunks))
		for i, ch := range chunks {
			entries[i] = vector.Entry{
				ChunkID:    ch.ID,
				DocumentID: doc.ID,
				Seq:        ch.ChunkIndex,
				Vector:     embeddings[i],
			}
		}
		if err := ing.index.Add(ctx, entries); err != nil {
			return fmt.Errorf("%w: %v", errdefs.ErrIndexWriteFailed, err)
		}
	}

	now := time.Now()
	doc.Status = models.StatusCompleted
	doc.ChunkCount = len(chunks)
	doc.ProcessedAt = &now
	if err := ing.storage.UpdateDocument(ctx, doc); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	if ing.indexPath != "" {
		if err := ing.index.Save(ing.indexPath); err != nil {
			ing.logger.Warn("failed to persist vector index", zap.Error(err))
		}
	}
	ing.logger.Info("ingestion completed",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// rollback removes the run's chunks and vectors and marks the document failed
// with the error detail.
func (ing *Ingestor) rollback(ctx context.Context, doc *models.Document, cause error) {
	if err := ing.index.RemoveDocument(ctx, doc.ID); err != nil {
		ing.logger.Warn("rollback: remove vectors failed", zap.String("document_id", doc.ID), zap.Error(err))
	}
	if err := ing.storage.DeleteChunksByDocumentID(ctx, doc.ID); err != nil {
		ing.logger.Warn("rollback: delete chunks failed", zap.String("document_id", doc.ID), zap.Error(err))
	}
	doc.Status = models.StatusFailed
	doc.ChunkCount = 0
	doc.ErrorDetail = cause.Error()
	if err := ing.storage.UpdateDocument(ctx, doc); err != nil {
		ing.logger.Error("rollback: mark failed errored", zap.String("document_id", doc.ID), zap.Error(err))
	}
	ing.logger.Warn("ingestion failed",
		zap.String("document_id", doc.ID),
		zap.Error(cause),
	)
}

// Delete removes a document entirely: vectors, chunk and interaction rows
// (cascade), and the stored file.
func (ing *Ingestor) Delete(ctx context.Context, documentID string) error {
	if !ing.acquire(documentID) {
		return fmt.Errorf("document %s: %w", documentID, errdefs.ErrIngestionInProgress)
	}
	defer ing.release(documentID)

	doc, err := ing.storage.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if err := ing.index.RemoveDocument(ctx, documentID); err != nil {
		return fmt.Errorf("remove vectors: %w", err)
	}
	if err := ing.storage.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := ing.content.RemoveContent(doc); err != nil {
		ing.logger.Warn("delete: remove stored file failed", zap.String("document_id", documentID), zap.Error(err))
	}
	if ing.indexPath != "" {
		if err := ing.index.Save(ing.indexPath); err != nil {
			ing.logger.Warn("failed to persist vector index", zap.Error(err))
		}
	}
	ing.logger.Info("document deleted", zap.String("document_id", documentID))
	return nil
}

func (ing *Ingestor) acquire(documentID string) bool {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	if ing.inflight[documentID] {
		return false
	}
	ing.inflight[documentID] = true
	return true
}

func (ing *Ingestor) release(documentID string) {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	delete(ing.inflight, documentID)
}
