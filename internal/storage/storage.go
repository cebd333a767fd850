// Package storage defines the persistence interface for documents, chunks,
// and interactions.
package storage

import (
	"context"

	"docqa/internal/models"
)

// Storage defines document, chunk, and interaction persistence operations.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetDocumentByHash(ctx context.Context, hash string) (*models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	// Chunk operations
	BatchCreateChunks(ctx context.Context, chunks []*models.Chunk) error
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error)
	GetChunk(ctx context.Context, id string) (*models.Chunk, error)
	DeleteChunksByDocumentID(ctx context.Context, docID string) error

	// Interaction operations. Interactions are append-only; only rating and
	// feedback may be updated after creation.
	CreateInteraction(ctx context.Context, in *models.Interaction) error
	GetInteraction(ctx context.Context, id string) (*models.Interaction, error)
	ListInteractionsByDocumentID(ctx context.Context, docID string, offset, limit int) ([]*models.Interaction, error)
	UpdateInteractionFeedback(ctx context.Context, id string, rating *int, feedback string) error

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)
	CountInteractions(ctx context.Context) (int64, error)

	Close() error
}
