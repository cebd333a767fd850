// Package models defines core data structures for documents, chunks, and interactions.
package models

import "time"

// Status is the processing state of a document.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CanTransitionTo reports whether moving from s to next is a legal transition.
// pending -> processing -> completed | failed; failed -> pending (re-submit).
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusPending
	default:
		return false
	}
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Document represents one uploaded source file and its processing state.
// ContentHash is unique across all documents and is the dedup key.
// ChunkCount is authoritative only once Status is completed.
type Document struct {
	ID               string     `json:"id" db:"id"`
	ContentHash      string     `json:"content_hash" db:"content_hash"`
	Filename         string     `json:"filename" db:"filename"`
	OriginalFilename string     `json:"original_filename" db:"original_filename"`
	FilePath         string     `json:"file_path" db:"file_path"`
	FileSize         int64      `json:"file_size" db:"file_size"`
	Status           Status     `json:"status" db:"status"`
	ChunkCount       int        `json:"chunk_count" db:"chunk_count"`
	ErrorDetail      string     `json:"error_detail,omitempty" db:"error_detail"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

// Chunk is a contiguous, ordered span of extracted text belonging to one document.
// ChunkIndex values for a document form a dense range [0, chunk_count).
// Chunks are immutable once created and are deleted only with their document.
type Chunk struct {
	ID             string    `json:"id" db:"id"`
	DocumentID     string    `json:"document_id" db:"document_id"`
	ChunkIndex     int       `json:"chunk_index" db:"chunk_index"`
	Content        string    `json:"content" db:"content"`
	ContentLength  int       `json:"content_length" db:"content_length"`
	PageNumber     int       `json:"page_number,omitempty" db:"page_number"`
	EmbeddingModel string    `json:"embedding_model,omitempty" db:"embedding_model"`
	VectorID       string    `json:"vector_id,omitempty" db:"vector_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Interaction records one question/answer exchange against a document.
// Rows are append-only; only Rating and Feedback may change after creation.
// A failed generation is recorded with an empty Answer and a non-empty Error.
type Interaction struct {
	ID             string    `json:"id" db:"id"`
	DocumentID     string    `json:"document_id" db:"document_id"`
	Question       string    `json:"question" db:"question"`
	Answer         string    `json:"answer" db:"answer"`
	ContextChunks  []string  `json:"context_chunks" db:"context_chunks"`
	QuestionLength int       `json:"question_length" db:"question_length"`
	AnswerLength   int       `json:"answer_length" db:"answer_length"`
	DurationMS     int64     `json:"duration_ms" db:"duration_ms"`
	Rating         *int      `json:"rating,omitempty" db:"rating"`
	Feedback       string    `json:"feedback,omitempty" db:"feedback"`
	Error          string    `json:"error,omitempty" db:"error"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
