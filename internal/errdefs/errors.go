// Package errdefs defines the error taxonomy shared across the pipeline.
// Errors are wrapped with %w at the point of failure and matched with errors.Is.
package errdefs

import "errors"

var (
	// Upload validation errors, rejected before any persistence.
	ErrUnsupportedType = errors.New("unsupported media type")
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")

	// Pipeline errors, caught by the ingestion orchestrator and recorded
	// on the document as a failed status with error detail.
	ErrExtractionFailed = errors.New("text extraction failed")
	ErrEmbeddingFailed  = errors.New("embedding failed")
	ErrIndexWriteFailed = errors.New("vector index write failed")

	// Query-time errors, returned as structured results to the caller.
	ErrNotReady         = errors.New("document is not ready for querying")
	ErrGenerationFailed = errors.New("answer generation failed")

	// ErrIngestionInProgress is returned when an ingestion run is requested
	// for a document that already has one active.
	ErrIngestionInProgress = errors.New("ingestion already in progress")

	ErrNotFound = errors.New("not found")
)
