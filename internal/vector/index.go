// Package vector provides a document-scoped vector index for similarity search.
package vector

import "context"

// Entry is one vector registered for a chunk. Seq is the chunk's sequence
// index within its document, used as a deterministic tie-break.
type Entry struct {
	ChunkID    string
	DocumentID string
	Seq        int
	Vector     []float32
}

// Result is a single similarity hit, scored by inner product (cosine for
// normalized vectors).
type Result struct {
	ChunkID string
	Score   float64
}

// Index defines vector storage and document-scoped similarity search.
// A chunk's vector must never outlive its chunk row: callers remove vectors
// together with the relational delete.
type Index interface {
	Add(ctx context.Context, entries []Entry) error
	// Search returns up to k results for the document, descending by score,
	// ties broken by ascending sequence index. k is clamped to the number of
	// vectors indexed for the document; an unindexed document yields an empty
	// result, not an error.
	Search(ctx context.Context, documentID string, query []float32, k int) ([]Result, error)
	RemoveDocument(ctx context.Context, documentID string) error
	RemoveChunks(ctx context.Context, chunkIDs []string) error
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}
