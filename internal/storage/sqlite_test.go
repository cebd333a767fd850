package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"docqa/internal/errdefs"
	"docqa/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testDocument(id, hash string) *models.Document {
	return &models.Document{
		ID:               id,
		ContentHash:      hash,
		Filename:         "abcd1234_report.pdf",
		OriginalFilename: "report.pdf",
		FilePath:         "/tmp/files/abcd1234_report.pdf",
		FileSize:         2048,
		Status:           models.StatusPending,
	}
}

func TestSQLiteStorage_DocumentCRUD(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	doc := testDocument("doc1", "hash1")
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if doc.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.GetDocument(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ContentHash != "hash1" || got.Status != models.StatusPending {
		t.Errorf("got %+v", got)
	}
	if got.ProcessedAt != nil {
		t.Error("ProcessedAt should be nil before processing")
	}

	byHash, err := store.GetDocumentByHash(ctx, "hash1")
	if err != nil {
		t.Fatal(err)
	}
	if byHash.ID != "doc1" {
		t.Errorf("GetDocumentByHash returned %s", byHash.ID)
	}

	doc.Status = models.StatusFailed
	doc.ErrorDetail = "extraction failed"
	if err := store.UpdateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetDocument(ctx, "doc1")
	if got.Status != models.StatusFailed || got.ErrorDetail != "extraction failed" {
		t.Errorf("got %+v", got)
	}

	list, err := store.ListDocuments(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 doc, got %d", len(list))
	}

	if err := store.DeleteDocument(ctx, "doc1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetDocument(ctx, "doc1"); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_ContentHashUnique(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if err := store.CreateDocument(ctx, testDocument("doc1", "same-hash")); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateDocument(ctx, testDocument("doc2", "same-hash")); err == nil {
		t.Error("second document with same content hash should be rejected")
	}
}

func TestSQLiteStorage_GetDocumentByHashNotFound(t *testing.T) {
	store := newTestStorage(t)
	_, err := store.GetDocumentByHash(context.Background(), "missing")
	if !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_Chunks(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if err := store.CreateDocument(ctx, testDocument("doc1", "h1")); err != nil {
		t.Fatal(err)
	}

	chunks := []*models.Chunk{
		{ID: "c0", DocumentID: "doc1", ChunkIndex: 0, Content: "first", ContentLength: 5, PageNumber: 1, EmbeddingModel: "nomic-embed-text", VectorID: "c0"},
		{ID: "c1", DocumentID: "doc1", ChunkIndex: 1, Content: "second", ContentLength: 6, PageNumber: 1, EmbeddingModel: "nomic-embed-text", VectorID: "c1"},
		{ID: "c2", DocumentID: "doc1", ChunkIndex: 2, Content: "third", ContentLength: 5, PageNumber: 2, EmbeddingModel: "nomic-embed-text", VectorID: "c2"},
	}
	if err := store.BatchCreateChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetChunksByDocumentID(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	for i, ch := range got {
		if ch.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, ch.ChunkIndex)
		}
	}

	single, err := store.GetChunk(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if single.Content != "second" || single.PageNumber != 1 {
		t.Errorf("got %+v", single)
	}

	// Duplicate (document_id, chunk_index) must be rejected.
	dup := []*models.Chunk{{ID: "c9", DocumentID: "doc1", ChunkIndex: 1, Content: "dup", ContentLength: 3}}
	if err := store.BatchCreateChunks(ctx, dup); err == nil {
		t.Error("duplicate chunk index for a document should be rejected")
	}

	if err := store.DeleteChunksByDocumentID(ctx, "doc1"); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetChunksByDocumentID(ctx, "doc1")
	if len(got) != 0 {
		t.Errorf("expected 0 chunks after delete, got %d", len(got))
	}
}

func TestSQLiteStorage_CascadeDelete(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if err := store.CreateDocument(ctx, testDocument("doc1", "h1")); err != nil {
		t.Fatal(err)
	}
	chunks := []*models.Chunk{{ID: "c0", DocumentID: "doc1", ChunkIndex: 0, Content: "x", ContentLength: 1}}
	if err := store.BatchCreateChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	in := &models.Interaction{ID: "i0", DocumentID: "doc1", Question: "q", Answer: "a"}
	if err := store.CreateInteraction(ctx, in); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteDocument(ctx, "doc1"); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountChunks(ctx); n != 0 {
		t.Errorf("chunks should cascade, got %d", n)
	}
	if n, _ := store.CountInteractions(ctx); n != 0 {
		t.Errorf("interactions should cascade, got %d", n)
	}
}

func TestSQLiteStorage_CascadeDeleteOnSecondConnection(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	// Hold the first pool connection so the delete below is forced onto a
	// fresh one. The cascade must fire there too, which only happens when
	// foreign_keys is applied per connection rather than once at open.
	pinned, err := store.db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer pinned.Close()

	if err := store.CreateDocument(ctx, testDocument("doc1", "h1")); err != nil {
		t.Fatal(err)
	}
	chunks := []*models.Chunk{{ID: "c0", DocumentID: "doc1", ChunkIndex: 0, Content: "x", ContentLength: 1}}
	if err := store.BatchCreateChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	in := &models.Interaction{ID: "i0", DocumentID: "doc1", Question: "q", Answer: "a"}
	if err := store.CreateInteraction(ctx, in); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteDocument(ctx, "doc1"); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountChunks(ctx); n != 0 {
		t.Errorf("orphan chunk rows after document delete: %d", n)
	}
	if n, _ := store.CountInteractions(ctx); n != 0 {
		t.Errorf("orphan interaction rows after document delete: %d", n)
	}
}

func TestSQLiteStorage_Interactions(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if err := store.CreateDocument(ctx, testDocument("doc1", "h1")); err != nil {
		t.Fatal(err)
	}

	in := &models.Interaction{
		ID:             "i1",
		DocumentID:     "doc1",
		Question:       "What is the main conclusion?",
		Answer:         "The main conclusion is X.",
		ContextChunks:  []string{"c0", "c2"},
		QuestionLength: 28,
		AnswerLength:   25,
		DurationMS:     412,
	}
	if err := store.CreateInteraction(ctx, in); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetInteraction(ctx, "i1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Question != in.Question || got.DurationMS != 412 {
		t.Errorf("got %+v", got)
	}
	if len(got.ContextChunks) != 2 || got.ContextChunks[0] != "c0" {
		t.Errorf("context chunks = %v", got.ContextChunks)
	}
	if got.Rating != nil {
		t.Error("rating should be nil before feedback")
	}

	rating := 4
	if err := store.UpdateInteractionFeedback(ctx, "i1", &rating, "helpful"); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetInteraction(ctx, "i1")
	if got.Rating == nil || *got.Rating != 4 || got.Feedback != "helpful" {
		t.Errorf("feedback not applied: %+v", got)
	}

	list, err := store.ListInteractionsByDocumentID(ctx, "doc1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 interaction, got %d", len(list))
	}

	if err := store.UpdateInteractionFeedback(ctx, "missing", nil, ""); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	files := filepath.Join(dir, "files", "nested")
	if err := os.MkdirAll(files, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(files, "a.bin"), []byte("12345"), 0644); err != nil {
		t.Fatal(err)
	}

	base, err := DiskUsageBytes(path, "/nonexistent/path")
	if err != nil {
		t.Fatal(err)
	}
	if base <= 0 {
		t.Errorf("expected positive disk usage, got %d", base)
	}

	withDir, err := DiskUsageBytes(path, filepath.Join(dir, "files"))
	if err != nil {
		t.Fatal(err)
	}
	if withDir != base+5 {
		t.Errorf("directory contents not summed: got %d, want %d", withDir, base+5)
	}
}
