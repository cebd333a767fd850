// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"docqa/internal/errdefs"
	"docqa/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	// Pragmas ride on the DSN so every pooled connection carries them.
	// Chunks and interactions cascade with their document, so foreign_keys
	// must be enforced on whichever connection runs the delete.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL UNIQUE,
		filename TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		file_path TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		chunk_count INTEGER NOT NULL DEFAULT 0,
		error_detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		processed_at TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_content_hash ON documents(content_hash);
	CREATE INDEX IF NOT EXISTS idx_documents_status_created ON documents(status, created_at);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		content_length INTEGER NOT NULL,
		page_number INTEGER NOT NULL DEFAULT 0,
		embedding_model TEXT NOT NULL DEFAULT '',
		vector_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE,
		UNIQUE (document_id, chunk_index)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);

	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		context_chunks TEXT NOT NULL DEFAULT '[]',
		question_length INTEGER NOT NULL DEFAULT 0,
		answer_length INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		rating INTEGER,
		feedback TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_interactions_document_created ON interactions(document_id, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateDocument inserts a document.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, content_hash, filename, original_filename, file_path,
		 file_size, status, chunk_count, error_detail, created_at, updated_at, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.ContentHash, doc.Filename, doc.OriginalFilename, doc.FilePath,
		doc.FileSize, string(doc.Status), doc.ChunkCount, doc.ErrorDetail,
		doc.CreatedAt, doc.UpdatedAt, doc.ProcessedAt,
	)
	return err
}

func (s *SQLiteStorage) scanDocument(row *sql.Row) (*models.Document, error) {
	var doc models.Document
	var status string
	var processedAt sql.NullTime
	err := row.Scan(&doc.ID, &doc.ContentHash, &doc.Filename, &doc.OriginalFilename,
		&doc.FilePath, &doc.FileSize, &status, &doc.ChunkCount, &doc.ErrorDetail,
		&doc.CreatedAt, &doc.UpdatedAt, &processedAt)
	if err == sql.ErrNoRows {
		return nil, errdefs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	doc.Status = models.Status(status)
	if processedAt.Valid {
		doc.ProcessedAt = &processedAt.Time
	}
	return &doc, nil
}

const documentColumns = `id, content_hash, filename, original_filename, file_path,
	file_size, status, chunk_count, error_detail, created_at, updated_at, processed_at`

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := s.scanDocument(row)
	if err == errdefs.ErrNotFound {
		return nil, fmt.Errorf("document %s: %w", id, errdefs.ErrNotFound)
	}
	return doc, err
}

// GetDocumentByHash returns the document with the given content hash, used for
// dedup at upload. Returns a wrapped errdefs.ErrNotFound when no document matches.
func (s *SQLiteStorage) GetDocumentByHash(ctx context.Context, hash string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE content_hash = ?`, hash)
	doc, err := s.scanDocument(row)
	if err == errdefs.ErrNotFound {
		return nil, fmt.Errorf("content hash %s: %w", hash, errdefs.ErrNotFound)
	}
	return doc, err
}

// UpdateDocument updates an existing document's mutable fields.
func (s *SQLiteStorage) UpdateDocument(ctx context.Context, doc *models.Document) error {
	doc.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, chunk_count = ?, error_detail = ?,
		 updated_at = ?, processed_at = ? WHERE id = ?`,
		string(doc.Status), doc.ChunkCount, doc.ErrorDetail,
		doc.UpdatedAt, doc.ProcessedAt, doc.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, errdefs.ErrNotFound)
	}
	return nil
}

// DeleteDocument removes a document by ID. Chunks and interactions cascade.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// ListDocuments returns documents with offset and limit, newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		var status string
		var processedAt sql.NullTime
		if err := rows.Scan(&doc.ID, &doc.ContentHash, &doc.Filename, &doc.OriginalFilename,
			&doc.FilePath, &doc.FileSize, &status, &doc.ChunkCount, &doc.ErrorDetail,
			&doc.CreatedAt, &doc.UpdatedAt, &processedAt); err != nil {
			return nil, err
		}
		doc.Status = models.Status(status)
		if processedAt.Valid {
			doc.ProcessedAt = &processedAt.Time
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// BatchCreateChunks inserts multiple chunks in a transaction.
func (s *SQLiteStorage) BatchCreateChunks(ctx context.Context, chunks []*models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, chunk_index, content, content_length,
		 page_number, embedding_model, vector_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, chunk := range chunks {
		chunk.CreatedAt = now
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocumentID, chunk.ChunkIndex,
			chunk.Content, chunk.ContentLength, chunk.PageNumber, chunk.EmbeddingModel,
			chunk.VectorID, chunk.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetChunk returns a chunk by ID.
func (s *SQLiteStorage) GetChunk(ctx context.Context, id string) (*models.Chunk, error) {
	var chunk models.Chunk
	err := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, chunk_index, content, content_length, page_number,
		 embedding_model, vector_id, created_at FROM chunks WHERE id = ?`, id,
	).Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content,
		&chunk.ContentLength, &chunk.PageNumber, &chunk.EmbeddingModel,
		&chunk.VectorID, &chunk.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chunk %s: %w", id, errdefs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// GetChunksByDocumentID returns all chunks for a document ordered by chunk_index.
func (s *SQLiteStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, content, content_length, page_number,
		 embedding_model, vector_id, created_at
		 FROM chunks WHERE document_id = ? ORDER BY chunk_index`,
		docID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content,
			&chunk.ContentLength, &chunk.PageNumber, &chunk.EmbeddingModel,
			&chunk.VectorID, &chunk.CreatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// DeleteChunksByDocumentID removes all chunks for a document.
func (s *SQLiteStorage) DeleteChunksByDocumentID(ctx context.Context, docID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID)
	return err
}

// CreateInteraction inserts an interaction record.
func (s *SQLiteStorage) CreateInteraction(ctx context.Context, in *models.Interaction) error {
	contextJSON, err := json.Marshal(in.ContextChunks)
	if err != nil {
		return fmt.Errorf("failed to marshal context chunks: %w", err)
	}
	in.CreatedAt = time.Now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, document_id, question, answer, context_chunks,
		 question_length, answer_length, duration_ms, rating, feedback, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.DocumentID, in.Question, in.Answer, string(contextJSON),
		in.QuestionLength, in.AnswerLength, in.DurationMS, in.Rating, in.Feedback,
		in.Error, in.CreatedAt,
	)
	return err
}

func scanInteraction(scan func(dest ...any) error) (*models.Interaction, error) {
	var in models.Interaction
	var contextJSON string
	var rating sql.NullInt64
	err := scan(&in.ID, &in.DocumentID, &in.Question, &in.Answer, &contextJSON,
		&in.QuestionLength, &in.AnswerLength, &in.DurationMS, &rating, &in.Feedback,
		&in.Error, &in.CreatedAt)
	if err != nil {
		return nil, err
	}
	if contextJSON != "" {
		if err := json.Unmarshal([]byte(contextJSON), &in.ContextChunks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context chunks: %w", err)
		}
	}
	if rating.Valid {
		r := int(rating.Int64)
		in.Rating = &r
	}
	return &in, nil
}

const interactionColumns = `id, document_id, question, answer, context_chunks,
	question_length, answer_length, duration_ms, rating, feedback, error, created_at`

// GetInteraction returns an interaction by ID.
func (s *SQLiteStorage) GetInteraction(ctx context.Context, id string) (*models.Interaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+interactionColumns+` FROM interactions WHERE id = ?`, id)
	in, err := scanInteraction(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("interaction %s: %w", id, errdefs.ErrNotFound)
	}
	return in, err
}

// ListInteractionsByDocumentID returns interactions for a document, newest first.
func (s *SQLiteStorage) ListInteractionsByDocumentID(ctx context.Context, docID string, offset, limit int) ([]*models.Interaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+interactionColumns+` FROM interactions
		 WHERE document_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		docID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.Interaction
	for rows.Next() {
		in, err := scanInteraction(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, in)
	}
	return list, rows.Err()
}

// UpdateInteractionFeedback sets rating and feedback on an existing interaction.
// All other interaction fields are immutable.
func (s *SQLiteStorage) UpdateInteractionFeedback(ctx context.Context, id string, rating *int, feedback string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE interactions SET rating = ?, feedback = ? WHERE id = ?`,
		rating, feedback, id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("interaction %s: %w", id, errdefs.ErrNotFound)
	}
	return nil
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountChunks returns the total number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// CountInteractions returns the total number of interactions.
func (s *SQLiteStorage) CountInteractions(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions`).Scan(&count)
	return count, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
