// Package contentstore deduplicates and persists uploaded documents by content hash.
package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docqa/internal/errdefs"
	"docqa/internal/models"
	"docqa/internal/storage"
)

// Store validates uploads and persists accepted payloads to disk and the database.
type Store struct {
	storage      storage.Storage
	filesDir     string
	maxSize      int64
	allowedTypes map[string]bool
	logger       *zap.Logger
}

// NewStore creates a content store writing files under filesDir.
func NewStore(st storage.Storage, filesDir string, maxSize int64, allowedTypes []string, logger *zap.Logger) *Store {
	allowed := make(map[string]bool, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[strings.ToLower(t)] = true
	}
	return &Store{
		storage:      st,
		filesDir:     filesDir,
		maxSize:      maxSize,
		allowedTypes: allowed,
		logger:       logger,
	}
}

// Submit validates and stores an uploaded payload. The returned bool is true
// when the payload's content hash matched an existing document; in that case
// the existing document is returned and no disk write or insert happens.
// New documents are created with status pending.
func (s *Store) Submit(ctx context.Context, data []byte, mediaType, filename string) (*models.Document, bool, error) {
	if !s.allowedTypes[strings.ToLower(strings.TrimSpace(mediaType))] {
		return nil, false, fmt.Errorf("media type %q: %w", mediaType, errdefs.ErrUnsupportedType)
	}
	if int64(len(data)) > s.maxSize {
		return nil, false, fmt.Errorf("payload is %d bytes, limit %d: %w", len(data), s.maxSize, errdefs.ErrPayloadTooLarge)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	existing, err := s.storage.GetDocumentByHash(ctx, hash)
	if err == nil {
		s.logger.Debug("duplicate upload",
			zap.String("content_hash", hash),
			zap.String("existing_id", existing.ID),
		)
		return existing, true, nil
	}
	if !errors.Is(err, errdefs.ErrNotFound) {
		return nil, false, fmt.Errorf("lookup by hash: %w", err)
	}

	sanitized := sanitizeFilename(filename)
	storedName := fmt.Sprintf("%s_%s", hash[:8], sanitized)
	if err := os.MkdirAll(s.filesDir, 0755); err != nil {
		return nil, false, fmt.Errorf("create files dir: %w", err)
	}
	path := filepath.Join(s.filesDir, storedName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, false, fmt.Errorf("write file: %w", err)
	}

	doc := &models.Document{
		ID:               uuid.New().String(),
		ContentHash:      hash,
		Filename:         storedName,
		OriginalFilename: sanitized,
		FilePath:         path,
		FileSize:         int64(len(data)),
		Status:           models.StatusPending,
	}
	if err := s.storage.CreateDocument(ctx, doc); err != nil {
		// Leave no orphan file behind when the insert fails.
		_ = os.Remove(path)
		return nil, false, fmt.Errorf("create document: %w", err)
	}

	s.logger.Info("document accepted",
		zap.String("id", doc.ID),
		zap.String("filename", sanitized),
		zap.Int64("size", doc.FileSize),
	)
	return doc, false, nil
}

// ReadContent returns the stored bytes for a document.
func (s *Store) ReadContent(doc *models.Document) ([]byte, error) {
	return os.ReadFile(doc.FilePath)
}

// RemoveContent deletes the stored file for a document. A missing file is not
// an error.
func (s *Store) RemoveContent(doc *models.Document) error {
	err := os.Remove(doc.FilePath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// sanitizeFilename strips any path components and characters that could
// escape the files directory. An empty result falls back to "document.pdf".
func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	base = strings.Trim(base, "._")
	if base == "" {
		return "document.pdf"
	}
	return base
}
