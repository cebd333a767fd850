package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"docqa/internal/errdefs"
	"docqa/internal/models"
	"docqa/internal/storage"
)

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	maxSize := s.config.Upload.MaxFileSizeBytes
	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = mime.TypeByExtension(filepath.Ext(header.Filename))
	}
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}

	doc, duplicate, err := s.content.Submit(r.Context(), data, mediaType, header.Filename)
	if err != nil {
		switch {
		case errors.Is(err, errdefs.ErrUnsupportedType):
			s.respondError(w, http.StatusUnsupportedMediaType, err.Error())
		case errors.Is(err, errdefs.ErrPayloadTooLarge):
			s.respondError(w, http.StatusRequestEntityTooLarge, err.Error())
		default:
			s.logger.Error("upload failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	status := http.StatusCreated
	if duplicate {
		status = http.StatusOK
	}
	s.respondJSON(w, status, map[string]interface{}{
		"document":  doc,
		"duplicate": duplicate,
	})
}

func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	switch doc.Status {
	case models.StatusProcessing:
		s.respondError(w, http.StatusConflict, "ingestion already in progress")
		return
	case models.StatusCompleted:
		s.respondError(w, http.StatusConflict, "document already ingested")
		return
	}

	// The run outlives the request.
	go func() {
		if err := s.ingestor.Run(context.Background(), id); err != nil {
			s.logger.Warn("background ingestion failed",
				zap.String("document_id", id),
				zap.Error(err),
			)
		}
	}()
	s.respondJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "processing"})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r, 50)
	docs, err := s.storage.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"offset":    offset,
		"limit":     limit,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.ingestor.Delete(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, errdefs.ErrNotFound):
			s.respondError(w, http.StatusNotFound, "document not found")
		case errors.Is(err, errdefs.ErrIngestionInProgress):
			s.respondError(w, http.StatusConflict, "ingestion in progress")
		default:
			s.logger.Error("deletion failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}

	result, err := s.engine.Answer(r.Context(), id, req.Question)
	if err != nil {
		switch {
		case errors.Is(err, errdefs.ErrNotFound):
			s.respondError(w, http.StatusNotFound, "document not found")
		case errors.Is(err, errdefs.ErrNotReady):
			s.respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, errdefs.ErrGenerationFailed),
			errors.Is(err, errdefs.ErrEmbeddingFailed):
			s.respondError(w, http.StatusBadGateway, err.Error())
		default:
			s.logger.Error("ask failed", zap.String("document_id", id), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListInteractions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.storage.GetDocument(r.Context(), id); err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	offset, limit := pagination(r, 50)
	interactions, err := s.storage.ListInteractionsByDocumentID(r.Context(), id, offset, limit)
	if err != nil {
		s.logger.Error("list interactions failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"interactions": interactions,
		"offset":       offset,
		"limit":        limit,
	})
}

type feedbackRequest struct {
	Rating   *int   `json:"rating,omitempty"`
	Feedback string `json:"feedback,omitempty"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Rating == nil && req.Feedback == "" {
		s.respondError(w, http.StatusBadRequest, "rating or feedback is required")
		return
	}
	if err := s.engine.RecordFeedback(r.Context(), id, req.Rating, req.Feedback); err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "interaction not found")
			return
		}
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "updated"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chunkCount, err := s.storage.CountChunks(ctx)
	if err != nil {
		s.logger.Error("status: count chunks failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	interactionCount, err := s.storage.CountInteractions(ctx)
	if err != nil {
		s.logger.Error("status: count interactions failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{
		"documents":         docCount,
		"chunks":            chunkCount,
		"interactions":      interactionCount,
		"vector_index_size": s.index.Size(),
	}
	resp["config"] = map[string]interface{}{
		"embedding_model":      s.config.Embedding.Model,
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"generation_model":     s.config.Generation.Model,
		"chunk_size":           s.config.Chunking.ChunkSize,
		"chunk_overlap":        s.config.Chunking.ChunkOverlap,
		"top_k":                s.config.Query.TopK,
	}
	diskBytes, err := storage.DiskUsageBytes(
		s.config.Storage.DatabasePath,
		s.config.Storage.FilesDir,
		s.config.Storage.VectorIndexPath,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// pagination reads offset/limit query params with a default limit.
func pagination(r *http.Request, defaultLimit int) (offset, limit int) {
	limit = defaultLimit
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	return offset, limit
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
