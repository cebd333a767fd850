// Package server provides the HTTP API for docqa.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"docqa/internal/config"
	"docqa/internal/contentstore"
	"docqa/internal/ingest"
	"docqa/internal/rag"
	"docqa/internal/storage"
	"docqa/internal/vector"
)

// WatchService manages drop directories at runtime.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the docqa API.
type Server struct {
	content  *contentstore.Store
	ingestor *ingest.Ingestor
	engine   *rag.Engine
	storage  storage.Storage
	index    vector.Index
	config   *config.Config
	watch    WatchService
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. watch may be nil
// when drop directories are disabled.
func NewServer(
	content *contentstore.Store,
	ingestor *ingest.Ingestor,
	engine *rag.Engine,
	st storage.Storage,
	index vector.Index,
	cfg *config.Config,
	watch WatchService,
	logger *zap.Logger,
) *Server {
	return &Server{
		content:  content,
		ingestor: ingestor,
		engine:   engine,
		storage:  st,
		index:    index,
		config:   cfg,
		watch:    watch,
		logger:   logger,
	}
}

// Handler builds the router. Exposed so tests can drive the full routing
// stack without a listening socket.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/documents", s.handleUploadDocument)
	r.Get("/api/v1/documents", s.handleListDocuments)
	r.Get("/api/v1/documents/{id}", s.handleGetDocument)
	r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)
	r.Post("/api/v1/documents/{id}/ingest", s.handleIngestDocument)
	r.Post("/api/v1/documents/{id}/ask", s.handleAsk)
	r.Get("/api/v1/documents/{id}/interactions", s.handleListInteractions)
	r.Patch("/api/v1/interactions/{id}/feedback", s.handleFeedback)
	r.Get("/api/v1/watch/directories", s.handleWatchDirectoriesList)
	r.Post("/api/v1/watch/directories", s.handleWatchDirectoriesAdd)
	r.Delete("/api/v1/watch/directories", s.handleWatchDirectoriesRemove)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
