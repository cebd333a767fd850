// Package main is the docqa CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/contentstore"
	"docqa/internal/embedding"
	"docqa/internal/extract"
	"docqa/internal/generation"
	"docqa/internal/ingest"
	"docqa/internal/models"
	"docqa/internal/rag"
	"docqa/internal/server"
	"docqa/internal/storage"
	"docqa/internal/vector"
	"docqa/internal/watcher"
	"docqa/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/docqa/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "upload":
		runUpload()
	case "ingest":
		runIngest()
	case "ask":
		runAsk()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("docqa version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	var watchSvc server.WatchService
	var watchCancel context.CancelFunc
	if len(cfg.Watch.Directories) > 0 {
		ing := components.Ingestor
		content := components.Content
		w := watcher.NewWatcher(
			cfg.Watch.Directories,
			cfg.Watch.RecursiveOrDefault(),
			func(path string) {
				submitDroppedFile(content, ing, path, logger)
			},
			logger,
		)
		var watchCtx context.Context
		watchCtx, watchCancel = context.WithCancel(context.Background())
		defer watchCancel()
		if err := w.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		w.SyncExistingFiles()
		watchSvc = w
	}

	srv := server.NewServer(
		components.Content,
		components.Ingestor,
		components.Engine,
		components.Storage,
		components.VectorIndex,
		cfg,
		watchSvc,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if cfg.Storage.VectorIndexPath != "" && components.VectorIndex != nil {
		if err := components.VectorIndex.Save(cfg.Storage.VectorIndexPath); err != nil {
			logger.Warn("vector index save failed",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
		}
	}
	if watchCancel != nil {
		watchCancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// submitDroppedFile uploads a file from a drop directory and ingests it. A
// file whose content hash is already known is skipped.
func submitDroppedFile(content *contentstore.Store, ing *ingest.Ingestor, path string, logger *zap.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("drop read failed", zap.String("path", path), zap.Error(err))
		return
	}
	doc, duplicate, err := content.Submit(context.Background(), data, "application/pdf", filepath.Base(path))
	if err != nil {
		logger.Warn("drop submit failed", zap.String("path", path), zap.Error(err))
		return
	}
	if duplicate && doc.Status != models.StatusPending && doc.Status != models.StatusFailed {
		return
	}
	if err := ing.Run(context.Background(), doc.ID); err != nil {
		logger.Warn("drop ingestion failed",
			zap.String("path", path),
			zap.String("document_id", doc.ID),
			zap.Error(err),
		)
	}
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	ingestNow := fs.Bool("ingest", true, "start ingestion after upload")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: docqa upload [flags] <file.pdf>")
		os.Exit(1)
	}
	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read file: %v\n", err)
		os.Exit(1)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	h.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(h)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
		os.Exit(1)
	}
	if _, err := part.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
		os.Exit(1)
	}
	_ = mw.Close()

	resp, err := http.Post(*serverURL+"/api/v1/documents", mw.FormDataContentType(), &buf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Upload failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var out struct {
		Document  models.Document `json:"document"`
		Duplicate bool            `json:"duplicate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}
	if out.Duplicate {
		fmt.Printf("Already uploaded: %s (status %s)\n", out.Document.ID, out.Document.Status)
	} else {
		fmt.Printf("Uploaded: %s\n", out.Document.ID)
	}

	if *ingestNow && out.Document.Status == models.StatusPending {
		if err := requestIngest(*serverURL, out.Document.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Ingestion started")
	}
}

func requestIngest(serverURL, id string) error {
	resp, err := http.Post(serverURL+"/api/v1/documents/"+id+"/ingest", "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: docqa ingest [flags] <document-id>")
		os.Exit(1)
	}
	if err := requestIngest(*serverURL, fs.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Ingestion started")
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	docID := fs.String("doc", "", "document id (required)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if *docID == "" || fs.NArg() < 1 {
		fmt.Println("Usage: docqa ask --doc <document-id> <question>")
		os.Exit(1)
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))

	body, _ := json.Marshal(map[string]string{"question": question})
	resp, err := http.Post(*serverURL+"/api/v1/documents/"+*docID+"/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Ask failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var result rag.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	case "text":
		fmt.Println(result.Answer)
		fmt.Printf("\n(model %s, %d context chunks, %d ms, interaction %s)\n",
			result.Model, len(result.ContextChunks), result.DurationMS, result.InteractionID)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: docqa delete [flags] <document-id>")
		os.Exit(1)
	}
	id := fs.Arg(0)
	req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/documents/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Delete failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", id)
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Documents       int64                  `json:"documents"`
	Chunks          int64                  `json:"chunks"`
	Interactions    int64                  `json:"interactions"`
	VectorIndexSize int                    `json:"vector_index_size"`
	DiskUsageBytes  *int64                 `json:"disk_usage_bytes,omitempty"`
	Config          map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		resp, err := http.Get(*serverURL + "/api/v1/status")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Status failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		ctx := context.Background()
		docCount, err := components.Storage.CountDocuments(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count documents failed: %v\n", err)
			os.Exit(1)
		}
		chunkCount, err := components.Storage.CountChunks(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count chunks failed: %v\n", err)
			os.Exit(1)
		}
		interactionCount, err := components.Storage.CountInteractions(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count interactions failed: %v\n", err)
			os.Exit(1)
		}
		status = statusResponse{
			Documents:       docCount,
			Chunks:          chunkCount,
			Interactions:    interactionCount,
			VectorIndexSize: components.VectorIndex.Size(),
		}
		diskBytes, err := storage.DiskUsageBytes(
			cfg.Storage.DatabasePath, cfg.Storage.FilesDir, cfg.Storage.VectorIndexPath)
		if err == nil {
			status.DiskUsageBytes = &diskBytes
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("documents:          %d\n", status.Documents)
		fmt.Printf("chunks:             %d\n", status.Chunks)
		fmt.Printf("interactions:       %d\n", status.Interactions)
		fmt.Printf("vector_index_size:  %d\n", status.VectorIndexSize)
		if status.DiskUsageBytes != nil {
			fmt.Printf("disk_usage_bytes:   %d\n", *status.DiskUsageBytes)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: docqa watch <add|remove|list> [path]")
		fmt.Println("  docqa watch add <path>     Add drop directory")
		fmt.Println("  docqa watch remove <path>  Remove drop directory")
		fmt.Println("  docqa watch list           List drop directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[3:])
	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: docqa watch add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body, _ := json.Marshal(map[string]interface{}{"path": path, "sync": true})
		resp, err := http.Post(*serverURL+"/api/v1/watch/directories", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Add failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: docqa watch remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete,
			*serverURL+"/api/v1/watch/directories?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Remove failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		resp, err := http.Get(*serverURL + "/api/v1/watch/directories")
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("List failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Printf("Parse failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Storage     storage.Storage
	Embedder    embedding.Embedder
	Generator   generation.Generator
	VectorIndex vector.Index
	Content     *contentstore.Store
	Ingestor    *ingest.Ingestor
	Engine      *rag.Engine
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	generator, err := generation.New(cfg.Generation)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	vectorIndex, err := vector.NewMemoryIndex(cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if cfg.Storage.VectorIndexPath != "" {
		if loadErr := vectorIndex.Load(cfg.Storage.VectorIndexPath); loadErr != nil {
			logger.Warn("vector index load skipped",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(loadErr))
		}
	}
	logger.Info("vector index initialized",
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Int("vectors", vectorIndex.Size()),
	)

	content := contentstore.NewStore(
		store,
		cfg.Storage.FilesDir,
		cfg.Upload.MaxFileSizeBytes,
		cfg.Upload.AllowedTypes,
		logger,
	)
	ch := chunker.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	ingestor := ingest.NewIngestor(
		store, content, extract.NewExtractor(), ch, embedder,
		vectorIndex, cfg.Storage.VectorIndexPath, logger,
	)
	engine := rag.NewEngine(store, embedder, vectorIndex, generator, cfg.Query.TopK, logger)

	return &Components{
		Storage:     store,
		Embedder:    embedder,
		Generator:   generator,
		VectorIndex: vectorIndex,
		Content:     content,
		Ingestor:    ingestor,
		Engine:      engine,
	}, nil
}

func printUsage() {
	fmt.Println(`docqa - Ask questions about your PDF documents

Usage:
  docqa server [flags]                 Start the HTTP server
  docqa upload [flags] <file.pdf>      Upload a PDF (and ingest it)
  docqa ingest [flags] <document-id>   Start ingestion for an uploaded document
  docqa ask --doc <id> <question>      Ask a question about a document
  docqa delete [flags] <document-id>   Delete a document
  docqa status [flags]                 Show storage and index status
  docqa watch <add|remove|list>        Manage drop directories
  docqa version                        Show version
  docqa help                           Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/docqa/config.yaml)
  --debug            Enable debug logging

Upload Flags:
  --server string    Server URL (default: http://localhost:8080)
  --ingest           Start ingestion after upload (default: true)

Ask Flags:
  --server string    Server URL (default: http://localhost:8080)
  --doc string       Document id (required)
  --output string    Output format: text or json (default: text)

Status Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --output string    Output format: text or json (default: text)

Examples:
  docqa server
  docqa upload manual.pdf
  docqa ask --doc 4f7c2a1e "What is the warranty period?"
  docqa status --output json
  docqa watch add /path/to/inbox`)
}
