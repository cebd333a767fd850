package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: 0.0.0.0
  port: 9090
storage:
  database_path: ./data/docqa.db
chunking:
  chunk_size: 500
  chunk_overlap: 100
query:
  top_k: 3
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true")
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9090 {
		t.Errorf("server config: %+v", cfg.Server)
	}
	if cfg.Chunking.ChunkSize != 500 || cfg.Chunking.ChunkOverlap != 100 {
		t.Errorf("chunking config: %+v", cfg.Chunking)
	}
	if cfg.Query.TopK != 3 {
		t.Errorf("top_k = %d, want 3", cfg.Query.TopK)
	}
	want := filepath.Join(dir, "data/docqa.db")
	if cfg.Storage.DatabasePath != want {
		t.Errorf("database path = %s, want %s", cfg.Storage.DatabasePath, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Upload.MaxFileSizeBytes != 50*1024*1024 {
		t.Errorf("default max size = %d", cfg.Upload.MaxFileSizeBytes)
	}
	if len(cfg.Upload.AllowedTypes) != 1 || cfg.Upload.AllowedTypes[0] != "application/pdf" {
		t.Errorf("default allowed types = %v", cfg.Upload.AllowedTypes)
	}
	if cfg.Chunking.ChunkSize != 1000 || cfg.Chunking.ChunkOverlap != 200 {
		t.Errorf("default chunking = %+v", cfg.Chunking)
	}
	if cfg.Query.TopK != 5 {
		t.Errorf("default top_k = %d", cfg.Query.TopK)
	}
	if cfg.Embedding.Provider != "ollama" || cfg.Generation.Provider != "ollama" {
		t.Errorf("default providers: %s / %s", cfg.Embedding.Provider, cfg.Generation.Provider)
	}
}

func TestWatchRecursiveDefault(t *testing.T) {
	w := &WatchConfig{}
	if !w.RecursiveOrDefault() {
		t.Error("recursive should default to true")
	}
	f := false
	w.Recursive = &f
	if w.RecursiveOrDefault() {
		t.Error("explicit false should be respected")
	}
}
