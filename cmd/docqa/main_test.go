package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "0.0.0.0"
  port: 9999
storage:
  database_path: "./db.sqlite"
  files_dir: "./files"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != path {
		t.Errorf("resolved path = %s, want %s", resolved, path)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if !strings.HasPrefix(cfg.Storage.DatabasePath, dir) {
		t.Errorf("database path %q not expanded relative to config dir", cfg.Storage.DatabasePath)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing config should error")
	}
}

func TestRequestIngest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/documents/abc/ingest" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	if err := requestIngest(srv.URL, "abc"); err != nil {
		t.Fatal(err)
	}
}

func TestRequestIngestConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"ingestion already in progress"}`, http.StatusConflict)
	}))
	defer srv.Close()

	if err := requestIngest(srv.URL, "abc"); err == nil {
		t.Error("409 should surface as an error")
	}
}
