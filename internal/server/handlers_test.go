package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
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
	"docqa/internal/storage"
	"docqa/internal/vector"
)

// textExtractor lets tests ingest plain text payloads as one-page documents.
type textExtractor struct{}

func (textExtractor) Pages(content []byte) ([]extract.Page, error) {
	return []extract.Page{{Number: 1, Text: string(content)}}, nil
}

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

type testServer struct {
	srv     *Server
	handler http.Handler
	storage *storage.SQLiteStorage
}

func newTestServer(t *testing.T, watch WatchService) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Server:  config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Storage: config.StorageConfig{DatabasePath: filepath.Join(dir, "db.sqlite"), FilesDir: filepath.Join(dir, "files")},
		Upload:  config.UploadConfig{MaxFileSizeBytes: 1024, AllowedTypes: []string{"application/pdf"}},
		Chunking: config.ChunkingConfig{
			ChunkSize:    50,
			ChunkOverlap: 10,
		},
		Embedding:  config.EmbeddingConfig{Provider: "mock", Dimensions: 8},
		Generation: config.GenerationConfig{Provider: "mock"},
		Query:      config.QueryConfig{TopK: 3},
	}

	st, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zap.NewNop()
	content := contentstore.NewStore(st, cfg.Storage.FilesDir, cfg.Upload.MaxFileSizeBytes, cfg.Upload.AllowedTypes, logger)
	embedder := embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	idx, err := vector.NewMemoryIndex(cfg.Embedding.Dimensions)
	if err != nil {
		t.Fatal(err)
	}
	ingestor := ingest.NewIngestor(st, content, textExtractor{}, chunker.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap), embedder, idx, "", logger)
	engine := rag.NewEngine(st, embedder, idx, generation.NewMockGenerator(), cfg.Query.TopK, logger)

	srv := NewServer(content, ingestor, engine, st, idx, cfg, watch, logger)
	return &testServer{srv: srv, handler: srv.Handler(), storage: st}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(method, path, reader)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	return w
}

func (ts *testServer) upload(t *testing.T, filename, contentType string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	return w
}

type uploadResponse struct {
	Document  models.Document `json:"document"`
	Duplicate bool            `json:"duplicate"`
}

func (ts *testServer) mustUpload(t *testing.T, payload []byte) models.Document {
	t.Helper()
	w := ts.upload(t, "doc.pdf", "application/pdf", payload)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body: %s", w.Code, w.Body.String())
	}
	var out uploadResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out.Document
}

// waitForStatus polls the document until it reaches the wanted status.
func (ts *testServer) waitForStatus(t *testing.T, id string, want models.Status) models.Document {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		w := ts.do(t, http.MethodGet, "/api/v1/documents/"+id, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("get status = %d", w.Code)
		}
		var doc models.Document
		if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
			t.Fatal(err)
		}
		if doc.Status == want {
			return doc
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("document %s never reached status %s", id, want)
	return models.Document{}
}

func TestUploadDocument(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.upload(t, "report.pdf", "application/pdf", []byte("%PDF-1.4 upload body"))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	var out uploadResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Duplicate {
		t.Error("first upload should not be a duplicate")
	}
	if out.Document.Status != models.StatusPending {
		t.Errorf("status = %s, want pending", out.Document.Status)
	}

	// Same bytes again: 200, duplicate flag set, same id.
	w = ts.upload(t, "other-name.pdf", "application/pdf", []byte("%PDF-1.4 upload body"))
	if w.Code != http.StatusOK {
		t.Fatalf("duplicate status = %d, body: %s", w.Code, w.Body.String())
	}
	var dup uploadResponse
	if err := json.NewDecoder(w.Body).Decode(&dup); err != nil {
		t.Fatal(err)
	}
	if !dup.Duplicate || dup.Document.ID != out.Document.ID {
		t.Errorf("got duplicate=%v id=%s, want duplicate of %s", dup.Duplicate, dup.Document.ID, out.Document.ID)
	}
}

func TestUploadUnsupportedType(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.upload(t, "notes.txt", "text/plain", []byte("plain text"))
	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", w.Code)
	}
}

func TestUploadTooLarge(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.upload(t, "big.pdf", "application/pdf", make([]byte, 2048)) // limit is 1024
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

func TestUploadMissingFileField(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, http.MethodPost, "/api/v1/documents", map[string]string{"not": "multipart"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestIngestAndAskFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	doc := ts.mustUpload(t, []byte("The warranty period is two years from the date of purchase."))

	w := ts.do(t, http.MethodPost, "/api/v1/documents/"+doc.ID+"/ingest", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("ingest status = %d, body: %s", w.Code, w.Body.String())
	}
	done := ts.waitForStatus(t, doc.ID, models.StatusCompleted)
	if done.ChunkCount == 0 {
		t.Error("chunk count should be positive after ingestion")
	}

	// Re-ingesting a completed document conflicts.
	w = ts.do(t, http.MethodPost, "/api/v1/documents/"+doc.ID+"/ingest", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("re-ingest status = %d, want 409", w.Code)
	}

	w = ts.do(t, http.MethodPost, "/api/v1/documents/"+doc.ID+"/ask", askRequest{Question: "How long is the warranty?"})
	if w.Code != http.StatusOK {
		t.Fatalf("ask status = %d, body: %s", w.Code, w.Body.String())
	}
	var res rag.Result
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Answer == "" || res.InteractionID == "" {
		t.Errorf("incomplete result: %+v", res)
	}
	if len(res.ContextChunks) == 0 {
		t.Error("context chunks should be returned")
	}

	w = ts.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID+"/interactions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("interactions status = %d", w.Code)
	}
	var list struct {
		Interactions []models.Interaction `json:"interactions"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Interactions) != 1 {
		t.Fatalf("interactions = %d, want 1", len(list.Interactions))
	}

	rating := 5
	w = ts.do(t, http.MethodPatch, "/api/v1/interactions/"+res.InteractionID+"/feedback",
		feedbackRequest{Rating: &rating, Feedback: "spot on"})
	if w.Code != http.StatusOK {
		t.Errorf("feedback status = %d, body: %s", w.Code, w.Body.String())
	}

	bad := 9
	w = ts.do(t, http.MethodPatch, "/api/v1/interactions/"+res.InteractionID+"/feedback",
		feedbackRequest{Rating: &bad})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid rating status = %d, want 400", w.Code)
	}
}

func TestIngestUnknownDocument(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, http.MethodPost, "/api/v1/documents/nope/ingest", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAskBeforeIngestion(t *testing.T) {
	ts := newTestServer(t, nil)
	doc := ts.mustUpload(t, []byte("not yet processed"))

	w := ts.do(t, http.MethodPost, "/api/v1/documents/"+doc.ID+"/ask", askRequest{Question: "ready?"})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409, body: %s", w.Code, w.Body.String())
	}
}

func TestAskUnknownDocument(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, http.MethodPost, "/api/v1/documents/nope/ask", askRequest{Question: "hello?"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	ts := newTestServer(t, nil)
	doc := ts.mustUpload(t, []byte("content"))
	w := ts.do(t, http.MethodPost, "/api/v1/documents/"+doc.ID+"/ask", askRequest{Question: "  "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListDocuments(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.mustUpload(t, []byte("doc one"))
	ts.mustUpload(t, []byte("doc two"))

	w := ts.do(t, http.MethodGet, "/api/v1/documents?limit=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var out struct {
		Documents []models.Document `json:"documents"`
		Limit     int               `json:"limit"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Documents) != 1 || out.Limit != 1 {
		t.Errorf("got %d documents, limit %d", len(out.Documents), out.Limit)
	}
}

func TestDeleteDocument(t *testing.T) {
	ts := newTestServer(t, nil)
	doc := ts.mustUpload(t, []byte("delete me"))

	w := ts.do(t, http.MethodDelete, "/api/v1/documents/"+doc.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body: %s", w.Code, w.Body.String())
	}
	w = ts.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	w = ts.do(t, http.MethodDelete, "/api/v1/documents/"+doc.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	doc := ts.mustUpload(t, []byte("some stats content here"))
	if w := ts.do(t, http.MethodPost, "/api/v1/documents/"+doc.ID+"/ingest", nil); w.Code != http.StatusAccepted {
		t.Fatalf("ingest status = %d", w.Code)
	}
	ts.waitForStatus(t, doc.ID, models.StatusCompleted)

	w := ts.do(t, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Documents       int64 `json:"documents"`
		Chunks          int64 `json:"chunks"`
		VectorIndexSize int   `json:"vector_index_size"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Documents != 1 {
		t.Errorf("documents = %d, want 1", out.Documents)
	}
	if out.Chunks < 1 || out.VectorIndexSize < 1 {
		t.Errorf("chunks = %d, vector_index_size = %d, want >= 1", out.Chunks, out.VectorIndexSize)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestWatchDirectoriesNotEnabled(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, http.MethodGet, "/api/v1/watch/directories", nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", w.Code)
	}
}

func TestWatchDirectoriesAddListRemove(t *testing.T) {
	mock := &mockWatchService{}
	ts := newTestServer(t, mock)
	dir := t.TempDir()

	w := ts.do(t, http.MethodPost, "/api/v1/watch/directories", watchAddRequest{Path: dir})
	if w.Code != http.StatusCreated {
		t.Fatalf("add status = %d, body: %s", w.Code, w.Body.String())
	}
	if len(mock.Directories()) != 1 {
		t.Fatalf("directories = %v", mock.Directories())
	}

	w = ts.do(t, http.MethodGet, "/api/v1/watch/directories", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Directories) != 1 {
		t.Errorf("directories = %v", out.Directories)
	}

	w = ts.do(t, http.MethodDelete, "/api/v1/watch/directories?path="+dir, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove status = %d", w.Code)
	}
	if len(mock.Directories()) != 0 {
		t.Errorf("directories = %v after remove", mock.Directories())
	}
}

func TestWatchDirectoriesAddMissingDir(t *testing.T) {
	ts := newTestServer(t, &mockWatchService{})
	w := ts.do(t, http.MethodPost, "/api/v1/watch/directories",
		watchAddRequest{Path: filepath.Join(t.TempDir(), "nonexistent")})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
