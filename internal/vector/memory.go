// Package vector provides an in-memory brute-force index implementation.
package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MemoryIndex is an in-memory vector index using brute-force inner product
// search, grouped by document. Suitable for single-document retrieval scopes
// and moderate corpus sizes.
type MemoryIndex struct {
	dimensions int
	byDoc      map[string][]Entry
	count      int
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		byDoc:      make(map[string][]Entry),
	}, nil
}

// Add registers vectors for chunks. Vectors are copied.
func (m *MemoryIndex) Add(ctx context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if len(e.Vector) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(e.Vector), m.dimensions)
		}
		vec := make([]float32, m.dimensions)
		copy(vec, e.Vector)
		e.Vector = vec
		m.byDoc[e.DocumentID] = append(m.byDoc[e.DocumentID], e)
		m.count++
	}
	return nil
}

// Search returns the top-k vectors for the document by inner product.
// Results are sorted by descending score; equal scores are ordered by
// ascending sequence index for determinism. k is clamped to the number of
// vectors for the document.
func (m *MemoryIndex) Search(ctx context.Context, documentID string, query []float32, k int) ([]Result, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.byDoc[documentID]
	if k <= 0 || len(entries) == 0 {
		return nil, nil
	}
	type scored struct {
		chunkID string
		seq     int
		score   float64
	}
	scores := make([]scored, len(entries))
	for i, e := range entries {
		var dot float64
		for j := 0; j < m.dimensions; j++ {
			dot += float64(query[j] * e.Vector[j])
		}
		scores[i] = scored{chunkID: e.ChunkID, seq: e.Seq, score: dot}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].seq < scores[j].seq
	})
	if k > len(scores) {
		k = len(scores)
	}
	result := make([]Result, k)
	for i := 0; i < k; i++ {
		result[i] = Result{ChunkID: scores[i].chunkID, Score: scores[i].score}
	}
	return result, nil
}

// RemoveDocument removes all vectors for a document.
func (m *MemoryIndex) RemoveDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count -= len(m.byDoc[documentID])
	delete(m.byDoc, documentID)
	return nil
}

// RemoveChunks removes vectors by chunk ID (used for partial-run rollback).
func (m *MemoryIndex) RemoveChunks(ctx context.Context, chunkIDs []string) error {
	removeSet := make(map[string]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		removeSet[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for docID, entries := range m.byDoc {
		kept := entries[:0]
		for _, e := range entries {
			if removeSet[e.ChunkID] {
				m.count--
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(m.byDoc, docID)
		} else {
			m.byDoc[docID] = kept
		}
	}
	return nil
}

// Save persists the index to path. Directory is created if needed.
// Format: dimensions (4), n (4), then per entry: chunkID len (4) + bytes,
// documentID len (4) + bytes, seq (4), vector (dimensions*4 bytes).
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(m.count)); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, entries := range m.byDoc {
		for _, e := range entries {
			if err := writeString(f, e.ChunkID); err != nil {
				return fmt.Errorf("write chunk id: %w", err)
			}
			if err := writeString(f, e.DocumentID); err != nil {
				return fmt.Errorf("write document id: %w", err)
			}
			if err := binary.Write(f, binary.LittleEndian, uint32(e.Seq)); err != nil {
				return fmt.Errorf("write seq: %w", err)
			}
			if _, err := f.Write(float32SliceToBytes(e.Vector)); err != nil {
				return fmt.Errorf("write vector: %w", err)
			}
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents.
// Dimensions must match. A missing file is not an error; the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, m.dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	byDoc := make(map[string][]Entry)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		chunkID, err := readString(f)
		if err != nil {
			return fmt.Errorf("read chunk id: %w", err)
		}
		docID, err := readString(f)
		if err != nil {
			return fmt.Errorf("read document id: %w", err)
		}
		var seq uint32
		if err := binary.Read(f, binary.LittleEndian, &seq); err != nil {
			return fmt.Errorf("read seq: %w", err)
		}
		if _, err := io.ReadFull(f, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		byDoc[docID] = append(byDoc[docID], Entry{
			ChunkID:    chunkID,
			DocumentID: docID,
			Seq:        int(seq),
			Vector:     bytesToFloat32Slice(buf),
		})
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byDoc = byDoc
	m.count = int(n)
	return nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// DocumentSize returns the number of vectors indexed for a document.
func (m *MemoryIndex) DocumentSize(documentID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byDoc[documentID])
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

func writeString(w io.Writer, s string) error {
	b := []byte(s)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
