// Package chunker splits extracted document text into overlapping, ordered pieces.
package chunker

import (
	"strings"

	"docqa/internal/extract"
)

// Piece is one chunk of text produced by splitting. Index values are dense
// starting at 0. PageNumber is the page containing the start of the piece.
type Piece struct {
	Index      int
	Content    string
	PageNumber int
}

// Chunker produces overlapping rune windows over concatenated page text.
// Splitting is deterministic: identical input and parameters yield identical
// piece boundaries and ordering.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given window size and overlap (in runes).
// Invalid parameters fall back to a 1000/200 window.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 200
		if chunkOverlap >= chunkSize {
			chunkOverlap = chunkSize / 5
		}
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Split concatenates the page texts and cuts them into overlapping windows.
// The last window may be shorter than the target size and is still emitted.
// Empty (or whitespace-only) input yields zero pieces; input shorter than the
// window size yields exactly one piece.
func (c *Chunker) Split(pages []extract.Page) []Piece {
	// Record the starting rune offset of each page so a piece can be
	// attributed to the page containing its first rune.
	type pageSpan struct {
		start  int
		number int
	}
	var spans []pageSpan
	var sb strings.Builder
	offset := 0
	for _, p := range pages {
		runes := []rune(p.Text)
		if len(runes) == 0 {
			continue
		}
		spans = append(spans, pageSpan{start: offset, number: p.Number})
		sb.WriteString(p.Text)
		offset += len(runes)
	}
	text := []rune(sb.String())
	if strings.TrimSpace(sb.String()) == "" {
		return nil
	}

	pageAt := func(pos int) int {
		page := 0
		for _, s := range spans {
			if s.start > pos {
				break
			}
			page = s.number
		}
		return page
	}

	step := c.chunkSize - c.chunkOverlap
	pieces := make([]Piece, 0, (len(text)+step-1)/step)
	for start := 0; start < len(text); start += step {
		end := start + c.chunkSize
		if end > len(text) {
			end = len(text)
		}
		pieces = append(pieces, Piece{
			Index:      len(pieces),
			Content:    string(text[start:end]),
			PageNumber: pageAt(start),
		})
		if end == len(text) {
			break
		}
	}
	return pieces
}
