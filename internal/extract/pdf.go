// Package extract provides per-page text extraction from PDF documents.
package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// Page is the extracted text of one PDF page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Extractor extracts text from stored PDF bytes.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Pages extracts plain text per page from the PDF content. Pages that carry no
// text objects are skipped. Returns an error if the content is not a readable PDF.
func (e *Extractor) Pages(content []byte) ([]Page, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	pages := make([]Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}
