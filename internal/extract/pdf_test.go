package extract

import "testing"

func TestPagesRejectsNonPDF(t *testing.T) {
	e := NewExtractor()
	if _, err := e.Pages([]byte("plain text, not a pdf")); err == nil {
		t.Error("non-PDF content should return an error")
	}
}

func TestPagesRejectsEmpty(t *testing.T) {
	e := NewExtractor()
	if _, err := e.Pages(nil); err == nil {
		t.Error("empty content should return an error")
	}
}
