// Package ingest builds the vector index from PDF manuals: extract text per
// page, split it into chunks, embed them, and write the snapshot.
package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Page is the extracted text of one PDF page. Numbering is 1-based.
type Page struct {
	Number int
	Text   string
}

// Document is one extracted PDF.
type Document struct {
	Source string // base filename, used as the citation source
	Pages  []Page
}

// ExtractPDF extracts text from every page of the PDF at path. Page
// boundaries come from the PDF structure itself, so citations are
// page-accurate. Pages that yield no text are skipped.
func ExtractPDF(path string) (Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	doc := Document{Source: filepath.Base(path)}
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return Document{}, fmt.Errorf("extracting page %d of %s: %w", i, path, err)
		}
		text = normalizeText(text)
		if text == "" {
			continue
		}
		doc.Pages = append(doc.Pages, Page{Number: i, Text: text})
	}
	return doc, nil
}

// normalizeText collapses runs of whitespace that PDF extraction tends to
// produce while keeping paragraph breaks.
func normalizeText(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	for _, line := range lines {
		out = append(out, strings.Join(strings.Fields(line), " "))
	}
	joined := strings.Join(out, "\n")
	for strings.Contains(joined, "\n\n\n") {
		joined = strings.ReplaceAll(joined, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(joined)
}
