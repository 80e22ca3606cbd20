// Package document loads plain-text planning documents as page sources.
// A form feed separates pages; a file without one is a single page.
package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"planrag/internal/domain"
)

const pageBreak = "\f"

// SupportedExtensions lists the file types the loader accepts.
var SupportedExtensions = []string{".txt", ".md", ".text"}

// Document is a loaded file. It implements domain.PageSource.
type Document struct {
	Path  string
	Title string
	Size  int64
	pages []string
}

var _ domain.PageSource = (*Document)(nil)

// Supported reports whether path has an accepted extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Load reads the file at path.
func Load(path string) (*Document, error) {
	if !Supported(path) {
		return nil, fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidInput, filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc := FromText(filepath.Base(path), string(data))
	doc.Path = path
	doc.Size = int64(len(data))
	return doc, nil
}

// FromText builds a document from in-memory text.
func FromText(name, text string) *Document {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return &Document{
		Title: titleOf(name, text),
		Size:  int64(len(text)),
		pages: strings.Split(text, pageBreak),
	}
}

func (d *Document) NumPages() int { return len(d.pages) }

// PageText returns the text of a 1-based page.
func (d *Document) PageText(ctx context.Context, pageNumber int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if pageNumber < 1 || pageNumber > len(d.pages) {
		return "", fmt.Errorf("%w: page %d of %d", domain.ErrInvalidInput, pageNumber, len(d.pages))
	}
	return d.pages[pageNumber-1], nil
}

// Text returns the whole document with pages joined by newlines.
func (d *Document) Text() string { return strings.Join(d.pages, "\n") }

// titleOf prefers a leading markdown heading, then the file name without
// its extension.
func titleOf(name, text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
		break
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}
