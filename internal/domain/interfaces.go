package domain

import "context"

// PageSource yields the text of a document one page at a time.
// Pages are numbered from 1.
type PageSource interface {
	NumPages() int
	PageText(ctx context.Context, pageNumber int) (string, error)
}

// Chunker splits a page source into overlapping, token-bounded chunks.
type Chunker interface {
	ExtractChunks(ctx context.Context, documentID string, source PageSource, onProgress func(ExtractionProgress)) ([]Chunk, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
