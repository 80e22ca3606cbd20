package chunker

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"

	"planrag/internal/chunkid"
	"planrag/internal/domain"
)

const (
	MaxChunkTokens = 1000
	MinChunkTokens = 100
	OverlapTokens  = 50
)

// TokenChunker packs whitespace-delimited words into chunks bounded by an
// approximate token count, carrying a word overlap between consecutive
// chunks and across page boundaries.
type TokenChunker struct {
	maxTokens    int
	minTokens    int
	overlapWords int
	now          func() time.Time
	log          core.Logger
}

// Option customises a TokenChunker.
type Option func(*TokenChunker)

// WithClock overrides the CreatedAt clock.
func WithClock(now func() time.Time) Option {
	return func(c *TokenChunker) { c.now = now }
}

// WithLogger sets the logger used for per-document diagnostics.
func WithLogger(l core.Logger) Option {
	return func(c *TokenChunker) { c.log = l }
}

func NewTokenChunker(maxTokens, minTokens, overlapWords int, opts ...Option) *TokenChunker {
	if maxTokens <= 0 {
		maxTokens = MaxChunkTokens
	}
	if minTokens < 0 {
		minTokens = MinChunkTokens
	}
	if minTokens > maxTokens {
		minTokens = maxTokens
	}
	if overlapWords < 0 {
		overlapWords = 0
	}
	c := &TokenChunker{
		maxTokens:    maxTokens,
		minTokens:    minTokens,
		overlapWords: overlapWords,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Global()
	}
	return c
}

// EstimateTokens approximates a token count as one token per four characters.
func EstimateTokens(text string) int {
	return tokensForLen(utf8.RuneCountInString(text))
}

func tokensForLen(runes int) int {
	return (runes + 3) / 4
}

// ExtractChunks chunks every page of source in order. On a page failure the
// chunks emitted so far are returned together with the error; they are not
// rolled back.
//
// A page's trailing buffer is kept only if it reaches the minimum token
// count, so the last chunk of a document can be dropped.
func (c *TokenChunker) ExtractChunks(ctx context.Context, documentID string, source domain.PageSource, onProgress func(domain.ExtractionProgress)) ([]domain.Chunk, error) {
	report := func(p domain.ExtractionProgress) {
		if onProgress != nil {
			onProgress(p)
		}
	}
	report(domain.ExtractionProgress{Phase: domain.PhaseLoading})

	total := source.NumPages()
	report(domain.ExtractionProgress{TotalPages: total, Phase: domain.PhaseExtracting})

	var all []domain.Chunk
	var carry []string
	for page := 1; page <= total; page++ {
		report(domain.ExtractionProgress{Page: page, TotalPages: total, ChunksCreated: len(all), Phase: domain.PhaseExtracting})
		if err := ctx.Err(); err != nil {
			return all, c.fail(report, page, total, len(all), err)
		}
		text, err := source.PageText(ctx, page)
		if err != nil {
			return all, c.fail(report, page, total, len(all), err)
		}

		pageChunks := c.chunkPage(documentID, page, strings.Fields(text), carry)
		if n := len(pageChunks); n > 0 {
			carry = tail(strings.Fields(pageChunks[n-1].Text), c.overlapWords)
			all = append(all, pageChunks...)
		}
		report(domain.ExtractionProgress{Page: page, TotalPages: total, ChunksCreated: len(all), Phase: domain.PhaseChunking})
	}

	report(domain.ExtractionProgress{Page: total, TotalPages: total, ChunksCreated: len(all), Phase: domain.PhaseCompleted})
	c.log.Debugw("document chunked", "document_id", documentID, "pages", total, "chunks", len(all))
	return all, nil
}

func (c *TokenChunker) fail(report func(domain.ExtractionProgress), page, total, created int, err error) error {
	report(domain.ExtractionProgress{
		Page:          page,
		TotalPages:    total,
		ChunksCreated: created,
		Phase:         domain.PhaseError,
		Error:         err.Error(),
	})
	return fmt.Errorf("extract page %d: %w", page, err)
}

// chunkPage packs words into chunks, starting from the carried overlap.
func (c *TokenChunker) chunkPage(documentID string, page int, words, carry []string) []domain.Chunk {
	if len(words) == 0 {
		return nil
	}
	var chunks []domain.Chunk
	emit := func(buf []string) {
		text := strings.Join(buf, " ")
		idx := len(chunks)
		chunks = append(chunks, domain.Chunk{
			ID:         chunkid.New(documentID, page, idx),
			Text:       text,
			PageNumber: page,
			ChunkIndex: idx,
			DocumentID: documentID,
			TokenCount: EstimateTokens(text),
			CreatedAt:  c.now(),
		})
	}

	buf := append([]string(nil), carry...)
	bufLen := joinedLen(buf)
	for _, w := range words {
		wl := utf8.RuneCountInString(w)
		next := bufLen + wl
		if len(buf) > 0 {
			next++
		}
		if tokensForLen(next) > c.maxTokens && len(buf) > 0 {
			emit(buf)
			buf = append(tail(buf, c.overlapWords), w)
			bufLen = joinedLen(buf)
			continue
		}
		buf = append(buf, w)
		bufLen = next
	}
	if len(buf) > 0 && tokensForLen(bufLen) >= c.minTokens {
		emit(buf)
	}
	return chunks
}

// tail returns a copy of the last n words.
func tail(words []string, n int) []string {
	if n <= 0 {
		return nil
	}
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return append([]string(nil), words...)
}

func joinedLen(words []string) int {
	if len(words) == 0 {
		return 0
	}
	n := len(words) - 1
	for _, w := range words {
		n += utf8.RuneCountInString(w)
	}
	return n
}
