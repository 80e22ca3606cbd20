package chunker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planrag/internal/domain"
)

type pages struct {
	texts []string
	fail  map[int]error
}

func (p pages) NumPages() int { return len(p.texts) }

func (p pages) PageText(_ context.Context, n int) (string, error) {
	if err := p.fail[n]; err != nil {
		return "", err
	}
	return p.texts[n-1], nil
}

// words returns count seven-character words starting at from; each word
// adds exactly two tokens to a space-joined buffer.
func words(from, count int) string {
	out := make([]string, count)
	for i := range out {
		out[i] = fmt.Sprintf("w%06d", from+i)
	}
	return strings.Join(out, " ")
}

func fixedClock() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 1, EstimateTokens("éèêë"))
}

func TestSinglePageSplitsWithOverlap(t *testing.T) {
	c := NewTokenChunker(MaxChunkTokens, MinChunkTokens, OverlapTokens, WithClock(fixedClock))
	chunks, err := c.ExtractChunks(context.Background(), "plan", pages{texts: []string{words(0, 1200)}}, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "plan_p1_c0", chunks[0].ID)
	assert.Equal(t, "plan_p1_c1", chunks[1].ID)
	assert.Equal(t, "plan_p1_c2", chunks[2].ID)
	assert.Equal(t, 1000, chunks[0].TokenCount)
	assert.Equal(t, 1000, chunks[1].TokenCount)
	assert.Equal(t, 600, chunks[2].TokenCount)
	assert.Equal(t, fixedClock(), chunks[0].CreatedAt)

	first := strings.Fields(chunks[1].Text)
	assert.Equal(t, "w000450", first[0])
	assert.Equal(t, "w000500", first[OverlapTokens])
}

func TestChunkBoundsAndOverlapInvariant(t *testing.T) {
	doc := pages{texts: []string{
		words(0, 1700),
		words(5000, 30),
		words(10000, 2300),
		words(20000, 420),
	}}
	c := NewTokenChunker(MaxChunkTokens, MinChunkTokens, OverlapTokens)
	chunks, err := c.ExtractChunks(context.Background(), "doc", doc, nil)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, ch := range chunks {
		assert.Equal(t, EstimateTokens(ch.Text), ch.TokenCount)
		assert.LessOrEqual(t, ch.TokenCount, MaxChunkTokens, ch.ID)
		assert.GreaterOrEqual(t, ch.TokenCount, MinChunkTokens, ch.ID)
		assert.Equal(t, "doc", ch.DocumentID)
	}
	for i := 0; i+1 < len(chunks); i++ {
		prev := strings.Fields(chunks[i].Text)
		next := strings.Fields(chunks[i+1].Text)
		assert.Equal(t, prev[len(prev)-OverlapTokens:], next[:OverlapTokens], "between %s and %s", chunks[i].ID, chunks[i+1].ID)
	}
}

func TestOverlapCrossesPagesAndSkipsEmptyPages(t *testing.T) {
	c := NewTokenChunker(100, 30, 5)
	doc := pages{texts: []string{words(0, 40), "   ", words(100, 3), words(200, 40)}}
	chunks, err := c.ExtractChunks(context.Background(), "d", doc, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "d_p1_c0", chunks[0].ID)
	assert.Equal(t, "d_p4_c0", chunks[1].ID)
	assert.Equal(t, 4, chunks[1].PageNumber)

	// Page 3 was too short to emit, so page 4 is seeded from page 1.
	second := strings.Fields(chunks[1].Text)
	assert.Equal(t, []string{"w000035", "w000036", "w000037", "w000038", "w000039"}, second[:5])
	assert.Equal(t, "w000200", second[5])
}

func TestUndersizedFinalChunkIsDropped(t *testing.T) {
	c := NewTokenChunker(100, 30, 5)

	chunks, err := c.ExtractChunks(context.Background(), "d", pages{texts: []string{words(0, 56)}}, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 50, len(strings.Fields(chunks[0].Text)))

	chunks, err = c.ExtractChunks(context.Background(), "d", pages{texts: []string{words(0, 60)}}, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 30, chunks[1].TokenCount)
}

func TestProgressPhases(t *testing.T) {
	c := NewTokenChunker(100, 30, 5)
	var events []domain.ExtractionProgress
	_, err := c.ExtractChunks(context.Background(), "d", pages{texts: []string{words(0, 40), words(50, 40)}}, func(p domain.ExtractionProgress) {
		events = append(events, p)
	})
	require.NoError(t, err)

	var phases []domain.ExtractionPhase
	for _, e := range events {
		phases = append(phases, e.Phase)
	}
	assert.Equal(t, []domain.ExtractionPhase{
		domain.PhaseLoading,
		domain.PhaseExtracting,
		domain.PhaseExtracting, domain.PhaseChunking,
		domain.PhaseExtracting, domain.PhaseChunking,
		domain.PhaseCompleted,
	}, phases)

	last := events[len(events)-1]
	assert.Equal(t, 2, last.Page)
	assert.Equal(t, 2, last.TotalPages)
	assert.Equal(t, 2, last.ChunksCreated)
}

func TestPageFailureKeepsEmittedChunks(t *testing.T) {
	boom := errors.New("corrupt page")
	c := NewTokenChunker(100, 30, 5)
	doc := pages{texts: []string{words(0, 40), words(100, 40), words(200, 40)}, fail: map[int]error{2: boom}}

	var last domain.ExtractionProgress
	chunks, err := c.ExtractChunks(context.Background(), "d", doc, func(p domain.ExtractionProgress) { last = p })
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "page 2")

	require.Len(t, chunks, 1)
	assert.Equal(t, "d_p1_c0", chunks[0].ID)

	assert.Equal(t, domain.PhaseError, last.Phase)
	assert.Equal(t, 2, last.Page)
	assert.Equal(t, "corrupt page", last.Error)
}

func TestCancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewTokenChunker(100, 30, 5)
	_, err := c.ExtractChunks(ctx, "d", pages{texts: []string{words(0, 40)}}, nil)
	assert.True(t, errors.Is(err, context.Canceled))
}
