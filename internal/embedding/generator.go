// Package embedding turns chunk text into normalised vectors. The Generator
// wraps a Backend with lazy single-flight loading, fixed-size batching and
// a bounded single-text cache.
package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"golang.org/x/sync/singleflight"

	"planrag/internal/domain"
	"planrag/internal/vecmath"
)

const DefaultBatchSize = 32

// Result is the output of EmbedStrings.
type Result struct {
	Embeddings     [][]float32
	ProcessingTime time.Duration
}

// Config tunes a Generator.
type Config struct {
	BatchSize int
	CacheSize int
	Logger    core.Logger
}

// Generator is safe for concurrent use.
type Generator struct {
	backend   Backend
	batchSize int
	cache     *Cache
	log       core.Logger

	ready atomic.Bool
	init  singleflight.Group
}

func NewGenerator(backend Backend, cfg Config) *Generator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Global()
	}
	return &Generator{
		backend:   backend,
		batchSize: cfg.BatchSize,
		cache:     NewCache(cfg.CacheSize),
		log:       cfg.Logger,
	}
}

// Initialize loads the backend once. Concurrent callers wait on the same
// load; a failed load leaves the generator unready so a later call retries.
func (g *Generator) Initialize(ctx context.Context) error {
	if g.ready.Load() {
		return nil
	}
	ch := g.init.DoChan("load", func() (any, error) {
		if g.ready.Load() {
			return nil, nil
		}
		start := time.Now()
		if err := g.backend.Load(context.WithoutCancel(ctx)); err != nil {
			g.log.Errorw("embedding backend load failed", "backend", g.backend.Name(), "error", err.Error())
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrBackendUnavailable, g.backend.Name(), err)
		}
		g.ready.Store(true)
		g.log.Infow("embedding backend loaded", "backend", g.backend.Name(), "dimensions", g.backend.Dimensions(), "elapsed", time.Since(start).String())
		return nil, nil
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EmbedStrings embeds texts in batches, reporting cumulative progress after
// each batch. Every returned vector is L2-normalised.
func (g *Generator) EmbedStrings(ctx context.Context, texts []string, onProgress func(processed, total int)) (Result, error) {
	if err := g.Initialize(ctx); err != nil {
		return Result{}, err
	}
	start := time.Now()
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += g.batchSize {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		end := min(i+g.batchSize, len(texts))
		vecs, err := g.embedBatch(ctx, texts[i:end])
		if err != nil {
			return Result{}, fmt.Errorf("embed batch %d-%d: %w", i, end, err)
		}
		out = append(out, vecs...)
		if onProgress != nil {
			onProgress(end, len(texts))
		}
	}
	elapsed := time.Since(start)
	g.log.Debugw("embedded strings", "count", len(texts), "batch_size", g.batchSize, "elapsed", elapsed.String())
	return Result{Embeddings: out, ProcessingTime: elapsed}, nil
}

// EmbedSingle embeds one text, consulting the cache by trimmed text first.
func (g *Generator) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if err := g.Initialize(ctx); err != nil {
		return nil, err
	}
	key := strings.TrimSpace(text)
	if v, ok := g.cache.Get(key); ok {
		return v, nil
	}
	vecs, err := g.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	g.cache.Put(key, vecs[0])
	return vecs[0], nil
}

func (g *Generator) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	vecs, err := g.backend.Embed(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("backend %s returned %d vectors for %d texts", g.backend.Name(), len(vecs), len(batch))
	}
	dim := g.backend.Dimensions()
	for i, v := range vecs {
		if dim > 0 && len(v) != dim {
			return nil, fmt.Errorf("%w: backend %s returned %d, want %d", domain.ErrDimensionMismatch, g.backend.Name(), len(v), dim)
		}
		vecs[i] = vecmath.Normalize(v)
	}
	return vecs, nil
}

func (g *Generator) ClearCache() { g.cache.Clear() }

func (g *Generator) CacheSize() int { return g.cache.Len() }

func (g *Generator) IsReady() bool { return g.ready.Load() }

func (g *Generator) ModelInfo() domain.ModelInfo {
	return domain.ModelInfo{
		Name:       g.backend.Name(),
		Dimensions: g.backend.Dimensions(),
		MaxTokens:  g.backend.MaxTokens(),
	}
}
