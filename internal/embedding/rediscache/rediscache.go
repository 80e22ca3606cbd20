// Package rediscache wraps an embedding backend with a Redis-backed vector
// cache so that separate processes can reuse each other's embeddings.
package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	goredis "github.com/redis/go-redis/v9"

	"planrag/internal/embedding"
	"planrag/internal/vecmath"
)

const (
	DefaultTTL       = 24 * time.Hour
	DefaultKeyPrefix = "planrag:emb:"
)

type Config struct {
	TTL       time.Duration
	KeyPrefix string
	Logger    core.Logger
}

// Backend is an embedding.Backend that consults Redis before the inner backend.
type Backend struct {
	inner  embedding.Backend
	client goredis.UniversalClient
	ttl    time.Duration
	prefix string
	log    core.Logger
}

var _ embedding.Backend = (*Backend)(nil)

func New(inner embedding.Backend, client goredis.UniversalClient, cfg Config) *Backend {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Global()
	}
	return &Backend{inner: inner, client: client, ttl: cfg.TTL, prefix: cfg.KeyPrefix, log: cfg.Logger}
}

func (b *Backend) Name() string    { return b.inner.Name() }
func (b *Backend) Dimensions() int { return b.inner.Dimensions() }
func (b *Backend) MaxTokens() int  { return b.inner.MaxTokens() }

// Load loads the inner backend and pings Redis. An unreachable Redis only
// produces a warning.
func (b *Backend) Load(ctx context.Context) error {
	if err := b.inner.Load(ctx); err != nil {
		return err
	}
	if err := b.client.Ping(ctx).Err(); err != nil {
		b.log.Warnw("redis embedding cache unreachable, continuing without it", "error", err.Error())
	}
	return nil
}

// key scopes entries by backend name so models with different vector spaces
// never share an entry.
func (b *Backend) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return b.prefix + b.inner.Name() + ":" + hex.EncodeToString(sum[:])
}

// Embed returns cached vectors where present and fills the misses from the
// inner backend in a single call.
func (b *Backend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = b.key(t)
	}

	out := make([][]float32, len(texts))
	var missIdx []int
	vals, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		b.log.Warnw("redis mget failed, falling back to backend", "error", err.Error())
		vals = make([]any, len(texts))
	}
	dim := b.inner.Dimensions()
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			missIdx = append(missIdx, i)
			continue
		}
		vec, err := vecmath.Decode([]byte(s))
		if err != nil || (dim > 0 && len(vec) != dim) {
			missIdx = append(missIdx, i)
			continue
		}
		out[i] = vec
	}
	if len(missIdx) == 0 {
		b.log.Debugw("embedding cache hit", "count", len(texts))
		return out, nil
	}

	missTexts := make([]string, len(missIdx))
	for j, i := range missIdx {
		missTexts[j] = texts[i]
	}
	vecs, err := b.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, errors.New("backend returned wrong number of vectors")
	}

	pipe := b.client.Pipeline()
	for j, i := range missIdx {
		out[i] = vecs[j]
		pipe.Set(ctx, keys[i], vecmath.Encode(vecs[j]), b.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		b.log.Warnw("failed to cache embeddings", "count", len(missIdx), "error", err.Error())
	}
	b.log.Debugw("embedding cache miss", "total", len(texts), "uncached", len(missIdx))
	return out, nil
}
