// Package hashing implements an offline embedding backend based on the
// feature-hashing trick over a bag of words.
package hashing

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

const (
	DefaultDimensions = 384
	DefaultMaxTokens  = 512
)

// Embedder hashes each token into one of a fixed number of signed buckets,
// mean-pools the token vectors and L2-normalises the result.
type Embedder struct {
	dimensions   int
	maxTokens    int
	loaded       bool
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewEmbedder creates an unloaded embedder with the given dimension.
func NewEmbedder(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Embedder{dimensions: dimensions, maxTokens: DefaultMaxTokens}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return fmt.Sprintf("local-hashing-%d", e.dimensions) }

// Dimensions returns the dimensionality of the produced vectors.
func (e *Embedder) Dimensions() int { return e.dimensions }

// MaxTokens is the number of tokens considered per text; the rest is ignored.
func (e *Embedder) MaxTokens() int { return e.maxTokens }

// Load compiles the tokenizer and stopword table.
func (e *Embedder) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)
	e.stopwords = defaultStopwords()
	e.loaded = true
	return nil
}

// Embed computes one vector per text.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !e.loaded {
		return nil, errors.New("hashing embedder not loaded")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *Embedder) embed(text string) []float32 {
	acc := make([]float64, e.dimensions)
	tokens := e.tokenize(text)
	if len(tokens) > e.maxTokens {
		tokens = tokens[:e.maxTokens]
	}
	for _, tok := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum32()
		idx := int(sum % uint32(e.dimensions))
		if sum&(1<<31) != 0 {
			acc[idx]--
		} else {
			acc[idx]++
		}
	}
	vec := make([]float32, e.dimensions)
	if len(tokens) == 0 {
		return vec
	}
	// Mean pool, then L2 normalize
	n := float64(len(tokens))
	norm := 0.0
	for i := range acc {
		acc[i] /= n
		norm += acc[i] * acc[i]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range acc {
		vec[i] = float32(acc[i] / norm)
	}
	return vec
}

func (e *Embedder) tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := e.tokenPattern.FindAllString(lower, -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
