// Package memory is a brute-force in-memory vector index with a lexical
// fallback for queries that carry no vector.
package memory

import (
	"context"
	"runtime"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"golang.org/x/sync/errgroup"

	"planrag/internal/domain"
	"planrag/internal/vecmath"
	"planrag/internal/vectorstore"
)

const (
	DefaultK           = 10
	DefaultPlanLimit   = 100
	DefaultBatchSize   = 100
	DefaultYieldEvery  = 4
	minKeywordTokenLen = 3
)

type Config struct {
	BatchSize  int
	YieldEvery int
	Workers    int
	DefaultK   int
	Logger     core.Logger
}

type slot struct {
	seq    uint64
	entity domain.ChunkEntity
}

// Index is safe for concurrent use. Queries score a snapshot of the
// entities taken when the query starts.
type Index struct {
	batchSize  int
	yieldEvery int
	workers    int
	defaultK   int
	log        core.Logger

	mu       sync.RWMutex
	entities map[string]slot
	nextSeq  uint64
	list     []domain.ChunkEntity
	dirty    bool
}

var _ vectorstore.Index = (*Index)(nil)

func NewIndex(cfg Config) *Index {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.YieldEvery <= 0 {
		cfg.YieldEvery = DefaultYieldEvery
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = DefaultK
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Global()
	}
	return &Index{
		batchSize:  cfg.BatchSize,
		yieldEvery: cfg.YieldEvery,
		workers:    cfg.Workers,
		defaultK:   cfg.DefaultK,
		log:        cfg.Logger,
		entities:   make(map[string]slot),
	}
}

// Insert adds or replaces an entity by ID. A replaced entity keeps its
// original position in insertion order.
func (x *Index) Insert(entity domain.ChunkEntity) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.put(entity)
	x.dirty = true
}

func (x *Index) InsertMany(entities []domain.ChunkEntity) {
	if len(entities) == 0 {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, e := range entities {
		x.put(e)
	}
	x.dirty = true
}

func (x *Index) put(e domain.ChunkEntity) {
	if s, ok := x.entities[e.ID]; ok {
		x.entities[e.ID] = slot{seq: s.seq, entity: e}
		return
	}
	x.entities[e.ID] = slot{seq: x.nextSeq, entity: e}
	x.nextSeq++
}

// snapshot returns the materialised entity list, rebuilding it first when a
// mutation has happened since the last rebuild. The returned slice is never
// modified afterwards.
func (x *Index) snapshot() []domain.ChunkEntity {
	x.mu.RLock()
	if !x.dirty {
		list := x.list
		x.mu.RUnlock()
		return list
	}
	x.mu.RUnlock()

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.dirty {
		slots := make([]slot, 0, len(x.entities))
		for _, s := range x.entities {
			slots = append(slots, s)
		}
		sort.Slice(slots, func(i, j int) bool { return slots[i].seq < slots[j].seq })
		list := make([]domain.ChunkEntity, len(slots))
		for i, s := range slots {
			list[i] = s.entity
		}
		x.list = list
		x.dirty = false
	}
	return x.list
}

// Query ranks the entities matching q.Filter against q.Vector by cosine
// similarity, or against q.Text by keyword frequency when q.Vector is nil.
func (x *Index) Query(ctx context.Context, q domain.Query) ([]domain.QueryResult, error) {
	k := q.K
	if k <= 0 {
		k = x.defaultK
	}
	candidates := x.snapshot()
	if q.Filter != nil {
		filtered := make([]domain.ChunkEntity, 0, len(candidates))
		for _, e := range candidates {
			if q.Filter(e) {
				filtered = append(filtered, e)
			}
		}
		candidates = filtered
	}
	if len(candidates) == 0 {
		return []domain.QueryResult{}, nil
	}
	if q.Vector == nil {
		return keywordSearch(q.Text, candidates, k), nil
	}

	results, err := x.score(ctx, q.Vector, candidates)
	if err != nil {
		return nil, err
	}
	return topK(results, k), nil
}

// score computes cosine similarity in fixed-size batches. Each batch writes
// only its own region of results, so the output keeps candidate order.
func (x *Index) score(ctx context.Context, vector []float32, candidates []domain.ChunkEntity) ([]domain.QueryResult, error) {
	results := make([]domain.QueryResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.workers)

	batch := 0
	for start := 0; start < len(candidates); start += x.batchSize {
		if batch > 0 && batch%x.yieldEvery == 0 {
			runtime.Gosched()
			if err := gctx.Err(); err != nil {
				break
			}
		}
		batch++
		start, end := start, min(start+x.batchSize, len(candidates))
		g.Go(func() error {
			for i := start; i < end; i++ {
				e := candidates[i]
				s, err := vecmath.Cosine(vector, e.Vector)
				if err != nil {
					x.log.Errorw("dimension mismatch during similarity search",
						"chunk_id", e.ID, "query_dim", len(vector), "entity_dim", len(e.Vector))
					return err
				}
				results[i] = domain.QueryResult{Entity: e, Score: s}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func topK(results []domain.QueryResult, k int) []domain.QueryResult {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// keywordSearch scores each entity by the summed occurrence count of the
// query tokens, divided by the entity's text length in runes.
func keywordSearch(text string, candidates []domain.ChunkEntity, k int) []domain.QueryResult {
	var tokens []string
	for _, t := range strings.Fields(strings.ToLower(text)) {
		if utf8.RuneCountInString(t) >= minKeywordTokenLen {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		return []domain.QueryResult{}
	}

	results := make([]domain.QueryResult, 0)
	for _, e := range candidates {
		n := utf8.RuneCountInString(e.Text)
		if n == 0 {
			continue
		}
		lower := strings.ToLower(e.Text)
		hits := 0
		for _, t := range tokens {
			hits += strings.Count(lower, t)
		}
		if hits == 0 {
			continue
		}
		results = append(results, domain.QueryResult{Entity: e, Score: float64(hits) / float64(n)})
	}
	return topK(results, k)
}

// GetByPlanID returns up to k entities of a plan in insertion order.
func (x *Index) GetByPlanID(planID string, k int) []domain.ChunkEntity {
	if k <= 0 {
		k = DefaultPlanLimit
	}
	out := make([]domain.ChunkEntity, 0)
	for _, e := range x.snapshot() {
		if e.DocumentID != planID {
			continue
		}
		out = append(out, e)
		if len(out) == k {
			break
		}
	}
	return out
}

// DeleteByPlanID removes every entity of the plan and returns how many
// were removed.
func (x *Index) DeleteByPlanID(planID string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	removed := 0
	for id, s := range x.entities {
		if s.entity.DocumentID == planID {
			delete(x.entities, id)
			removed++
		}
	}
	if removed > 0 {
		x.dirty = true
	}
	return removed
}

func (x *Index) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entities = make(map[string]slot)
	x.list = nil
	x.dirty = true
}

func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entities)
}

// GetAll returns every entity in insertion order.
func (x *Index) GetAll() []domain.ChunkEntity {
	list := x.snapshot()
	return append([]domain.ChunkEntity(nil), list...)
}
