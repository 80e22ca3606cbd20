package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planrag/internal/domain"
)

func entity(id, plan, text string, vec ...float32) domain.ChunkEntity {
	return domain.ChunkEntity{
		Chunk:  domain.Chunk{ID: id, DocumentID: plan, Text: text},
		Vector: vec,
	}
}

func ids(results []domain.QueryResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Entity.ID
	}
	return out
}

func TestQueryToyVectors(t *testing.T) {
	x := NewIndex(Config{})
	x.InsertMany([]domain.ChunkEntity{
		entity("chunk1", "p", "", 1, 0),
		entity("chunk2", "p", "", 0, 1),
		entity("chunk3", "p", "", 0.9, 0.1),
	})

	res, err := x.Query(context.Background(), domain.Query{Vector: []float32{1, 0}, K: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"chunk1", "chunk3"}, ids(res))
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
	assert.InDelta(t, 0.9939, res[1].Score, 1e-3)
}

func TestQueryRankingIsNonIncreasing(t *testing.T) {
	x := NewIndex(Config{BatchSize: 3, Workers: 4})
	for i := 0; i < 10; i++ {
		x.Insert(entity(fmt.Sprintf("c%d", i), "p", "", float32(i), float32(10-i)))
	}
	res, err := x.Query(context.Background(), domain.Query{Vector: []float32{1, 1}, K: 3})
	require.NoError(t, err)
	require.Len(t, res, 3)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}

	onlyTwo := func(e domain.ChunkEntity) bool { return e.ID == "c1" || e.ID == "c2" }
	res, err = x.Query(context.Background(), domain.Query{Vector: []float32{1, 1}, K: 3, Filter: onlyTwo})
	require.NoError(t, err)
	assert.Len(t, res, 2)
}

func TestQueryTiesKeepInsertionOrder(t *testing.T) {
	x := NewIndex(Config{BatchSize: 2, Workers: 8})
	for i := 0; i < 25; i++ {
		x.Insert(entity(fmt.Sprintf("c%02d", i), "p", "", 1, 1))
	}
	res, err := x.Query(context.Background(), domain.Query{Vector: []float32{2, 2}, K: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"c00", "c01", "c02", "c03", "c04"}, ids(res))
}

func TestQueryDefaultK(t *testing.T) {
	x := NewIndex(Config{})
	for i := 0; i < 15; i++ {
		x.Insert(entity(fmt.Sprintf("c%d", i), "p", "", 1, float32(i)))
	}
	res, err := x.Query(context.Background(), domain.Query{Vector: []float32{1, 0}})
	require.NoError(t, err)
	assert.Len(t, res, DefaultK)
}

func TestQueryDimensionMismatch(t *testing.T) {
	x := NewIndex(Config{})
	x.Insert(entity("a", "p", "", 1, 0, 0))
	_, err := x.Query(context.Background(), domain.Query{Vector: []float32{1, 0}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestQueryEmptyIndex(t *testing.T) {
	x := NewIndex(Config{})
	res, err := x.Query(context.Background(), domain.Query{Vector: []float32{1}})
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.NotNil(t, res)
}

func TestQueryCancelled(t *testing.T) {
	x := NewIndex(Config{BatchSize: 1, YieldEvery: 1, Workers: 1})
	for i := 0; i < 50; i++ {
		x.Insert(entity(fmt.Sprintf("c%d", i), "p", "", 1))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := x.Query(ctx, domain.Query{Vector: []float32{1}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeywordFallback(t *testing.T) {
	x := NewIndex(Config{})
	x.InsertMany([]domain.ChunkEntity{
		entity("a", "p", "New homes must include affordable units."),
		entity("b", "p", "Transport corridors and cycle routes."),
		entity("c", "p", "Green belt boundaries are unchanged."),
	})

	res, err := x.Query(context.Background(), domain.Query{Text: "affordable housing"})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, ids(res))
	assert.Greater(t, res[0].Score, 0.0)
}

func TestKeywordScoresByDensity(t *testing.T) {
	x := NewIndex(Config{})
	x.InsertMany([]domain.ChunkEntity{
		entity("long", "p", "parking standards apply to this long paragraph of planning text"),
		entity("short", "p", "Parking parking"),
	})
	res, err := x.Query(context.Background(), domain.Query{Text: "PARKING", K: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"short", "long"}, ids(res))
	assert.InDelta(t, 2.0/15.0, res[0].Score, 1e-9)
}

func TestKeywordShortTokensOnly(t *testing.T) {
	x := NewIndex(Config{})
	x.Insert(entity("a", "p", "to be or not to be"))
	res, err := x.Query(context.Background(), domain.Query{Text: "to be"})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestDeleteByPlanID(t *testing.T) {
	x := NewIndex(Config{})
	x.InsertMany([]domain.ChunkEntity{
		entity("a1", "plan-a", "", 1),
		entity("b1", "plan-b", "", 1),
		entity("a2", "plan-a", "", 1),
	})
	// Materialise before deleting so stale lists would show.
	_, err := x.Query(context.Background(), domain.Query{Vector: []float32{1}})
	require.NoError(t, err)

	assert.Equal(t, 2, x.DeleteByPlanID("plan-a"))
	assert.Equal(t, 1, x.Count())
	assert.Equal(t, 0, x.DeleteByPlanID("plan-a"))

	res, err := x.Query(context.Background(), domain.Query{Vector: []float32{1}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, ids(res))
}

func TestReplaceKeepsPositionAndGetByPlanID(t *testing.T) {
	x := NewIndex(Config{})
	x.Insert(entity("a", "p", "first", 1))
	x.Insert(entity("b", "p", "second", 1))
	x.Insert(entity("c", "q", "third", 1))
	x.Insert(entity("a", "p", "replaced", 1))

	all := x.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "replaced", all[0].Text)

	got := x.GetByPlanID("p", 0)
	assert.Len(t, got, 2)
	assert.Len(t, x.GetByPlanID("p", 1), 1)
	assert.Empty(t, x.GetByPlanID("missing", 0))
}

func TestClear(t *testing.T) {
	x := NewIndex(Config{})
	x.Insert(entity("a", "p", "affordable", 1))
	assert.Len(t, x.GetAll(), 1)
	x.Clear()
	assert.Equal(t, 0, x.Count())
	assert.Empty(t, x.GetAll())
	res, err := x.Query(context.Background(), domain.Query{Text: "affordable"})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestConcurrentInsertAndQuery(t *testing.T) {
	x := NewIndex(Config{BatchSize: 10})
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				x.Insert(entity(fmt.Sprintf("w%d-%d", w, i), "p", "", 1, float32(i)))
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				res, err := x.Query(context.Background(), domain.Query{Vector: []float32{1, 0}, K: 5})
				assert.NoError(t, err)
				assert.LessOrEqual(t, len(res), 5)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 400, x.Count())
}
