package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type request struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

func newTestClient(t *testing.T, srv *httptest.Server, cfg Config) *Client {
	t.Helper()
	t.Setenv("PLANRAG_TEST_KEY", "sk-test")
	cfg.BaseURL = srv.URL
	cfg.APIKeyEnv = "PLANRAG_TEST_KEY"
	c := NewClient(cfg)
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func TestEmbedReordersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Input)
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{Dimensions: 2})
	require.NoError(t, c.Load(context.Background()))
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}

func TestLoadProbesDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{})
	assert.Equal(t, 0, c.Dimensions())
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, 3, c.Dimensions())
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("PLANRAG_MISSING_KEY", "")
	c := NewClient(Config{APIKeyEnv: "PLANRAG_MISSING_KEY", Dimensions: 2})
	assert.Error(t, c.Load(context.Background()))
}

func TestOllamaShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		embs := make([][]float32, len(req.Input))
		for i := range req.Input {
			embs[i] = []float32{float32(2*i + 1), float32(2*i + 2)}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embs})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{API: APIOllama, Model: "nomic-embed-text"})
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, 2, c.Dimensions())
	assert.Equal(t, "ollama:nomic-embed-text", c.Name())

	vecs, err := c.Embed(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2}, {3, 4}}, vecs)
}

func TestRetriesOnTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{Dimensions: 1, MaxRetries: 3})
	var waits []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	require.NoError(t, c.Load(context.Background()))
	_, err := c.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, time.Second}, waits)
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{Dimensions: 1, MaxRetries: 5})
	require.NoError(t, c.Load(context.Background()))
	_, err := c.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
	assert.Equal(t, int32(1), calls.Load())
}

func TestServerErrorsExhaustRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{Dimensions: 1, MaxRetries: 2})
	require.NoError(t, c.Load(context.Background()))
	_, err := c.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryDelay(0))
	assert.Equal(t, 800*time.Millisecond, retryDelay(2))
	assert.Equal(t, 5*time.Second, retryDelay(10))
}
