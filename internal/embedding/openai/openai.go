// Package openai implements an embedding backend for OpenAI-compatible
// /embeddings endpoints and for Ollama's native /api/embed endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
)

const (
	APIOpenAI = "openai"
	APIOllama = "ollama"

	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModel     = "text-embedding-3-small"
	defaultMaxTokens = 8191
)

// Config configures the embeddings client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	API        string // "openai" (default) or "ollama"
	Timeout    time.Duration
	MaxRetries int
	Dimensions int // probed on Load when zero
	Logger     core.Logger
}

// Client is an HTTP embeddings client implementing embedding.Backend.
type Client struct {
	baseURL    string
	apiKeyEnv  string
	apiKey     string
	model      string
	api        string
	dimension  int
	maxRetries int
	client     *http.Client
	log        core.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client. The API key is resolved on Load so that .env
// files loaded later in startup are honoured.
func NewClient(cfg Config) *Client {
	if cfg.API == "" {
		cfg.API = APIOpenAI
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Global()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKeyEnv:  cfg.APIKeyEnv,
		model:      cfg.Model,
		api:        cfg.API,
		dimension:  cfg.Dimensions,
		maxRetries: cfg.MaxRetries,
		client:     &http.Client{Timeout: cfg.Timeout},
		log:        cfg.Logger,
		sleep:      sleepCtx,
	}
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return c.api + ":" + c.model }

// Dimensions returns the vector size, known after Load.
func (c *Client) Dimensions() int { return c.dimension }

func (c *Client) MaxTokens() int { return defaultMaxTokens }

// Load validates the configuration and, when the dimension is not
// configured, embeds a probe text to learn it.
func (c *Client) Load(ctx context.Context) error {
	switch c.api {
	case APIOpenAI, APIOllama:
	default:
		return fmt.Errorf("unknown embeddings api %q", c.api)
	}
	if c.apiKeyEnv != "" {
		c.apiKey = os.Getenv(c.apiKeyEnv)
	}
	if c.api == APIOpenAI && c.apiKey == "" {
		return fmt.Errorf("missing API key in env %s", c.apiKeyEnv)
	}
	if c.dimension > 0 {
		return nil
	}
	vecs, err := c.Embed(ctx, []string{"dimension probe"})
	if err != nil {
		return fmt.Errorf("probe embedding dimension: %w", err)
	}
	c.dimension = len(vecs[0])
	c.log.Infow("embeddings endpoint ready", "api", c.api, "model", c.model, "dimensions", c.dimension)
	return nil
}

// Embed sends all texts in one request and returns vectors in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	// Both APIs accept the same request shape.
	url := c.baseURL + "/embeddings"
	if c.api == APIOllama {
		url = c.baseURL + "/api/embed"
	}
	data, err := json.Marshal(struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}{c.model, texts})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		payload, wait, err := c.post(ctx, url, data, attempt)
		if err == nil {
			vecs, err := c.decode(payload, len(texts))
			if err == nil {
				return vecs, nil
			}
			// A malformed body is not worth retrying.
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if wait < 0 || attempt == c.maxRetries {
			break
		}
		c.log.Warnw("embeddings request failed, retrying", "attempt", attempt+1, "delay", wait.String(), "error", err.Error())
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// post performs one request. A negative wait marks the error as permanent.
func (c *Client) post(ctx context.Context, url string, data []byte, attempt int) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, -1, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, retryDelay(attempt), err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, resp.Body)
		wait := retryDelay(attempt)
		// Respect Retry-After if provided
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
				wait = time.Duration(secs) * time.Second
			}
		}
		return nil, wait, fmt.Errorf("%s embeddings failed: %s", c.api, resp.Status)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, -1, fmt.Errorf("%s embeddings failed: %s: %s", c.api, resp.Status, strings.TrimSpace(string(msg)))
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retryDelay(attempt), err
	}
	return payload, 0, nil
}

func (c *Client) decode(payload []byte, want int) ([][]float32, error) {
	if c.api == APIOllama {
		var out struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := json.Unmarshal(payload, &out); err != nil {
			return nil, fmt.Errorf("decode ollama response: %w", err)
		}
		if len(out.Embeddings) != want {
			return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(out.Embeddings), want)
		}
		return out.Embeddings, nil
	}

	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode openai response: %w", err)
	}
	if len(out.Data) != want {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(out.Data), want)
	}
	vecs := make([][]float32, want)
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= want || vecs[d.Index] != nil {
			return nil, fmt.Errorf("openai response has bad index %d", d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, errors.New("no embedding returned")
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second || d <= 0 {
		d = 5 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
