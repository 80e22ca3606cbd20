package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Embedder.Type)
	assert.Equal(t, 32, cfg.Embedder.BatchSize)
	assert.Equal(t, 1000, cfg.Embedder.CacheSize)
	assert.Equal(t, 384, cfg.Embedder.Hashing.Dimensions)
	assert.Equal(t, ChunkerConfig{MaxTokens: 1000, MinTokens: 100, OverlapTokens: 50}, cfg.Chunker)
	assert.Equal(t, 100, cfg.Index.BatchSize)
	assert.Equal(t, 4, cfg.Index.YieldEvery)
	assert.Equal(t, 10, cfg.Index.DefaultK)
	assert.NotEmpty(t, cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Nil(t, cfg.Embedder.OpenAI)
}

func TestLoadOllamaDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
embedder:
  type: ollama
  redis:
    enabled: true
    ttl_secs: 60
chunker:
  max_tokens: 500
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "ollama", cfg.Embedder.OpenAI.API)
	assert.Equal(t, "http://localhost:11434", cfg.Embedder.OpenAI.BaseURL)
	assert.Equal(t, "nomic-embed-text", cfg.Embedder.OpenAI.Model)
	assert.Empty(t, cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, 30*time.Second, cfg.OpenAITimeout())
	assert.True(t, cfg.Embedder.Redis.Enabled)
	assert.Equal(t, time.Minute, cfg.RedisTTL())
	assert.Equal(t, "localhost:6379", cfg.Embedder.Redis.Addr)
	assert.Equal(t, 500, cfg.Chunker.MaxTokens)
	assert.Equal(t, 100, cfg.Chunker.MinTokens)
}

func TestLoadOpenAIDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedder:\n  type: openai\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embedder.OpenAI.BaseURL)
	assert.Equal(t, 5, cfg.Embedder.OpenAI.MaxRetries)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"type":    "embedder:\n  type: bert\n",
		"min":     "chunker:\n  max_tokens: 50\n  min_tokens: 80\n  overlap_tokens: 10\n",
		"overlap": "chunker:\n  overlap_tokens: 600\n",
		"yaml":    "embedder: [",
	} {
		path := filepath.Join(dir, name+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Load(path)
		assert.Error(t, err, name)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Index.DefaultK = 25
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadDefaultWritesUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "planrag", "config.yaml"), path)
	assert.Equal(t, "local", cfg.Embedder.Type)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
