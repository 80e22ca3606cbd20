package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// HashingConfig configures the offline feature-hashing embedder.
type HashingConfig struct {
	Dimensions int `yaml:"dimensions"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	API         string `yaml:"api"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
	Dimensions  int    `yaml:"dimensions"`
}

// RedisConfig enables the shared Redis embedding cache.
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	TTLSecs   int    `yaml:"ttl_secs"`
	KeyPrefix string `yaml:"key_prefix"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	BatchSize int                   `yaml:"batch_size"`
	CacheSize int                   `yaml:"cache_size"`
	Hashing   HashingConfig         `yaml:"hashing"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Redis     RedisConfig           `yaml:"redis"`
}

// ChunkerConfig bounds chunk sizes, in estimated tokens.
type ChunkerConfig struct {
	MaxTokens     int `yaml:"max_tokens"`
	MinTokens     int `yaml:"min_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
}

// IndexConfig tunes the in-memory vector index scan.
type IndexConfig struct {
	BatchSize  int `yaml:"batch_size"`
	YieldEvery int `yaml:"yield_every"`
	Workers    int `yaml:"workers"`
	DefaultK   int `yaml:"default_k"`
}

// StoreConfig locates the SQLite mirror.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level       string   `yaml:"level"`
	Format      string   `yaml:"format"`
	Engine      string   `yaml:"engine"`
	OutputPaths []string `yaml:"output_paths"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Index      IndexConfig      `yaml:"index"`
	Store      StoreConfig      `yaml:"store"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Log        LogConfig        `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/planrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/planrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings no component can run with.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "local", "openai", "ollama":
	default:
		return fmt.Errorf("unknown embedder type %q", c.Embedder.Type)
	}
	if c.Chunker.MinTokens > c.Chunker.MaxTokens {
		return fmt.Errorf("chunker.min_tokens (%d) exceeds chunker.max_tokens (%d)", c.Chunker.MinTokens, c.Chunker.MaxTokens)
	}
	if c.Chunker.OverlapTokens*2 >= c.Chunker.MaxTokens {
		return fmt.Errorf("chunker.overlap_tokens (%d) too large for max_tokens %d", c.Chunker.OverlapTokens, c.Chunker.MaxTokens)
	}
	return nil
}

// OpenAITimeout returns the configured request timeout.
func (c *AppConfig) OpenAITimeout() time.Duration {
	if c.Embedder.OpenAI == nil {
		return 0
	}
	return time.Duration(c.Embedder.OpenAI.TimeoutSecs) * time.Second
}

// RedisTTL returns the configured cache entry lifetime.
func (c *AppConfig) RedisTTL() time.Duration {
	return time.Duration(c.Embedder.Redis.TTLSecs) * time.Second
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "planrag", "config.yaml"), nil
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "planrag.db"
	}
	return filepath.Join(home, ".planrag", "planrag.db")
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "local"
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 32
	}
	if cfg.Embedder.CacheSize == 0 {
		cfg.Embedder.CacheSize = 1000
	}
	if cfg.Embedder.Hashing.Dimensions == 0 {
		cfg.Embedder.Hashing.Dimensions = 384
	}
	if cfg.Embedder.Type == "openai" || cfg.Embedder.Type == "ollama" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.API == "" {
			o.API = cfg.Embedder.Type
		}
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
			if o.API == "ollama" {
				o.BaseURL = "http://localhost:11434"
			}
		}
		if o.APIKeyEnv == "" && o.API == "openai" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
			if o.API == "ollama" {
				o.Model = "nomic-embed-text"
			}
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.MaxRetries == 0 {
			o.MaxRetries = 5
		}
	}
	if cfg.Embedder.Redis.Addr == "" {
		cfg.Embedder.Redis.Addr = "localhost:6379"
	}
	if cfg.Embedder.Redis.TTLSecs == 0 {
		cfg.Embedder.Redis.TTLSecs = 24 * 60 * 60
	}
	if cfg.Embedder.Redis.KeyPrefix == "" {
		cfg.Embedder.Redis.KeyPrefix = "planrag:emb:"
	}
	if cfg.Chunker.MaxTokens == 0 {
		cfg.Chunker.MaxTokens = 1000
	}
	if cfg.Chunker.MinTokens == 0 {
		cfg.Chunker.MinTokens = 100
	}
	if cfg.Chunker.OverlapTokens == 0 {
		cfg.Chunker.OverlapTokens = 50
	}
	if cfg.Index.BatchSize == 0 {
		cfg.Index.BatchSize = 100
	}
	if cfg.Index.YieldEvery == 0 {
		cfg.Index.YieldEvery = 4
	}
	if cfg.Index.DefaultK == 0 {
		cfg.Index.DefaultK = 10
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = defaultStorePath()
	}
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 5
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Engine == "" {
		cfg.Log.Engine = "slog"
	}
	if len(cfg.Log.OutputPaths) == 0 {
		cfg.Log.OutputPaths = []string{"stderr"}
	}
}
