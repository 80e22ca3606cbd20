package cli

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"github.com/kart-io/logger/option"
	goredis "github.com/redis/go-redis/v9"

	"planrag/internal/chunker"
	"planrag/internal/config"
	"planrag/internal/embedding"
	"planrag/internal/embedding/hashing"
	"planrag/internal/embedding/openai"
	"planrag/internal/embedding/rediscache"
	"planrag/internal/modelloader"
	"planrag/internal/service"
	"planrag/internal/summarizer"
	"planrag/internal/vectorstore/memory"
	"planrag/internal/vectorstore/sqlite"
)

func initLogger(cfg config.LogConfig) error {
	opt := option.DefaultLogOption()
	opt.Level = cfg.Level
	opt.Format = cfg.Format
	opt.Engine = cfg.Engine
	opt.OutputPaths = cfg.OutputPaths
	l, err := logger.New(opt)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetGlobal(l)
	return nil
}

// app owns everything a command needs; close releases it.
type app struct {
	svc   *service.Service
	store *sqlite.Store
	redis goredis.UniversalClient
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = logger.Flush()
}

// newApp assembles the service from cfg and restores the index from the
// store.
func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	log := logger.Global()
	a := &app{}

	backend, err := buildBackend(cfg, log)
	if err != nil {
		return nil, err
	}
	if cfg.Embedder.Redis.Enabled {
		a.redis = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Embedder.Redis.Addr,
			Password: cfg.Embedder.Redis.Password,
			DB:       cfg.Embedder.Redis.DB,
		})
		backend = rediscache.New(backend, a.redis, rediscache.Config{
			TTL:       cfg.RedisTTL(),
			KeyPrefix: cfg.Embedder.Redis.KeyPrefix,
			Logger:    log,
		})
	}

	a.store, err = sqlite.NewStore(cfg.Store.Path)
	if err != nil {
		a.close()
		return nil, err
	}

	gen := embedding.NewGenerator(backend, embedding.Config{
		BatchSize: cfg.Embedder.BatchSize,
		CacheSize: cfg.Embedder.CacheSize,
		Logger:    log,
	})
	a.svc = service.New(service.Deps{
		Chunker: chunker.NewTokenChunker(cfg.Chunker.MaxTokens, cfg.Chunker.MinTokens, cfg.Chunker.OverlapTokens,
			chunker.WithLogger(log)),
		Generator: gen,
		Tracker:   modelloader.NewTracker(gen, log),
		Index: memory.NewIndex(memory.Config{
			BatchSize:  cfg.Index.BatchSize,
			YieldEvery: cfg.Index.YieldEvery,
			Workers:    cfg.Index.Workers,
			DefaultK:   cfg.Index.DefaultK,
			Logger:     log,
		}),
		Store:            a.store,
		Summarizer:       summarizer.NewFrequencySummarizer(),
		SummarySentences: cfg.Summarizer.MaxSentences,
		Logger:           log,
	})

	n, err := a.svc.Restore(ctx)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("restore index: %w", err)
	}
	log.Debugw("index restored", "chunks", n, "store", a.store.Path())
	return a, nil
}

func buildBackend(cfg *config.AppConfig, log core.Logger) (embedding.Backend, error) {
	switch cfg.Embedder.Type {
	case "local":
		return hashing.NewEmbedder(cfg.Embedder.Hashing.Dimensions), nil
	case "openai", "ollama":
		o := cfg.Embedder.OpenAI
		return openai.NewClient(openai.Config{
			BaseURL:    o.BaseURL,
			APIKeyEnv:  o.APIKeyEnv,
			Model:      o.Model,
			API:        o.API,
			Timeout:    cfg.OpenAITimeout(),
			MaxRetries: o.MaxRetries,
			Dimensions: o.Dimensions,
			Logger:     log,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}
