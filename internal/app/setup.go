package app

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openinfra/beacon/db"
	"github.com/openinfra/beacon/internal/cache"
	"github.com/openinfra/beacon/internal/config"
	"github.com/openinfra/beacon/internal/embed"
	"github.com/openinfra/beacon/internal/ingest"
	"github.com/openinfra/beacon/internal/knowledge"
	"github.com/openinfra/beacon/internal/livectx"
	"github.com/openinfra/beacon/internal/llm"
	"github.com/openinfra/beacon/internal/log"
	"github.com/openinfra/beacon/internal/query"
	"github.com/openinfra/beacon/internal/reason"
	"github.com/openinfra/beacon/internal/synthesis"
	"github.com/openinfra/beacon/internal/websearch"
)

const dbConnectTimeout = 10 * time.Second

// Setup creates and initializes the application. On error, everything
// already initialized is released; on success, call Close.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			_ = a.Close()
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	a.Genkit = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	a.Embedder = provideEmbedder(a.Genkit, cfg)
	if a.Embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	a.Knowledge, err = knowledge.NewStore(pool, knowledge.Config{
		Dimension:        cfg.EmbedderDimension,
		ScanCap:          cfg.ScanCap,
		FilterMultiplier: cfg.FilterMultiplier,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create knowledge store: %w", err)
	}

	a.Batcher, err = embed.New(a.Embedder, cfg.EmbedderDimension, logger,
		embed.WithBatchSize(cfg.EmbedBatchSize))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	a.Generator, err = llm.NewGenkitGenerator(a.Genkit, llm.GeneratorConfig{
		ModelName:   cfg.FullModelName(),
		Temperature: cfg.Temperature,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create generator: %w", err)
	}

	synth, err := synthesis.New(a.Generator, logger)
	if err != nil {
		return nil, fmt.Errorf("create synthesizer: %w", err)
	}

	searcher, err := provideSearcher(cfg, logger)
	if err != nil {
		return nil, err
	}

	ctxEngine, err := livectx.New(a.Generator, searcher, logger)
	if err != nil {
		return nil, fmt.Errorf("create living context engine: %w", err)
	}

	analyzer, err := reason.New(a.Generator, logger)
	if err != nil {
		return nil, fmt.Errorf("create analysis engine: %w", err)
	}

	a.Query, err = query.New(query.Config{
		Embedder:    a.Batcher,
		Store:       a.Knowledge,
		Synthesizer: synth,
		Context:     ctxEngine,
		Analyzer:    analyzer,
		Cache: query.NewCache(
			cache.WithTTL[query.CachedResult](time.Duration(cfg.CacheTTLSeconds)*time.Second),
			cache.WithCapacity[query.CachedResult](cfg.CacheCapacity),
		),
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create query service: %w", err)
	}

	a.Indexer, err = ingest.New(a.Batcher, a.Knowledge, logger)
	if err != nil {
		return nil, fmt.Errorf("create indexer: %w", err)
	}

	return a, nil
}

// provideDBPool connects to Postgres and verifies the connection.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// provideEmbedder looks up the configured embedding model.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
}

// provideSearcher builds the external search client. A missing base URL
// disables live web fusion rather than failing startup.
func provideSearcher(cfg *config.Config, logger log.Logger) (livectx.Searcher, error) {
	if cfg.Search.BaseURL == "" {
		return nil, nil
	}
	opts := []websearch.Option{
		websearch.WithAllowDomains(cfg.Search.AllowDomains),
		websearch.WithFetchGuard(),
	}
	if cfg.Search.TimeoutMs > 0 {
		opts = append(opts, websearch.WithTimeout(time.Duration(cfg.Search.TimeoutMs)*time.Millisecond))
	}
	client, err := websearch.New(cfg.Search.BaseURL, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("create web search client: %w", err)
	}
	return client, nil
}
