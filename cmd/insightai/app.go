package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/insightai/internal/ai"
	"github.com/xxxsen/insightai/internal/chunker"
	"github.com/xxxsen/insightai/internal/config"
	"github.com/xxxsen/insightai/internal/db"
	"github.com/xxxsen/insightai/internal/embedcache"
	"github.com/xxxsen/insightai/internal/filestore"
	"github.com/xxxsen/insightai/internal/index"
	"github.com/xxxsen/insightai/internal/lifecycle"
	"github.com/xxxsen/insightai/internal/repo"
	"github.com/xxxsen/insightai/internal/retrieval"
	"github.com/xxxsen/insightai/internal/service"
	"github.com/xxxsen/insightai/internal/source"
)

type app struct {
	cfg        *config.Config
	db         *sql.DB
	cacheRepo  *repo.EmbeddingCacheRepo
	published  *index.Published
	manager    *lifecycle.Manager
	retrieval  *retrieval.Engine
	ragService *service.RAGService
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, published: index.NewPublished()}
	deps := filestore.Deps{}
	if cfg.Database.Enabled() {
		conn, err := db.Open(cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := db.ApplyMigrations(conn); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		a.db = conn
		a.cacheRepo = repo.NewEmbeddingCacheRepo(conn)
		deps.Blobs = repo.NewBlobRepo(conn)
	}

	embedProvider, err := ai.NewEmbedProvider(cfg.Embed.Provider, cfg.Embed.Data)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init embed provider: %w", err)
	}
	genProvider, err := ai.NewProvider(cfg.Generate.Provider, cfg.Generate.Data)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init ai provider: %w", err)
	}

	base := ai.NewEmbedder(embedProvider, cfg.Embed.Model)
	if cfg.Embed.RequestsPerSecond > 0 {
		base = ai.WrapRateLimit(base, cfg.Embed.RequestsPerSecond, 1)
	}
	docEmbedder := base
	if a.cacheRepo != nil {
		docEmbedder = embedcache.WrapDBCacheToEmbedder(base, a.cacheRepo)
	}
	queryEmbedder := embedcache.WrapLruCacheToEmbedder(base, cfg.Embed.QueryCacheSize, time.Duration(cfg.Embed.QueryCacheTTL)*time.Second)

	store, err := filestore.New(cfg.FileStore, deps)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init file store: %w", err)
	}
	sources, err := source.NewAll(cfg.Sources, cfg.Fetch)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init sources: %w", err)
	}
	splitter, err := chunker.New(cfg.Chunk.MaxSize, cfg.Chunk.Separators)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init chunker: %w", err)
	}

	a.manager = lifecycle.NewManager(sources, splitter, docEmbedder, a.published, store, lifecycle.Config{
		FetchTimeout:     time.Duration(cfg.Fetch.Timeout) * time.Second,
		FetchConcurrency: cfg.Fetch.Concurrency,
		BatchSize:        cfg.Embed.BatchSize,
		MaxAttempts:      cfg.Embed.MaxAttempts,
		Backoff:          time.Duration(cfg.Embed.BackoffMillis) * time.Millisecond,
		MaxBackoff:       time.Duration(cfg.Embed.MaxBackoffMillis) * time.Millisecond,
		EmbedTimeout:     time.Duration(cfg.Embed.Timeout) * time.Second,
		IndexKey:         cfg.Index.Key,
		PersistTimeout:   time.Duration(cfg.Index.PersistTimeout) * time.Second,
	})
	a.retrieval = retrieval.NewEngine(a.published, queryEmbedder, retrieval.Config{
		TopK:     cfg.Query.TopK,
		MinScore: cfg.Query.MinScore,
		Timeout:  time.Duration(cfg.Query.Timeout) * time.Second,
	})
	composer := ai.NewManager(ai.NewGenerator(genProvider, cfg.Generate.Model), ai.ManagerConfig{Timeout: cfg.Generate.Timeout})
	a.ragService = service.NewRAGService(a.retrieval, composer, service.RAGServiceConfig{
		CacheSize: cfg.Query.AnswerCacheSize,
		CacheTTL:  time.Duration(cfg.Query.AnswerCacheTTL) * time.Second,
	})

	logutil.GetLogger(context.Background()).Info("components ready",
		zap.Int("sources", len(sources)),
		zap.String("embed_provider", cfg.Embed.Provider),
		zap.String("embed_model", cfg.Embed.Model),
		zap.String("file_store", store.Type()),
		zap.Bool("database", a.db != nil),
	)
	return a, nil
}

func (a *app) restore(ctx context.Context) {
	if !a.cfg.Index.ShouldLoadOnStart() {
		return
	}
	if _, err := a.manager.Restore(ctx); err != nil {
		logutil.GetLogger(ctx).Warn("restore persisted index failed", zap.Error(err))
	}
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}
