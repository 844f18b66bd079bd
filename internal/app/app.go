// Package app builds the runtime components from a configuration. Both CLIs
// and the server share it so ingestion and queries use the same embedder model
// and collection.
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/xhad/recall/internal/types"
	"github.com/xhad/recall/pkg/config"
	"github.com/xhad/recall/pkg/crawler"
	"github.com/xhad/recall/pkg/llm"
	"github.com/xhad/recall/pkg/pipeline"
	"github.com/xhad/recall/pkg/search"
	"github.com/xhad/recall/pkg/store"
)

type App struct {
	Config   *config.Config
	Log      *log.Logger
	Embedder *llm.Embedder
	Gateway  types.Gateway
}

// NewLogger returns a logger writing to w at the named level. Unknown levels
// fall back to info.
func NewLogger(w io.Writer, level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
	})
}

// Open validates cfg and connects the embedder and the vector store.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s: %s", errs[0].Field, errs[0].Message)
	}
	logger := NewLogger(os.Stderr, cfg.Log.Level)

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:     cfg.Models.EmbeddingModel,
		Dimension: cfg.Models.VectorDim,
		BaseURL:   cfg.Models.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	gateway, err := OpenGateway(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &App{Config: cfg, Log: logger, Embedder: embedder, Gateway: gateway}, nil
}

// OpenGateway connects the configured vector store backend.
func OpenGateway(ctx context.Context, cfg *config.Config, logger *log.Logger) (types.Gateway, error) {
	switch cfg.Store.Backend {
	case "qdrant":
		return store.NewQdrant(store.QdrantConfig{
			URL:        cfg.Store.URL,
			APIKey:     cfg.Store.APIKey,
			MaxRetries: cfg.Crawler.MaxRetries,
			Logger:     logger,
		}), nil
	case "pgvector":
		return store.NewPGVector(ctx, store.PGVectorConfig{
			ConnString: cfg.Store.DatabaseURL,
			Logger:     logger,
		})
	case "memory":
		return store.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown vector backend %q", cfg.Store.Backend)
}

// Ingester wires the crawl client, orchestrator and summarizer into a
// pipeline writing through the app's gateway.
func (a *App) Ingester(onProgress func(stage string, n int)) (*pipeline.Ingester, error) {
	cfg := a.Config

	client := crawler.NewClient(crawler.ClientConfig{
		BaseURL:    cfg.Crawler.BaseURL,
		RateLimit:  cfg.Crawler.RateLimit,
		MaxRetries: cfg.Crawler.MaxRetries,
		Timeout:    cfg.Crawler.Timeout,
		Logger:     a.Log,
	})
	orchestrator := crawler.NewOrchestrator(client, crawler.OrchestratorConfig{
		PollInterval: cfg.Crawler.PollInterval,
		MaxPolls:     cfg.Crawler.MaxPolls,
		Timeout:      cfg.Crawler.CrawlTimeout,
		DefaultLimit: cfg.Crawler.CrawlLimit,
		Logger:       a.Log,
	})

	summarizer, err := llm.NewSummarizerWithConfig(llm.SummarizerConfig{
		Model:           cfg.Models.SummaryModel,
		BaseURL:         cfg.Models.BaseURL,
		MaxInputChars:   cfg.Models.MaxInputChars,
		MinLength:       cfg.Models.MinLength,
		MaxLength:       cfg.Models.MaxLength,
		MaxSummaryChars: cfg.Models.MaxSummaryChars,
	})
	if err != nil {
		return nil, err
	}

	return pipeline.NewIngester(orchestrator, summarizer, a.Embedder, a.Gateway, pipeline.Config{
		Collection: cfg.Collection(),
		Workers:    cfg.Pipeline.Workers,
		BatchSize:  cfg.Store.BatchSize,
		Logger:     a.Log,
		OnProgress: onProgress,
	}), nil
}

// Search ensures the collection exists and returns a query service over it.
func (a *App) Search(ctx context.Context) (*search.Service, error) {
	if err := a.Gateway.EnsureCollection(ctx, a.Config.Collection()); err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", a.Config.Store.Collection, err)
	}
	return search.NewService(a.Embedder, a.Gateway, search.Config{
		TopK:          a.Config.Query.TopK,
		SummaryPrefix: a.Config.Query.SummaryPrefix,
		Logger:        a.Log,
	}), nil
}

func (a *App) Close() error {
	return a.Gateway.Close()
}
