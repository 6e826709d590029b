package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agenthands/graphsync/internal/config"
	"github.com/agenthands/graphsync/internal/connections"
	"github.com/agenthands/graphsync/internal/core/events"
	"github.com/agenthands/graphsync/internal/core/ingest"
	"github.com/agenthands/graphsync/internal/core/query"
	"github.com/agenthands/graphsync/internal/core/syncjobs"
	"github.com/agenthands/graphsync/internal/core/webhook"
	"github.com/agenthands/graphsync/internal/driver"
	"github.com/agenthands/graphsync/internal/llm"
	"github.com/agenthands/graphsync/internal/logger"
	"github.com/agenthands/graphsync/internal/metrics"
	"github.com/agenthands/graphsync/internal/nango"
	"github.com/agenthands/graphsync/internal/server"
	"github.com/agenthands/graphsync/internal/state"
)

// Deps are the external backends an App runs on.
type Deps struct {
	Graph       driver.GraphDriver
	Reranker    llm.RerankerClient
	State       state.Store
	Connections connections.Store
	Nango       *nango.Client
}

// Connect dials every backend named in cfg. Redis and Postgres are optional and fall back
// to in-process stores; Memgraph is required.
func Connect(ctx context.Context, cfg *config.Config, log *logger.Logger) (Deps, error) {
	var deps Deps

	d, err := driver.NewMemgraphDriver(ctx, driver.MemgraphOptions{
		URI:      cfg.Memgraph.URI,
		Username: cfg.Memgraph.User,
		Password: cfg.Memgraph.Password,
		Database: cfg.Memgraph.Database,
		MaxPool:  cfg.Memgraph.MaxPool,
		Timeout:  time.Duration(cfg.Memgraph.TimeoutSeconds) * time.Second,
	}, log)
	if err != nil {
		return deps, fmt.Errorf("connect memgraph: %w", err)
	}
	deps.Graph = d

	deps.Reranker, err = llm.NewReranker(ctx, cfg.LLM)
	if err != nil {
		_ = d.Close(ctx)
		return deps, fmt.Errorf("init llm reranker: %w", err)
	}
	if deps.Reranker == nil {
		log.Info("No LLM configured, cohere reranking falls back to bm25")
	}

	if cfg.Redis.Addr != "" {
		r, err := state.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Prefix)
		if err != nil {
			_ = d.Close(ctx)
			return deps, fmt.Errorf("connect redis: %w", err)
		}
		deps.State = r
	} else {
		log.Warn("REDIS_ADDR not set, admission and sync state are kept in memory")
		deps.State = state.NewMemory()
	}

	if cfg.Postgres.DSN != "" {
		pg, err := connections.NewPostgres(cfg.Postgres.DSN)
		if err != nil {
			_ = deps.State.Close()
			_ = d.Close(ctx)
			return deps, fmt.Errorf("open postgres: %w", err)
		}
		deps.Connections = pg
	} else {
		log.Warn("DATABASE_URL not set, connection status is kept in memory")
		deps.Connections = connections.NewMemory()
	}

	deps.Nango = nango.NewClient(cfg.Nango.Host, cfg.Nango.SecretKey, nil)
	return deps, nil
}

// App is the assembled service graph.
type App struct {
	Store       *driver.Store
	Pipeline    *ingest.Pipeline
	Coordinator *syncjobs.Coordinator
	Queries     *query.Service
	Server      *server.Server
	Metrics     *metrics.Metrics

	deps Deps
}

func NewApp(cfg *config.Config, deps Deps, log *logger.Logger) (*App, error) {
	m := metrics.New()
	store := driver.NewStore(deps.Graph, deps.Reranker, log)

	// A nil *nango.Client must not become a non-nil interface.
	var lister ingest.RecordLister
	var provider syncjobs.ProviderSync
	if deps.Nango != nil {
		lister = deps.Nango
		provider = deps.Nango
	}

	pipeline := ingest.NewPipeline(store, lister, ingest.OptionsFromConfig(cfg.Ingestion), log, m)
	normalizer, err := events.NewNormalizer(deps.State, events.Options{
		RateLimit:     cfg.Webhook.RateLimit,
		RateWindow:    cfg.Webhook.RateWindow.Duration,
		WebhookSecret: cfg.Nango.WebhookSecret,
	}, log, m)
	if err != nil {
		return nil, err
	}
	coord := syncjobs.NewCoordinator(deps.State, cfg.Sync.ConflictWindow.Duration, cfg.Sync.JobTTL.Duration, log, m)
	queries := query.NewService(store, log, m)

	return &App{
		Store:       store,
		Pipeline:    pipeline,
		Coordinator: coord,
		Queries:     queries,
		Metrics:     m,
		Server: &server.Server{
			Webhooks:  webhook.NewProcessor(normalizer, pipeline, deps.Connections, coord, log, m),
			Syncs:     syncjobs.NewService(coord, provider, log),
			Knowledge: queries,
			Ingestion: pipeline,
			Metrics:   m,
			Log:       log,
		},
		deps: deps,
	}, nil
}

func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.deps.Connections != nil {
		errs = append(errs, a.deps.Connections.Close())
	}
	if a.deps.State != nil {
		errs = append(errs, a.deps.State.Close())
	}
	errs = append(errs, a.Store.Close(ctx))
	return errors.Join(errs...)
}
