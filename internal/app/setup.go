package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/firebase/genkit/go/plugins/postgresql"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/cartageio/cartage/db"
	"github.com/cartageio/cartage/internal/config"
	"github.com/cartageio/cartage/internal/knowledge"
	"github.com/cartageio/cartage/internal/log"
	"github.com/cartageio/cartage/internal/logistics"
	"github.com/cartageio/cartage/internal/orchestrator"
	"github.com/cartageio/cartage/internal/retrieval"
	"github.com/cartageio/cartage/internal/session"
	"github.com/cartageio/cartage/internal/tools"
)

// Setup builds the full application. On failure everything already
// constructed is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during failed setup", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	postgres, err := providePostgresPlugin(ctx, pool, cfg)
	if err != nil {
		return nil, err
	}

	g, err := provideGenkit(ctx, cfg, postgres, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	docStore, retriever, err := provideRetriever(ctx, g, postgres, embedder)
	if err != nil {
		return nil, err
	}
	a.DocStore = docStore
	a.Retriever = retriever

	a.Sessions = session.New(session.NewQueries(pool), pool, logger)
	a.Guard = session.NewGuard()
	a.Logistics = logistics.NewStore(pool, logger)

	a.Knowledge, err = knowledge.NewStore(knowledge.NewQueries(pool), embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating knowledge store: %w", err)
	}
	a.Indexer = knowledge.NewIndexer(a.Knowledge, nil)

	a.Planner, err = retrieval.NewPlanner(retriever,
		cfg.RetrievalTopK, cfg.RetrievalMinScore, cfg.RetrievalCharBudget, logger)
	if err != nil {
		return nil, fmt.Errorf("creating retrieval planner: %w", err)
	}

	a.Registry, err = tools.NewDefaultRegistry(tools.Deps{
		Shipments:      a.Logistics,
		ShipmentSearch: a.Logistics,
		Warehouses:     a.Logistics,
		Searcher:       a.Planner,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("building tool registry: %w", err)
	}

	a.Orchestrator, err = orchestrator.New(orchestrator.Config{
		Genkit:            g,
		Model:             cfg.FullModelName(),
		Sessions:          a.Sessions,
		Guard:             a.Guard,
		Dispatcher:        mustDispatcher(a.Registry, logger),
		Searcher:          a.Planner,
		ToolRefs:          a.Registry.Define(g),
		Logger:            logger,
		MaxToolIterations: cfg.MaxToolIterations,
		TurnTimeout:       cfg.TurnTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	logger.Info("application ready",
		"provider", cfg.Provider,
		"model", cfg.FullModelName(),
		"tools", a.Registry.Len())
	return a, nil
}

func mustDispatcher(registry *tools.Registry, logger log.Logger) *tools.Dispatcher {
	// NewDispatcher only fails on a nil registry, checked by the caller.
	d, _ := tools.NewDispatcher(registry, 0, logger)
	return d
}

// provideOtelShutdown wires the OTLP trace exporter into Genkit's tracer
// provider. Runs before provideGenkit so the provider is ready when
// Genkit starts emitting spans. Tracing failures disable tracing, never
// startup.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	agentHost := cfg.TraceAgentHost
	if agentHost == "" {
		agentHost = "localhost:4318"
	}

	// os.Setenv is safe here: called once during startup, before any
	// goroutines exist.
	if cfg.TraceServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.TraceServiceName)
	}
	if cfg.TraceEnvironment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.TraceEnvironment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(agentHost),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)
	logger.Debug("tracing enabled", "agent", agentHost, "service", cfg.TraceServiceName)

	shutdown := tracing.TracerProvider().Shutdown
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and opens the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// providePostgresPlugin wraps the pool for Genkit's retriever.
func providePostgresPlugin(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) (*postgresql.Postgres, error) {
	engine, err := postgresql.NewPostgresEngine(ctx,
		postgresql.WithPool(pool),
		postgresql.WithDatabase(cfg.PostgresDBName))
	if err != nil {
		return nil, fmt.Errorf("creating postgres engine: %w", err)
	}
	return &postgresql.Postgres{Engine: engine}, nil
}

// provideGenkit initializes Genkit with the configured model provider.
func provideGenkit(ctx context.Context, cfg *config.Config, postgres *postgresql.Postgres, logger log.Logger) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var g *genkit.Genkit
	switch provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin, postgres))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama has no model auto-discovery.
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("genkit initialized", "provider", provider, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}, postgres))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("genkit initialized", "provider", provider, "model", cfg.ModelName)

	default:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}, postgres))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("genkit initialized", "provider", provider, "model", cfg.ModelName)
	}
	return g, nil
}

// provideEmbedder looks up the embedder the provider plugin registered.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideRetriever defines the Genkit retriever over the documents
// table. The DocStore write handle is kept for bulk plugin-side writes;
// the indexer path writes through knowledge.Store.
func provideRetriever(ctx context.Context, g *genkit.Genkit, postgres *postgresql.Postgres, embedder ai.Embedder) (*postgresql.DocStore, ai.Retriever, error) {
	docCfg := knowledge.NewDocStoreConfig(embedder)
	docStore, retriever, err := postgresql.DefineRetriever(ctx, g, postgres, docCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("defining retriever: %w", err)
	}
	return docStore, retriever, nil
}
