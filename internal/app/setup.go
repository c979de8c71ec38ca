package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/askbase/askbase/db"
	"github.com/askbase/askbase/internal/answer"
	"github.com/askbase/askbase/internal/config"
	"github.com/askbase/askbase/internal/miner"
	"github.com/askbase/askbase/internal/partition"
	"github.com/askbase/askbase/internal/querylog"
	"github.com/askbase/askbase/internal/resolver"
	"github.com/askbase/askbase/internal/router"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	a := &App{Config: cfg}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				slog.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg)

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	if err := provideStores(a, pool); err != nil {
		return nil, err
	}

	a.Resolver = resolver.New(a.Answers, embedder, slog.Default(), resolver.Config{
		Threshold:      cfg.SimilarityThreshold,
		CandidateLimit: cfg.CandidateLimit,
		SnapshotTTL:    time.Duration(cfg.SnapshotRefreshSeconds) * time.Second,
		EmbedTimeout:   time.Duration(cfg.EmbedTimeoutSeconds) * time.Second,
	})

	a.Router = router.New(a.Docs, embedder, slog.Default(),
		cfg.PartitionsOrDefault(), cfg.DefaultPartition,
		cfg.PricingKeywordsOrDefault(),
		time.Duration(cfg.EmbedTimeoutSeconds)*time.Second)

	a.Miner = miner.New(a.QueryLog, a.Answers, embedder, slog.Default(), miner.Config{
		SimilarityThreshold: cfg.SimilarityThreshold,
		MinClusterSize:      cfg.MinClusterSize,
		EmbedRate:           cfg.EmbedRatePerSecond,
	})

	// Set up lifecycle management
	_, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	return a, nil
}

// provideOtelShutdown sets up trace export before Genkit initialization.
// Must be called before provideGenkit to ensure TracerProvider is ready.
//
// Traces are exported to a local collector via OTLP HTTP
// (localhost:4318). The collector handles authentication, buffering,
// and forwarding to the tracing backend.
func provideOtelShutdown(ctx context.Context, cfg *config.Config) func() {
	agentHost := cfg.OTLPAgentHost
	if agentHost == "" {
		agentHost = "localhost:4318"
	}

	// Set OTEL env vars for Genkit's TracerProvider to pick up.
	// SAFETY: os.Setenv is not concurrent-safe, but this function is called
	// exactly once during startup in Setup, before goroutines are spawned.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(agentHost),
		otlptracehttp.WithInsecure(), // localhost doesn't need TLS
	)
	if err != nil {
		slog.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	slog.Debug("trace export enabled",
		"collector", agentHost,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	shutdown := tracing.TracerProvider().Shutdown

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default) and ollama providers.
// Call ordering in Setup ensures tracing is set up first.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit embedder registration (no auto-discovery)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		slog.Info("initialized Genkit with ollama provider",
			"embedder", cfg.EmbedderModel, "host", cfg.OllamaHost)

	default: // "gemini"
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		slog.Info("initialized Genkit with gemini provider", "embedder", cfg.EmbedderModel)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the AI provider
// plugin. Ollama embedders are keyed by server address (registered in
// provideGenkit); Gemini embedders by model name.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	default: // "gemini"
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideDBPool creates a PostgreSQL connection pool and runs migrations.
// Pool is configured with sensible defaults for connection management.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	cleanup := func() {
		pool.Close()
	}

	return pool, cleanup, nil
}

// provideStores creates the storage-layer components on the shared pool.
func provideStores(a *App, pool *pgxpool.Pool) error {
	logger := slog.Default()

	answers, err := answer.NewStore(pool, logger)
	if err != nil {
		return fmt.Errorf("creating answer store: %w", err)
	}
	a.Answers = answers

	logs, err := querylog.NewStore(pool, logger)
	if err != nil {
		return fmt.Errorf("creating query log store: %w", err)
	}
	a.QueryLog = logs

	docs, err := partition.NewDocStore(pool, logger)
	if err != nil {
		return fmt.Errorf("creating partition doc store: %w", err)
	}
	a.Docs = docs

	return nil
}
