// Package app provides application initialization and dependency
// wiring.
//
// App is the container that owns every long-lived component: the
// database pool, the Genkit embedder, the canonical answer store, the
// cache resolver, the domain router, and the offline miner. Commands
// construct an App once and pick the pieces they need.
package app

import (
	"context"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/askbase/askbase/internal/answer"
	"github.com/askbase/askbase/internal/config"
	"github.com/askbase/askbase/internal/miner"
	"github.com/askbase/askbase/internal/partition"
	"github.com/askbase/askbase/internal/querylog"
	"github.com/askbase/askbase/internal/resolver"
	"github.com/askbase/askbase/internal/router"
)

// App is the core application container.
type App struct {
	// Configuration
	Config *config.Config

	// Core services
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	// Pipeline components
	Answers  *answer.Store
	QueryLog *querylog.Store
	Docs     *partition.DocStore
	Resolver *resolver.Resolver
	Router   *router.Router
	Miner    *miner.Miner

	// Lifecycle management
	otelCleanup func()
	dbCleanup   func()
	cancel      context.CancelFunc
}

// Close gracefully shuts down all resources. Safe to call on a
// partially initialized App.
func (a *App) Close() error {
	slog.Info("shutting down application")

	if a.cancel != nil {
		a.cancel()
	}

	if a.dbCleanup != nil {
		a.dbCleanup()
		slog.Info("database pool closed")
	}

	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return nil
}

// Refresh rebuilds serving state: the resolver's candidate snapshot is
// invalidated and the router reloads the partition configuration.
// Exposed through the admin refresh endpoint for use after deployments
// and mining promotions.
func (a *App) Refresh(_ context.Context) error {
	a.Resolver.Invalidate()
	a.Router.Reload(
		a.Config.PartitionsOrDefault(),
		a.Config.DefaultPartition,
		a.Config.PricingKeywordsOrDefault(),
	)
	slog.Info("serving state refreshed")
	return nil
}
