// Package app assembles the application: database pool, migrations,
// Genkit with the configured model provider, the document index, the
// tool registry, and the turn orchestrator. Construction order matters
// and lives in setup.go; this file holds the container and teardown.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/postgresql"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartageio/cartage/internal/config"
	"github.com/cartageio/cartage/internal/knowledge"
	"github.com/cartageio/cartage/internal/log"
	"github.com/cartageio/cartage/internal/logistics"
	"github.com/cartageio/cartage/internal/orchestrator"
	"github.com/cartageio/cartage/internal/retrieval"
	"github.com/cartageio/cartage/internal/session"
	"github.com/cartageio/cartage/internal/tools"
)

// App is the application container. Fields are read-only after Setup.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit    *genkit.Genkit
	Embedder  ai.Embedder
	DBPool    *pgxpool.Pool
	DocStore  *postgresql.DocStore
	Retriever ai.Retriever

	Sessions  *session.Store
	Guard     *session.Guard
	Knowledge *knowledge.Store
	Indexer   *knowledge.Indexer
	Logistics *logistics.Store
	Planner   *retrieval.Planner
	Registry  *tools.Registry

	Orchestrator *orchestrator.Orchestrator

	otelCleanup func()
}

// Close releases resources in reverse construction order. Safe to call
// on a partially constructed App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down")
	}
	if a.DBPool != nil {
		a.DBPool.Close()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
