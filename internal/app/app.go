// Package app wires the application together: configuration, database
// pool, Genkit, and the retrieval, synthesis and analysis components.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openinfra/beacon/internal/config"
	"github.com/openinfra/beacon/internal/embed"
	"github.com/openinfra/beacon/internal/ingest"
	"github.com/openinfra/beacon/internal/knowledge"
	"github.com/openinfra/beacon/internal/llm"
	"github.com/openinfra/beacon/internal/log"
	"github.com/openinfra/beacon/internal/query"
)

// App is the application container. Components are initialized by Setup
// and released by Close.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Pool     *pgxpool.Pool

	Knowledge *knowledge.Store
	Batcher   *embed.Batcher
	Generator *llm.GenkitGenerator
	Query     *query.Service
	Indexer   *ingest.Indexer
}

// Close releases all resources. Safe to call on a partially initialized
// App.
func (a *App) Close() error {
	if a.Pool != nil {
		a.Pool.Close()
		if a.Logger != nil {
			a.Logger.Debug("database pool closed")
		}
	}
	return nil
}
