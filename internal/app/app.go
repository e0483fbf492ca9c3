// Package app assembles the application: configuration, database pool,
// provider stack, stores, and the answer pipeline. Commands call Setup
// once and pull whatever they serve out of the returned App.
package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aulahq/aula/internal/answer"
	"github.com/aulahq/aula/internal/cache"
	"github.com/aulahq/aula/internal/config"
	"github.com/aulahq/aula/internal/content"
	"github.com/aulahq/aula/internal/exchange"
	"github.com/aulahq/aula/internal/guardrail"
	"github.com/aulahq/aula/internal/ingest"
	"github.com/aulahq/aula/internal/lease"
	"github.com/aulahq/aula/internal/log"
	"github.com/aulahq/aula/internal/provider"
	"github.com/aulahq/aula/internal/retrieval"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger
	Pool   *pgxpool.Pool

	Providers *provider.Stack

	Documents    *content.Store
	Indexer      *content.Indexer
	Syncer       *content.Syncer
	Creator      content.Creator
	Guard        *guardrail.Classifier
	Retriever    *retrieval.Retriever
	Cache        *cache.Response
	Exchanges    *exchange.Store
	Orchestrator *answer.Orchestrator

	Items  *ingest.ItemStore
	Locker lease.Locker

	otelShutdown func(context.Context) error
	dbCleanup    func()
}

// Close releases everything Setup acquired, in reverse order.
func (a *App) Close() error {
	if a.otelShutdown != nil {
		if err := a.otelShutdown(context.Background()); err != nil {
			a.Logger.Warn("trace exporter shutdown failed", "error", err)
		}
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	a.Logger.Info("application shut down")
	return nil
}
