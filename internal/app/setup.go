package app

import (
	"context"
	"fmt"

	"github.com/aulahq/aula/internal/answer"
	"github.com/aulahq/aula/internal/cache"
	"github.com/aulahq/aula/internal/chunker"
	"github.com/aulahq/aula/internal/config"
	"github.com/aulahq/aula/internal/content"
	"github.com/aulahq/aula/internal/database"
	"github.com/aulahq/aula/internal/exchange"
	"github.com/aulahq/aula/internal/guardrail"
	"github.com/aulahq/aula/internal/ingest"
	"github.com/aulahq/aula/internal/lease"
	"github.com/aulahq/aula/internal/log"
	"github.com/aulahq/aula/internal/observability"
	"github.com/aulahq/aula/internal/provider"
	"github.com/aulahq/aula/internal/retrieval"
	"github.com/aulahq/aula/internal/vecstore"
)

// Setup builds the full application. The tracing exporter is registered
// before Genkit initialization so generation spans are captured from the
// first request.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	otelShutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	a.otelShutdown = otelShutdown

	pool, dbCleanup, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	a.dbCleanup = dbCleanup
	a.Pool = pool

	stack, err := provider.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing providers: %w", err)
	}
	a.Providers = stack

	chunks := vecstore.NewStore(pool, logger)

	var searcher vecstore.Searcher = chunks
	if cfg.RetrievalMode == config.RetrievalScan {
		searcher = vecstore.NewScanStore(pool, logger)
	}

	a.Documents = content.NewStore(pool, logger)
	a.Indexer = content.NewIndexer(
		chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		stack.Embedder, chunks, a.Documents, logger,
	)
	records := content.NewJSONSource(cfg.RecordsPath)
	if cfg.ProcessingMode == config.ProcessingQueued {
		// Queued mode keeps embedding off the request path everywhere:
		// reindexed documents stay unprocessed until the worker's pass.
		a.Syncer = content.NewSyncer(records, a.Documents, nil, logger)
	} else {
		a.Syncer = content.NewSyncer(records, a.Documents, a.Indexer, logger)
	}
	a.Creator = content.NewDraftStore(a.Documents)

	a.Guard = guardrail.New(cfg.GuardrailTerms, logger)
	a.Retriever = retrieval.New(stack.Embedder, searcher, logger)
	a.Cache = cache.NewResponse(cfg.CacheCapacity, cfg.CacheTTL)
	a.Exchanges = exchange.NewStore(pool, logger)

	a.Orchestrator = answer.New(
		a.Guard, a.Cache, a.Retriever, stack.Chain, a.Exchanges,
		cfg.AnswerSettings, logger,
	)

	a.Items = ingest.NewItemStore(pool, logger)
	// The postgres locker keeps the serve and worker processes from
	// processing the same item; the in-memory locker covers tests.
	a.Locker = lease.NewPostgres(pool, cfg.LeaseTTL)

	return a, nil
}

// NewPipeline builds the ingestion pipeline for the worker loop. The
// caller owns Release.
func (a *App) NewPipeline() (*ingest.Pipeline, error) {
	return ingest.NewPipeline(
		a.Items, a.Locker, a.Orchestrator, a.Creator,
		a.Config.WorkerPoolSize, a.Config.IngestBatch, a.Logger,
	)
}
