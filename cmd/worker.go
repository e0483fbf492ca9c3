package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aulahq/aula/internal/app"
	"github.com/aulahq/aula/internal/config"
	"github.com/aulahq/aula/internal/ingest"
	"github.com/aulahq/aula/internal/log"
)

var workerInterval time.Duration

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background ingestion worker",
	Long:  "The worker processes raw source items into draft content on an\ninterval, sweeps items stuck in a stale lock, and in queued processing\nmode indexes documents waiting for chunks and embeddings.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWorker(cmd.Context())
	},
}

func init() {
	workerCmd.Flags().DurationVar(&workerInterval, "interval", time.Minute, "batch interval")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(parent context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	pipeline, err := a.NewPipeline()
	if err != nil {
		return fmt.Errorf("creating ingestion pipeline: %w", err)
	}
	defer pipeline.Release()

	logger.Info("worker started",
		"interval", workerInterval, "pool", cfg.WorkerPoolSize, "batch", cfg.IngestBatch)

	ticker := time.NewTicker(workerInterval)
	defer ticker.Stop()

	for {
		runOnce(ctx, a, pipeline, logger)

		select {
		case <-ctx.Done():
			logger.Info("worker stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// runOnce executes one worker cycle: sweep stuck items, process a batch,
// and in queued mode index documents awaiting chunks.
func runOnce(ctx context.Context, a *app.App, pipeline *ingest.Pipeline, logger log.Logger) {
	if swept, err := pipeline.SweepStuck(ctx, a.Config.SweepAge); err != nil {
		logger.Error("sweeping stuck items failed", "error", err)
	} else if swept > 0 {
		logger.Info("reset stuck items", "count", swept)
	}

	if err := pipeline.ProcessBatch(ctx); err != nil {
		logger.Error("ingestion batch failed", "error", err)
	}

	if a.Config.ProcessingMode == config.ProcessingQueued {
		indexPending(ctx, a, logger)
	}
}

// indexPending chunks and embeds documents the API left unprocessed.
func indexPending(ctx context.Context, a *app.App, logger log.Logger) {
	docs, err := a.Documents.ListUnprocessed(ctx, a.Config.IngestBatch)
	if err != nil {
		logger.Error("listing unprocessed documents failed", "error", err)
		return
	}
	for _, doc := range docs {
		if err := a.Indexer.Index(ctx, doc); err != nil {
			logger.Error("indexing document failed", "document_id", doc.ID, "error", err)
		}
	}
	if len(docs) > 0 {
		a.Cache.Clear()
		logger.Info("indexed pending documents", "count", len(docs))
	}
}
