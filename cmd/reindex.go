package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/aulahq/aula/internal/app"
)

var reindexSourceKey string

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Mirror source records into documents and re-embed changes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runReindex(cmd.Context())
	},
}

func init() {
	reindexCmd.Flags().StringVar(&reindexSourceKey, "source-key", "", "limit to records under this key prefix")
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	// The flock keeps two CLI runs on one host from racing each other
	// through the same record export.
	lock := flock.New(filepath.Join(os.TempDir(), "aula-reindex.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring reindex lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another reindex run is in progress")
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			logger.Warn("releasing reindex lock failed", "error", unlockErr)
		}
	}()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	report, err := a.Syncer.Reindex(ctx, reindexSourceKey)
	if err != nil {
		return fmt.Errorf("reindexing: %w", err)
	}

	fmt.Printf("Records: %d total, %d synced, %d skipped\n",
		report.Total, report.Synced, report.Skipped)
	return nil
}
