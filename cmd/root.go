// Package cmd wires the cobra command tree: serve, worker, reindex,
// index and version.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aulahq/aula/internal/config"
	"github.com/aulahq/aula/internal/log"
)

var rootCmd = &cobra.Command{
	Use:           "aula",
	Short:         "Aula AI answer pipeline",
	Long:          "Aula answers questions about an institution from its own documents:\nchunked, embedded and retrieved with pgvector, generated with a provider\nfallback chain, guarded against off-topic and injection inputs.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads and validates configuration and builds the logger
// every command shares.
func loadConfig() (*config.Config, log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: slog.LevelInfo, JSON: true})
	slog.SetDefault(logger)
	return cfg, logger, nil
}
