package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aulahq/aula/internal/app"
	"github.com/aulahq/aula/internal/content"
)

const maxIndexFileBytes = 10 << 20 // 10 MiB

var indexTitle string

var indexCmd = &cobra.Command{
	Use:   "index <file>",
	Short: "Index a local text file as an uploaded document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(cmd.Context(), args[0])
	},
}

func init() {
	indexCmd.Flags().StringVar(&indexTitle, "title", "", "document title (defaults to the file name)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(ctx context.Context, path string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if info.Size() > maxIndexFileBytes {
		return fmt.Errorf("%s is %d bytes, over the %d byte limit", path, info.Size(), maxIndexFileBytes)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return fmt.Errorf("%s is empty", path)
	}

	title := indexTitle
	if title == "" {
		title = filepath.Base(path)
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	doc, err := a.Documents.Create(ctx, content.Document{
		Title:      title,
		Content:    body,
		Provenance: content.ProvenanceUpload,
		Active:     true,
	})
	if err != nil {
		return fmt.Errorf("creating document: %w", err)
	}

	if err := a.Indexer.Index(ctx, doc); err != nil {
		return fmt.Errorf("indexing document: %w", err)
	}

	fmt.Printf("Indexed %s as document %s\n", path, doc.ID)
	return nil
}
