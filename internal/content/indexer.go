package content

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/aulahq/aula/internal/chunker"
	"github.com/aulahq/aula/internal/log"
	"github.com/aulahq/aula/internal/provider"
	"github.com/aulahq/aula/internal/vecstore"
)

// ChunkWriter persists a document's chunk set.
type ChunkWriter interface {
	ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []vecstore.Chunk) error
}

// ProcessMarker flips a document's processed flag.
type ProcessMarker interface {
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}

// Indexer turns a document into embedded chunks. Re-running it on the same
// document replaces the previous chunk set wholesale, so indexing is
// idempotent.
type Indexer struct {
	chunker  *chunker.Chunker
	embedder provider.Embedder
	chunks   ChunkWriter
	marker   ProcessMarker
	logger   log.Logger
}

// NewIndexer creates an Indexer.
func NewIndexer(ck *chunker.Chunker, embedder provider.Embedder, chunks ChunkWriter, marker ProcessMarker, logger log.Logger) *Indexer {
	return &Indexer{chunker: ck, embedder: embedder, chunks: chunks, marker: marker, logger: logger}
}

// Index chunks and embeds one document. A chunk whose embedding fails is
// stored without a vector (retrieval skips it) rather than failing the
// whole document; the document is still marked processed so edits keep
// flowing, and the next reindex retries the missing vectors.
func (ix *Indexer) Index(ctx context.Context, doc Document) error {
	pieces := ix.chunker.Split(doc.Content)

	chunks := make([]vecstore.Chunk, 0, len(pieces))
	var failed int
	for i, piece := range pieces {
		c := vecstore.Chunk{
			ID:         uuid.New(),
			Ordinal:    i,
			Content:    piece,
			TokenCount: chunker.EstimateTokens(piece),
		}
		vec, err := ix.embedder.Embed(ctx, piece, provider.PurposeIndex)
		if err != nil {
			failed++
			ix.logger.Warn("chunk embedding failed, storing without vector",
				"document_id", doc.ID, "ordinal", i, "error", err)
		} else {
			c.Embedding = vec
		}
		chunks = append(chunks, c)
	}

	if err := ix.chunks.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("persist chunks for document %s: %w", doc.ID, err)
	}
	if err := ix.marker.MarkProcessed(ctx, doc.ID); err != nil {
		return fmt.Errorf("mark document %s processed: %w", doc.ID, err)
	}

	ix.logger.Info("document indexed",
		"document_id", doc.ID, "chunks", len(chunks), "unembedded", failed)
	return nil
}
