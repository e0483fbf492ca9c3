package vecstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/aulahq/aula/internal/log"
)

// Store persists chunks and searches them with native pgvector operators.
// Safe for concurrent use.
type Store struct {
	db     DB
	logger log.Logger
}

// NewStore creates a pgvector-backed store.
func NewStore(db DB, logger log.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// ReplaceChunks atomically swaps a document's chunks for a fresh set.
// Running it twice with the same input leaves the same rows behind, so
// re-indexing a document is always safe.
func (s *Store) ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []Chunk) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin chunk replace: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete stale chunks for document %s: %w", documentID, err)
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		var emb *pgvector.Vector
		if c.Embedding != nil {
			v := pgvector.NewVector(c.Embedding)
			emb = &v
		}
		batch.Queue(
			`INSERT INTO chunks (id, document_id, ordinal, content, token_count, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, documentID, c.Ordinal, c.Content, c.TokenCount, emb,
		)
	}
	br := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert chunk for document %s: %w", documentID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close chunk batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunk replace: %w", err)
	}

	s.logger.Debug("replaced chunks", "document_id", documentID, "count", len(chunks))
	return nil
}

// DeleteByDocument removes all chunks belonging to a document.
func (s *Store) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete chunks for document %s: %w", documentID, err)
	}
	return nil
}

// CountEmbedded returns the number of chunks that carry an embedding.
func (s *Store) CountEmbedded(ctx context.Context) (int64, error) {
	rows, err := s.db.Query(ctx, `SELECT count(*) FROM chunks WHERE embedding IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("count embedded chunks: %w", err)
	}
	defer rows.Close()

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("scan chunk count: %w", err)
		}
	}
	return n, rows.Err()
}

// Search runs cosine similarity search in the database. Only chunks of
// active, non-deleted documents participate. The vector(N) column type
// guarantees every stored embedding matches the query width, so no
// dimension filter is needed on this path.
func (s *Store) Search(ctx context.Context, query []float32, limit int) ([]Hit, error) {
	if limit <= 0 || len(query) == 0 {
		return nil, nil
	}

	vec := pgvector.NewVector(query)
	rows, err := s.db.Query(ctx,
		`SELECT c.id, c.document_id, d.title, c.content, c.ordinal,
		        1 - (c.embedding <=> $1) AS similarity,
		        d.updated_at
		 FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE c.embedding IS NOT NULL
		   AND d.active
		   AND d.deleted_at IS NULL
		 ORDER BY similarity DESC, d.updated_at DESC
		 LIMIT $2`,
		&vec, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.Title, &h.Content,
			&h.Ordinal, &h.Similarity, &h.DocumentUpdatedAt); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
