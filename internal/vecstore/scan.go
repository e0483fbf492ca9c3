package vecstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/pgvector/pgvector-go"

	"github.com/aulahq/aula/internal/log"
)

// ScanStore ranks embeddings in process instead of delegating to pgvector
// operators. It tolerates mixed embedding widths: a stored vector whose
// dimension differs from the query is skipped with a warning, never an
// error, so an embedder model swap degrades search instead of breaking it.
type ScanStore struct {
	db     DB
	logger log.Logger
}

// NewScanStore creates an in-process ranking store.
func NewScanStore(db DB, logger log.Logger) *ScanStore {
	return &ScanStore{db: db, logger: logger}
}

// candidate is one embedded chunk loaded for ranking.
type candidate struct {
	hit       Hit
	embedding []float32
}

// Search loads every embedded chunk of active documents and ranks them by
// cosine similarity in process.
func (s *ScanStore) Search(ctx context.Context, query []float32, limit int) ([]Hit, error) {
	if limit <= 0 || len(query) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT c.id, c.document_id, d.title, c.content, c.ordinal, c.embedding, d.updated_at
		 FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE c.embedding IS NOT NULL
		   AND d.active
		   AND d.deleted_at IS NULL`,
	)
	if err != nil {
		return nil, fmt.Errorf("load chunk embeddings: %w", err)
	}
	defer rows.Close()

	var cands []candidate
	for rows.Next() {
		var (
			c   candidate
			vec pgvector.Vector
		)
		if err := rows.Scan(&c.hit.ChunkID, &c.hit.DocumentID, &c.hit.Title,
			&c.hit.Content, &c.hit.Ordinal, &vec, &c.hit.DocumentUpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk embedding: %w", err)
		}
		c.embedding = vec.Slice()
		cands = append(cands, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hits, skipped := rank(query, cands, limit)
	if skipped > 0 {
		s.logger.Warn("skipped chunks with mismatched embedding width",
			"skipped", skipped, "query_dimension", len(query))
	}
	return hits, nil
}

// rank scores candidates against the query and returns the top limit hits
// ordered by descending similarity, ties broken by most recently updated
// document. Candidates whose embedding width differs from the query are
// counted in skipped and excluded.
func rank(query []float32, cands []candidate, limit int) (hits []Hit, skipped int) {
	scored := make([]Hit, 0, len(cands))
	for _, c := range cands {
		if len(c.embedding) != len(query) {
			skipped++
			continue
		}
		h := c.hit
		h.Similarity = cosineSimilarity(query, c.embedding)
		scored = append(scored, h)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].DocumentUpdatedAt.After(scored[j].DocumentUpdatedAt)
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, skipped
}
