// Package vecstore persists chunk embeddings and runs similarity search
// over them.
//
// Two search backends are provided: Store issues native pgvector queries
// (cosine distance with an HNSW index), ScanStore loads candidate vectors
// and ranks them in process. The scan path exists for deployments where
// the pgvector extension cannot be installed; both return identical Hit
// orderings for the same data.
package vecstore

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Chunk is one embeddable slice of a document. Embedding is nil when
// embedding generation failed; such chunks are stored but never searched.
type Chunk struct {
	ID         uuid.UUID
	Ordinal    int
	Content    string
	TokenCount int
	Embedding  []float32
}

// Hit is one search result, most similar first.
type Hit struct {
	ChunkID           uuid.UUID
	DocumentID        uuid.UUID
	Title             string
	Content           string
	Ordinal           int
	Similarity        float64
	DocumentUpdatedAt time.Time
}

// Searcher runs a similarity search for an already-embedded query.
// Implementations must be safe for concurrent use.
type Searcher interface {
	// Search returns up to limit hits ordered by descending similarity.
	// Equal similarities are broken by most recently updated document.
	Search(ctx context.Context, query []float32, limit int) ([]Hit, error)
}

// DB is the subset of pgxpool.Pool the stores need.
// Interface defined here, by the consumer.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// cosineSimilarity returns the cosine of the angle between a and b.
// Accumulates in float64 so long vectors don't lose precision.
// Returns 0 for zero-norm inputs.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
