// Package exchange records every answered question in an append-only log.
// Rows are written once and never mutated; they exist for audit and for
// tuning retrieval thresholds against real traffic.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aulahq/aula/internal/log"
)

// Status records how a question left the pipeline.
type Status string

const (
	// StatusDone marks a successfully answered question.
	StatusDone Status = "done"

	// StatusRejected marks a guardrail refusal.
	StatusRejected Status = "rejected"

	// StatusFailed marks an exhausted provider chain.
	StatusFailed Status = "failed"
)

// Record is one question/answer pair.
type Record struct {
	ID          uuid.UUID
	Question    string
	Answer      string
	RAGEnhanced bool
	CitedDocIDs []uuid.UUID
	Status      Status
	CreatedAt   time.Time
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store writes and lists exchange records.
// Safe for concurrent use.
type Store struct {
	db     DB
	logger log.Logger
}

// NewStore creates an exchange store.
func NewStore(db DB, logger log.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Append writes one record. Logging failures here must never fail the
// request that produced the answer, so callers typically log the returned
// error and move on.
func (s *Store) Append(ctx context.Context, rec Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	cited, err := json.Marshal(rec.CitedDocIDs)
	if err != nil {
		return fmt.Errorf("marshal cited document ids: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO chat_exchanges (id, question, answer, rag_enhanced, cited_doc_ids, status)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.Question, rec.Answer, rec.RAGEnhanced, cited, string(rec.Status),
	)
	if err != nil {
		return fmt.Errorf("append exchange: %w", err)
	}

	s.logger.Debug("exchange recorded",
		"id", rec.ID, "status", rec.Status, "rag_enhanced", rec.RAGEnhanced)
	return nil
}

// Recent returns the latest records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, question, answer, rag_enhanced, cited_doc_ids, status, created_at
		 FROM chat_exchanges
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list exchanges: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var (
			rec   Record
			cited []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Question, &rec.Answer,
			&rec.RAGEnhanced, &cited, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		if len(cited) > 0 {
			if err := json.Unmarshal(cited, &rec.CitedDocIDs); err != nil {
				s.logger.Warn("unparseable cited_doc_ids", "id", rec.ID, "error", err)
			}
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
