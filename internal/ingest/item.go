// Package ingest turns externally captured raw items into reviewable
// draft content, with a per-item lease guaranteeing at-most-one worker
// processes an item at a time.
package ingest

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

// Item statuses. The empty status marks a freshly captured item.
const (
	StatusPending = "pending"
	StatusLocked  = "locked"
	StatusDone    = "done"
	StatusError   = "error"
)

// Item is one externally captured raw source item.
type Item struct {
	ID           uuid.UUID
	Source       string
	PayloadText  string
	MediaRefs    []string
	Status       string
	ErrorMessage string
	ContentID    string
	LockedAt     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DB is the subset of pgxpool.Pool the item store needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ItemStore persists raw source items. The pipeline never deletes rows;
// every state transition is an update.
type ItemStore struct {
	db     DB
	logger log.Logger
}

// NewItemStore creates an item store.
func NewItemStore(db DB, logger log.Logger) *ItemStore {
	return &ItemStore{db: db, logger: logger}
}

const itemColumns = `id, source, payload_text, media_refs, status, error_message,
	content_id, COALESCE(locked_at, 'epoch'::timestamptz), created_at, updated_at`

func scanItem(rows pgx.Rows) (Item, error) {
	var (
		it    Item
		media []byte
	)
	err := rows.Scan(&it.ID, &it.Source, &it.PayloadText, &media, &it.Status,
		&it.ErrorMessage, &it.ContentID, &it.LockedAt, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return Item{}, err
	}
	if len(media) > 0 {
		_ = json.Unmarshal(media, &it.MediaRefs)
	}
	return it, nil
}

// Add inserts a freshly captured item in pending state.
func (s *ItemStore) Add(ctx context.Context, source, payload string, mediaRefs []string) (uuid.UUID, error) {
	id := uuid.New()
	media, err := json.Marshal(mediaRefs)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal media refs: %w", err)
	}
	if _, err := s.db.Exec(ctx,
		`INSERT INTO raw_source_items (id, source, payload_text, media_refs, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, source, payload, media, StatusPending,
	); err != nil {
		return uuid.Nil, fmt.Errorf("add raw item: %w", err)
	}
	return id, nil
}

// ListReady returns items awaiting processing, oldest first.
func (s *ItemStore) ListReady(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+itemColumns+` FROM raw_source_items
		 WHERE status IN ('', $1)
		 ORDER BY created_at ASC
		 LIMIT $2`,
		StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list ready items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan raw item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// MarkLocked transitions a still-pending item to locked, reporting
// whether the transition happened. A false return means another worker
// already moved the item past pending and it must not be processed again.
func (s *ItemStore) MarkLocked(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE raw_source_items
		 SET status = $2, locked_at = now(), updated_at = now()
		 WHERE id = $1 AND status IN ('', $3)`,
		id, StatusLocked, StatusPending)
	if err != nil {
		return false, fmt.Errorf("mark item %s locked: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkDone records successful processing with a forward reference to the
// created content.
func (s *ItemStore) MarkDone(ctx context.Context, id uuid.UUID, contentID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE raw_source_items
		 SET status = $2, content_id = $3, error_message = '', updated_at = now()
		 WHERE id = $1`,
		id, StatusDone, contentID)
	if err != nil {
		return fmt.Errorf("mark item %s done: %w", id, err)
	}
	return nil
}

// MarkError records a processing failure. The item stays retryable: an
// operator (or the sweeper) clears the status.
func (s *ItemStore) MarkError(ctx context.Context, id uuid.UUID, message string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE raw_source_items
		 SET status = $2, error_message = $3, updated_at = now()
		 WHERE id = $1`,
		id, StatusError, message)
	if err != nil {
		return fmt.Errorf("mark item %s errored: %w", id, err)
	}
	return nil
}

// SweepStuck resets items that have sat locked or pending longer than age,
// making crashed workers' items retryable. Returns the number reset.
func (s *ItemStore) SweepStuck(ctx context.Context, age time.Duration) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE raw_source_items
		 SET status = '', error_message = '', locked_at = NULL, updated_at = now()
		 WHERE status IN ($1, $2) AND updated_at < now() - $3::interval`,
		StatusLocked, StatusPending, fmt.Sprintf("%f seconds", age.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("sweep stuck items: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Info("reset stuck ingestion items", "count", n)
		return n, nil
	}
	return 0, nil
}
