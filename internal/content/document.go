// Package content owns knowledge documents: persistence, the indexing
// path that turns a document into embedded chunks, and the sync job that
// mirrors structured records into documents.
package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aulahq/aula/internal/log"
)

// ErrNotFound is returned when a document does not exist or is deleted.
var ErrNotFound = errors.New("document not found")

// Provenance records where a document came from.
type Provenance string

const (
	// ProvenanceManual marks an author-written document.
	ProvenanceManual Provenance = "manual"

	// ProvenanceRecord marks a document mirrored from a structured record.
	ProvenanceRecord Provenance = "record"

	// ProvenanceUpload marks a document created from an uploaded or
	// ingested file.
	ProvenanceUpload Provenance = "upload"
)

// Document is one unit of knowledge.
type Document struct {
	ID         uuid.UUID
	Title      string
	Content    string
	Excerpt    string
	Category   string
	Provenance Provenance
	SourceKey  string // set for record-synced documents
	Active     bool
	Processed  bool
	OwnerID    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists documents. Safe for concurrent use.
type Store struct {
	db     DB
	logger log.Logger
}

// NewStore creates a document store.
func NewStore(db DB, logger log.Logger) *Store {
	return &Store{db: db, logger: logger}
}

const documentColumns = `id, title, content, excerpt, category, provenance,
	source_key, active, processed, owner_id, created_at, updated_at`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.Title, &d.Content, &d.Excerpt, &d.Category,
		&d.Provenance, &d.SourceKey, &d.Active, &d.Processed, &d.OwnerID,
		&d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// Create inserts a new document. Processed starts false; the indexer flips
// it after chunks and embeddings land.
func (s *Store) Create(ctx context.Context, d Document) (Document, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Provenance == "" {
		d.Provenance = ProvenanceManual
	}

	row := s.db.QueryRow(ctx,
		`INSERT INTO documents (id, title, content, excerpt, category, provenance, source_key, active, processed, owner_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9)
		 RETURNING `+documentColumns,
		d.ID, d.Title, d.Content, d.Excerpt, d.Category, string(d.Provenance),
		d.SourceKey, d.Active, d.OwnerID,
	)
	created, err := scanDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("create document: %w", err)
	}

	s.logger.Info("document created", "id", created.ID, "provenance", created.Provenance)
	return created, nil
}

// Update rewrites a document's editable fields and resets processed, so
// the next indexing pass re-chunks it.
func (s *Store) Update(ctx context.Context, d Document) (Document, error) {
	row := s.db.QueryRow(ctx,
		`UPDATE documents
		 SET title = $2, content = $3, excerpt = $4, category = $5,
		     active = $6, processed = FALSE, updated_at = now()
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING `+documentColumns,
		d.ID, d.Title, d.Content, d.Excerpt, d.Category, d.Active,
	)
	updated, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("update document %s: %w", d.ID, err)
	}
	return updated, nil
}

// Get returns a live (non-deleted) document.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Document, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND deleted_at IS NULL`, id)
	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return d, nil
}

// GetBySourceKey returns the record-synced document for a source key.
func (s *Store) GetBySourceKey(ctx context.Context, sourceKey string) (Document, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE source_key = $1 AND deleted_at IS NULL`, sourceKey)
	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document by source key %q: %w", sourceKey, err)
	}
	return d, nil
}

// ListUnprocessed returns active documents that still need indexing.
func (s *Store) ListUnprocessed(ctx context.Context, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE NOT processed AND active AND deleted_at IS NULL
		 ORDER BY updated_at ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// MarkProcessed flips the processed flag after indexing succeeds.
func (s *Store) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE documents SET processed = TRUE WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("mark document %s processed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete marks a document deleted. Chunk rows stay behind until a hard
// cleanup, but search excludes them via the deleted_at filter.
func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE documents SET deleted_at = now(), active = FALSE
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft delete document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.logger.Info("document soft-deleted", "id", id)
	return nil
}
