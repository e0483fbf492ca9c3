package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/aulahq/aula/internal/log"
)

// Record is one structured application record to mirror as a Document.
// SourceKey must be stable and unique across the source (for example
// "courses/42") so repeated syncs find the document they created.
type Record struct {
	SourceKey string
	Title     string
	Body      string
	Excerpt   string
	Category  string
}

// RecordSource lists the structured records behind a source key prefix.
// The rest of the application implements this; an empty sourceKey means
// every known source.
type RecordSource interface {
	List(ctx context.Context, sourceKey string) ([]Record, error)
}

// Report summarizes one sync run.
type Report struct {
	Total   int `json:"total"`
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
}

// documentStore is the slice of Store the syncer uses.
type documentStore interface {
	GetBySourceKey(ctx context.Context, sourceKey string) (Document, error)
	Create(ctx context.Context, d Document) (Document, error)
	Update(ctx context.Context, d Document) (Document, error)
}

// documentIndexer re-chunks and re-embeds one document.
type documentIndexer interface {
	Index(ctx context.Context, doc Document) error
}

// Syncer mirrors structured records into record-provenance documents and
// indexes whatever changed.
type Syncer struct {
	source  RecordSource
	store   documentStore
	indexer documentIndexer
	logger  log.Logger
}

// NewSyncer creates a Syncer. A nil indexer defers chunking and
// embedding to the background worker: synced documents are left
// unprocessed and the worker's pending pass picks them up.
func NewSyncer(source RecordSource, store documentStore, indexer documentIndexer, logger log.Logger) *Syncer {
	return &Syncer{source: source, store: store, indexer: indexer, logger: logger}
}

// Reindex pulls records for sourceKey (empty = all) and upserts them as
// documents. Unchanged records are counted as skipped without touching the
// database or the embedder.
func (s *Syncer) Reindex(ctx context.Context, sourceKey string) (Report, error) {
	records, err := s.source.List(ctx, sourceKey)
	if err != nil {
		return Report{}, fmt.Errorf("list records for %q: %w", sourceKey, err)
	}

	report := Report{Total: len(records)}
	for _, rec := range records {
		changed, err := s.syncOne(ctx, rec)
		if err != nil {
			return report, fmt.Errorf("sync record %q: %w", rec.SourceKey, err)
		}
		if changed {
			report.Synced++
		} else {
			report.Skipped++
		}
	}

	s.logger.Info("record sync finished",
		"source_key", sourceKey, "total", report.Total,
		"synced", report.Synced, "skipped", report.Skipped)
	return report, nil
}

// syncOne upserts a single record and reindexes it when its content moved.
func (s *Syncer) syncOne(ctx context.Context, rec Record) (changed bool, err error) {
	existing, err := s.store.GetBySourceKey(ctx, rec.SourceKey)
	switch {
	case errors.Is(err, ErrNotFound):
		doc, err := s.store.Create(ctx, Document{
			Title:      rec.Title,
			Content:    rec.Body,
			Excerpt:    rec.Excerpt,
			Category:   rec.Category,
			Provenance: ProvenanceRecord,
			SourceKey:  rec.SourceKey,
			Active:     true,
		})
		if err != nil {
			return false, err
		}
		return true, s.index(ctx, doc)

	case err != nil:
		return false, err
	}

	if existing.Title == rec.Title && existing.Content == rec.Body &&
		existing.Excerpt == rec.Excerpt && existing.Category == rec.Category {
		return false, nil
	}

	existing.Title = rec.Title
	existing.Content = rec.Body
	existing.Excerpt = rec.Excerpt
	existing.Category = rec.Category

	updated, err := s.store.Update(ctx, existing)
	if err != nil {
		return false, err
	}
	return true, s.index(ctx, updated)
}

// index embeds one synced document, or leaves it for the worker when
// inline indexing is off.
func (s *Syncer) index(ctx context.Context, doc Document) error {
	if s.indexer == nil {
		return nil
	}
	return s.indexer.Index(ctx, doc)
}
