package content

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/aulahq/aula/internal/log"
)

type fakeStore struct {
	bySourceKey map[string]Document
	created     []Document
	updated     []Document
}

func newFakeStore() *fakeStore {
	return &fakeStore{bySourceKey: make(map[string]Document)}
}

func (f *fakeStore) GetBySourceKey(_ context.Context, sourceKey string) (Document, error) {
	if d, ok := f.bySourceKey[sourceKey]; ok {
		return d, nil
	}
	return Document{}, ErrNotFound
}

func (f *fakeStore) Create(_ context.Context, d Document) (Document, error) {
	d.ID = uuid.New()
	f.bySourceKey[d.SourceKey] = d
	f.created = append(f.created, d)
	return d, nil
}

func (f *fakeStore) Update(_ context.Context, d Document) (Document, error) {
	f.bySourceKey[d.SourceKey] = d
	f.updated = append(f.updated, d)
	return d, nil
}

type fakeIndexer struct {
	indexed []uuid.UUID
	err     error
}

func (f *fakeIndexer) Index(_ context.Context, doc Document) error {
	f.indexed = append(f.indexed, doc.ID)
	return f.err
}

type fakeSource struct {
	records []Record
	err     error
	lastKey string
}

func (f *fakeSource) List(_ context.Context, sourceKey string) ([]Record, error) {
	f.lastKey = sourceKey
	return f.records, f.err
}

func TestReindex_CreatesNewDocuments(t *testing.T) {
	source := &fakeSource{records: []Record{
		{SourceKey: "courses/1", Title: "Biology 101", Body: "Intro to biology", Category: "course"},
		{SourceKey: "courses/2", Title: "Chemistry 101", Body: "Intro to chemistry", Category: "course"},
	}}
	store := newFakeStore()
	indexer := &fakeIndexer{}
	s := NewSyncer(source, store, indexer, log.NewNop())

	report, err := s.Reindex(context.Background(), "courses")
	if err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}

	if report.Total != 2 || report.Synced != 2 || report.Skipped != 0 {
		t.Errorf("report = %+v, want total 2, synced 2, skipped 0", report)
	}
	if len(store.created) != 2 {
		t.Errorf("created %d documents, want 2", len(store.created))
	}
	for _, d := range store.created {
		if d.Provenance != ProvenanceRecord {
			t.Errorf("created document provenance = %q, want record", d.Provenance)
		}
		if !d.Active {
			t.Error("record-synced documents should be active")
		}
	}
	if len(indexer.indexed) != 2 {
		t.Errorf("indexed %d documents, want 2", len(indexer.indexed))
	}
	if source.lastKey != "courses" {
		t.Errorf("source key passed = %q, want courses", source.lastKey)
	}
}

func TestReindex_SkipsUnchangedRecords(t *testing.T) {
	rec := Record{SourceKey: "courses/1", Title: "Biology 101", Body: "Intro", Category: "course"}
	source := &fakeSource{records: []Record{rec}}
	store := newFakeStore()
	indexer := &fakeIndexer{}
	s := NewSyncer(source, store, indexer, log.NewNop())

	ctx := context.Background()
	if _, err := s.Reindex(ctx, ""); err != nil {
		t.Fatalf("first Reindex failed: %v", err)
	}

	report, err := s.Reindex(ctx, "")
	if err != nil {
		t.Fatalf("second Reindex failed: %v", err)
	}
	if report.Synced != 0 || report.Skipped != 1 {
		t.Errorf("second run report = %+v, want synced 0, skipped 1", report)
	}
	if len(indexer.indexed) != 1 {
		t.Errorf("indexed %d times across both runs, want 1 (skip must not re-embed)", len(indexer.indexed))
	}
}

func TestReindex_UpdatesChangedRecords(t *testing.T) {
	source := &fakeSource{records: []Record{
		{SourceKey: "courses/1", Title: "Biology 101", Body: "Intro", Category: "course"},
	}}
	store := newFakeStore()
	indexer := &fakeIndexer{}
	s := NewSyncer(source, store, indexer, log.NewNop())

	ctx := context.Background()
	if _, err := s.Reindex(ctx, ""); err != nil {
		t.Fatalf("first Reindex failed: %v", err)
	}

	source.records[0].Body = "Revised intro"
	report, err := s.Reindex(ctx, "")
	if err != nil {
		t.Fatalf("second Reindex failed: %v", err)
	}
	if report.Synced != 1 {
		t.Errorf("report.Synced = %d, want 1 for changed record", report.Synced)
	}
	if len(store.updated) != 1 {
		t.Errorf("updated %d documents, want 1", len(store.updated))
	}
}

func TestReindex_NilIndexerDefersToWorker(t *testing.T) {
	source := &fakeSource{records: []Record{
		{SourceKey: "courses/1", Title: "Biology 101", Body: "Intro", Category: "course"},
	}}
	store := newFakeStore()
	s := NewSyncer(source, store, nil, log.NewNop())

	ctx := context.Background()
	report, err := s.Reindex(ctx, "")
	if err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}
	if report.Synced != 1 {
		t.Errorf("report.Synced = %d, want 1", report.Synced)
	}
	if len(store.created) != 1 {
		t.Fatalf("created %d documents, want 1", len(store.created))
	}
	if store.created[0].Processed {
		t.Error("deferred sync must leave the document unprocessed for the worker")
	}

	// Changed records follow the same path on update.
	source.records[0].Body = "Revised intro"
	if _, err := s.Reindex(ctx, ""); err != nil {
		t.Fatalf("second Reindex failed: %v", err)
	}
	if len(store.updated) != 1 {
		t.Errorf("updated %d documents, want 1", len(store.updated))
	}
}

func TestReindex_SourceErrorPropagates(t *testing.T) {
	srcErr := errors.New("records unavailable")
	s := NewSyncer(&fakeSource{err: srcErr}, newFakeStore(), &fakeIndexer{}, log.NewNop())

	if _, err := s.Reindex(context.Background(), ""); !errors.Is(err, srcErr) {
		t.Errorf("Reindex error = %v, want wrapped source error", err)
	}
}
