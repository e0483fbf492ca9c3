package content

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Draft is authored content awaiting human review.
type Draft struct {
	Title      string
	Body       string
	Excerpt    string
	Category   string
	AuthorID   string
	MediaPaths []string
}

// Creator is the boundary to the surrounding platform's content creation.
// The ingestion pipeline hands drafts across it and records the returned
// identifier on the source item.
type Creator interface {
	CreateDraft(ctx context.Context, draft Draft) (uuid.UUID, error)
}

// DraftStore implements Creator against the document store: a draft
// becomes an inactive upload-provenance document, invisible to retrieval
// until a reviewer activates it.
type DraftStore struct {
	store *Store
}

// NewDraftStore creates a document-backed Creator.
func NewDraftStore(store *Store) *DraftStore {
	return &DraftStore{store: store}
}

// CreateDraft implements Creator.
func (d *DraftStore) CreateDraft(ctx context.Context, draft Draft) (uuid.UUID, error) {
	doc, err := d.store.Create(ctx, Document{
		Title:      draft.Title,
		Content:    draft.Body,
		Excerpt:    draft.Excerpt,
		Category:   draft.Category,
		Provenance: ProvenanceUpload,
		OwnerID:    draft.AuthorID,
		Active:     false,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("create draft document: %w", err)
	}
	return doc.ID, nil
}
