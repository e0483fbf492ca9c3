package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/aulahq/aula/internal/content"
)

const maxDocumentBodyBytes = 1 << 20 // 1 MiB

// DocumentStore is the slice of content.Store the API needs.
type DocumentStore interface {
	Create(ctx context.Context, d content.Document) (content.Document, error)
	Update(ctx context.Context, d content.Document) (content.Document, error)
	Get(ctx context.Context, id uuid.UUID) (content.Document, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// DocumentIndexer chunks and embeds a document.
type DocumentIndexer interface {
	Index(ctx context.Context, doc content.Document) error
}

// responseCache is the slice of cache.Response the API needs. Document
// mutations clear it so stale answers cannot outlive their sources.
type responseCache interface {
	Clear()
}

type documentsHandler struct {
	store   DocumentStore
	indexer DocumentIndexer
	cache   responseCache
	inline  bool // index on the request path; false leaves it to the worker
	logger  *slog.Logger
}

type documentRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Excerpt  string `json:"excerpt,omitempty"`
	Category string `json:"category,omitempty"`
	Active   *bool  `json:"active,omitempty"`
}

type documentResponse struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Category  string    `json:"category,omitempty"`
	Active    bool      `json:"active"`
	Processed bool      `json:"processed"`
}

func toDocumentResponse(d content.Document) documentResponse {
	return documentResponse{
		ID:        d.ID,
		Title:     d.Title,
		Category:  d.Category,
		Active:    d.Active,
		Processed: d.Processed,
	}
}

func (h *documentsHandler) decode(w http.ResponseWriter, r *http.Request) (documentRequest, bool) {
	var req documentRequest
	body := http.MaxBytesReader(w, r.Body, maxDocumentBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return req, false
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return req, false
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "title and content are required", h.logger)
		return req, false
	}
	return req, true
}

// create handles POST /api/documents.
func (h *documentsHandler) create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	doc, err := h.store.Create(r.Context(), content.Document{
		Title:      req.Title,
		Content:    req.Content,
		Excerpt:    req.Excerpt,
		Category:   req.Category,
		Provenance: content.ProvenanceManual,
		Active:     active,
	})
	if err != nil {
		h.logger.Error("document create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create document", h.logger)
		return
	}

	h.afterMutation(r.Context(), doc)
	writeJSON(w, http.StatusCreated, toDocumentResponse(doc), h.logger)
}

// update handles PUT /api/documents/{id}.
func (h *documentsHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid document ID", h.logger)
		return
	}

	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	existing, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.notFoundOr500(w, err, "get")
		return
	}

	existing.Title = req.Title
	existing.Content = req.Content
	existing.Excerpt = req.Excerpt
	existing.Category = req.Category
	if req.Active != nil {
		existing.Active = *req.Active
	}

	doc, err := h.store.Update(r.Context(), existing)
	if err != nil {
		h.notFoundOr500(w, err, "update")
		return
	}

	h.afterMutation(r.Context(), doc)
	writeJSON(w, http.StatusOK, toDocumentResponse(doc), h.logger)
}

// remove handles DELETE /api/documents/{id}. Deletion is soft; retrieval
// already excludes deleted documents.
func (h *documentsHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid document ID", h.logger)
		return
	}

	if err := h.store.SoftDelete(r.Context(), id); err != nil {
		h.notFoundOr500(w, err, "delete")
		return
	}

	h.cache.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"}, h.logger)
}

// afterMutation clears the response cache and, in inline mode, runs the
// chunk+embed pass on the request path. In queued mode the worker picks
// the document up from its unprocessed state.
func (h *documentsHandler) afterMutation(ctx context.Context, doc content.Document) {
	h.cache.Clear()

	if !h.inline {
		return
	}
	if err := h.indexer.Index(ctx, doc); err != nil {
		// The document is saved; indexing retries on the next worker sweep.
		h.logger.Error("inline indexing failed", "document_id", doc.ID, "error", err)
	}
}

func (h *documentsHandler) notFoundOr500(w http.ResponseWriter, err error, op string) {
	if errors.Is(err, content.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "document not found", h.logger)
		return
	}
	h.logger.Error("document "+op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, op+"_failed", "failed to "+op+" document", h.logger)
}
