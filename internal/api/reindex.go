package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aulahq/aula/internal/content"
)

// Reindexer mirrors source records into documents and re-embeds the
// changed ones.
type Reindexer interface {
	Reindex(ctx context.Context, sourceKey string) (content.Report, error)
}

type reindexHandler struct {
	syncer Reindexer
	cache  responseCache
	logger *slog.Logger
}

type reindexRequest struct {
	// SourceKey narrows the run to one record; empty reindexes everything.
	SourceKey string `json:"source_key,omitempty"`
}

// reindex handles POST /api/reindex and returns the sync report.
func (h *reindexHandler) reindex(w http.ResponseWriter, r *http.Request) {
	var req reindexRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
			return
		}
	}

	report, err := h.syncer.Reindex(r.Context(), req.SourceKey)
	if err != nil {
		h.logger.Error("reindex failed", "source_key", req.SourceKey, "error", err)
		writeError(w, http.StatusInternalServerError, "reindex_failed", "failed to reindex", h.logger)
		return
	}

	if report.Synced > 0 {
		h.cache.Clear()
	}
	writeJSON(w, http.StatusOK, report, h.logger)
}
