package api

import (
	"log/slog"
	"net/http"

	"github.com/aulahq/aula/internal/cache"
)

// CacheStats reports response cache effectiveness.
type CacheStats interface {
	Stats() cache.Stats
}

type statsHandler struct {
	cache  CacheStats
	logger *slog.Logger
}

// stats handles GET /api/stats.
func (h *statsHandler) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"cache": h.cache.Stats(),
	}, h.logger)
}
