package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aulahq/aula/internal/answer"
)

const maxAskBodyBytes = 64 * 1024

// Answerer is the slice of the answer orchestrator the API needs.
type Answerer interface {
	Ask(ctx context.Context, req answer.Request) (answer.Reply, error)
}

type askHandler struct {
	answerer Answerer
	logger   *slog.Logger
}

type askRequest struct {
	Message string            `json:"message"`
	Context map[string]string `json:"context,omitempty"`
}

// ask handles POST /api/ask. Guardrail refusals and exhausted provider
// chains are both well-formed 200 payloads; only infrastructure failures
// become 500s.
func (h *askHandler) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	body := http.MaxBytesReader(w, r.Body, maxAskBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "empty_message", "message is required", h.logger)
		return
	}

	reply, err := h.answerer.Ask(r.Context(), answer.Request{
		Message: req.Message,
		Context: req.Context,
	})
	if err != nil {
		h.logger.Error("answer pipeline failed", "error", err)
		writeError(w, http.StatusInternalServerError, "ask_failed", "failed to answer", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, reply, h.logger)
}
