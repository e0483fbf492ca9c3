// Package provider adapts external AI backends to the narrow interfaces the
// answer pipeline consumes.
//
// Two capabilities are exposed: Embedder turns text into fixed-width
// vectors, Generator produces answer text. Both are implemented on top of
// Genkit plugins (Google AI, Ollama, OpenAI-compatible), so a deployment
// can mix providers in one fallback chain.
//
// Generation results are a tagged value rather than bare errors: callers
// iterate an ordered chain and decide per result whether to advance to the
// next backend. Raw provider errors never travel past this package
// boundary unredacted; callers log them and surface safe messages.
package provider

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors.
var (
	// ErrUnavailable indicates an embedding or generation backend is down.
	// Callers degrade gracefully instead of failing the whole request.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrEmptyResponse indicates the backend returned no usable text.
	ErrEmptyResponse = errors.New("empty model response")

	// ErrExhausted indicates every provider in the chain was tried and
	// none produced a usable result.
	ErrExhausted = errors.New("provider chain exhausted")
)

// Purpose selects the embedding instruction mode. Some models are trained
// with distinct task prefixes for stored passages versus search queries.
type Purpose int

const (
	// PurposeIndex embeds text that will be stored and searched against.
	PurposeIndex Purpose = iota

	// PurposeQuery embeds a query used to search stored vectors.
	PurposeQuery
)

// Embedder turns text into a fixed-length vector.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// Embed returns the embedding for text. On backend failure the error
	// wraps ErrUnavailable; callers treat it as "no retrieval", not a crash.
	Embed(ctx context.Context, text string, purpose Purpose) ([]float32, error)

	// Available reports whether the backend is currently worth calling.
	Available(ctx context.Context) bool
}

// GenerateStatus tags a generation outcome.
type GenerateStatus int

const (
	// GenerateOK means Text holds a usable answer.
	GenerateOK GenerateStatus = iota

	// GenerateRetry means this backend failed transiently; the next backend
	// in the chain should be tried.
	GenerateRetry

	// GenerateFatal means the request itself is unprocessable (e.g. safety
	// rejection); trying further backends would waste quota.
	GenerateFatal
)

// GenerateResult is the tagged outcome of one generation attempt.
type GenerateResult struct {
	Status GenerateStatus
	Text   string
	Err    error
}

// GenerateRequest carries one prompt to a backend.
type GenerateRequest struct {
	System string // optional system instruction
	Prompt string // user-visible prompt body
}

// Generator produces answer text from a prompt.
// Implementations must be safe for concurrent use.
type Generator interface {
	// Name identifies the backend (provider-qualified model name).
	Name() string

	// Available reports whether the backend should be attempted. A backend
	// whose circuit breaker is open reports false.
	Available(ctx context.Context) bool

	// Generate runs one bounded generation attempt.
	Generate(ctx context.Context, req GenerateRequest) GenerateResult
}

// classify maps a backend error to a chain decision. Rate limits and
// transient transport failures advance the chain; anything else is fatal
// for this request.
func classify(err error) GenerateStatus {
	if err == nil {
		return GenerateOK
	}
	if containsAny(err.Error(),
		"rate limit", "quota", "429",
		"500", "502", "503", "504", "unavailable", "overloaded",
		"connection reset", "connection refused", "timeout", "deadline exceeded", "temporary",
	) {
		return GenerateRetry
	}
	return GenerateFatal
}

// containsAny reports whether s contains any of the substrings,
// case-insensitively.
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
