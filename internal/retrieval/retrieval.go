// Package retrieval turns a question into a ranked, threshold-filtered set
// of supporting chunks.
//
// The retriever embeds the question, delegates to a vector searcher, and
// keeps only hits at or above the similarity threshold, capped at top K.
// Embedding failures degrade to an empty result instead of an error so the
// answer pipeline can still produce an ungrounded reply.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/aulahq/aula/internal/config"
	"github.com/aulahq/aula/internal/log"
	"github.com/aulahq/aula/internal/provider"
	"github.com/aulahq/aula/internal/vecstore"
)

// Result is the outcome of one retrieval pass.
type Result struct {
	// Hits are at or above the threshold, ordered most similar first.
	Hits []vecstore.Hit

	// Degraded is true when the embedder was unreachable and retrieval was
	// skipped entirely. Hits is empty in that case.
	Degraded bool
}

// Retriever runs similarity retrieval for questions.
// Safe for concurrent use.
type Retriever struct {
	embedder provider.Embedder
	searcher vecstore.Searcher
	logger   log.Logger
}

// New creates a Retriever.
func New(embedder provider.Embedder, searcher vecstore.Searcher, logger log.Logger) *Retriever {
	return &Retriever{embedder: embedder, searcher: searcher, logger: logger}
}

// searchConfig holds per-call settings, built from options.
type searchConfig struct {
	threshold float64
	topK      int
	timeout   time.Duration
}

// Option customizes a single Retrieve call.
type Option func(*searchConfig)

// WithThreshold sets the minimum similarity a hit must reach.
func WithThreshold(threshold float64) Option {
	return func(c *searchConfig) { c.threshold = threshold }
}

// WithTopK caps the number of returned hits.
func WithTopK(k int) Option {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithTimeout bounds the embed-plus-search round trip.
func WithTimeout(d time.Duration) Option {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildSearchConfig(opts []Option) searchConfig {
	cfg := searchConfig{
		threshold: config.DefaultSimilarityThreshold,
		topK:      config.DefaultTopK,
		timeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Retrieve embeds the question and returns the hits that clear the
// similarity threshold, most similar first, at most top K of them.
//
// An unreachable embedder produces a degraded empty result, not an error;
// a failing search store is a real error the caller must handle.
func (r *Retriever) Retrieve(ctx context.Context, question string, opts ...Option) (Result, error) {
	cfg := buildSearchConfig(opts)

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	query, err := r.embedder.Embed(ctx, question, provider.PurposeQuery)
	if err != nil {
		r.logger.Warn("query embedding failed, skipping retrieval", "error", err)
		return Result{Degraded: true}, nil
	}

	hits, err := r.searcher.Search(ctx, query, cfg.topK)
	if err != nil {
		return Result{}, fmt.Errorf("similarity search: %w", err)
	}

	// Hits arrive ordered by similarity, so threshold filtering only trims
	// the tail.
	kept := hits[:0:len(hits)]
	for _, h := range hits {
		if h.Similarity >= cfg.threshold {
			kept = append(kept, h)
		}
	}

	r.logger.Debug("retrieval complete",
		"candidates", len(hits), "kept", len(kept), "threshold", cfg.threshold)

	return Result{Hits: kept}, nil
}
