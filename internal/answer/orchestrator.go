// Package answer orchestrates the question-answering pipeline: guardrail,
// cache, retrieval, grounded or simple generation with ordered provider
// fallback, citation tracking, and the exchange log.
//
// The flow is a fixed state machine. Rejections and provider exhaustion
// are ordinary outcomes with user-safe messages, not errors; the only
// errors Ask returns are infrastructure failures before generation starts.
package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/aulahq/aula/internal/cache"
	"github.com/aulahq/aula/internal/chunker"
	"github.com/aulahq/aula/internal/config"
	"github.com/aulahq/aula/internal/exchange"
	"github.com/aulahq/aula/internal/guardrail"
	"github.com/aulahq/aula/internal/log"
	"github.com/aulahq/aula/internal/provider"
	"github.com/aulahq/aula/internal/retrieval"
	"github.com/aulahq/aula/internal/vecstore"
)

// Request is one incoming question.
type Request struct {
	Message string            `json:"message"`
	Context map[string]string `json:"context,omitempty"`
}

// DocRef identifies a cited document.
type DocRef struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

// Reply is the pipeline's answer to one Request.
type Reply struct {
	Success            bool     `json:"success"`
	Message            string   `json:"message"`
	RAGEnhanced        bool     `json:"is_rag_enhanced"`
	RetrievedDocuments []DocRef `json:"retrieved_documents"`
	ContextChunks      []string `json:"context_chunks"`
}

// classifier screens questions before any spend.
type classifier interface {
	Check(question string) guardrail.Decision
}

// retriever finds supporting chunks.
type retriever interface {
	Retrieve(ctx context.Context, question string, opts ...retrieval.Option) (retrieval.Result, error)
}

// recorder appends to the exchange log.
type recorder interface {
	Append(ctx context.Context, rec exchange.Record) error
}

// Orchestrator runs the full answer pipeline. Safe for concurrent use; all
// per-request settings come from a read-only snapshot taken at entry.
type Orchestrator struct {
	guard     classifier
	cache     *cache.Response
	retriever retriever
	chain     []provider.Generator
	exchanges recorder
	settings  func() config.Answer
	// pacer spreads fallback attempts so a flapping primary cannot
	// stampede the secondary providers.
	pacer  *rate.Limiter
	logger log.Logger
}

// New creates an Orchestrator. settings is called once per request to take
// a configuration snapshot.
func New(
	guard classifier,
	responseCache *cache.Response,
	ret retriever,
	chain []provider.Generator,
	exchanges recorder,
	settings func() config.Answer,
	logger log.Logger,
) *Orchestrator {
	return &Orchestrator{
		guard:     guard,
		cache:     responseCache,
		retriever: ret,
		chain:     chain,
		exchanges: exchanges,
		settings:  settings,
		pacer:     rate.NewLimiter(10, 30),
		logger:    logger,
	}
}

// Ask answers one question. The returned error is reserved for
// infrastructure failures (e.g. the search store is down); guardrail
// refusals and exhausted providers produce a Reply, not an error.
func (o *Orchestrator) Ask(ctx context.Context, req Request) (Reply, error) {
	s := o.settings()
	question := strings.TrimSpace(req.Message)

	// Guardrail runs before anything that costs quota.
	if d := o.guard.Check(question); !d.Allowed {
		o.logger.Info("question refused", "reason", d.Reason)
		reply := Reply{
			Success:            true,
			Message:            RefusalMessage,
			RetrievedDocuments: []DocRef{},
			ContextChunks:      []string{},
		}
		o.record(ctx, question, reply, exchange.StatusRejected)
		return reply, nil
	}

	key := cache.Key(question, req.Context)
	if cached, ok := o.cache.Get(key); ok {
		if reply, ok := decodeReply(cached); ok {
			o.logger.Debug("cache hit")
			o.record(ctx, question, reply, exchange.StatusDone)
			return reply, nil
		}
		// Unreadable entry: drop it and fall through to a fresh answer.
		o.cache.Invalidate(key)
	}

	res, err := o.retriever.Retrieve(ctx, question,
		retrieval.WithThreshold(s.SimilarityThreshold),
		retrieval.WithTopK(s.TopK),
	)
	if err != nil {
		return Reply{}, fmt.Errorf("retrieval: %w", err)
	}

	prompt, cited, chunks := o.buildPrompt(question, res.Hits, s.MaxContextTokens)
	grounded := len(chunks) > 0

	system := simpleSystemPrompt
	if grounded {
		system = groundedSystemPrompt
	}

	text, ok := o.generate(ctx, provider.GenerateRequest{System: system, Prompt: prompt})
	if !ok {
		reply := Reply{
			Success:            false,
			Message:            FailureMessage,
			RetrievedDocuments: []DocRef{},
			ContextChunks:      []string{},
		}
		o.record(ctx, question, reply, exchange.StatusFailed)
		return reply, nil
	}

	if !grounded {
		text = FallbackMessage + text
	}

	reply := Reply{
		Success:            true,
		Message:            text,
		RAGEnhanced:        grounded,
		RetrievedDocuments: cited,
		ContextChunks:      chunks,
	}
	o.cache.Set(key, encodeReply(reply))
	o.record(ctx, question, reply, exchange.StatusDone)
	return reply, nil
}

// buildPrompt assembles the generation prompt. Chunks are added in
// descending similarity order until including the next one would exceed
// the token budget. Citations are the unique documents of included chunks,
// in inclusion order.
func (o *Orchestrator) buildPrompt(question string, hits []vecstore.Hit, budget int) (prompt string, cited []DocRef, chunks []string) {
	cited = []DocRef{}
	chunks = []string{}

	var b strings.Builder
	used := 0
	seen := make(map[uuid.UUID]bool)

	for _, h := range hits {
		cost := chunker.EstimateTokens(h.Content)
		if used+cost > budget {
			break
		}
		used += cost
		chunks = append(chunks, h.Content)
		fmt.Fprintf(&b, "[%s]\n%s\n\n", h.Title, h.Content)

		if !seen[h.DocumentID] {
			seen[h.DocumentID] = true
			cited = append(cited, DocRef{ID: h.DocumentID, Title: h.Title})
		}
	}

	if len(chunks) == 0 {
		return question, cited, chunks
	}
	return fmt.Sprintf("Context:\n%sQuestion: %s", b.String(), question), cited, chunks
}

// generate walks the provider chain in order. Retryable failures advance
// to the next provider; a fatal result or an exhausted chain ends the loop.
func (o *Orchestrator) generate(ctx context.Context, req provider.GenerateRequest) (string, bool) {
	for _, gen := range o.chain {
		if !gen.Available(ctx) {
			o.logger.Debug("skipping unavailable backend", "backend", gen.Name())
			continue
		}
		if err := o.pacer.Wait(ctx); err != nil {
			return "", false
		}

		res := gen.Generate(ctx, req)
		switch res.Status {
		case provider.GenerateOK:
			return res.Text, true
		case provider.GenerateRetry:
			o.logger.Warn("backend failed, trying next", "backend", gen.Name(), "error", res.Err)
		case provider.GenerateFatal:
			o.logger.Error("unprocessable request, stopping chain", "backend", gen.Name(), "error", res.Err)
			return "", false
		}
	}
	o.logger.Error("provider chain exhausted")
	return "", false
}

// record appends to the exchange log. Logging failures never fail the
// request that produced the answer.
func (o *Orchestrator) record(ctx context.Context, question string, reply Reply, status exchange.Status) {
	ids := make([]uuid.UUID, 0, len(reply.RetrievedDocuments))
	for _, d := range reply.RetrievedDocuments {
		ids = append(ids, d.ID)
	}
	err := o.exchanges.Append(ctx, exchange.Record{
		Question:    question,
		Answer:      reply.Message,
		RAGEnhanced: reply.RAGEnhanced,
		CitedDocIDs: ids,
		Status:      status,
	})
	if err != nil {
		o.logger.Error("failed to record exchange", "error", err)
	}
}

// Cached replies keep their metadata by storing the serialized Reply.
func encodeReply(r Reply) string {
	data, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return string(data)
}

func decodeReply(s string) (Reply, bool) {
	var r Reply
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return Reply{}, false
	}
	return r, true
}
