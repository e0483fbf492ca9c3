package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"

	"github.com/aulahq/aula/internal/config"
	"github.com/aulahq/aula/internal/log"
)

// Stack bundles the configured embedder and the ordered generation chain.
type Stack struct {
	Genkit   *genkit.Genkit
	Embedder Embedder
	Chain    []Generator
}

// Setup initializes Genkit with the plugins the configured provider chain
// needs and builds the embedder plus one Generator per chain entry.
//
// API keys (GEMINI_API_KEY, OPENAI_API_KEY) are read directly by the
// Genkit plugins, not by this package.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*Stack, error) {
	var (
		plugins      []api.Plugin
		ollamaPlugin *ollama.Ollama
	)

	// The Google AI plugin is always loaded: it backs the default embedder
	// even when the generation chain runs elsewhere.
	plugins = append(plugins, &googlegenai.GoogleAI{})

	if chainUses(cfg.Providers, config.ProviderOllama) || embedderProvider(cfg.EmbedderModel) == config.ProviderOllama {
		ollamaPlugin = &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		plugins = append(plugins, ollamaPlugin)
	}
	if chainUses(cfg.Providers, config.ProviderOpenAI) || embedderProvider(cfg.EmbedderModel) == config.ProviderOpenAI {
		plugins = append(plugins, &openai.OpenAI{})
	}

	g := genkit.Init(ctx, genkit.WithPlugins(plugins...))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}

	// Ollama requires explicit model registration (no auto-discovery).
	if ollamaPlugin != nil {
		for _, entry := range cfg.Providers {
			if prov, model, ok := splitEntry(entry); ok && prov == config.ProviderOllama {
				ollamaPlugin.DefineModel(g, ollama.ModelDefinition{Name: model, Type: "chat"}, nil)
			}
		}
		if embedderProvider(cfg.EmbedderModel) == config.ProviderOllama {
			_, model, _ := splitEntry(cfg.EmbedderModel)
			ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, model, nil)
		}
	}

	emb, err := newEmbedder(g, cfg)
	if err != nil {
		return nil, err
	}

	chain := make([]Generator, 0, len(cfg.Providers))
	for _, entry := range cfg.Providers {
		chain = append(chain, newModel(g, qualify(entry), cfg.ProviderTimeout, logger))
	}

	logger.Info("provider stack initialized",
		"chain", strings.Join(cfg.Providers, " -> "),
		"embedder", cfg.EmbedderModel)

	return &Stack{Genkit: g, Embedder: emb, Chain: chain}, nil
}

// chainUses reports whether any chain entry belongs to the given provider.
func chainUses(entries []string, provider string) bool {
	for _, e := range entries {
		if p, _, ok := splitEntry(e); ok && p == provider {
			return true
		}
	}
	return false
}

// splitEntry splits "ollama/llama3.3" into ("ollama", "llama3.3", true).
// Unqualified entries report ok=false.
func splitEntry(entry string) (provider, model string, ok bool) {
	provider, model, ok = strings.Cut(entry, "/")
	return provider, model, ok
}

// qualify normalizes a chain entry to a provider-qualified model name.
// Unqualified entries default to googleai.
func qualify(entry string) string {
	if strings.Contains(entry, "/") {
		return entry
	}
	return config.ProviderGoogleAI + "/" + entry
}

// embedderProvider returns the provider prefix of the embedder model name,
// defaulting to googleai for unqualified names.
func embedderProvider(model string) string {
	if p, _, ok := splitEntry(model); ok {
		return p
	}
	return config.ProviderGoogleAI
}

// newEmbedder looks up the embedder registered by the owning plugin.
func newEmbedder(g *genkit.Genkit, cfg *config.Config) (Embedder, error) {
	var e ai.Embedder

	prov := embedderProvider(cfg.EmbedderModel)
	_, model, _ := splitEntry(cfg.EmbedderModel)
	if model == "" {
		model = cfg.EmbedderModel
	}

	switch prov {
	case config.ProviderOllama:
		e = ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		e = genkit.LookupEmbedder(g, api.NewName("openai", model))
	default:
		e = googlegenai.GoogleAIEmbedder(g, model)
	}
	if e == nil {
		return nil, fmt.Errorf("%w: embedder %q not found for provider %q", ErrUnavailable, model, prov)
	}

	ge := &genkitEmbedder{emb: e}

	// nomic-embed models are trained with task prefixes; without them index
	// and query vectors land in different subspaces and similarity collapses.
	if strings.Contains(model, "nomic-embed") {
		ge.indexPrefix = "search_document: "
		ge.queryPrefix = "search_query: "
	}

	return ge, nil
}

// genkitEmbedder adapts a Genkit ai.Embedder to the Embedder interface.
type genkitEmbedder struct {
	emb         ai.Embedder
	indexPrefix string
	queryPrefix string
}

func (e *genkitEmbedder) Embed(ctx context.Context, text string, purpose Purpose) ([]float32, error) {
	switch purpose {
	case PurposeIndex:
		text = e.indexPrefix + text
	case PurposeQuery:
		text = e.queryPrefix + text
	}

	resp, err := e.emb.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embed: %w", ErrUnavailable, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned", ErrUnavailable)
	}

	return resp.Embeddings[0].Embedding, nil
}

func (e *genkitEmbedder) Available(_ context.Context) bool {
	return e.emb != nil
}

// model is a Generator backed by one Genkit-registered model.
type model struct {
	g       *genkit.Genkit
	name    string // provider-qualified model name
	timeout time.Duration
	breaker *CircuitBreaker
	logger  log.Logger
}

func newModel(g *genkit.Genkit, name string, timeout time.Duration, logger log.Logger) *model {
	return &model{
		g:       g,
		name:    name,
		timeout: timeout,
		breaker: NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		logger:  logger.With("backend", name),
	}
}

func (m *model) Name() string { return m.name }

func (m *model) Available(_ context.Context) bool {
	return m.breaker.Allow() == nil
}

// Generate runs one bounded attempt against this backend. Failures feed the
// circuit breaker so a dead backend stops consuming its full timeout on
// every request.
func (m *model) Generate(ctx context.Context, req GenerateRequest) GenerateResult {
	if err := m.breaker.Allow(); err != nil {
		return GenerateResult{Status: GenerateRetry, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	opts := []ai.GenerateOption{
		ai.WithModelName(m.name),
		ai.WithMessages(ai.NewUserMessage(ai.NewTextPart(req.Prompt))),
	}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}

	resp, err := genkit.Generate(ctx, m.g, opts...)
	if err != nil {
		m.breaker.Failure()
		m.logger.Warn("generation attempt failed", "error", err)
		return GenerateResult{Status: classify(err), Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		m.breaker.Failure()
		return GenerateResult{Status: GenerateRetry, Err: ErrEmptyResponse}
	}

	m.breaker.Success()
	return GenerateResult{Status: GenerateOK, Text: text}
}
