package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const shutdownTimeout = 10 * time.Second

// Cache is what the API needs from the response cache: clearing on
// document mutations and stats for the stats endpoint.
type Cache interface {
	responseCache
	CacheStats
}

// ServerConfig contains the dependencies for the JSON API server.
type ServerConfig struct {
	Logger     *slog.Logger
	Answerer   Answerer        // Required
	Documents  DocumentStore   // Required
	Indexer    DocumentIndexer // Required when InlineIndexing
	Syncer     Reindexer       // Required
	Cache      Cache           // Required
	Pool       *pgxpool.Pool   // Optional: nil disables the DB ping in /ready
	RateLimit  float64         // Tokens per second per IP (0 = default 1)
	RateBurst  int             // Burst size per IP (0 = default 60)
	TrustProxy bool            // Trust X-Real-IP/X-Forwarded-For
	// InlineIndexing runs chunk+embed on the request path after document
	// mutations. When false the background worker picks documents up.
	InlineIndexing bool
}

// Server is the JSON API HTTP server.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	switch {
	case cfg.Answerer == nil:
		return nil, errors.New("answerer is required")
	case cfg.Documents == nil:
		return nil, errors.New("document store is required")
	case cfg.Syncer == nil:
		return nil, errors.New("syncer is required")
	case cfg.Cache == nil:
		return nil, errors.New("cache is required")
	case cfg.InlineIndexing && cfg.Indexer == nil:
		return nil, errors.New("indexer is required for inline indexing")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ah := &askHandler{answerer: cfg.Answerer, logger: logger}
	dh := &documentsHandler{
		store:   cfg.Documents,
		indexer: cfg.Indexer,
		cache:   cfg.Cache,
		inline:  cfg.InlineIndexing,
		logger:  logger,
	}
	rh := &reindexHandler{syncer: cfg.Syncer, cache: cfg.Cache, logger: logger}
	sh := &statsHandler{cache: cfg.Cache, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/ask", ah.ask)
	mux.HandleFunc("POST /api/documents", dh.create)
	mux.HandleFunc("PUT /api/documents/{id}", dh.update)
	mux.HandleFunc("DELETE /api/documents/{id}", dh.remove)
	mux.HandleFunc("POST /api/reindex", rh.reindex)
	mux.HandleFunc("GET /api/stats", sh.stats)

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 1.0
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(limit, burst)

	// Middleware stack, outermost first:
	//   Recovery → Logging → RateLimit → Routes
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	inner := handler
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w)
		inner.ServeHTTP(w, r)
	})

	// Health probes bypass the middleware stack so load balancers are
	// never rate limited.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.HandleFunc("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", final)

	return &Server{mux: topMux, logger: logger}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
// Header and idle timeouts bound slow-client connections.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute, // generation requests are slow
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("api server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down api server: %w", err)
		}
		<-errCh // drain ListenAndServe's ErrServerClosed
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	}
}
