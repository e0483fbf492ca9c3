// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.aula/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider fallback chain, model names, embedder
//   - Answer: similarity threshold, top-K, context token budget
//   - Cache: response cache capacity and TTL
//   - Ingest: lease TTL, sweep age, worker pool size
//   - Storage: PostgreSQL connection (see storage.go)
//   - Server: listen address, rate limiting
//
// The answer pipeline never reads configuration at request time. Callers
// take a read-only Answer snapshot via AnswerSettings() and pass it down
// explicitly, so thresholds observed by one request cannot change mid-flight.
//
// Security: sensitive values (passwords) are masked in MarshalJSON and never
// logged. Validation uses sentinel errors checkable with errors.Is.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors returned by Validate.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates an unsupported provider in the chain.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrEmptyProviderChain indicates no generation providers are configured.
	ErrEmptyProviderChain = errors.New("empty provider chain")

	// ErrInvalidEmbedderModel indicates the embedder model name is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidThreshold indicates the similarity threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidTopK indicates the retrieval top-K is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidTokenBudget indicates the context token budget is out of range.
	ErrInvalidTokenBudget = errors.New("invalid context token budget")

	// ErrInvalidChunking indicates chunk size or overlap is out of range.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidCache indicates the cache capacity or TTL is out of range.
	ErrInvalidCache = errors.New("invalid cache configuration")

	// ErrInvalidLease indicates the ingest lease TTL is out of range.
	ErrInvalidLease = errors.New("invalid lease configuration")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidRateLimit indicates the API rate limit settings are out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")
)

// AI provider identifiers accepted in the provider chain.
const (
	ProviderGoogleAI = "googleai"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 768 dimensions via
	// OutputDimensionality; the chunks table schema uses vector(768).
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultEmbedderDimension is the vector width the schema expects.
	DefaultEmbedderDimension = 768

	// DefaultSimilarityThreshold is the minimum cosine similarity for a chunk
	// to count as relevant. Empirically tuned; override per deployment.
	DefaultSimilarityThreshold = 0.55

	// DefaultTopK is the default number of chunks retrieved per query.
	DefaultTopK = 5

	// DefaultMaxContextTokens caps how much retrieved text is concatenated
	// into the generation prompt.
	DefaultMaxContextTokens = 2000
)

// ProcessingInline and ProcessingQueued select how (re)indexing work runs.
const (
	ProcessingInline = "inline"
	ProcessingQueued = "queued"
)

// Retrieval modes. Native uses the pgvector <=> operator; scan loads chunk
// embeddings and scores cosine similarity in-process.
const (
	RetrievalNative = "native"
	RetrievalScan   = "scan"
)

// Answer is the read-only per-request settings snapshot for the answer
// pipeline. It is copied out of Config once per request so no request ever
// observes a mid-flight change.
type Answer struct {
	SimilarityThreshold float64
	TopK                int
	MaxContextTokens    int
	ProviderTimeout     time.Duration
	Providers           []string // ordered, provider-qualified model names
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON.
type Config struct {
	// Generation provider chain, tried in order. Entries are
	// provider-qualified model names: "googleai/gemini-2.5-flash",
	// "ollama/llama3.3", "openai/gpt-4o-mini".
	Providers []string `mapstructure:"providers" json:"providers"`

	// OllamaHost is the Ollama server address, used when any chain entry
	// has the ollama/ prefix.
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// ProviderTimeout bounds each generation attempt. Total request latency
	// is bounded by ProviderTimeout * len(Providers).
	ProviderTimeout time.Duration `mapstructure:"provider_timeout" json:"provider_timeout"`

	// Embedding configuration.
	EmbedderModel     string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDimension int    `mapstructure:"embedder_dimension" json:"embedder_dimension"`

	// Retrieval configuration.
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" json:"similarity_threshold"`
	TopK                int     `mapstructure:"top_k" json:"top_k"`
	MaxContextTokens    int     `mapstructure:"max_context_tokens" json:"max_context_tokens"`
	RetrievalMode       string  `mapstructure:"retrieval_mode" json:"retrieval_mode"`

	// Chunking configuration (estimated tokens).
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Response cache configuration.
	CacheCapacity int           `mapstructure:"cache_capacity" json:"cache_capacity"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" json:"cache_ttl"`

	// Guardrail configuration: extra in-domain vocabulary terms merged with
	// the built-in institution vocabulary.
	GuardrailTerms []string `mapstructure:"guardrail_terms" json:"guardrail_terms"`

	// Ingestion configuration.
	LeaseTTL       time.Duration `mapstructure:"lease_ttl" json:"lease_ttl"`
	SweepAge       time.Duration `mapstructure:"sweep_age" json:"sweep_age"`
	WorkerPoolSize int           `mapstructure:"worker_pool_size" json:"worker_pool_size"`
	IngestBatch    int           `mapstructure:"ingest_batch" json:"ingest_batch"`

	// ProcessingMode selects inline or queued (re)indexing.
	ProcessingMode string `mapstructure:"processing_mode" json:"processing_mode"`

	// RecordsPath points at the JSON record export the sync job mirrors
	// into documents. Empty means no record source is configured; reindex
	// runs report zero records.
	RecordsPath string `mapstructure:"records_path" json:"records_path"`

	// Storage configuration (see storage.go).
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Server configuration.
	ListenAddr string  `mapstructure:"listen_addr" json:"listen_addr"`
	RateLimit  float64 `mapstructure:"rate_limit" json:"rate_limit"` // requests per second per client
	RateBurst  int     `mapstructure:"rate_burst" json:"rate_burst"`
	TrustProxy bool    `mapstructure:"trust_proxy" json:"trust_proxy"`

	// Tracing configuration. Empty endpoint disables the exporter.
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".aula")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Generation defaults
	viper.SetDefault("providers", []string{"googleai/gemini-2.5-flash"})
	viper.SetDefault("ollama_host", "http://localhost:11434")
	viper.SetDefault("provider_timeout", "30s")

	// Embedding defaults
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embedder_dimension", DefaultEmbedderDimension)

	// Retrieval defaults
	viper.SetDefault("similarity_threshold", DefaultSimilarityThreshold)
	viper.SetDefault("top_k", DefaultTopK)
	viper.SetDefault("max_context_tokens", DefaultMaxContextTokens)
	viper.SetDefault("retrieval_mode", RetrievalNative)

	// Chunking defaults
	viper.SetDefault("chunk_size", 400)
	viper.SetDefault("chunk_overlap", 50)

	// Cache defaults
	viper.SetDefault("cache_capacity", 256)
	viper.SetDefault("cache_ttl", "10m")

	// Ingestion defaults
	viper.SetDefault("lease_ttl", "5m")
	viper.SetDefault("sweep_age", "30m")
	viper.SetDefault("worker_pool_size", 4)
	viper.SetDefault("ingest_batch", 10)
	viper.SetDefault("processing_mode", ProcessingInline)
	viper.SetDefault("records_path", "")

	// PostgreSQL defaults (local development database)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "aula")
	viper.SetDefault("postgres_password", "aula_dev_password")
	viper.SetDefault("postgres_db_name", "aula")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Server defaults
	viper.SetDefault("listen_addr", "127.0.0.1:3500")
	viper.SetDefault("rate_limit", 2.0)
	viper.SetDefault("rate_burst", 10)
	viper.SetDefault("trust_proxy", false)

	// Tracing defaults (disabled unless endpoint set)
	viper.SetDefault("otlp_endpoint", "")
	viper.SetDefault("service_name", "aula")
}

// bindEnvVariables binds runtime override variables explicitly.
// GEMINI_API_KEY and OPENAI_API_KEY are read directly by the Genkit plugins,
// not via Viper.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("providers", "AULA_PROVIDERS")
	mustBind("ollama_host", "AULA_OLLAMA_HOST")
	mustBind("embedder_model", "AULA_EMBEDDER_MODEL")
	mustBind("listen_addr", "AULA_LISTEN_ADDR")
	mustBind("rate_limit", "AULA_RATE_LIMIT")
	mustBind("rate_burst", "AULA_RATE_BURST")
	mustBind("trust_proxy", "AULA_TRUST_PROXY")
	mustBind("records_path", "AULA_RECORDS_PATH")
	mustBind("otlp_endpoint", "AULA_OTLP_ENDPOINT")
}

// AnswerSettings returns the read-only per-request snapshot for the answer
// pipeline. The returned value shares no mutable state with the Config.
func (c *Config) AnswerSettings() Answer {
	providers := make([]string, len(c.Providers))
	copy(providers, c.Providers)
	return Answer{
		SimilarityThreshold: c.SimilarityThreshold,
		TopK:                c.TopK,
		MaxContextTokens:    c.MaxContextTokens,
		ProviderTimeout:     c.ProviderTimeout,
		Providers:           providers,
	}
}

// qualifiedProvider splits a chain entry like "googleai/gemini-2.5-flash"
// into its provider prefix. Entries without a slash default to googleai.
func qualifiedProvider(entry string) string {
	if prefix, _, ok := strings.Cut(entry, "/"); ok {
		return prefix
	}
	return ProviderGoogleAI
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 bytes or
// fewer are fully masked so the output can never contain a substring of the
// original value.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking. When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
