package config

import (
	"fmt"
	"strings"
	"time"
)

// validSSLModes are the PostgreSQL SSL modes accepted by the pgx driver.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// validProviders are the supported generation provider prefixes.
var validProviders = map[string]bool{
	ProviderGoogleAI: true,
	ProviderOllama:   true,
	ProviderOpenAI:   true,
}

// Validate checks the full configuration and fails fast with a wrapped
// sentinel error on the first problem found.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateRetrieval(); err != nil {
		return err
	}
	if err := c.validateCacheAndIngest(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return c.validateServer()
}

func (c *Config) validateProviders() error {
	if len(c.Providers) == 0 {
		return ErrEmptyProviderChain
	}
	for _, entry := range c.Providers {
		name := strings.TrimSpace(entry)
		if name == "" {
			return fmt.Errorf("%w: empty chain entry", ErrInvalidProvider)
		}
		if !validProviders[qualifiedProvider(name)] {
			return fmt.Errorf("%w: %q (want googleai/, ollama/ or openai/ prefix)",
				ErrInvalidProvider, name)
		}
	}
	if c.ProviderTimeout <= 0 || c.ProviderTimeout > 10*time.Minute {
		return fmt.Errorf("%w: provider_timeout %s out of range (0, 10m]",
			ErrInvalidProvider, c.ProviderTimeout)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return ErrInvalidEmbedderModel
	}
	if c.EmbedderDimension < 1 || c.EmbedderDimension > 8192 {
		return fmt.Errorf("%w: dimension %d out of range [1, 8192]",
			ErrInvalidEmbedderModel, c.EmbedderDimension)
	}
	return nil
}

func (c *Config) validateRetrieval() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: %g out of range [0, 1]", ErrInvalidThreshold, c.SimilarityThreshold)
	}
	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: %d out of range [1, 100]", ErrInvalidTopK, c.TopK)
	}
	if c.MaxContextTokens < 100 || c.MaxContextTokens > 1_000_000 {
		return fmt.Errorf("%w: %d out of range [100, 1000000]", ErrInvalidTokenBudget, c.MaxContextTokens)
	}
	if c.RetrievalMode != RetrievalNative && c.RetrievalMode != RetrievalScan {
		return fmt.Errorf("%w: retrieval_mode %q (want %q or %q)",
			ErrInvalidThreshold, c.RetrievalMode, RetrievalNative, RetrievalScan)
	}
	if c.ChunkSize < 50 || c.ChunkSize > 10_000 {
		return fmt.Errorf("%w: chunk_size %d out of range [50, 10000]", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be in [0, chunk_size)", ErrInvalidChunking, c.ChunkOverlap)
	}
	return nil
}

func (c *Config) validateCacheAndIngest() error {
	if c.CacheCapacity < 1 || c.CacheCapacity > 1_000_000 {
		return fmt.Errorf("%w: capacity %d out of range [1, 1000000]", ErrInvalidCache, c.CacheCapacity)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("%w: ttl %s must be positive", ErrInvalidCache, c.CacheTTL)
	}
	if c.LeaseTTL <= 0 || c.LeaseTTL > time.Hour {
		return fmt.Errorf("%w: lease_ttl %s out of range (0, 1h]", ErrInvalidLease, c.LeaseTTL)
	}
	// The sweeper resets items stuck past SweepAge; resetting items younger
	// than the lease TTL would steal work from live holders.
	if c.SweepAge < c.LeaseTTL {
		return fmt.Errorf("%w: sweep_age %s must be >= lease_ttl %s", ErrInvalidLease, c.SweepAge, c.LeaseTTL)
	}
	if c.WorkerPoolSize < 1 || c.WorkerPoolSize > 256 {
		return fmt.Errorf("%w: worker_pool_size %d out of range [1, 256]", ErrInvalidLease, c.WorkerPoolSize)
	}
	if c.IngestBatch < 1 || c.IngestBatch > 1000 {
		return fmt.Errorf("%w: ingest_batch %d out of range [1, 1000]", ErrInvalidLease, c.IngestBatch)
	}
	if c.ProcessingMode != ProcessingInline && c.ProcessingMode != ProcessingQueued {
		return fmt.Errorf("%w: processing_mode %q (want %q or %q)",
			ErrInvalidLease, c.ProcessingMode, ProcessingInline, ProcessingQueued)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.PostgresHost) == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d out of range [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return ErrInvalidPostgresDBName
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.RateLimit <= 0 || c.RateLimit > 10_000 {
		return fmt.Errorf("%w: rate_limit %g out of range (0, 10000]", ErrInvalidRateLimit, c.RateLimit)
	}
	if c.RateBurst < 1 || c.RateBurst > 100_000 {
		return fmt.Errorf("%w: rate_burst %d out of range [1, 100000]", ErrInvalidRateLimit, c.RateBurst)
	}
	return nil
}
