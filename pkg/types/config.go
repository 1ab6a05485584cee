// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// MaxAttempts bounds retries of one external call (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
}

// SourcesConfig holds settings for the literature catalog adapters.
type SourcesConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Enabled lists the adapters to run (default: openalex, semantic_scholar).
	Enabled []string `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// MaxPerSource caps results fetched from each catalog per sub-query (default 50).
	MaxPerSource int `json:"max_per_source" yaml:"max_per_source" mapstructure:"max_per_source"`

	// OpenAlexEmail is sent as mailto for the OpenAlex polite pool.
	OpenAlexEmail string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty" mapstructure:"openalex_email"`

	// SemanticScholarAPIKey is an optional key for higher rate limits.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty" mapstructure:"semantic_scholar_api_key"`

	// RequestsPerSecond is the per-adapter rate limit (default 1).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// MinAbstractChars rejects records with shorter abstracts (default 50).
	MinAbstractChars int `json:"min_abstract_chars" yaml:"min_abstract_chars" mapstructure:"min_abstract_chars"`
}

// ChunkConfig holds the chunker parameters, all in tokens.
type ChunkConfig struct {
	TargetTokens  int `json:"target_tokens" yaml:"target_tokens" mapstructure:"target_tokens"`
	OverlapTokens int `json:"overlap_tokens" yaml:"overlap_tokens" mapstructure:"overlap_tokens"`
	MinTokens     int `json:"min_tokens" yaml:"min_tokens" mapstructure:"min_tokens"`

	// Encoding names the tiktoken encoding (default cl100k_base).
	Encoding string `json:"encoding" yaml:"encoding" mapstructure:"encoding"`
}

// EmbeddingConfig holds settings for the embedding provider.
type EmbeddingConfig struct {
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`
	Model      string `json:"model" yaml:"model" mapstructure:"model"`
	Dimensions int    `json:"dimensions" yaml:"dimensions" mapstructure:"dimensions"`
	BatchSize  int    `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`

	// MaxInputTokens truncates longer inputs before they are sent (default 8191).
	MaxInputTokens int `json:"max_input_tokens" yaml:"max_input_tokens" mapstructure:"max_input_tokens"`

	// BatchTimeout bounds one provider call (default 60s).
	BatchTimeout time.Duration `json:"batch_timeout" yaml:"batch_timeout" mapstructure:"batch_timeout"`

	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
}

// IndexBackend selects the vector index implementation.
type IndexBackend string

const (
	IndexSQLite IndexBackend = "sqlite"
	IndexRedis  IndexBackend = "redis"
)

// IndexConfig holds vector index settings.
type IndexConfig struct {
	Backend IndexBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Oversample multiplies TopK when querying the index (default 3).
	Oversample int `json:"oversample" yaml:"oversample" mapstructure:"oversample"`

	RedisAddrs    []string `json:"redis_addrs,omitempty" yaml:"redis_addrs,omitempty" mapstructure:"redis_addrs"`
	RedisPassword string   `json:"redis_password,omitempty" yaml:"redis_password,omitempty" mapstructure:"redis_password"`
	RedisIndex    string   `json:"redis_index" yaml:"redis_index" mapstructure:"redis_index"`

	// HNSWM and HNSWEFConstruction tune the Redis HNSW graph.
	HNSWM              int `json:"hnsw_m" yaml:"hnsw_m" mapstructure:"hnsw_m"`
	HNSWEFConstruction int `json:"hnsw_ef_construction" yaml:"hnsw_ef_construction" mapstructure:"hnsw_ef_construction"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	// Workers bounds concurrently running jobs (default 4).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`
}

// LogConfig selects the logger flavour.
type LogConfig struct {
	// Env is prod (JSON) or local/dev (console).
	Env   string `json:"env" yaml:"env" mapstructure:"env"`
	Level string `json:"level,omitempty" yaml:"level,omitempty" mapstructure:"level"`
}

// Config groups all component configurations.
type Config struct {
	Sources   SourcesConfig   `json:"sources" yaml:"sources" mapstructure:"sources"`
	Chunking  ChunkConfig     `json:"chunking" yaml:"chunking" mapstructure:"chunking"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	Index     IndexConfig     `json:"index" yaml:"index" mapstructure:"index"`
	Store     StoreConfig     `json:"store" yaml:"store" mapstructure:"store"`
	Pipeline  PipelineConfig  `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Log       LogConfig       `json:"log" yaml:"log" mapstructure:"log"`
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Sources.Timeout == 0 {
		c.Sources.Timeout = 30 * time.Second
	}
	if c.Sources.UserAgent == "" {
		c.Sources.UserAgent = "litrag/0.1"
	}
	if c.Sources.MaxAttempts <= 0 {
		c.Sources.MaxAttempts = 3
	}
	if len(c.Sources.Enabled) == 0 {
		c.Sources.Enabled = []string{SourceOpenAlex, SourceSemanticScholar}
	}
	if c.Sources.MaxPerSource <= 0 {
		c.Sources.MaxPerSource = 50
	}
	if c.Sources.RequestsPerSecond <= 0 {
		c.Sources.RequestsPerSecond = 1
	}
	if c.Sources.MinAbstractChars <= 0 {
		c.Sources.MinAbstractChars = 50
	}

	if c.Chunking.TargetTokens <= 0 {
		c.Chunking.TargetTokens = 500
	}
	if c.Chunking.OverlapTokens < 0 {
		c.Chunking.OverlapTokens = 0
	} else if c.Chunking.OverlapTokens == 0 {
		c.Chunking.OverlapTokens = 50
	}
	if c.Chunking.MinTokens <= 0 {
		c.Chunking.MinTokens = 50
	}
	if c.Chunking.Encoding == "" {
		c.Chunking.Encoding = "cl100k_base"
	}

	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 100
	}
	if c.Embedding.MaxInputTokens <= 0 {
		c.Embedding.MaxInputTokens = 8191
	}
	if c.Embedding.BatchTimeout == 0 {
		c.Embedding.BatchTimeout = 60 * time.Second
	}
	if c.Embedding.MaxAttempts <= 0 {
		c.Embedding.MaxAttempts = 3
	}

	if c.Index.Backend == "" {
		c.Index.Backend = IndexSQLite
	}
	if c.Index.Oversample <= 0 {
		c.Index.Oversample = 3
	}
	if c.Index.RedisIndex == "" {
		c.Index.RedisIndex = "chunks_idx"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruction <= 0 {
		c.Index.HNSWEFConstruction = 200
	}

	if c.Store.Path == "" {
		c.Store.Path = "litrag.db"
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 4
	}
	if c.Log.Env == "" {
		c.Log.Env = "local"
	}
}

// Validate checks cross-field constraints after defaults are applied.
func (c *Config) Validate() error {
	if c.Chunking.OverlapTokens >= c.Chunking.TargetTokens {
		return fmt.Errorf("chunking.overlap_tokens (%d) must be below chunking.target_tokens (%d)",
			c.Chunking.OverlapTokens, c.Chunking.TargetTokens)
	}
	if c.Chunking.MinTokens > c.Chunking.TargetTokens {
		return fmt.Errorf("chunking.min_tokens (%d) must not exceed chunking.target_tokens (%d)",
			c.Chunking.MinTokens, c.Chunking.TargetTokens)
	}
	switch c.Index.Backend {
	case IndexSQLite:
	case IndexRedis:
		if len(c.Index.RedisAddrs) == 0 {
			return fmt.Errorf("index.redis_addrs is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown index.backend %q: use sqlite or redis", c.Index.Backend)
	}
	for _, s := range c.Sources.Enabled {
		if s != SourceOpenAlex && s != SourceSemanticScholar {
			return fmt.Errorf("unknown source %q in sources.enabled", s)
		}
	}
	return nil
}
