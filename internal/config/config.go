// Package config loads and validates ScholarSearch configuration.
//
// Precedence, lowest to highest:
//  1. Built-in defaults
//  2. Config file (scholarsearch.yaml)
//  3. Environment variables (SCHOLARSEARCH_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	engerrors "github.com/scholargraph/scholarsearch/internal/errors"
)

// Config is the complete engine configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Reranker   RerankerConfig   `yaml:"reranker" json:"reranker"`
	LogLevel   string           `yaml:"log_level" json:"log_level"`
}

// PathsConfig configures index storage locations.
type PathsConfig struct {
	// DataDir is the directory holding the lexical index, vector index,
	// and metadata database. Defaults to ~/.scholarsearch/index.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// SearchConfig configures retrieval and fusion parameters.
type SearchConfig struct {
	// RRFConstant is the reciprocal-rank fusion smoothing parameter (k).
	// Default: 60. Must be positive; invalid values are rejected at
	// startup, never silently corrected.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// LexicalLimit is the per-query candidate limit for lexical search.
	LexicalLimit int `yaml:"lexical_limit" json:"lexical_limit"`

	// VectorLimit is the per-query candidate limit for vector search.
	VectorLimit int `yaml:"vector_limit" json:"vector_limit"`

	// RerankWindow is the number of top fused candidates sent to the
	// reranker.
	RerankWindow int `yaml:"rerank_window" json:"rerank_window"`

	// TopK is the default number of citations returned.
	TopK int `yaml:"top_k" json:"top_k"`

	// SubSearchTimeout bounds each retrieval strategy independently.
	SubSearchTimeout time.Duration `yaml:"sub_search_timeout" json:"sub_search_timeout"`

	// RerankTimeout bounds the whole rerank stage.
	RerankTimeout time.Duration `yaml:"rerank_timeout" json:"rerank_timeout"`

	// MaxRerankConcurrency bounds concurrent reranker scoring calls.
	MaxRerankConcurrency int `yaml:"max_rerank_concurrency" json:"max_rerank_concurrency"`
}

// EmbeddingsConfig configures the query embedding provider.
type EmbeddingsConfig struct {
	// OllamaHost is the embedding server endpoint.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// Model is the embedding model name.
	Model string `yaml:"model" json:"model"`

	// Dimensions is the embedding dimension. Must match the dimension the
	// vector index was built with; a mismatch is a fatal configuration
	// error. 0 means auto-detect.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// CacheSize is the LRU query-embedding cache size.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// Timeout is the per-request embedding timeout.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// RerankerConfig configures the cross-encoder reranker.
type RerankerConfig struct {
	// Enabled turns cross-encoder reranking on. When false (or when the
	// endpoint is empty) fused order is returned directly.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Endpoint is the cross-encoder scoring server URL.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Model is the cross-encoder model name.
	Model string `yaml:"model" json:"model"`

	// Timeout is the per-request scoring timeout.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: defaultDataDir(),
		},
		Search: SearchConfig{
			RRFConstant:          60,
			LexicalLimit:         50,
			VectorLimit:          50,
			RerankWindow:         80,
			TopK:                 10,
			SubSearchTimeout:     5 * time.Second,
			RerankTimeout:        10 * time.Second,
			MaxRerankConcurrency: 4,
		},
		Embeddings: EmbeddingsConfig{
			OllamaHost: "http://localhost:11434",
			Model:      "nomic-embed-text",
			CacheSize:  1000,
			Timeout:    30 * time.Second,
		},
		Reranker: RerankerConfig{
			Enabled: false,
			Model:   "bge-reranker-base",
			Timeout: 5 * time.Second,
		},
		LogLevel: "info",
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".scholarsearch", "index")
	}
	return filepath.Join(home, ".scholarsearch", "index")
}

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty), then SCHOLARSEARCH_* environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadYAML merges values from a YAML file into the config.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return engerrors.ConfigError(engerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("cannot read config file %s", path), err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return engerrors.ConfigError(engerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid YAML in %s", path), err)
	}

	return nil
}

// applyEnvOverrides applies SCHOLARSEARCH_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SCHOLARSEARCH_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("SCHOLARSEARCH_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.RRFConstant = n
		}
	}
	if v := os.Getenv("SCHOLARSEARCH_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.TopK = n
		}
	}
	if v := os.Getenv("SCHOLARSEARCH_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("SCHOLARSEARCH_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("SCHOLARSEARCH_RERANKER_ENDPOINT"); v != "" {
		c.Reranker.Endpoint = v
	}
	if v := os.Getenv("SCHOLARSEARCH_RERANKER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Reranker.Enabled = b
		}
	}
	if v := os.Getenv("SCHOLARSEARCH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks configuration invariants. Violations are fatal
// configuration errors; nothing is silently corrected.
func (c *Config) Validate() error {
	if c.Search.RRFConstant <= 0 {
		return engerrors.ConfigError(engerrors.ErrCodeRRFConstant,
			fmt.Sprintf("rrf_constant must be positive, got %d", c.Search.RRFConstant), nil)
	}
	if c.Search.LexicalLimit <= 0 {
		return engerrors.ConfigError(engerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("lexical_limit must be positive, got %d", c.Search.LexicalLimit), nil)
	}
	if c.Search.VectorLimit <= 0 {
		return engerrors.ConfigError(engerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("vector_limit must be positive, got %d", c.Search.VectorLimit), nil)
	}
	if c.Search.RerankWindow <= 0 {
		return engerrors.ConfigError(engerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("rerank_window must be positive, got %d", c.Search.RerankWindow), nil)
	}
	if c.Search.TopK <= 0 {
		return engerrors.ConfigError(engerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("top_k must be positive, got %d", c.Search.TopK), nil)
	}
	if c.Search.MaxRerankConcurrency <= 0 {
		return engerrors.ConfigError(engerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("max_rerank_concurrency must be positive, got %d", c.Search.MaxRerankConcurrency), nil)
	}
	if c.Search.SubSearchTimeout <= 0 {
		return engerrors.ConfigError(engerrors.ErrCodeConfigInvalid,
			"sub_search_timeout must be positive", nil)
	}
	if c.Search.RerankTimeout <= 0 {
		return engerrors.ConfigError(engerrors.ErrCodeConfigInvalid,
			"rerank_timeout must be positive", nil)
	}
	if c.Embeddings.Dimensions < 0 {
		return engerrors.ConfigError(engerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("embeddings dimensions must not be negative, got %d", c.Embeddings.Dimensions), nil)
	}
	if c.Reranker.Enabled && c.Reranker.Endpoint == "" {
		return engerrors.ConfigError(engerrors.ErrCodeConfigInvalid,
			"reranker enabled but endpoint is empty", nil)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// LexicalIndexPath returns the lexical index file path under DataDir.
func (c *Config) LexicalIndexPath() string {
	return filepath.Join(c.Paths.DataDir, "lexical.db")
}

// VectorIndexPath returns the vector index file path under DataDir.
func (c *Config) VectorIndexPath() string {
	return filepath.Join(c.Paths.DataDir, "vectors.idx")
}

// MetadataPath returns the metadata database path under DataDir.
func (c *Config) MetadataPath() string {
	return filepath.Join(c.Paths.DataDir, "metadata.db")
}
