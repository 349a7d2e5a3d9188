package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engerrors "github.com/scholargraph/scholarsearch/internal/errors"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 50, cfg.Search.LexicalLimit)
	assert.Equal(t, 50, cfg.Search.VectorLimit)
	assert.Equal(t, 80, cfg.Search.RerankWindow)
	assert.Equal(t, 10, cfg.Search.TopK)
	assert.Equal(t, 4, cfg.Search.MaxRerankConcurrency)
	assert.False(t, cfg.Reranker.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scholarsearch.yaml")
	yaml := `
search:
  rrf_constant: 30
  top_k: 5
reranker:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Search.RRFConstant)
	assert.Equal(t, 5, cfg.Search.TopK)
	assert.False(t, cfg.Reranker.Enabled)
	// Untouched values keep defaults.
	assert.Equal(t, 80, cfg.Search.RerankWindow)
}

func TestEnvOverridesWin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scholarsearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  rrf_constant: 30\n"), 0o644))

	t.Setenv("SCHOLARSEARCH_RRF_CONSTANT", "90")
	t.Setenv("SCHOLARSEARCH_OLLAMA_HOST", "http://embed.internal:11434")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 90, cfg.Search.RRFConstant)
	assert.Equal(t, "http://embed.internal:11434", cfg.Embeddings.OllamaHost)
}

func TestValidateRejectsNonPositiveRRFConstant(t *testing.T) {
	for _, k := range []int{0, -1, -60} {
		cfg := NewConfig()
		cfg.Search.RRFConstant = k

		err := cfg.Validate()
		require.Error(t, err)
		assert.Equal(t, engerrors.ErrCodeRRFConstant, engerrors.GetCode(err))
		assert.True(t, engerrors.IsFatal(err))
	}
}

func TestValidateRejectsInvalidLimits(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero top_k", func(c *Config) { c.Search.TopK = 0 }},
		{"negative lexical limit", func(c *Config) { c.Search.LexicalLimit = -1 }},
		{"zero rerank window", func(c *Config) { c.Search.RerankWindow = 0 }},
		{"zero rerank concurrency", func(c *Config) { c.Search.MaxRerankConcurrency = 0 }},
		{"zero sub-search timeout", func(c *Config) { c.Search.SubSearchTimeout = 0 }},
		{"reranker enabled without endpoint", func(c *Config) {
			c.Reranker.Enabled = true
			c.Reranker.Endpoint = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.Reranker.Endpoint = "http://localhost:9700"
			cfg.Search.SubSearchTimeout = 5 * time.Second
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, engerrors.IsConfig(err))
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, engerrors.ErrCodeConfigInvalid, engerrors.GetCode(err))
}

func TestWriteAndReloadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")

	cfg := NewConfig()
	cfg.Reranker.Endpoint = "http://localhost:9700"
	cfg.Search.RRFConstant = 42
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Search.RRFConstant)
}

func TestDerivedPaths(t *testing.T) {
	cfg := NewConfig()
	cfg.Paths.DataDir = "/data/idx"

	assert.Equal(t, filepath.Join("/data/idx", "lexical.db"), cfg.LexicalIndexPath())
	assert.Equal(t, filepath.Join("/data/idx", "vectors.idx"), cfg.VectorIndexPath())
	assert.Equal(t, filepath.Join("/data/idx", "metadata.db"), cfg.MetadataPath())
}
