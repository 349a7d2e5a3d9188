package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholargraph/scholarsearch/internal/search"
)

// writeTestConfig writes a config pointing at a temp data directory with
// a tiny embedding dimension and an unreachable embedding server, so
// queries degrade to lexical-only without network access.
func writeTestConfig(t *testing.T) (configPath, dataDir string) {
	t.Helper()
	dir := t.TempDir()
	dataDir = filepath.Join(dir, "index")

	configPath = filepath.Join(dir, "scholarsearch.yaml")
	content := fmt.Sprintf(`paths:
  data_dir: %s
embeddings:
  ollama_host: http://127.0.0.1:1
  dimensions: 4
`, dataDir)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	t.Cleanup(func() { cfgFile = "" })
	return configPath, dataDir
}

func writeTestCorpus(t *testing.T) string {
	t.Helper()
	lines := []string{
		`{"kind":"person","person":{"id":"p1","name":"Grace Hopper","school":"School of Computing"}}`,
		`{"kind":"publication","publication":{"id":"w1","title":"Neural Ranking Models","authors":["Hopper, G."],"year":2021,"venue":"SIGIR"}}`,
		`{"kind":"fragment","fragment":{"id":"w1-title","type":"work-title","content":"Neural Ranking Models","publication_id":"w1"},"embedding":[0.1,0.2,0.3,0.4]}`,
		`{"kind":"fragment","fragment":{"id":"w1-abstract","type":"work-abstract","content":"We study neural ranking models for academic retrieval.","publication_id":"w1"},"embedding":[0.2,0.1,0.4,0.3]}`,
		`{"kind":"fragment","fragment":{"id":"p1-summary","type":"profile-summary","content":"Researches compilers and programming languages.","person_id":"p1"}}`,
	}
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestIndexAndSearchEndToEnd(t *testing.T) {
	configPath, dataDir := writeTestConfig(t)
	corpusPath := writeTestCorpus(t)

	out, err := runCLI(t, "--config", configPath, "index", corpusPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 3 fragments")
	assert.Contains(t, out, "2 with vectors")
	assert.FileExists(t, filepath.Join(dataDir, "metadata.db"))
	assert.FileExists(t, filepath.Join(dataDir, "vectors.idx"))

	// The embedding server is unreachable, so the query runs
	// lexical-only and reports vector degradation.
	out, err = runCLI(t, "--config", configPath, "search", "neural ranking", "--format", "json")
	require.NoError(t, err)

	var result search.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.NotEmpty(t, result.Citations)
	assert.True(t, result.Diagnostics.VectorDegraded)
	assert.False(t, result.Diagnostics.LexicalDegraded)

	ids := make([]string, 0, len(result.Citations))
	for _, c := range result.Citations {
		ids = append(ids, c.FragmentID)
	}
	assert.Contains(t, ids, "w1-abstract")

	// Provenance resolves through the metadata store.
	assert.Contains(t, out, "Neural Ranking Models")
}

func TestSearchWithoutIndexFails(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	_, err := runCLI(t, "--config", configPath, "search", "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestIndexRejectsMalformedCorpus(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"kind":"mystery"}`+"\n"), 0o644))

	_, err := runCLI(t, "--config", configPath, "index", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown record kind")
}

func TestStatusReportsIndexCounts(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	corpusPath := writeTestCorpus(t)

	_, err := runCLI(t, "--config", configPath, "index", corpusPath)
	require.NoError(t, err)

	out, err := runCLI(t, "--config", configPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Lexical index: 3 documents")
	assert.Contains(t, out, "Vector index: 2 vectors, 4 dimensions")
}

func TestConfigInitAndShow(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "scholarsearch.yaml")
	t.Cleanup(func() { cfgFile = "" })

	out, err := runCLI(t, "--config", configPath, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote default config")
	assert.FileExists(t, configPath)

	out, err = runCLI(t, "--config", configPath, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "rrf_constant: 60")

	// Re-running init without --force refuses to overwrite.
	_, err = runCLI(t, "--config", configPath, "config", "init")
	require.Error(t, err)
}
