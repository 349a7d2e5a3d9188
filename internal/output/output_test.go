package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusWithIcon(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Status("🔍", "searching corpus")
	assert.Equal(t, "🔍 searching corpus\n", buf.String())
}

func TestStatusWithoutIconIndents(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Status("", "nested detail")
	assert.Equal(t, "   nested detail\n", buf.String())
}

func TestSuccessWarningError(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Successf("indexed %d fragments", 42)
	w.Warning("reranker unavailable")
	w.Errorf("search failed: %s", "both retrievers down")

	out := buf.String()
	assert.Contains(t, out, "✅ indexed 42 fragments")
	assert.Contains(t, out, "reranker unavailable")
	assert.Contains(t, out, "❌ search failed: both retrievers down")
}

func TestProgressCompletesWithNewline(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Progress(5, 10, "embedding")
	assert.False(t, strings.HasSuffix(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "50%")

	w.Progress(10, 10, "embedding")
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestProgressZeroTotalIsNoOp(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Progress(1, 0, "nothing")
	assert.Empty(t, buf.String())
}

func TestRenderProgressBarBounds(t *testing.T) {
	assert.Equal(t, strings.Repeat("░", 10), renderProgressBar(0, 0, 10))
	assert.Equal(t, strings.Repeat("█", 10), renderProgressBar(20, 10, 10))
	assert.Equal(t, strings.Repeat("█", 5)+strings.Repeat("░", 5), renderProgressBar(5, 10, 10))
}
