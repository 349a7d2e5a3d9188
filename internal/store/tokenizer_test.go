package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "simple prose",
			text: "Deep learning for protein folding",
			want: []string{"deep", "learning", "for", "protein", "folding"},
		},
		{
			name: "hyphenated compounds split",
			text: "cross-encoder reranking",
			want: []string{"cross", "encoder", "reranking"},
		},
		{
			name: "punctuation stripped",
			text: "Smith, J. (2021). Attention is all you need.",
			want: []string{"smith", "2021", "attention", "is", "all", "you", "need"},
		},
		{
			name: "short tokens dropped",
			text: "a b model",
			want: []string{"model"},
		},
		{
			name: "unicode letters kept",
			text: "Schrödinger equation",
			want: []string{"schrödinger", "equation"},
		},
		{
			name: "empty input",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.text, 2))
		})
	}
}

func TestFilterStopWords(t *testing.T) {
	stops := BuildStopWordMap([]string{"the", "of"})
	tokens := []string{"the", "theory", "of", "computation"}

	assert.Equal(t, []string{"theory", "computation"}, FilterStopWords(tokens, stops))
}

func TestValidChunkType(t *testing.T) {
	for _, ct := range AllChunkTypes() {
		assert.True(t, ValidChunkType(ct), string(ct))
	}
	assert.False(t, ValidChunkType("code"))
	assert.False(t, ValidChunkType(""))
}
