package store

import (
	"strings"
	"unicode"
)

// Tokenize splits academic prose into lowercase word tokens.
// Hyphenated compounds are split ("cross-encoder" -> "cross", "encoder"),
// digits are kept (years, model sizes), and tokens shorter than minLength
// are dropped.
func Tokenize(text string, minLength int) []string {
	if minLength <= 0 {
		minLength = 2
	}

	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() >= minLength {
			tokens = append(tokens, strings.ToLower(current.String()))
		}
		current.Reset()
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a map for efficient lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
