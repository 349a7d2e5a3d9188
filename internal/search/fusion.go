package search

import (
	"fmt"
	"sort"

	engerrors "github.com/scholargraph/scholarsearch/internal/errors"
	"github.com/scholargraph/scholarsearch/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is empirically validated across domains (used by Azure AI Search,
// OpenSearch, and others).
const DefaultRRFConstant = 60

// FusedResult represents a single candidate after RRF fusion.
type FusedResult struct {
	FragmentID   string   // Fragment identifier
	RRFScore     float64  // Exact sum of reciprocal-rank contributions
	LexScore     float64  // Original lexical score (preserved)
	LexRank      int      // Position in lexical list (1-indexed, 0 if absent)
	VecScore     float64  // Original vector similarity score (preserved)
	VecRank      int      // Position in vector list (1-indexed, 0 if absent)
	MatchedTerms []string // Lexical matched terms
}

// bestRank returns the best 1-indexed rank the fragment achieved across
// retrievers that saw it.
func (r *FusedResult) bestRank() int {
	switch {
	case r.LexRank == 0:
		return r.VecRank
	case r.VecRank == 0:
		return r.LexRank
	case r.LexRank < r.VecRank:
		return r.LexRank
	default:
		return r.VecRank
	}
}

// RRFFusion combines ranked lists using Reciprocal Rank Fusion.
//
// Each retriever contributes 1/(k + rank) for every fragment it ranked;
// a fragment absent from a retriever contributes 0 for that retriever.
// Scores are exact sums, never normalized, so a degraded query (one
// retriever empty) reduces to the single-retriever case with no special
// code path.
type RRFFusion struct {
	k int
}

// NewRRFFusion creates an RRF fusion instance. A non-positive k is a
// configuration error, surfaced rather than silently corrected.
func NewRRFFusion(k int) (*RRFFusion, error) {
	if k <= 0 {
		return nil, engerrors.ConfigError(engerrors.ErrCodeRRFConstant,
			fmt.Sprintf("RRF constant must be positive, got %d", k), nil)
	}
	return &RRFFusion{k: k}, nil
}

// K returns the smoothing constant.
func (f *RRFFusion) K() int {
	return f.k
}

// Fuse merges lexical and vector results into one candidate ranking.
//
// Ordering: fused score descending, ties broken by best individual rank
// ascending, then fragment ID ascending.
func (f *RRFFusion) Fuse(lex []*store.LexicalResult, vec []*store.VectorResult) []*FusedResult {
	if len(lex) == 0 && len(vec) == 0 {
		return []*FusedResult{}
	}

	scores := make(map[string]*FusedResult, len(lex)+len(vec))

	for rank, r := range lex {
		result := f.getOrCreate(scores, r.DocID)
		result.LexScore = r.Score
		result.LexRank = rank + 1
		result.MatchedTerms = r.MatchedTerms
		result.RRFScore += 1.0 / float64(f.k+rank+1)
	}

	for rank, r := range vec {
		result := f.getOrCreate(scores, r.ID)
		result.VecScore = float64(r.Score)
		result.VecRank = rank + 1
		result.RRFScore += 1.0 / float64(f.k+rank+1)
	}

	results := make([]*FusedResult, 0, len(scores))
	for _, r := range scores {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return f.compare(results[i], results[j])
	})

	return results
}

func (f *RRFFusion) getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{FragmentID: id}
	m[id] = r
	return r
}

// compare returns true if a should rank before b.
func (f *RRFFusion) compare(a, b *FusedResult) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if ar, br := a.bestRank(), b.bestRank(); ar != br {
		return ar < br
	}
	return a.FragmentID < b.FragmentID
}
