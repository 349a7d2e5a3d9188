// Package search implements the hybrid retrieval pipeline: concurrent
// lexical and vector search, reciprocal-rank fusion, optional cross-encoder
// reranking, and citation assembly.
package search

import (
	"time"

	"github.com/scholargraph/scholarsearch/internal/store"
)

// SearchOptions controls a single query.
type SearchOptions struct {
	// TopK caps the number of citations returned. 0 means the engine
	// default; negative values are an input error.
	TopK int

	// ChunkTypes restricts retrieval to the given fragment types.
	// Empty means all types.
	ChunkTypes []store.ChunkType

	// DisableReranker skips the rerank stage. The zero value keeps
	// reranking on, matching the default-enabled contract.
	DisableReranker bool

	// LexicalLimit is the lexical candidate count. 0 means the default.
	LexicalLimit int

	// VectorLimit is the vector candidate count. 0 means the default.
	VectorLimit int
}

// Scores holds the independently-labeled scores a fragment accumulated
// through the pipeline. Each is populated only by the stage that computed
// it; zero ranks mean the stage did not see the fragment.
type Scores struct {
	Lexical     float64 `json:"lexical,omitempty"`
	LexicalRank int     `json:"lexical_rank,omitempty"`
	Vector      float64 `json:"vector,omitempty"`
	VectorRank  int     `json:"vector_rank,omitempty"`
	Fused       float64 `json:"fused"`
	Rerank      float64 `json:"rerank,omitempty"`
	Reranked    bool    `json:"reranked"`
}

// Citation is one final result record with provenance display metadata.
// Person and Publication are nil when the owner record is absent; the
// citation is still returned in its rank position.
type Citation struct {
	FragmentID  string             `json:"fragment_id"`
	Rank        int                `json:"rank"`
	Type        store.ChunkType    `json:"type"`
	Preview     string             `json:"preview"`
	Scores      Scores             `json:"scores"`
	Person      *store.Person      `json:"person,omitempty"`
	Publication *store.Publication `json:"publication,omitempty"`
	Formatted   string             `json:"formatted,omitempty"`
}

// Diagnostics reports per-stage outcomes for one query.
type Diagnostics struct {
	LexicalCount    int           `json:"lexical_count"`
	VectorCount     int           `json:"vector_count"`
	CandidateCount  int           `json:"candidate_count"` // distinct fused candidates
	LexicalDegraded bool          `json:"lexical_degraded"`
	VectorDegraded  bool          `json:"vector_degraded"`
	RerankApplied   bool          `json:"rerank_applied"`
	RerankDegraded  bool          `json:"rerank_degraded"`
	Summary         string        `json:"summary,omitempty"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Degraded reports whether any stage fell back during the query.
func (d Diagnostics) Degraded() bool {
	return d.LexicalDegraded || d.VectorDegraded || d.RerankDegraded
}

// SearchResult is the ordered citation list plus diagnostics for one query.
type SearchResult struct {
	Query       string      `json:"query"`
	Citations   []*Citation `json:"citations"`
	Diagnostics Diagnostics `json:"diagnostics"`
}
