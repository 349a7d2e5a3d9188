// Package store provides the persistence layer for indexed corpus data:
// a lexical FTS5 index, an HNSW vector index, and fragment/citation
// metadata in SQLite.
package store

import (
	"context"
	"fmt"
	"time"
)

// ChunkType identifies the kind of corpus fragment. The set is closed:
// fragments with any other type are rejected at ingest.
type ChunkType string

const (
	ChunkTypeProfileSummary   ChunkType = "profile-summary"
	ChunkTypeProfileBiography ChunkType = "profile-biography"
	ChunkTypeWorkTitle        ChunkType = "work-title"
	ChunkTypeWorkAbstract     ChunkType = "work-abstract"
	ChunkTypeWorkKeywords     ChunkType = "work-keywords"
)

// ValidChunkType reports whether t belongs to the closed fragment-type set.
func ValidChunkType(t ChunkType) bool {
	switch t {
	case ChunkTypeProfileSummary, ChunkTypeProfileBiography,
		ChunkTypeWorkTitle, ChunkTypeWorkAbstract, ChunkTypeWorkKeywords:
		return true
	default:
		return false
	}
}

// AllChunkTypes returns the closed fragment-type set.
func AllChunkTypes() []ChunkType {
	return []ChunkType{
		ChunkTypeProfileSummary,
		ChunkTypeProfileBiography,
		ChunkTypeWorkTitle,
		ChunkTypeWorkAbstract,
		ChunkTypeWorkKeywords,
	}
}

// ProfileChunkTypes returns the fragment types describing researcher
// profiles, for people-only searches.
func ProfileChunkTypes() []ChunkType {
	return []ChunkType{ChunkTypeProfileSummary, ChunkTypeProfileBiography}
}

// PublicationChunkTypes returns the fragment types describing publication
// records, for publications-only searches.
func PublicationChunkTypes() []ChunkType {
	return []ChunkType{ChunkTypeWorkTitle, ChunkTypeWorkAbstract, ChunkTypeWorkKeywords}
}

// State keys for the metadata store.
const (
	// StateKeyIndexDimension stores the embedding dimension used for the index.
	StateKeyIndexDimension = "index_embedding_dimension"
	// StateKeyIndexModel stores the embedding model name used for the index.
	StateKeyIndexModel = "index_embedding_model"
)

// Fragment is a retrievable unit of corpus text. IDs are unique across the
// corpus and immutable once assigned.
type Fragment struct {
	ID            string
	Type          ChunkType
	Content       string
	PersonID      string // Owning researcher profile, if any
	PublicationID string // Owning publication record, if any
	Metadata      map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Person is the display record for a researcher profile.
type Person struct {
	ID     string
	Name   string
	School string
}

// Publication is the display record for a publication.
type Publication struct {
	ID      string
	Title   string
	Authors []string
	Year    int
	Venue   string
	DOI     string
}

// Document is a fragment prepared for lexical indexing.
type Document struct {
	ID        string
	ChunkType ChunkType
	Content   string
}

// LexicalResult is a single full-text search hit.
type LexicalResult struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	ID       string
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Cosine similarity (-1 to 1 for the cosine metric)
}

// IndexStats provides statistics about the lexical index.
type IndexStats struct {
	DocumentCount int
}

// LexicalIndex provides keyword search over fragments, scored by BM25.
type LexicalIndex interface {
	// Index adds documents. Existing IDs are replaced.
	Index(ctx context.Context, docs []*Document) error

	// Search returns documents matching query, best first. Ordering is
	// deterministic: score descending, then document ID ascending.
	// An empty chunkTypes slice means all types.
	Search(ctx context.Context, query string, chunkTypes []ChunkType, limit int) ([]*LexicalResult, error)

	// Delete removes documents from the index.
	Delete(ctx context.Context, docIDs []string) error

	// AllIDs returns all document IDs in the index.
	AllIDs() ([]string, error)

	// Stats returns index statistics.
	Stats() *IndexStats

	// Persistence
	Save(path string) error
	Close() error
}

// VectorIndex provides approximate nearest-neighbor search over fragment
// embeddings. Fragments without embeddings simply never appear here.
type VectorIndex interface {
	// Add inserts vectors with their IDs. Existing IDs are replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors of the query vector. Ordering is
	// deterministic: similarity descending, then fragment ID ascending.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// Contains checks if an ID exists.
	Contains(id string) bool

	// Count returns the number of vectors.
	Count() int

	// Dimensions returns the configured vector dimension.
	Dimensions() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// MetadataStore persists fragments and citation display records.
// Lookups for absent rows return nil without error.
type MetadataStore interface {
	// Fragment operations
	SaveFragments(ctx context.Context, fragments []*Fragment) error
	GetFragment(ctx context.Context, id string) (*Fragment, error)
	GetFragments(ctx context.Context, ids []string) ([]*Fragment, error)
	DeleteFragments(ctx context.Context, ids []string) error

	// Citation display records
	SavePersons(ctx context.Context, persons []*Person) error
	GetPerson(ctx context.Context, id string) (*Person, error)
	SavePublications(ctx context.Context, publications []*Publication) error
	GetPublication(ctx context.Context, id string) (*Publication, error)

	// State operations (key-value store for index state)
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	// Lifecycle
	Close() error
}

// LexicalConfig configures the lexical index.
type LexicalConfig struct {
	// StopWords is a list of words to filter out during tokenization.
	StopWords []string

	// MinTokenLength is minimum token length to index (default: 2).
	MinTokenLength int
}

// DefaultLexicalConfig returns default lexical index configuration.
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// DefaultStopWords contains common English function words that carry no
// retrieval signal in academic prose.
var DefaultStopWords = []string{
	"a", "an", "the", "and", "or", "but", "of", "in", "on", "at", "to",
	"for", "with", "by", "from", "as", "is", "are", "was", "were", "be",
	"been", "this", "that", "these", "those", "it", "its", "we", "our",
}

// VectorIndexConfig configures the vector index.
type VectorIndexConfig struct {
	// Dimensions is the fixed embedding dimension for the index.
	Dimensions int

	// Metric is the distance metric: "cos" (cosine), "l2" (euclidean).
	Metric string

	// M is HNSW max connections per layer.
	M int

	// EfSearch is HNSW query-time search width.
	EfSearch int
}

// DefaultVectorIndexConfig returns sensible defaults for the vector index.
func DefaultVectorIndexConfig(dimensions int) VectorIndexConfig {
	return VectorIndexConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
	}
}

// ErrDimensionMismatch indicates vector dimension mismatch between the
// index and a supplied vector.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
