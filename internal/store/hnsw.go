package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/coder/hnsw"
)

// HNSWIndex implements VectorIndex using the coder/hnsw pure Go HNSW graph.
//
// Reads are snapshot-isolated: queries load an immutable generation handle
// through an atomic pointer and never take a lock. Writers serialize on
// writeMu, build a fresh generation from the full vector set, and publish
// it with a single atomic swap. In-flight searches keep using the
// generation they started with.
type HNSWIndex struct {
	writeMu sync.Mutex
	current atomic.Pointer[hnswGeneration]

	// vectors is the writer-owned source of truth, already normalized
	// for the cosine metric. Guarded by writeMu.
	vectors map[string][]float32

	config VectorIndexConfig
	closed atomic.Bool
}

// hnswGeneration is one immutable snapshot of the index.
type hnswGeneration struct {
	graph  *hnsw.Graph[uint64]
	keyMap map[uint64]string
	ids    map[string]struct{}
}

// hnswSnapshot is the persisted form of the index.
type hnswSnapshot struct {
	Config  VectorIndexConfig
	Vectors map[string][]float32
}

// Verify interface implementation
var _ VectorIndex = (*HNSWIndex)(nil)

// NewHNSWIndex creates a new HNSW-based vector index.
func NewHNSWIndex(cfg VectorIndexConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector index dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	s := &HNSWIndex{
		vectors: make(map[string][]float32),
		config:  cfg,
	}
	s.current.Store(s.buildGeneration())
	return s, nil
}

// buildGeneration constructs an immutable generation from the current
// vector set. Keys are assigned in sorted ID order so rebuilds are
// deterministic. Caller must hold writeMu (or be the constructor).
func (s *HNSWIndex) buildGeneration() *hnswGeneration {
	graph := hnsw.NewGraph[uint64]()
	switch s.config.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = s.config.M
	graph.EfSearch = s.config.EfSearch
	graph.Ml = 0.25

	ids := make([]string, 0, len(s.vectors))
	for id := range s.vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	gen := &hnswGeneration{
		graph:  graph,
		keyMap: make(map[uint64]string, len(ids)),
		ids:    make(map[string]struct{}, len(ids)),
	}

	for i, id := range ids {
		key := uint64(i)
		graph.Add(hnsw.MakeNode(key, s.vectors[id]))
		gen.keyMap[key] = id
		gen.ids[id] = struct{}{}
	}

	return gen
}

// Add inserts vectors with their IDs. Existing IDs are replaced.
func (s *HNSWIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	if s.closed.Load() {
		return fmt.Errorf("index is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{
				Expected: s.config.Dimensions,
				Got:      len(v),
			}
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for i, id := range ids {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}
		s.vectors[id] = vec
	}

	s.current.Store(s.buildGeneration())
	return nil
}

// Search finds the k nearest neighbors of the query vector.
// Results are ordered by similarity descending, then ID ascending.
func (s *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("index is closed")
	}

	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{
			Expected: s.config.Dimensions,
			Got:      len(query),
		}
	}

	gen := s.current.Load()
	if gen.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(normalizedQuery)
	}

	nodes := gen.graph.Search(normalizedQuery, k)

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, exists := gen.keyMap[node.Key]
		if !exists {
			continue
		}

		distance := gen.graph.Distance(normalizedQuery, node.Value)
		score := distanceToScore(distance, s.config.Metric)

		results = append(results, &VectorResult{
			ID:       id,
			Distance: distance,
			Score:    score,
		})
	}

	// Deterministic ordering for equal similarities.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	return results, nil
}

// Delete removes vectors by ID. Unknown IDs are ignored.
func (s *HNSWIndex) Delete(ctx context.Context, ids []string) error {
	if s.closed.Load() {
		return fmt.Errorf("index is closed")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	changed := false
	for _, id := range ids {
		if _, exists := s.vectors[id]; exists {
			delete(s.vectors, id)
			changed = true
		}
	}

	if changed {
		s.current.Store(s.buildGeneration())
	}
	return nil
}

// Contains checks if an ID exists.
func (s *HNSWIndex) Contains(id string) bool {
	if s.closed.Load() {
		return false
	}
	_, exists := s.current.Load().ids[id]
	return exists
}

// Count returns the number of vectors.
func (s *HNSWIndex) Count() int {
	if s.closed.Load() {
		return 0
	}
	return len(s.current.Load().ids)
}

// Dimensions returns the configured vector dimension.
func (s *HNSWIndex) Dimensions() int {
	return s.config.Dimensions
}

// Save persists the index to disk.
// Uses atomic save (temp file + rename).
func (s *HNSWIndex) Save(path string) error {
	if s.closed.Load() {
		return fmt.Errorf("index is closed")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}

	snap := hnswSnapshot{
		Config:  s.config,
		Vectors: s.vectors,
	}

	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to encode index: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	return nil
}

// Load loads the index from disk, replacing current contents.
func (s *HNSWIndex) Load(path string) error {
	if s.closed.Load() {
		return fmt.Errorf("index is closed")
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	var snap hnswSnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode index: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.config = snap.Config
	s.vectors = snap.Vectors
	if s.vectors == nil {
		s.vectors = make(map[string][]float32)
	}
	s.current.Store(s.buildGeneration())

	return nil
}

// Close releases resources. Idempotent.
func (s *HNSWIndex) Close() error {
	s.closed.Store(true)
	return nil
}

// ReadVectorIndexDimensions reads the dimensions from a persisted vector
// index. Returns 0 if the file doesn't exist (fresh start).
func ReadVectorIndexDimensions(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil // Fresh start
		}
		return 0, fmt.Errorf("failed to open vector index: %w", err)
	}
	defer file.Close()

	var snap hnswSnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return 0, fmt.Errorf("failed to decode vector index: %w", err)
	}

	return snap.Config.Dimensions, nil
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore converts a distance value to a similarity score.
// For cosine distance: score = 1 - distance, the raw cosine similarity
// of the unit vectors (-1 to 1).
// For L2 distance: score = 1 / (1 + distance).
func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + distance)
	default:
		return 1.0 - distance
	}
}
