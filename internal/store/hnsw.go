package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWVectorIndex implements VectorIndex using the coder/hnsw pure Go
// graph. It is the opt-in backend for collections too large for exact
// scans; results are approximate and tie order follows graph traversal,
// not insertion order.
type HNSWVectorIndex struct {
	mu   sync.RWMutex
	cfg  VectorConfig
	dims int

	graph *hnsw.Graph[uint64]

	// id mapping (string <-> uint64)
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	// vecs keeps normalized copies per key; the graph offers no per-key
	// vector access, and Vector(id) must serve pairwise similarity lookups.
	vecs map[uint64][]float32

	closed bool
}

// Verify interface implementation at compile time
var _ VectorIndex = (*HNSWVectorIndex)(nil)

// NewHNSWVectorIndex creates an empty HNSW-backed vector index.
// cfg.Dimensions may be 0, in which case the first Add pins it.
func NewHNSWVectorIndex(cfg VectorConfig) *HNSWVectorIndex {
	def := DefaultVectorConfig(cfg.Dimensions)
	if cfg.M <= 0 {
		cfg.M = def.M
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = def.EfSearch
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWVectorIndex{
		cfg:    cfg,
		dims:   cfg.Dimensions,
		graph:  graph,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		vecs:   make(map[uint64][]float32),
	}
}

// Add inserts vectors with their ids. An existing id is replaced via lazy
// deletion: the old node stays in the graph but is dropped from results.
// Deleting nodes outright trips a coder/hnsw bug when the last node goes.
func (h *HNSWVectorIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("index is closed")
	}

	for _, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("cannot add empty vector")
		}
		if h.dims == 0 {
			h.dims = len(v)
		}
		if len(v) != h.dims {
			return ErrDimensionMismatch{Expected: h.dims, Got: len(v)}
		}
	}

	for i, id := range ids {
		if id == "" {
			return fmt.Errorf("cannot add vector with empty id")
		}
		if oldKey, exists := h.idMap[id]; exists {
			delete(h.keyMap, oldKey)
			delete(h.vecs, oldKey)
			delete(h.idMap, id)
		}

		key := h.nextKey
		h.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		h.graph.Add(hnsw.MakeNode(key, vec))
		h.idMap[id] = key
		h.keyMap[key] = id
		h.vecs[key] = vec
	}

	return nil
}

// Search returns up to limit approximate nearest neighbors of query.
func (h *HNSWVectorIndex) Search(ctx context.Context, query []float32, limit int) ([]VectorResult, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if limit <= 0 || len(h.idMap) == 0 {
		return []VectorResult{}, nil
	}
	if len(query) != h.dims {
		return nil, ErrDimensionMismatch{Expected: h.dims, Got: len(query)}
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	// Over-fetch by the lazy-deleted node count so orphans skipped below
	// cannot starve the result set.
	orphans := h.graph.Len() - len(h.idMap)
	nodes := h.graph.Search(q, limit+orphans)

	results := make([]VectorResult, 0, limit)
	for _, node := range nodes {
		id, live := h.keyMap[node.Key]
		if !live {
			continue
		}
		// CosineDistance is 1 - cos, so map back to the cosine range.
		distance := h.graph.Distance(q, node.Value)
		results = append(results, VectorResult{
			ChunkID: id,
			Score:   float64(1 - distance),
		})
		if len(results) == limit {
			break
		}
	}

	return results, nil
}

// Vector returns a copy of the stored (normalized) vector for id.
func (h *HNSWVectorIndex) Vector(id string) ([]float32, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil, false
	}
	key, ok := h.idMap[id]
	if !ok {
		return nil, false
	}
	stored := h.vecs[key]
	vec := make([]float32, len(stored))
	copy(vec, stored)
	return vec, true
}

// Remove drops vectors by id via lazy deletion.
func (h *HNSWVectorIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("index is closed")
	}
	for _, id := range ids {
		if key, exists := h.idMap[id]; exists {
			delete(h.keyMap, key)
			delete(h.vecs, key)
			delete(h.idMap, id)
		}
	}
	return nil
}

// Reset drops all vectors by rebuilding the graph.
func (h *HNSWVectorIndex) Reset(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("index is closed")
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = h.cfg.M
	graph.EfSearch = h.cfg.EfSearch
	graph.Ml = 0.25

	h.graph = graph
	h.idMap = make(map[string]uint64)
	h.keyMap = make(map[uint64]string)
	h.vecs = make(map[uint64][]float32)
	h.nextKey = 0
	return nil
}

// Count returns the number of live vectors.
func (h *HNSWVectorIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return 0
	}
	return len(h.idMap)
}

// Dimensions returns the pinned dimensionality, 0 if nothing was added yet.
func (h *HNSWVectorIndex) Dimensions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dims
}

// Close releases the graph. Idempotent.
func (h *HNSWVectorIndex) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	h.graph = nil
	h.vecs = nil
	return nil
}

// normalizeInPlace scales a vector to unit length. Zero vectors are left
// unchanged.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
