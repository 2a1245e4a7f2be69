package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// ExactVectorIndex is a brute-force cosine similarity index.
//
// It is the default semantic backend: at study-collection scale an exact
// scan over a few thousand vectors costs less than an ANN graph earns, and
// every query is exactly reproducible. Ties are broken by insertion order,
// earlier wins, so a rebuild from the chunk store reproduces the ranking.
type ExactVectorIndex struct {
	mu   sync.RWMutex
	dims int

	ids  []string // insertion order
	vecs [][]float32
	pos  map[string]int

	closed bool
}

// Verify interface implementation at compile time
var _ VectorIndex = (*ExactVectorIndex)(nil)

// NewExactVectorIndex creates an empty exact vector index.
// cfg.Dimensions may be 0, in which case the first Add pins it.
func NewExactVectorIndex(cfg VectorConfig) *ExactVectorIndex {
	return &ExactVectorIndex{
		dims: cfg.Dimensions,
		pos:  make(map[string]int),
	}
}

// Add inserts vectors with their ids. Replacing an existing id keeps its
// original insertion slot so tie order stays stable.
func (e *ExactVectorIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("index is closed")
	}

	for _, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("cannot add empty vector")
		}
		if e.dims == 0 {
			e.dims = len(v)
		}
		if len(v) != e.dims {
			return ErrDimensionMismatch{Expected: e.dims, Got: len(v)}
		}
	}

	for i, id := range ids {
		if id == "" {
			return fmt.Errorf("cannot add vector with empty id")
		}
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])

		if at, ok := e.pos[id]; ok {
			e.vecs[at] = vec
			continue
		}
		e.pos[id] = len(e.ids)
		e.ids = append(e.ids, id)
		e.vecs = append(e.vecs, vec)
	}

	return nil
}

// Search returns up to limit nearest neighbors of query by cosine
// similarity, sorted descending with ties by insertion order.
func (e *ExactVectorIndex) Search(ctx context.Context, query []float32, limit int) ([]VectorResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if limit <= 0 || len(e.ids) == 0 {
		return []VectorResult{}, nil
	}
	if len(query) != e.dims {
		return nil, ErrDimensionMismatch{Expected: e.dims, Got: len(query)}
	}

	type scored struct {
		ord   int
		score float64
	}
	hits := make([]scored, len(e.vecs))
	for ord, vec := range e.vecs {
		hits[ord] = scored{ord: ord, score: Cosine(query, vec)}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].ord < hits[j].ord
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]VectorResult, len(hits))
	for i, h := range hits {
		results[i] = VectorResult{ChunkID: e.ids[h.ord], Score: h.score}
	}
	return results, nil
}

// Vector returns a copy of the stored vector for id, if present.
func (e *ExactVectorIndex) Vector(id string) ([]float32, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, false
	}
	at, ok := e.pos[id]
	if !ok {
		return nil, false
	}
	vec := make([]float32, len(e.vecs[at]))
	copy(vec, e.vecs[at])
	return vec, true
}

// Remove drops vectors by id, preserving the relative order of survivors.
func (e *ExactVectorIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("index is closed")
	}

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := 0
	for i, id := range e.ids {
		if _, gone := drop[id]; gone {
			delete(e.pos, id)
			continue
		}
		e.ids[kept] = id
		e.vecs[kept] = e.vecs[i]
		e.pos[id] = kept
		kept++
	}
	for i := kept; i < len(e.vecs); i++ {
		e.vecs[i] = nil
	}
	e.ids = e.ids[:kept]
	e.vecs = e.vecs[:kept]

	return nil
}

// Reset drops all vectors, keeping the pinned dimensionality.
func (e *ExactVectorIndex) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("index is closed")
	}
	e.ids = nil
	e.vecs = nil
	e.pos = make(map[string]int)
	return nil
}

// Count returns the number of stored vectors.
func (e *ExactVectorIndex) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return 0
	}
	return len(e.ids)
}

// Dimensions returns the pinned dimensionality, 0 if nothing was added yet.
func (e *ExactVectorIndex) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// Close marks the index closed. Idempotent.
func (e *ExactVectorIndex) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	return nil
}

// Cosine returns the cosine similarity of two vectors. Mismatched lengths
// or a zero-norm side score 0, never an error: a blank chunk should rank
// last, not poison the query.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
