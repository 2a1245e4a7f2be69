package store

import (
	"fmt"
	"path/filepath"
)

// LexicalBackend selects the lexical index implementation.
type LexicalBackend string

const (
	// LexicalBackendMemory is the exact in-memory BM25 index (default).
	// Deterministic scoring, rebuilt from the chunk store on open.
	LexicalBackendMemory LexicalBackend = "memory"

	// LexicalBackendBleve is the bleve v2 disk index for large collections.
	LexicalBackendBleve LexicalBackend = "bleve"
)

// VectorBackend selects the vector index implementation.
type VectorBackend string

const (
	// VectorBackendExact is the brute-force cosine index (default).
	VectorBackendExact VectorBackend = "exact"

	// VectorBackendHNSW is the approximate coder/hnsw graph index.
	VectorBackendHNSW VectorBackend = "hnsw"
)

// NewLexicalIndex creates a lexical index for the named backend.
// dir is the collection directory; only the bleve backend stores state
// there (under dir/bleve). An empty backend selects memory.
func NewLexicalIndex(backend string, dir string, cfg LexicalConfig) (LexicalIndex, error) {
	switch LexicalBackend(backend) {
	case LexicalBackendMemory, "":
		return NewMemoryLexicalIndex(cfg), nil

	case LexicalBackendBleve:
		var path string
		if dir != "" {
			path = filepath.Join(dir, "bleve")
		}
		return NewBleveLexicalIndex(path)

	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: memory, bleve)", backend)
	}
}

// NewVectorIndex creates a vector index for the named backend.
// An empty backend selects exact.
func NewVectorIndex(backend string, cfg VectorConfig) (VectorIndex, error) {
	switch VectorBackend(backend) {
	case VectorBackendExact, "":
		return NewExactVectorIndex(cfg), nil

	case VectorBackendHNSW:
		return NewHNSWVectorIndex(cfg), nil

	default:
		return nil, fmt.Errorf("unknown vector backend: %s (valid options: exact, hnsw)", backend)
	}
}
