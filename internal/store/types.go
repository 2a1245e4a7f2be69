// Package store provides the per-collection persistence and index layer:
// a BM25 lexical index, a dense vector index, and SQLite chunk storage.
// The SQLite chunk store is the durable source of truth; the in-memory
// index backends are derived state rebuilt from it on open.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Sentinel errors shared by the store and engine layers.
var (
	// ErrEmptyDocument indicates an ingest produced zero chunks.
	ErrEmptyDocument = errors.New("document produced no chunks")

	// ErrDocumentNotFound indicates the requested document id is not in the collection.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrChunkNotFound indicates the requested chunk id is not in the collection.
	ErrChunkNotFound = errors.New("chunk not found")

	// ErrCollectionLocked indicates another process holds the collection directory lock.
	ErrCollectionLocked = errors.New("collection is locked by another process")
)

// ErrDimensionMismatch indicates an embedding dimension conflict. The first
// vector written to a collection pins its dimensionality; later disagreement
// is fatal for that operation, never coerced by truncation or padding.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d (collection was indexed with a different model)", e.Expected, e.Got)
}

// Document is an ingested document's metadata.
type Document struct {
	ID         string
	Title      string
	Pages      int
	ChunkCount int
	IngestedAt time.Time
}

// Chunk is a retrievable unit of document text. Chunks are immutable after
// creation; re-ingesting a document replaces its whole chunk set.
type Chunk struct {
	ID         string // "<document_id>_<chunk_index>"
	DocumentID string
	Index      int // position within the document, 0-based
	Page       int // source page, 1-based
	Content    string
	CharCount  int
}

// ChunkID builds the canonical chunk identifier for a document position.
func ChunkID(documentID string, index int) string {
	return documentID + "_" + strconv.Itoa(index)
}

// CollectionStats summarizes a collection's contents. EmbeddingModel and
// Dimensions reflect what the collection was indexed with, not the active
// configuration; both are zero until the first ingest pins them.
type CollectionStats struct {
	TotalDocuments int
	TotalChunks    int
	DocumentIDs    []string
	EmbeddingModel string
	Dimensions     int
}

// IndexDoc is a unit of text submitted to the lexical index.
type IndexDoc struct {
	ID      string
	Content string
}

// LexicalResult is a single BM25 hit.
type LexicalResult struct {
	ChunkID      string
	Score        float64
	MatchedTerms []string
}

// LexicalIndex provides keyword search over chunk text using BM25.
// Results are sorted score-descending, ties by ChunkID ascending, and only
// positive scores are returned. Query tokenization is identical to index
// tokenization; unknown terms contribute zero, never an error.
type LexicalIndex interface {
	// Add indexes documents. An existing id is replaced.
	Add(ctx context.Context, docs []IndexDoc) error

	// Search returns up to limit documents matching query, scored by BM25.
	Search(ctx context.Context, query string, limit int) ([]LexicalResult, error)

	// Remove drops documents from the index. Unknown ids are ignored.
	Remove(ctx context.Context, ids []string) error

	// Reset drops all documents, keeping the index usable.
	Reset(ctx context.Context) error

	// Count returns the number of indexed documents.
	Count() int

	Close() error
}

// VectorResult is a single dense retrieval hit.
type VectorResult struct {
	ChunkID string
	Score   float64 // cosine similarity in [-1, 1]
}

// VectorIndex provides nearest-neighbor search over chunk embeddings.
// Results are sorted similarity-descending, ties broken by chunk insertion
// order (earlier wins). Dimensionality is fixed per index; a mismatched
// vector fails with ErrDimensionMismatch.
type VectorIndex interface {
	// Add inserts vectors with their ids. An existing id is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search returns up to limit nearest neighbors of query.
	Search(ctx context.Context, query []float32, limit int) ([]VectorResult, error)

	// Vector returns a copy of the stored vector for id, if present.
	Vector(id string) ([]float32, bool)

	// Remove drops vectors by id. Unknown ids are ignored.
	Remove(ctx context.Context, ids []string) error

	// Reset drops all vectors, keeping the index usable.
	Reset(ctx context.Context) error

	// Count returns the number of stored vectors.
	Count() int

	// Dimensions returns the pinned dimensionality, 0 if nothing was added yet.
	Dimensions() int

	Close() error
}

// LexicalConfig configures BM25 scoring.
type LexicalConfig struct {
	// K1 is the term frequency saturation parameter (default: 1.5)
	K1 float64

	// B is the length normalization parameter (default: 0.75)
	B float64
}

// DefaultLexicalConfig returns default BM25 parameters.
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{K1: 1.5, B: 0.75}
}

// VectorConfig configures the vector index.
type VectorConfig struct {
	// Dimensions is the vector dimension. 0 means the first Add pins it,
	// which accommodates providers that detect their dimension lazily.
	Dimensions int

	// M is HNSW max connections per layer (hnsw backend only).
	M int

	// EfSearch is HNSW query-time search width (hnsw backend only).
	EfSearch int
}

// DefaultVectorConfig returns sensible defaults for the vector index.
func DefaultVectorConfig(dimensions int) VectorConfig {
	return VectorConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   64,
	}
}
