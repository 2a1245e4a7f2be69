// Package embed turns chunk and query text into dense vectors. Providers
// share one contract: vectors come back L2-normalized, and a provider that
// cannot produce a real vector fails with an error instead of returning a
// zero or garbage embedding.
package embed

import (
	"context"
	"errors"
	"math"
	"time"
)

// Common embedding constants.
const (
	// DefaultBatchSize is the default number of texts per provider request.
	DefaultBatchSize = 32

	// MaxBatchSize caps a single provider request.
	MaxBatchSize = 256

	// DefaultRequestTimeout bounds a single provider call.
	DefaultRequestTimeout = 30 * time.Second

	// ProbeTimeout bounds availability probes.
	ProbeTimeout = 5 * time.Second
)

// StaticDimensions is the embedding dimension for the hash-based embedder.
const StaticDimensions = 256

// ErrProviderUnavailable indicates the embedding provider could not serve
// the request (not running, unreachable, misconfigured, or timed out).
// Operations that hit it fail whole: no partial vectors are ever returned.
var ErrProviderUnavailable = errors.New("embedding provider unavailable")

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. The result is
	// positional: result[i] is the vector for texts[i].
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the provider is ready to serve requests.
	Available(ctx context.Context) bool

	// Close releases provider resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length. Zero vectors are
// returned as-is so empty-input embeddings stay all-zero.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
