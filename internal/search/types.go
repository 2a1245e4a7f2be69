// Package search implements hybrid retrieval over one collection: lexical
// BM25 and dense cosine signals are min-max normalized and blended, the
// blended candidates are diversified with maximal marginal relevance, and
// the selected chunks come back with citations and a quality label.
package search

import (
	"errors"

	"github.com/studyrag/studyrag/internal/embed"
	"github.com/studyrag/studyrag/internal/segment"
)

// Retrieval parameter defaults. The engine falls back to these when the
// configuration or per-query options leave a value unset.
const (
	// DefaultAlpha is the semantic weight in score fusion. The lexical
	// weight is always 1 - alpha.
	DefaultAlpha = 0.7

	// DefaultLambda trades relevance against diversity in MMR selection
	// (1.0 = pure relevance, 0.0 = pure diversity).
	DefaultLambda = 0.7

	// DefaultMinScore is the fused-score threshold used for quality
	// assessment. It classifies result sets; it never filters results.
	DefaultMinScore = 0.3

	// DefaultCandidatePool is the number of top hits taken from each
	// signal before fusion.
	DefaultCandidatePool = 30

	// DefaultK is the result count when the caller does not ask for one.
	DefaultK = 8

	// DefaultSnippetLength caps citation snippets, in runes.
	DefaultSnippetLength = 200

	// DefaultIngestWorkers sizes the embedding worker pool used during
	// document ingest.
	DefaultIngestWorkers = 4
)

// ErrNilDependency is returned when the engine is constructed with a nil
// index, store, or embedder.
var ErrNilDependency = errors.New("nil dependency")

// Source identifies which retrieval signals surfaced a chunk.
type Source string

const (
	// SourceLexical marks a chunk found by BM25 only.
	SourceLexical Source = "lexical"

	// SourceSemantic marks a chunk found by vector search only.
	SourceSemantic Source = "semantic"

	// SourceBoth marks a chunk found by both signals.
	SourceBoth Source = "both"
)

// IngestRequest describes one document to ingest. Pages carry the extracted
// text per page, 1-based by position; empty pages are allowed and keep the
// later pages' numbering intact.
type IngestRequest struct {
	DocumentID string
	Title      string
	Pages      []string
}

// IngestStats reports what an ingest stored.
type IngestStats struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
}

// RetrieveOptions overrides retrieval parameters for a single query.
// Zero values fall back to the engine configuration.
type RetrieveOptions struct {
	// K is the number of results to return.
	K int

	// Alpha is the semantic weight in score fusion (0-1).
	Alpha float64

	// Lambda is the MMR relevance/diversity trade-off (0-1).
	Lambda float64

	// MinScore is the quality-assessment threshold (0-1).
	MinScore float64

	// PoolSize is the per-signal candidate pool taken before fusion.
	PoolSize int
}

// Result is one retrieved chunk with its provenance and citation.
// Scores are rounded to three decimals for presentation.
type Result struct {
	ChunkID    string   `json:"chunk_id"`
	DocumentID string   `json:"document_id"`
	Page       int      `json:"page"`
	Text       string   `json:"text"`
	Score      float64  `json:"score"`
	LexScore   float64  `json:"lex_score"`
	SemScore   float64  `json:"sem_score"`
	Source     Source   `json:"source"`
	Citation   Citation `json:"citation"`
}

// RetrievalResult is the full answer to one query: the ranked results plus
// a quality label telling downstream consumers how much to trust them.
type RetrievalResult struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
	Quality Quality  `json:"quality"`
}

// EngineConfig holds the retrieval and ingest parameters of one collection.
// Zero values take the package defaults; a zero ChunkSize resets the whole
// chunk geometry because an overlap of 0 is meaningful on its own.
type EngineConfig struct {
	// ChunkSize is the segmenter's target chunk size in characters.
	ChunkSize int

	// ChunkOverlap is the trailing context carried between chunks.
	ChunkOverlap int

	// Alpha is the semantic weight in score fusion.
	Alpha float64

	// Lambda is the MMR relevance/diversity trade-off.
	Lambda float64

	// CandidatePool is the per-signal candidate count taken before fusion.
	CandidatePool int

	// DefaultK is the result count when a query does not specify one.
	DefaultK int

	// SnippetLength caps citation snippets, in runes.
	SnippetLength int

	// IngestWorkers sizes the embedding worker pool for ingest.
	IngestWorkers int

	// EmbedBatchSize is the number of chunk texts per embedding request.
	EmbedBatchSize int

	// Quality holds the quality band thresholds, including the default
	// min-score threshold.
	Quality Assessor
}

// DefaultEngineConfig returns the stock retrieval parameters.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ChunkSize:      segment.DefaultTargetSize,
		ChunkOverlap:   segment.DefaultOverlap,
		Alpha:          DefaultAlpha,
		Lambda:         DefaultLambda,
		CandidatePool:  DefaultCandidatePool,
		DefaultK:       DefaultK,
		SnippetLength:  DefaultSnippetLength,
		IngestWorkers:  DefaultIngestWorkers,
		EmbedBatchSize: embed.DefaultBatchSize,
		Quality:        DefaultAssessor(),
	}
}

// withDefaults fills unset fields from DefaultEngineConfig.
func (c EngineConfig) withDefaults() EngineConfig {
	d := DefaultEngineConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize, c.ChunkOverlap = d.ChunkSize, d.ChunkOverlap
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		c.Alpha = d.Alpha
	}
	if c.Lambda <= 0 || c.Lambda > 1 {
		c.Lambda = d.Lambda
	}
	if c.CandidatePool <= 0 {
		c.CandidatePool = d.CandidatePool
	}
	if c.DefaultK <= 0 {
		c.DefaultK = d.DefaultK
	}
	if c.SnippetLength <= 0 {
		c.SnippetLength = d.SnippetLength
	}
	if c.IngestWorkers <= 0 {
		c.IngestWorkers = d.IngestWorkers
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = d.EmbedBatchSize
	}
	if c.Quality == (Assessor{}) {
		c.Quality = d.Quality
	}
	return c
}
