package search

import (
	"math"

	"github.com/studyrag/studyrag/internal/store"
)

// Citation points a result back to its source document and page. The page
// is always the page the chunk was cut from at ingest, never inferred.
type Citation struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Page       int     `json:"page"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

// CitationBuilder renders citations with bounded snippets and
// presentation-rounded scores.
type CitationBuilder struct {
	// SnippetLength caps the snippet, in runes.
	SnippetLength int
}

// NewCitationBuilder creates a builder. Non-positive lengths take the default.
func NewCitationBuilder(snippetLength int) CitationBuilder {
	if snippetLength <= 0 {
		snippetLength = DefaultSnippetLength
	}
	return CitationBuilder{SnippetLength: snippetLength}
}

// Build creates the citation for one retrieved chunk.
func (b CitationBuilder) Build(chunk *store.Chunk, title string, score float64) Citation {
	return Citation{
		DocumentID: chunk.DocumentID,
		Title:      title,
		Page:       chunk.Page,
		Snippet:    snippet(chunk.Content, b.SnippetLength),
		Score:      roundScore(score),
	}
}

// snippet returns a prefix of text capped at limit runes, with an ellipsis
// when truncated. The cut never splits a rune.
func snippet(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

// roundScore rounds a score to three decimals for presentation.
func roundScore(s float64) float64 {
	return math.Round(s*1000) / 1000
}
