package search

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/studyrag/studyrag/internal/store"
)

func TestCitationBuilder_ShortChunkKeepsFullText(t *testing.T) {
	chunk := &store.Chunk{
		ID:         "notes_0",
		DocumentID: "notes",
		Page:       2,
		Content:    "The Krebs cycle oxidizes acetyl-CoA to carbon dioxide.",
	}

	c := NewCitationBuilder(200).Build(chunk, "Metabolism Lecture", 0.65432)

	assert.Equal(t, "notes", c.DocumentID)
	assert.Equal(t, "Metabolism Lecture", c.Title)
	assert.Equal(t, 2, c.Page)
	assert.Equal(t, chunk.Content, c.Snippet)
	assert.NotContains(t, c.Snippet, "...")
	assert.Equal(t, 0.654, c.Score)
}

func TestCitationBuilder_TruncatesOnRuneBoundary(t *testing.T) {
	chunk := &store.Chunk{
		ID:         "notes_0",
		DocumentID: "notes",
		Page:       1,
		Content:    strings.Repeat("δ", 250),
	}

	c := NewCitationBuilder(200).Build(chunk, "Greek Letters", 0.5)

	assert.True(t, utf8.ValidString(c.Snippet))
	assert.True(t, strings.HasSuffix(c.Snippet, "..."))
	assert.Equal(t, 203, utf8.RuneCountInString(c.Snippet))
	assert.Equal(t, strings.Repeat("δ", 200), strings.TrimSuffix(c.Snippet, "..."))
}

func TestCitationBuilder_ExactLengthNotTruncated(t *testing.T) {
	content := strings.Repeat("x", 200)
	chunk := &store.Chunk{ID: "d_0", DocumentID: "d", Page: 1, Content: content}

	c := NewCitationBuilder(200).Build(chunk, "", 0.5)
	assert.Equal(t, content, c.Snippet)
}

func TestNewCitationBuilder_DefaultLength(t *testing.T) {
	assert.Equal(t, DefaultSnippetLength, NewCitationBuilder(0).SnippetLength)
	assert.Equal(t, DefaultSnippetLength, NewCitationBuilder(-5).SnippetLength)
	assert.Equal(t, 80, NewCitationBuilder(80).SnippetLength)
}

func TestRoundScore(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.1234, 0.123},
		{0.1236, 0.124},
		{0.9996, 1.0},
		{0.0004, 0.0},
		{0.0, 0.0},
		{1.0, 1.0},
		{-0.1234, -0.123},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, roundScore(tt.in), 1e-12, "in=%g", tt.in)
	}
}
