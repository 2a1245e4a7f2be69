package store

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLexicalIndex_IndexAndSearch_Basic(t *testing.T) {
	// Given: empty index
	idx := NewMemoryLexicalIndex(DefaultLexicalConfig())
	defer func() { _ = idx.Close() }()

	// When: indexing documents
	docs := []IndexDoc{
		{ID: "doc1_0", Content: "the mitochondria produces ATP"},
		{ID: "doc1_1", Content: "the cell membrane is selective"},
		{ID: "doc2_0", Content: "ATP powers cellular processes"},
	}
	err := idx.Add(context.Background(), docs)
	require.NoError(t, err)

	// Then: search finds matching documents with positive scores
	results, err := idx.Search(context.Background(), "ATP", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Greater(t, results[0].Score, 0.0)
	assert.Contains(t, results[0].MatchedTerms, "atp")
}

func TestMemoryLexicalIndex_Search_HandCheckedScores(t *testing.T) {
	// Given: two documents with known term statistics
	idx := NewMemoryLexicalIndex(LexicalConfig{K1: 1.5, B: 0.75})
	defer func() { _ = idx.Close() }()

	docs := []IndexDoc{
		{ID: "d1", Content: "alpha beta"},             // len 2, tf(alpha)=1
		{ID: "d2", Content: "alpha alpha gamma delta"}, // len 4, tf(alpha)=2
	}
	require.NoError(t, idx.Add(context.Background(), docs))

	// When: searching for the shared term
	results, err := idx.Search(context.Background(), "alpha", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Then: scores match the classic formula with k1=1.5, b=0.75.
	// N=2, df=2, avgLen=3; idf = ln(1 + (2-2+0.5)/(2+0.5)) = ln(1.2).
	idf := math.Log(1.2)
	d1 := idf * 1 * 2.5 / (1 + 1.5*(0.25+0.75*2.0/3.0))
	d2 := idf * 2 * 2.5 / (2 + 1.5*(0.25+0.75*4.0/3.0))

	assert.Equal(t, "d2", results[0].ChunkID)
	assert.InDelta(t, d2, results[0].Score, 1e-9)
	assert.Equal(t, "d1", results[1].ChunkID)
	assert.InDelta(t, d1, results[1].Score, 1e-9)
}

func TestMemoryLexicalIndex_Search_MultiTermRanking(t *testing.T) {
	// Given: documents containing different term combinations
	idx := NewMemoryLexicalIndex(DefaultLexicalConfig())
	defer func() { _ = idx.Close() }()

	docs := []IndexDoc{
		{ID: "1", Content: "enzyme catalyzes the reaction"},
		{ID: "2", Content: "enzyme structure and folding"},
		{ID: "3", Content: "reaction rates and temperature"},
	}
	require.NoError(t, idx.Add(context.Background(), docs))

	// When: searching with multiple terms
	results, err := idx.Search(context.Background(), "enzyme reaction", 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(results), 1)

	// Then: the document with both terms ranks highest
	assert.Equal(t, "1", results[0].ChunkID)
}

func TestMemoryLexicalIndex_Search_UnknownTermsContributeZero(t *testing.T) {
	idx := NewMemoryLexicalIndex(DefaultLexicalConfig())
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []IndexDoc{
		{ID: "1", Content: "glycolysis pathway"},
	}))

	// Unknown terms are a no-match, not an error.
	results, err := idx.Search(context.Background(), "xylophone", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	// A query mixing known and unknown terms still scores the known one.
	results, err = idx.Search(context.Background(), "xylophone glycolysis", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"glycolysis"}, results[0].MatchedTerms)
}

func TestMemoryLexicalIndex_Search_EmptyQuery(t *testing.T) {
	idx := NewMemoryLexicalIndex(DefaultLexicalConfig())
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []IndexDoc{
		{ID: "1", Content: "some content"},
	}))

	for _, query := range []string{"", "   ", "!!!"} {
		results, err := idx.Search(context.Background(), query, 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	}
}

func TestMemoryLexicalIndex_Search_TieOrderByChunkID(t *testing.T) {
	// Given: identical documents whose scores tie exactly
	idx := NewMemoryLexicalIndex(DefaultLexicalConfig())
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []IndexDoc{
		{ID: "zz_0", Content: "osmosis in plant cells"},
		{ID: "aa_0", Content: "osmosis in plant cells"},
	}))

	results, err := idx.Search(context.Background(), "osmosis", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Then: ties resolve by chunk id ascending
	assert.Equal(t, "aa_0", results[0].ChunkID)
	assert.Equal(t, "zz_0", results[1].ChunkID)
	assert.Equal(t, results[0].Score, results[1].Score)
}

func TestMemoryLexicalIndex_Search_LimitHonored(t *testing.T) {
	idx := NewMemoryLexicalIndex(DefaultLexicalConfig())
	defer func() { _ = idx.Close() }()

	docs := make([]IndexDoc, 20)
	for i := range docs {
		docs[i] = IndexDoc{ID: ChunkID("doc", i), Content: "ribosome assembly"}
	}
	require.NoError(t, idx.Add(context.Background(), docs))

	results, err := idx.Search(context.Background(), "ribosome", 5)
	require.NoError(t, err)
	assert.Len(t, results, 5)
}

func TestMemoryLexicalIndex_Remove(t *testing.T) {
	// Given: an index with two documents
	idx := NewMemoryLexicalIndex(DefaultLexicalConfig())
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []IndexDoc{
		{ID: "keep", Content: "neuron fires action potential"},
		{ID: "drop", Content: "neuron resting potential"},
	}))
	require.Equal(t, 2, idx.Count())

	// When: removing one
	require.NoError(t, idx.Remove(context.Background(), []string{"drop", "never-existed"}))

	// Then: it no longer matches and the count reflects the removal
	assert.Equal(t, 1, idx.Count())
	results, err := idx.Search(context.Background(), "neuron", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "keep", results[0].ChunkID)
}

func TestMemoryLexicalIndex_Add_ReplacesExistingID(t *testing.T) {
	idx := NewMemoryLexicalIndex(DefaultLexicalConfig())
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []IndexDoc{
		{ID: "1", Content: "old topic entirely"},
	}))
	require.NoError(t, idx.Add(context.Background(), []IndexDoc{
		{ID: "1", Content: "new subject matter"},
	}))

	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(context.Background(), "old", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(context.Background(), "subject", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].ChunkID)
}

func TestMemoryLexicalIndex_Reset(t *testing.T) {
	idx := NewMemoryLexicalIndex(DefaultLexicalConfig())
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []IndexDoc{
		{ID: "1", Content: "content"},
	}))
	require.NoError(t, idx.Reset(context.Background()))

	assert.Equal(t, 0, idx.Count())
	results, err := idx.Search(context.Background(), "content", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	// The index stays usable after Reset.
	require.NoError(t, idx.Add(context.Background(), []IndexDoc{
		{ID: "2", Content: "fresh content"},
	}))
	assert.Equal(t, 1, idx.Count())
}

func TestMemoryLexicalIndex_Closed(t *testing.T) {
	idx := NewMemoryLexicalIndex(DefaultLexicalConfig())
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close()) // idempotent

	err := idx.Add(context.Background(), []IndexDoc{{ID: "1", Content: "x"}})
	assert.Error(t, err)

	_, err = idx.Search(context.Background(), "x", 10)
	assert.Error(t, err)

	assert.Equal(t, 0, idx.Count())
}
