package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyrag/studyrag/internal/store"
)

func lexResults(ids []string, scores []float64) []store.LexicalResult {
	results := make([]store.LexicalResult, len(ids))
	for i, id := range ids {
		results[i] = store.LexicalResult{
			ChunkID:      id,
			Score:        scores[i],
			MatchedTerms: []string{"term"},
		}
	}
	return results
}

func semResults(ids []string, scores []float64) []store.VectorResult {
	results := make([]store.VectorResult, len(ids))
	for i, id := range ids {
		results[i] = store.VectorResult{
			ChunkID: id,
			Score:   scores[i],
		}
	}
	return results
}

func fusedIDs(results []FusedResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	return ids
}

func TestFuser_BlendsNormalizedSignals(t *testing.T) {
	// Lexical: a=10, b=5, c=2 normalizes to a=1, b=0.375, c=0.
	// Semantic: b=0.9, a=0.5, d=0.1 normalizes to b=1, a=0.5, d=0.
	lex := lexResults([]string{"docA_0", "docA_1", "docB_0"}, []float64{10, 5, 2})
	sem := semResults([]string{"docA_1", "docA_0", "docC_0"}, []float64{0.9, 0.5, 0.1})

	results := NewFuser(0.7).Fuse(lex, sem)
	require.Len(t, results, 4)

	// docA_1: 0.7*1.0 + 0.3*0.375 = 0.8125
	// docA_0: 0.7*0.5 + 0.3*1.0   = 0.65
	// docB_0 and docC_0 both land on 0; the id tie-break orders docB first.
	assert.Equal(t, []string{"docA_1", "docA_0", "docB_0", "docC_0"}, fusedIDs(results))
	assert.InDelta(t, 0.8125, results[0].Score, 1e-9)
	assert.InDelta(t, 0.65, results[1].Score, 1e-9)
	assert.InDelta(t, 0.0, results[2].Score, 1e-9)
	assert.InDelta(t, 0.0, results[3].Score, 1e-9)

	assert.Equal(t, SourceBoth, results[0].Source)
	assert.Equal(t, SourceBoth, results[1].Source)
	assert.Equal(t, SourceLexical, results[2].Source)
	assert.Equal(t, SourceSemantic, results[3].Source)
}

func TestFuser_PreservesRawScoresAndRanks(t *testing.T) {
	lex := lexResults([]string{"docA_0", "docA_1"}, []float64{10, 5})
	sem := semResults([]string{"docA_1", "docA_0"}, []float64{0.9, 0.5})

	results := NewFuser(0.7).Fuse(lex, sem)
	require.Len(t, results, 2)

	byID := make(map[string]FusedResult, len(results))
	for _, r := range results {
		byID[r.ChunkID] = r
	}

	a := byID["docA_0"]
	assert.Equal(t, 10.0, a.LexScore)
	assert.Equal(t, 1, a.LexRank)
	assert.InDelta(t, 0.5, a.SemScore, 1e-9)
	assert.Equal(t, 2, a.SemRank)

	b := byID["docA_1"]
	assert.Equal(t, 5.0, b.LexScore)
	assert.Equal(t, 2, b.LexRank)
	assert.InDelta(t, 0.9, b.SemScore, 1e-9)
	assert.Equal(t, 1, b.SemRank)
}

func TestFuser_SingleSignal(t *testing.T) {
	t.Run("lexical only", func(t *testing.T) {
		lex := lexResults([]string{"x_0", "x_1"}, []float64{4, 2})

		results := NewFuser(0.7).Fuse(lex, nil)
		require.Len(t, results, 2)

		// Missing semantic contributes zero, so scores cap at 1-alpha.
		assert.Equal(t, "x_0", results[0].ChunkID)
		assert.InDelta(t, 0.3, results[0].Score, 1e-9)
		assert.InDelta(t, 0.0, results[1].Score, 1e-9)
		for _, r := range results {
			assert.Equal(t, SourceLexical, r.Source)
			assert.Equal(t, 0, r.SemRank)
		}
	})

	t.Run("semantic only", func(t *testing.T) {
		sem := semResults([]string{"y_0", "y_1"}, []float64{0.8, 0.2})

		results := NewFuser(0.7).Fuse(nil, sem)
		require.Len(t, results, 2)

		assert.Equal(t, "y_0", results[0].ChunkID)
		assert.InDelta(t, 0.7, results[0].Score, 1e-9)
		assert.InDelta(t, 0.0, results[1].Score, 1e-9)
		for _, r := range results {
			assert.Equal(t, SourceSemantic, r.Source)
			assert.Equal(t, 0, r.LexRank)
		}
	})
}

func TestFuser_DegenerateNormalization(t *testing.T) {
	t.Run("identical positive scores normalize to one", func(t *testing.T) {
		lex := lexResults([]string{"a_0", "a_1"}, []float64{3, 3})

		results := NewFuser(0.7).Fuse(lex, nil)
		require.Len(t, results, 2)
		assert.InDelta(t, 0.3, results[0].Score, 1e-9)
		assert.InDelta(t, 0.3, results[1].Score, 1e-9)
		// Equal scores fall back to id order.
		assert.Equal(t, []string{"a_0", "a_1"}, fusedIDs(results))
	})

	t.Run("identical non-positive scores normalize to zero", func(t *testing.T) {
		sem := semResults([]string{"b_0", "b_1"}, []float64{-0.2, -0.2})

		results := NewFuser(0.7).Fuse(nil, sem)
		require.Len(t, results, 2)
		assert.InDelta(t, 0.0, results[0].Score, 1e-9)
		assert.InDelta(t, 0.0, results[1].Score, 1e-9)
	})

	t.Run("single candidate gets full weight", func(t *testing.T) {
		results := NewFuser(0.7).Fuse(lexResults([]string{"c_0"}, []float64{5}), nil)
		require.Len(t, results, 1)
		assert.InDelta(t, 0.3, results[0].Score, 1e-9)
	})
}

func TestFuser_EmptyInputs(t *testing.T) {
	results := NewFuser(0.7).Fuse(nil, nil)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestFuser_NumericIndexTieBreak(t *testing.T) {
	// Equal fused scores: chunk indexes compare numerically, not as strings.
	lex := lexResults([]string{"doc_10", "doc_2"}, []float64{5, 5})

	results := NewFuser(0.7).Fuse(lex, nil)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"doc_2", "doc_10"}, fusedIDs(results))
}

func TestFuser_ScoresStayInUnitRange(t *testing.T) {
	lex := lexResults(
		[]string{"p_0", "p_1", "q_0", "q_1", "r_0"},
		[]float64{12.5, 7.1, 3.3, 0.4, 0.01},
	)
	sem := semResults(
		[]string{"q_1", "s_0", "p_0", "r_0"},
		[]float64{0.93, 0.4, 0.12, -0.3},
	)

	for _, alpha := range []float64{0.0, 0.3, 0.7, 1.0} {
		results := NewFuser(alpha).Fuse(lex, sem)
		require.NotEmpty(t, results)
		for _, r := range results {
			assert.GreaterOrEqual(t, r.Score, 0.0, "alpha=%g chunk=%s", alpha, r.ChunkID)
			assert.LessOrEqual(t, r.Score, 1.0, "alpha=%g chunk=%s", alpha, r.ChunkID)
			assert.GreaterOrEqual(t, r.LexNorm, 0.0)
			assert.LessOrEqual(t, r.LexNorm, 1.0)
			assert.GreaterOrEqual(t, r.SemNorm, 0.0)
			assert.LessOrEqual(t, r.SemNorm, 1.0)
		}
	}
}

func TestFuser_RaisingAlphaNeverDemotesSemanticWinner(t *testing.T) {
	// "s_0" dominates semantically, "t_0" lexically. As alpha grows the
	// semantic winner may only move up.
	lex := lexResults([]string{"t_0", "s_0"}, []float64{8, 1})
	sem := semResults([]string{"s_0", "t_0"}, []float64{0.9, 0.1})

	rankOf := func(results []FusedResult, id string) int {
		for i, r := range results {
			if r.ChunkID == id {
				return i
			}
		}
		t.Fatalf("chunk %s missing from results", id)
		return -1
	}

	prev := -1
	for _, alpha := range []float64{0.1, 0.3, 0.5, 0.7, 0.9} {
		results := NewFuser(alpha).Fuse(lex, sem)
		rank := rankOf(results, "s_0")
		if prev >= 0 {
			assert.LessOrEqual(t, rank, prev, "alpha=%g", alpha)
		}
		prev = rank
	}
}

func TestNewFuser_ClampsAlpha(t *testing.T) {
	assert.Equal(t, DefaultAlpha, NewFuser(-0.5).alpha)
	assert.Equal(t, DefaultAlpha, NewFuser(1.5).alpha)
	assert.Equal(t, 0.4, NewFuser(0.4).alpha)
	assert.Equal(t, 0.0, NewFuser(0.0).alpha)
	assert.Equal(t, 1.0, NewFuser(1.0).alpha)
}

func TestMinMaxNorm(t *testing.T) {
	t.Run("spreads values across unit range", func(t *testing.T) {
		norm := minMaxNorm([]float64{2, 10, 6})
		assert.InDelta(t, 0.0, norm(2), 1e-9)
		assert.InDelta(t, 1.0, norm(10), 1e-9)
		assert.InDelta(t, 0.5, norm(6), 1e-9)
	})

	t.Run("degenerate positive collapses to one", func(t *testing.T) {
		norm := minMaxNorm([]float64{3, 3, 3})
		assert.InDelta(t, 1.0, norm(3), 1e-9)
	})

	t.Run("degenerate zero collapses to zero", func(t *testing.T) {
		norm := minMaxNorm([]float64{0, 0})
		assert.InDelta(t, 0.0, norm(0), 1e-9)
	})

	t.Run("empty input maps everything to zero", func(t *testing.T) {
		norm := minMaxNorm(nil)
		assert.InDelta(t, 0.0, norm(42), 1e-9)
	})
}

func TestSplitChunkID(t *testing.T) {
	tests := []struct {
		id      string
		wantDoc string
		wantIdx int
		wantOK  bool
	}{
		{"doc_0", "doc", 0, true},
		{"doc_12", "doc", 12, true},
		{"my_notes_3", "my_notes", 3, true},
		{"a1b2c3d4_7", "a1b2c3d4", 7, true},
		{"plain", "", 0, false},
		{"_5", "", 0, false},
		{"doc_", "", 0, false},
		{"doc_abc", "", 0, false},
		{"doc_-1", "", 0, false},
		{"", "", 0, false},
	}
	for _, tt := range tests {
		doc, idx, ok := splitChunkID(tt.id)
		assert.Equal(t, tt.wantOK, ok, "id=%q", tt.id)
		if tt.wantOK {
			assert.Equal(t, tt.wantDoc, doc, "id=%q", tt.id)
			assert.Equal(t, tt.wantIdx, idx, "id=%q", tt.id)
		}
	}
}

func TestCompareChunkIDs(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"same doc numeric order", "doc_2", "doc_10", -1},
		{"same doc reversed", "doc_10", "doc_2", 1},
		{"equal ids", "doc_3", "doc_3", 0},
		{"different docs", "alpha_0", "beta_0", -1},
		{"doc id containing underscores", "my_notes_2", "my_notes_10", -1},
		{"foreign ids fall back to string order", "zebra", "apple", 1},
		{"mixed canonical and foreign", "doc_1", "zebra", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareChunkIDs(tt.a, tt.b)
			switch {
			case tt.want < 0:
				assert.Negative(t, got)
			case tt.want > 0:
				assert.Positive(t, got)
			default:
				assert.Zero(t, got)
			}
		})
	}
}
