package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidates(ids []string, scores []float64) []FusedResult {
	cands := make([]FusedResult, len(ids))
	for i, id := range ids {
		cands[i] = FusedResult{ChunkID: id, Score: scores[i]}
	}
	return cands
}

// simFromTable builds a symmetric similarity function from pair entries.
// Unlisted pairs score zero.
func simFromTable(table map[[2]string]float64) SimilarityFunc {
	return func(a, b string) float64 {
		if v, ok := table[[2]string{a, b}]; ok {
			return v
		}
		if v, ok := table[[2]string{b, a}]; ok {
			return v
		}
		return 0
	}
}

func TestSelector_FirstPickIsRelevanceHead(t *testing.T) {
	cands := candidates([]string{"a_0", "b_0", "c_0"}, []float64{0.9, 0.8, 0.7})
	sim := simFromTable(map[[2]string]float64{
		{"a_0", "b_0"}: 0.99,
		{"a_0", "c_0"}: 0.99,
	})

	selected := NewSelector(0.7).Select(cands, 1, sim)
	require.Len(t, selected, 1)
	assert.Equal(t, "a_0", selected[0].ChunkID)
}

func TestSelector_NearDuplicatesNotBothSelected(t *testing.T) {
	// b_0 nearly duplicates a_0; c_0 is distinct but scores lower.
	cands := candidates([]string{"a_0", "b_0", "c_0"}, []float64{0.9, 0.88, 0.75})
	sim := simFromTable(map[[2]string]float64{
		{"a_0", "b_0"}: 0.97,
		{"a_0", "c_0"}: 0.1,
		{"b_0", "c_0"}: 0.1,
	})

	// b_0: 0.7*0.88 - 0.3*0.97 = 0.325; c_0: 0.7*0.75 - 0.3*0.1 = 0.495.
	selected := NewSelector(0.7).Select(cands, 2, sim)
	require.Len(t, selected, 2)
	assert.Equal(t, []string{"a_0", "c_0"}, fusedIDs(selected))
	assert.NotContains(t, fusedIDs(selected), "b_0")
}

func TestSelector_PoolSmallerThanK(t *testing.T) {
	cands := candidates([]string{"a_0", "b_0", "c_0"}, []float64{0.9, 0.6, 0.3})

	selected := NewSelector(0.7).Select(cands, 10, nil)
	require.Len(t, selected, 3)
	assert.Equal(t, []string{"a_0", "b_0", "c_0"}, fusedIDs(selected))
}

func TestSelector_LambdaOneIsPureRelevance(t *testing.T) {
	cands := candidates([]string{"a_0", "b_0", "c_0"}, []float64{0.9, 0.8, 0.7})
	sim := simFromTable(map[[2]string]float64{
		{"a_0", "b_0"}: 0.99,
		{"a_0", "c_0"}: 0.99,
		{"b_0", "c_0"}: 0.99,
	})

	// Redundancy penalty is silenced, so even near-duplicates rank by score.
	selected := NewSelector(1.0).Select(cands, 3, sim)
	assert.Equal(t, []string{"a_0", "b_0", "c_0"}, fusedIDs(selected))
}

func TestSelector_LambdaZeroIsPureDiversity(t *testing.T) {
	cands := candidates([]string{"a_0", "b_0", "c_0"}, []float64{0.9, 0.8, 0.7})
	sim := simFromTable(map[[2]string]float64{
		{"a_0", "b_0"}: 0.9,
		{"a_0", "c_0"}: 0.2,
		{"b_0", "c_0"}: 0.3,
	})

	// After a_0, the least similar remaining chunk wins regardless of score.
	selected := NewSelector(0.0).Select(cands, 3, sim)
	assert.Equal(t, []string{"a_0", "c_0", "b_0"}, fusedIDs(selected))
}

func TestSelector_TieGoesToEarlierCandidate(t *testing.T) {
	cands := candidates([]string{"a_0", "b_0", "c_0"}, []float64{0.5, 0.5, 0.5})

	selected := NewSelector(0.7).Select(cands, 3, nil)
	assert.Equal(t, []string{"a_0", "b_0", "c_0"}, fusedIDs(selected))
}

func TestSelector_EdgeInputs(t *testing.T) {
	cands := candidates([]string{"a_0", "b_0"}, []float64{0.9, 0.8})

	t.Run("zero k", func(t *testing.T) {
		assert.Nil(t, NewSelector(0.7).Select(cands, 0, nil))
	})

	t.Run("negative k", func(t *testing.T) {
		assert.Nil(t, NewSelector(0.7).Select(cands, -3, nil))
	})

	t.Run("empty pool", func(t *testing.T) {
		assert.Nil(t, NewSelector(0.7).Select(nil, 5, nil))
	})

	t.Run("nil similarity picks by relevance", func(t *testing.T) {
		selected := NewSelector(0.7).Select(cands, 2, nil)
		assert.Equal(t, []string{"a_0", "b_0"}, fusedIDs(selected))
	})
}

func TestSelector_DoesNotMutateInput(t *testing.T) {
	cands := candidates([]string{"a_0", "b_0", "c_0"}, []float64{0.9, 0.8, 0.7})
	sim := simFromTable(map[[2]string]float64{{"a_0", "b_0"}: 0.95})

	_ = NewSelector(0.7).Select(cands, 2, sim)
	assert.Equal(t, []string{"a_0", "b_0", "c_0"}, fusedIDs(cands))
}

func TestNewSelector_ClampsLambda(t *testing.T) {
	assert.Equal(t, DefaultLambda, NewSelector(-1).lambda)
	assert.Equal(t, DefaultLambda, NewSelector(2).lambda)
	assert.Equal(t, 0.0, NewSelector(0.0).lambda)
	assert.Equal(t, 1.0, NewSelector(1.0).lambda)
}
