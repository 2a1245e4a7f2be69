package search

import "math"

// SimilarityFunc reports the similarity of two chunks by id, in [0,1].
// The engine supplies one backed by stored embeddings with a token-overlap
// fallback; tests supply synthetic tables.
type SimilarityFunc func(a, b string) float64

// Selector picks a diverse result set with maximal marginal relevance:
// each pick maximizes lambda*relevance - (1-lambda)*maxSimilarityToSelected,
// where relevance is the fused score.
type Selector struct {
	lambda float64
}

// NewSelector creates a selector with the given relevance weight.
// Lambdas outside [0,1] fall back to the default.
func NewSelector(lambda float64) *Selector {
	if lambda < 0 || lambda > 1 {
		lambda = DefaultLambda
	}
	return &Selector{lambda: lambda}
}

// Select greedily picks up to k candidates from the fused-ordered pool.
//
// The first pick is always the fused head: with nothing selected the
// similarity penalty is 0 for every candidate. On an equal MMR score the
// candidate earlier in fused order wins, which keeps selection
// deterministic. A pool smaller than k returns the whole pool in pick
// order, never padded.
func (s *Selector) Select(cands []FusedResult, k int, sim SimilarityFunc) []FusedResult {
	if k <= 0 || len(cands) == 0 {
		return nil
	}
	if sim == nil {
		sim = func(string, string) float64 { return 0 }
	}
	if k > len(cands) {
		k = len(cands)
	}

	selected := make([]FusedResult, 0, k)
	remaining := make([]FusedResult, len(cands))
	copy(remaining, cands)

	for len(selected) < k && len(remaining) > 0 {
		best := 0
		bestScore := math.Inf(-1)
		for i, c := range remaining {
			penalty := 0.0
			for _, picked := range selected {
				if v := sim(c.ChunkID, picked.ChunkID); v > penalty {
					penalty = v
				}
			}
			score := s.lambda*c.Score - (1-s.lambda)*penalty
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
		selected = append(selected, remaining[best])
		remaining = append(remaining[:best], remaining[best+1:]...)
	}

	return selected
}
