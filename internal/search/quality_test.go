package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func scored(scores ...float64) []FusedResult {
	results := make([]FusedResult, len(scores))
	for i, s := range scores {
		results[i] = FusedResult{ChunkID: "doc_0", Score: s}
	}
	return results
}

func TestAssessor_Bands(t *testing.T) {
	assessor := DefaultAssessor()

	tests := []struct {
		name    string
		results []FusedResult
		want    Quality
	}{
		{"no results", nil, QualityInsufficient},
		{"strong top with deep support", scored(0.7, 0.5, 0.4), QualityHigh},
		{"boundary values still count as high", scored(0.6, 0.3, 0.3), QualityHigh},
		{"strong top but thin support", scored(0.7, 0.5), QualityMedium},
		{"strong top alone", scored(0.65, 0.2, 0.1), QualityMedium},
		{"broad but shallow support", scored(0.4, 0.35, 0.3), QualityMedium},
		{"single borderline hit", scored(0.3), QualityMedium},
		{"everything below threshold", scored(0.25, 0.2), QualityLow},
		{"just under the medium bar", scored(0.2999), QualityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, assessor.Assess(tt.results))
		})
	}
}

func TestAssessor_CustomMinScore(t *testing.T) {
	assessor := DefaultAssessor()
	assessor.MinScore = 0.5

	// Only one result clears 0.5, so the high band's count gate fails.
	assert.Equal(t, QualityMedium, assessor.Assess(scored(0.7, 0.45, 0.4)))
}

func TestAssessor_OrderIndependent(t *testing.T) {
	assessor := DefaultAssessor()

	sorted := assessor.Assess(scored(0.9, 0.5, 0.2))
	shuffled := assessor.Assess(scored(0.2, 0.9, 0.5))
	assert.Equal(t, sorted, shuffled)
	assert.Equal(t, QualityMedium, sorted)
}
