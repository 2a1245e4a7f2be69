package search

// Quality classifies how trustworthy a retrieval's results are. Downstream
// consumers use it to warn instead of fabricating answers from weak context.
type Quality string

const (
	// QualityHigh means a strong top score with several solid results.
	QualityHigh Quality = "high"

	// QualityMedium means at least one usable result.
	QualityMedium Quality = "medium"

	// QualityLow means results exist but all of them are weak.
	QualityLow Quality = "low"

	// QualityInsufficient means no results at all, typically an empty or
	// unindexed collection.
	QualityInsufficient Quality = "insufficient"
)

// Assessor classifies a result set from its top fused score and the number
// of results clearing the min-score threshold. The thresholds are policy
// constants carried in configuration; the assessment never removes results.
type Assessor struct {
	// HighScore is the minimum top score for the high band.
	HighScore float64

	// MediumScore is the minimum top score for the medium band.
	MediumScore float64

	// HighCount is the minimum number of results at or above MinScore
	// for the high band.
	HighCount int

	// MediumCount is the equivalent for the medium band.
	MediumCount int

	// MinScore is the fused-score threshold results are counted against.
	MinScore float64
}

// DefaultAssessor returns the stock quality thresholds.
func DefaultAssessor() Assessor {
	return Assessor{
		HighScore:   0.6,
		MediumScore: 0.3,
		HighCount:   3,
		MediumCount: 1,
		MinScore:    DefaultMinScore,
	}
}

// Assess labels a result set. The scan is order-independent so it works on
// both fused-ordered and MMR-ordered lists.
func (a Assessor) Assess(results []FusedResult) Quality {
	if len(results) == 0 {
		return QualityInsufficient
	}

	var top float64
	var above int
	for _, r := range results {
		if r.Score > top {
			top = r.Score
		}
		if r.Score >= a.MinScore {
			above++
		}
	}

	switch {
	case top >= a.HighScore && above >= a.HighCount:
		return QualityHigh
	case top >= a.MediumScore && above >= a.MediumCount:
		return QualityMedium
	default:
		return QualityLow
	}
}
