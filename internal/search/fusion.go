package search

import (
	"sort"
	"strconv"
	"strings"

	"github.com/studyrag/studyrag/internal/store"
)

// normEpsilon is the spread below which a signal's candidate scores are
// treated as identical during min-max normalization.
const normEpsilon = 1e-9

// FusedResult is a single candidate after score fusion.
type FusedResult struct {
	ChunkID  string
	Score    float64 // alpha*SemNorm + (1-alpha)*LexNorm
	LexScore float64 // raw BM25 score (0 if absent)
	LexNorm  float64 // min-max normalized lexical score
	LexRank  int     // position in the lexical list (1-indexed, 0 if absent)
	SemScore float64 // raw cosine similarity (0 if absent)
	SemNorm  float64 // min-max normalized semantic score
	SemRank  int     // position in the semantic list (1-indexed, 0 if absent)
	Source   Source
}

// Fuser blends lexical and semantic hits into one ranked candidate list.
//
// Each signal is min-max normalized to [0,1] over the candidates present in
// that signal, then blended as alpha*semantic + (1-alpha)*lexical. A chunk
// surfaced by only one signal contributes 0 for the missing one, so fused
// scores stay in [0,1] for any alpha in [0,1].
type Fuser struct {
	alpha float64
}

// NewFuser creates a fuser with the given semantic weight.
// Alphas outside [0,1] fall back to the default.
func NewFuser(alpha float64) *Fuser {
	if alpha < 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Fuser{alpha: alpha}
}

// Fuse merges the two ranked hit lists over their candidate union.
//
// Results are sorted fused-score descending; ties order by chunk id
// (document id, then numeric chunk index) ascending for determinism.
func (f *Fuser) Fuse(lex []store.LexicalResult, sem []store.VectorResult) []FusedResult {
	if len(lex) == 0 && len(sem) == 0 {
		return []FusedResult{}
	}

	candidates := make(map[string]*FusedResult, len(lex)+len(sem))
	get := func(id string) *FusedResult {
		if c, ok := candidates[id]; ok {
			return c
		}
		c := &FusedResult{ChunkID: id}
		candidates[id] = c
		return c
	}

	lexScores := make([]float64, 0, len(lex))
	for i, r := range lex {
		c := get(r.ChunkID)
		c.LexScore = r.Score
		c.LexRank = i + 1
		lexScores = append(lexScores, r.Score)
	}

	semScores := make([]float64, 0, len(sem))
	for i, r := range sem {
		c := get(r.ChunkID)
		c.SemScore = r.Score
		c.SemRank = i + 1
		semScores = append(semScores, r.Score)
	}

	lexNorm := minMaxNorm(lexScores)
	semNorm := minMaxNorm(semScores)

	results := make([]FusedResult, 0, len(candidates))
	for _, c := range candidates {
		if c.LexRank > 0 {
			c.LexNorm = lexNorm(c.LexScore)
		}
		if c.SemRank > 0 {
			c.SemNorm = semNorm(c.SemScore)
		}
		c.Score = f.alpha*c.SemNorm + (1-f.alpha)*c.LexNorm

		switch {
		case c.LexRank > 0 && c.SemRank > 0:
			c.Source = SourceBoth
		case c.LexRank > 0:
			c.Source = SourceLexical
		default:
			c.Source = SourceSemantic
		}

		results = append(results, *c)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return compareChunkIDs(results[i].ChunkID, results[j].ChunkID) < 0
	})

	return results
}

// minMaxNorm returns the normalizing function for one signal's scores.
// A degenerate spread maps every present score to 1 when the shared value
// is positive, else to 0.
func minMaxNorm(scores []float64) func(float64) float64 {
	if len(scores) == 0 {
		return func(float64) float64 { return 0 }
	}

	mn, mx := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < mn {
			mn = s
		}
		if s > mx {
			mx = s
		}
	}

	if mx-mn < normEpsilon {
		if mx > 0 {
			return func(float64) float64 { return 1 }
		}
		return func(float64) float64 { return 0 }
	}
	return func(s float64) float64 { return (s - mn) / (mx - mn) }
}

// compareChunkIDs orders chunk ids by document id, then numeric chunk
// index, so "doc_2" sorts before "doc_10". IDs that do not follow the
// <document>_<index> shape compare as plain strings.
func compareChunkIDs(a, b string) int {
	aDoc, aIdx, aOK := splitChunkID(a)
	bDoc, bIdx, bOK := splitChunkID(b)
	if aOK && bOK {
		if aDoc != bDoc {
			return strings.Compare(aDoc, bDoc)
		}
		switch {
		case aIdx < bIdx:
			return -1
		case aIdx > bIdx:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

// splitChunkID parses the canonical <document>_<index> chunk id shape.
func splitChunkID(id string) (doc string, idx int, ok bool) {
	cut := strings.LastIndex(id, "_")
	if cut <= 0 || cut == len(id)-1 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[cut+1:])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return id[:cut], n, true
}
