package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryLexicalIndex is an exact in-memory BM25 index.
//
// It is the default lexical backend: study collections hold at most a few
// thousand chunks, so scoring full posting lists with the classic formula
// is fast, and it keeps ranking exactly reproducible across rebuilds. The
// index is derived state, repopulated from the chunk store on open.
type MemoryLexicalIndex struct {
	mu  sync.RWMutex
	cfg LexicalConfig

	ids      []string       // ordinal -> chunk id; "" marks a removed slot
	ords     map[string]int // chunk id -> ordinal
	postings map[string][]posting
	docLens  []int // ordinal -> token count
	totalLen int   // sum of live document lengths
	live     int   // live document count

	closed bool
}

// posting is one entry of a term's occurrence list.
type posting struct {
	ord int
	tf  int
}

// Verify interface implementation at compile time
var _ LexicalIndex = (*MemoryLexicalIndex)(nil)

// NewMemoryLexicalIndex creates an empty in-memory BM25 index.
func NewMemoryLexicalIndex(cfg LexicalConfig) *MemoryLexicalIndex {
	def := DefaultLexicalConfig()
	if cfg.K1 <= 0 {
		cfg.K1 = def.K1
	}
	if cfg.B <= 0 || cfg.B > 1 {
		cfg.B = def.B
	}
	return &MemoryLexicalIndex{
		cfg:      cfg,
		ords:     make(map[string]int),
		postings: make(map[string][]posting),
	}
}

// Add indexes documents. An existing id is replaced at a new ordinal.
func (m *MemoryLexicalIndex) Add(ctx context.Context, docs []IndexDoc) error {
	if len(docs) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("index is closed")
	}

	for _, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("cannot index document with empty id")
		}
		m.removeLocked(doc.ID)

		tokens := Tokenize(doc.Content)
		ord := len(m.ids)
		m.ids = append(m.ids, doc.ID)
		m.docLens = append(m.docLens, len(tokens))
		m.ords[doc.ID] = ord
		m.totalLen += len(tokens)
		m.live++

		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term, n := range tf {
			m.postings[term] = append(m.postings[term], posting{ord: ord, tf: n})
		}
	}

	return nil
}

// Search returns up to limit documents matching query, scored by BM25 with
// IDF ln(1 + (N-df+0.5)/(df+0.5)). Only positive scores are returned,
// sorted score-descending with ties by chunk id ascending.
func (m *MemoryLexicalIndex) Search(ctx context.Context, query string, limit int) ([]LexicalResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if limit <= 0 || m.live == 0 {
		return []LexicalResult{}, nil
	}

	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return []LexicalResult{}, nil
	}

	avgLen := float64(m.totalLen) / float64(m.live)
	if avgLen == 0 {
		avgLen = 1
	}

	scores := make(map[int]float64)
	matched := make(map[int]map[string]struct{})

	// Repeated query terms contribute once per occurrence, matching the
	// classic formulation where the score sums over query tokens.
	for _, term := range tokens {
		list := m.postings[term]
		if len(list) == 0 {
			continue
		}

		// Document frequency counts live slots only; removed documents
		// leave stale postings behind until the next rebuild.
		df := 0
		for _, p := range list {
			if m.ids[p.ord] != "" {
				df++
			}
		}
		if df == 0 {
			continue
		}

		idf := math.Log(1 + (float64(m.live)-float64(df)+0.5)/(float64(df)+0.5))
		for _, p := range list {
			if m.ids[p.ord] == "" {
				continue
			}
			tf := float64(p.tf)
			norm := 1 - m.cfg.B + m.cfg.B*float64(m.docLens[p.ord])/avgLen
			scores[p.ord] += idf * tf * (m.cfg.K1 + 1) / (tf + m.cfg.K1*norm)

			if matched[p.ord] == nil {
				matched[p.ord] = make(map[string]struct{})
			}
			matched[p.ord][term] = struct{}{}
		}
	}

	results := make([]LexicalResult, 0, len(scores))
	for ord, score := range scores {
		if score <= 0 {
			continue
		}
		results = append(results, LexicalResult{
			ChunkID:      m.ids[ord],
			Score:        score,
			MatchedTerms: sortedTerms(matched[ord]),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// Remove drops documents from the index. Unknown ids are ignored.
func (m *MemoryLexicalIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("index is closed")
	}
	for _, id := range ids {
		m.removeLocked(id)
	}
	return nil
}

// removeLocked tombstones a document. Postings referencing the ordinal stay
// behind and are skipped at score time; memory is reclaimed on Reset.
func (m *MemoryLexicalIndex) removeLocked(id string) {
	ord, ok := m.ords[id]
	if !ok {
		return
	}
	delete(m.ords, id)
	m.ids[ord] = ""
	m.totalLen -= m.docLens[ord]
	m.docLens[ord] = 0
	m.live--
}

// Reset drops all documents, keeping the index usable.
func (m *MemoryLexicalIndex) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("index is closed")
	}
	m.ids = nil
	m.ords = make(map[string]int)
	m.postings = make(map[string][]posting)
	m.docLens = nil
	m.totalLen = 0
	m.live = 0
	return nil
}

// Count returns the number of live documents.
func (m *MemoryLexicalIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0
	}
	return m.live
}

// Close marks the index closed. Idempotent.
func (m *MemoryLexicalIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

func sortedTerms(set map[string]struct{}) []string {
	terms := make([]string, 0, len(set))
	for t := range set {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}
