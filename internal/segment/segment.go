// Package segment splits extracted document text into overlapping,
// sentence-aligned chunks sized for embedding and indexing.
package segment

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Default chunk geometry, in runes.
const (
	DefaultTargetSize = 1000
	DefaultOverlap    = 500
)

// Segmenter splits plain text into chunks of at most targetSize runes, with
// up to overlap runes of trailing context repeated at the start of the next
// chunk. Splitting is a pure function: identical input and parameters always
// produce identical output.
type Segmenter struct {
	targetSize int
	overlap    int
}

// NewSegmenter creates a segmenter with the given chunk geometry.
// Overlap must satisfy 0 <= overlap < targetSize.
func NewSegmenter(targetSize, overlap int) (*Segmenter, error) {
	if targetSize <= 0 {
		return nil, fmt.Errorf("segment: target size must be positive, got %d", targetSize)
	}
	if overlap < 0 || overlap >= targetSize {
		return nil, fmt.Errorf("segment: overlap must be in [0, target size), got overlap=%d target=%d", overlap, targetSize)
	}
	return &Segmenter{targetSize: targetSize, overlap: overlap}, nil
}

// DefaultSegmenter creates a segmenter with the default geometry.
func DefaultSegmenter() *Segmenter {
	return &Segmenter{targetSize: DefaultTargetSize, overlap: DefaultOverlap}
}

// TargetSize returns the maximum chunk length in runes.
func (s *Segmenter) TargetSize() int { return s.targetSize }

// Overlap returns the overlap budget in runes.
func (s *Segmenter) Overlap() int { return s.overlap }

// Split chunks text at sentence boundaries. Sentences accumulate until adding
// the next one would push the chunk past the target size; the chunk then
// closes and its trailing sentences seed the next chunk as overlap. Sentences
// longer than the target are cut at whitespace, and inside a single oversize
// word at rune boundaries as the last resort, so no chunk ever exceeds the
// target. Empty or whitespace-only input yields no chunks.
func (s *Segmenter) Split(text string) []string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0 // rune length of strings.Join(current, " ")

	for _, sent := range sentences {
		sentLen := utf8.RuneCountInString(sent)

		// A sentence longer than the target cannot ride the normal
		// accumulation path; cut it down separately.
		if sentLen > s.targetSize {
			if len(current) > 0 {
				chunks = append(chunks, strings.Join(current, " "))
				current, currentLen = nil, 0
			}
			chunks = append(chunks, s.splitOversize(sent)...)
			continue
		}

		if len(current) > 0 && currentLen+1+sentLen > s.targetSize {
			chunks = append(chunks, strings.Join(current, " "))
			current, currentLen = s.carryOverlap(current)

			// Shed carried context oldest-first if the incoming sentence
			// still cannot fit under the target alongside it.
			for len(current) > 0 && currentLen+1+sentLen > s.targetSize {
				currentLen -= utf8.RuneCountInString(current[0])
				current = current[1:]
				if len(current) > 0 {
					currentLen-- // separator that followed the shed sentence
				}
			}
		}

		if len(current) > 0 {
			currentLen++ // joining separator
		}
		current = append(current, sent)
		currentLen += sentLen
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// PageChunk is a chunk tied to the 1-based page it was cut from.
type PageChunk struct {
	Page int
	Text string
}

// SplitPages segments each page independently so every chunk keeps the page
// it came from. Page whitespace is collapsed to single spaces first; pages
// that are empty after collapsing contribute no chunks but still occupy
// their page number, so later pages are not renumbered.
func (s *Segmenter) SplitPages(pages []string) []PageChunk {
	var chunks []PageChunk
	for i, page := range pages {
		normalized := strings.Join(strings.Fields(page), " ")
		if normalized == "" {
			continue
		}
		for _, text := range s.Split(normalized) {
			chunks = append(chunks, PageChunk{Page: i + 1, Text: text})
		}
	}
	return chunks
}

// carryOverlap keeps the trailing sentences of a just-closed chunk, newest
// first, while their joined length still fits the overlap budget. The kept
// sentences seed the next chunk.
func (s *Segmenter) carryOverlap(closed []string) ([]string, int) {
	keep := len(closed)
	keptLen := 0
	for keep > 0 {
		l := utf8.RuneCountInString(closed[keep-1])
		if keptLen > 0 {
			l++ // joining separator
		}
		if keptLen+l > s.overlap {
			break
		}
		keptLen += l
		keep--
	}
	kept := make([]string, len(closed)-keep)
	copy(kept, closed[keep:])
	return kept, keptLen
}

// splitOversize cuts a sentence longer than the target into pieces at
// whitespace boundaries, packing words greedily up to the target. A single
// word longer than the target is cut at rune boundaries.
func (s *Segmenter) splitOversize(sent string) []string {
	var pieces []string
	var cur strings.Builder
	curLen := 0

	emit := func() {
		if curLen > 0 {
			pieces = append(pieces, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, word := range strings.Fields(sent) {
		wordLen := utf8.RuneCountInString(word)
		if wordLen > s.targetSize {
			emit()
			pieces = append(pieces, cutRunes(word, s.targetSize)...)
			continue
		}
		sep := 0
		if curLen > 0 {
			sep = 1
		}
		if curLen+sep+wordLen > s.targetSize {
			emit()
			sep = 0
		}
		if sep == 1 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
		curLen += sep + wordLen
	}
	emit()
	return pieces
}

// cutRunes slices text into consecutive pieces of at most size runes.
func cutRunes(text string, size int) []string {
	runes := []rune(text)
	var pieces []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

// SplitSentences splits text into sentences. A sentence ends at a '.', '!',
// or '?' rune directly followed by whitespace; the whitespace run between
// sentences is consumed. Trailing text without closing punctuation forms a
// final sentence. Sentences are trimmed and empty ones dropped.
func SplitSentences(text string) []string {
	var sentences []string
	appendSentence := func(raw string) {
		if sent := strings.TrimSpace(raw); sent != "" {
			sentences = append(sentences, sent)
		}
	}

	start := 0
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isSentenceEnd(r) {
			i += size
			continue
		}
		next, nextSize := utf8.DecodeRuneInString(text[i+size:])
		if nextSize == 0 || !unicode.IsSpace(next) {
			i += size
			continue
		}
		appendSentence(text[start : i+size])
		i += size + nextSize
		for i < len(text) {
			ws, wsSize := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(ws) {
				break
			}
			i += wsSize
		}
		start = i
	}
	if start < len(text) {
		appendSentence(text[start:])
	}
	return sentences
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
