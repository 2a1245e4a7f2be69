package store

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lower-cased terms for lexical indexing.
// A term is a maximal run of Unicode letters or digits; everything else is a
// separator. There is no stemming and no stop-word removal: the query side
// and the index side must share this function, and filtering on one side
// only would silently break score symmetry.
func Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(unicode.ToLower(r))
			continue
		}
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}

	return tokens
}

// TokenSet returns the distinct tokens of text. Used for overlap similarity
// when no embedding is available for a chunk.
func TokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}
