// Package lexer turns raw user text into the token sequence the matcher
// works on.
package lexer

import (
	"strings"
	"unicode"

	"github.com/bdobrica/Eliza/internal/eliza/script"
)

// Normalizer tokenises input and applies a pre-substitution dictionary.
// It holds no mutable state and may be shared.
type Normalizer struct {
	pre script.Dictionary
}

// New returns a Normalizer applying pre. A nil dictionary disables
// pre-substitution.
func New(pre script.Dictionary) *Normalizer {
	return &Normalizer{pre: pre}
}

// Normalize folds raw to lower case, splits it into words and applies the
// pre-substitution dictionary. Input with no words yields an empty slice.
func (n *Normalizer) Normalize(raw string) []string {
	return Substitute(Tokenize(raw), n.pre)
}

// Tokenize folds raw with script.Fold and splits it on whitespace and
// sentence punctuation. Apostrophes inside a word are kept so contractions
// survive.
func Tokenize(raw string) []string {
	text := script.Fold(raw)

	fields := strings.FieldsFunc(text, isSeparator)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, isEdgePunct)
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// Substitute replaces every word found in dict by its replacement words.
// Only whole words are replaced; the input slice is not modified.
func Substitute(words []string, dict script.Dictionary) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if repl, ok := dict[w]; ok {
			out = append(out, repl...)
			continue
		}
		out = append(out, w)
	}
	return out
}

func isSeparator(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case '.', ',', ';', ':', '!', '?', '"', '(', ')', '[', ']', '{', '}':
		return true
	}
	return false
}

// isEdgePunct trims quotes and dashes left around a word, e.g. "'am'".
func isEdgePunct(r rune) bool {
	return r != '@' && (unicode.IsPunct(r) || unicode.IsSymbol(r))
}
