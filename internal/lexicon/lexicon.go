// Package lexicon normalises free text in English, romanised Hindi and
// Devanagari and matches keyword patterns against it.
package lexicon

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize trims, composes (NFC) and case-folds s, then collapses
// punctuation and whitespace into single spaces.
func Normalize(s string) string {
	return strings.Join(Tokens(s), " ")
}

// Tokens splits s into normalised word tokens. Devanagari vowel signs and
// nukta are marks, not separators, so words stay intact.
func Tokens(s string) []string {
	s = norm.NFC.String(strings.TrimSpace(s))
	// cases.Caser is stateful; a fresh one per call keeps Tokens goroutine safe.
	s = cases.Fold().String(s)
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsMark(r) && !unicode.IsDigit(r)
	})
}

// Pattern is a compiled keyword or phrase. A trailing '*' in the source makes
// the last word a prefix match ("irrigat*" matches "irrigation").
type Pattern struct {
	Source string
	Weight float64
	tokens []string
	prefix bool
}

// Compile builds a Pattern from its textual form.
func Compile(source string, weight float64) Pattern {
	trimmed := strings.TrimSpace(source)
	prefix := strings.HasSuffix(trimmed, "*")
	return Pattern{
		Source: source,
		Weight: weight,
		tokens: Tokens(strings.TrimSuffix(trimmed, "*")),
		prefix: prefix,
	}
}

// Empty reports whether the pattern has no words to match.
func (p Pattern) Empty() bool { return len(p.tokens) == 0 }

// Matches reports whether the pattern occurs as a contiguous word sequence.
func (p Pattern) Matches(tokens []string) bool {
	n := len(p.tokens)
	if n == 0 || n > len(tokens) {
		return false
	}
	for i := 0; i+n <= len(tokens); i++ {
		if p.matchAt(tokens[i : i+n]) {
			return true
		}
	}
	return false
}

func (p Pattern) matchAt(window []string) bool {
	last := len(p.tokens) - 1
	for j, want := range p.tokens {
		got := window[j]
		if j == last && p.prefix {
			if !strings.HasPrefix(got, want) {
				return false
			}
			continue
		}
		if got != want {
			return false
		}
	}
	return true
}
