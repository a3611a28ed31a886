// Package tokenizer turns raw text into the stems stored in the index.
// Text is folded to unaccented lower-case letters, split on whitespace and
// passed through a pluggable Stemmer.
package tokenizer

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Tokenize returns the lower-case words of text in source order. Accents are
// stripped via NFD decomposition, and any rune that is neither a letter nor
// whitespace is removed, so "Café-au-lait 42" yields ["cafeaulait"].
func Tokenize(text string) []string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Fields(b.String())
}

// Normalizer applies Tokenize and a Stemmer. The zero value is not usable;
// construct with New.
type Normalizer struct {
	stemmer Stemmer
}

// New returns a Normalizer using stemmer. A nil stemmer keeps words as-is.
func New(stemmer Stemmer) Normalizer {
	if stemmer == nil {
		stemmer = Identity{}
	}
	return Normalizer{stemmer: stemmer}
}

// Stems returns one stem per word in line, in source order.
func (n Normalizer) Stems(line string) []string {
	words := Tokenize(line)
	for i, w := range words {
		words[i] = n.stemmer.Stem(w)
	}
	return words
}

// UniqueStems returns the distinct stems of line in sorted order.
func (n Normalizer) UniqueStems(line string) []string {
	stems := n.Stems(line)
	slices.Sort(stems)
	return slices.Compact(stems)
}

// Query returns the canonical form of a query line: its unique stems joined
// by a single space. Lines without words normalize to "".
func (n Normalizer) Query(line string) string {
	return strings.Join(n.UniqueStems(line), " ")
}
