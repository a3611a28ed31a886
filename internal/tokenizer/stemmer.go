package tokenizer

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kljensen/snowball/english"
)

// Stemmer maps a lower-case word to its stem.
type Stemmer interface {
	Stem(word string) string
}

// Snowball is the English (Porter2) snowball stemmer.
type Snowball struct{}

func (Snowball) Stem(word string) string {
	return english.Stem(word, true)
}

// Identity leaves words unchanged.
type Identity struct{}

func (Identity) Stem(word string) string { return word }

// Cached memoises another Stemmer in a bounded LRU. It is safe for
// concurrent use.
type Cached struct {
	next  Stemmer
	cache *lru.Cache[string, string]
}

// NewCached wraps next with an LRU of the given size. A size below one
// returns next unwrapped.
func NewCached(next Stemmer, size int) Stemmer {
	if size < 1 {
		return next
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return next
	}
	return &Cached{next: next, cache: cache}
}

func (c *Cached) Stem(word string) string {
	if stem, ok := c.cache.Get(word); ok {
		return stem
	}
	stem := c.next.Stem(word)
	c.cache.Add(word, stem)
	return stem
}

// Len reports the number of memoised words.
func (c *Cached) Len() int {
	return c.cache.Len()
}
