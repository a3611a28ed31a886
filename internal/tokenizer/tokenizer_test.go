package tokenizer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "Hello World", []string{"hello", "world"}},
		{"punctuation removed in place", "don't stop-me now!", []string{"dont", "stopme", "now"}},
		{"digits dropped", "route 66 rocks", []string{"route", "rocks"}},
		{"accents folded", "Café naïve RÉSUMÉ", []string{"cafe", "naive", "resume"}},
		{"tabs and newlines", "one\ttwo\nthree", []string{"one", "two", "three"}},
		{"blank", "   ", nil},
		{"only symbols", "123 !!! ---", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.in)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSnowballStems(t *testing.T) {
	s := Snowball{}
	assert.Equal(t, "run", s.Stem("running"))
	assert.Equal(t, "run", s.Stem("runs"))
	assert.Equal(t, "run", s.Stem("run"))
	assert.Equal(t, "connect", s.Stem("connected"))
}

func TestNormalizer(t *testing.T) {
	n := New(Snowball{})

	assert.Equal(t, []string{"the", "dog", "run", "and", "run"}, n.Stems("The dog runs and RUNNING"))
	assert.Equal(t, []string{"and", "dog", "run", "the"}, n.UniqueStems("The dog runs and RUNNING"))
	assert.Equal(t, "dog run", n.Query("running dogs run"))
	assert.Equal(t, "", n.Query("  42 ... "))
}

func TestNilStemmerIsIdentity(t *testing.T) {
	n := New(nil)
	assert.Equal(t, []string{"running", "runs"}, n.Stems("running runs"))
}

type countingStemmer struct {
	mu    sync.Mutex
	calls int
}

func (c *countingStemmer) Stem(word string) string {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return word + "!"
}

func TestCachedStemmer(t *testing.T) {
	inner := &countingStemmer{}
	s := NewCached(inner, 8)
	cached, ok := s.(*Cached)
	require.True(t, ok)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 100 {
				assert.Equal(t, "word!", s.Stem("word"))
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 1, cached.Len())
	inner.mu.Lock()
	defer inner.mu.Unlock()
	assert.Less(t, inner.calls, 800)
}

func TestNewCachedDisabled(t *testing.T) {
	inner := Snowball{}
	assert.Equal(t, inner, NewCached(inner, 0))
}
