package crawler

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrontierAdmitsWithinBudget(t *testing.T) {
	f := NewFrontier(3)
	assert.True(t, f.Seed("a"))
	assert.False(t, f.Seed("a"))

	assert.Equal(t, []string{"b", "c"}, f.Admit([]string{"a", "b", "b", "c", "d"}))
	assert.Empty(t, f.Admit([]string{"e"}))
	assert.Equal(t, []string{"a", "b", "c"}, f.Seen())
	assert.Equal(t, 3, f.Len())
	assert.Equal(t, 3, f.Limit())
}

func TestFrontierConcurrentAdmitNeverExceedsLimit(t *testing.T) {
	const limit = 25
	f := NewFrontier(limit)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total []string
	)
	for g := range 16 {
		wg.Go(func() {
			links := make([]string, 0, 40)
			for i := range 40 {
				// overlapping link sets across goroutines
				links = append(links, fmt.Sprintf("https://x.test/%d", (g*7+i)%60))
			}
			got := f.Admit(links)
			mu.Lock()
			total = append(total, got...)
			mu.Unlock()
		})
	}
	wg.Wait()

	assert.Equal(t, limit, f.Len())
	assert.Len(t, total, limit)
	assert.ElementsMatch(t, f.Seen(), total)
}

func TestFrontierMinimumLimit(t *testing.T) {
	f := NewFrontier(0)
	assert.True(t, f.Seed("only"))
	assert.False(t, f.Seed("another"))
}
