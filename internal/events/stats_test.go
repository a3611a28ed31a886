package events

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorStats(t *testing.T) {
	a := NewAggregator()
	a.Track(Event{Type: FileIndexed, Location: "a.txt", Words: 10})
	a.Track(Event{Type: FileFailed, Location: "b.txt"})
	a.Track(Event{Type: PageIndexed, Location: "http://x/"})
	for i := range 4 {
		a.Track(Event{Type: Query, Query: "run", Results: 2, LatencyMs: int64(i)})
	}
	a.Track(Event{Type: Query, Query: "zebra", Results: 0, LatencyMs: 10})
	a.Track(Event{Type: Query, Query: "dog", Results: 1, LatencyMs: 5})

	s := a.Stats()
	assert.Equal(t, int64(6), s.TotalQueries)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, int64(1), s.FilesIndexed)
	assert.Equal(t, int64(1), s.FilesFailed)
	assert.Equal(t, int64(1), s.PagesIndexed)
	assert.Equal(t, int64(0), s.PagesFailed)
	assert.InDelta(t, 21.0/6.0, s.AvgLatencyMs, 1e-9)
	assert.Equal(t, int64(10), s.P99LatencyMs)

	require.Len(t, s.TopQueries, 3)
	assert.Equal(t, QueryCount{Query: "run", Count: 4}, s.TopQueries[0])
	assert.Equal(t, "dog", s.TopQueries[1].Query, "ties order by query text")
	assert.Equal(t, []QueryCount{{Query: "zebra", Count: 1}}, s.ZeroResultQueries)
}

func TestAggregatorEmpty(t *testing.T) {
	s := NewAggregator().Stats()
	assert.Zero(t, s.TotalQueries)
	assert.Zero(t, s.P50LatencyMs)
	assert.Empty(t, s.TopQueries)
}

func TestAggregatorLatencyWindow(t *testing.T) {
	a := NewAggregator()
	for range latencyWindow {
		a.Track(Event{Type: Query, Query: "old", Results: 1, LatencyMs: 100})
	}
	for range latencyWindow {
		a.Track(Event{Type: Query, Query: "new", Results: 1, LatencyMs: 1})
	}
	s := a.Stats()
	assert.Equal(t, int64(2*latencyWindow), s.TotalQueries)
	assert.Equal(t, int64(1), s.P99LatencyMs)
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewAggregator(), NewAggregator()
	Multi{a, Nop{}, b}.Track(Event{Type: Query, Query: "x", Results: 1})
	assert.Equal(t, int64(1), a.Stats().TotalQueries)
	assert.Equal(t, int64(1), b.Stats().TotalQueries)
}

func TestAggregatorConcurrentTrack(t *testing.T) {
	a := NewAggregator()
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Go(func() {
			for i := range 100 {
				a.Track(Event{Type: Query, Query: fmt.Sprintf("q%d", (w+i)%5), Results: 1})
			}
		})
	}
	wg.Wait()
	assert.Equal(t, int64(800), a.Stats().TotalQueries)
}
