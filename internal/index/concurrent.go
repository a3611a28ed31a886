package index

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Observer receives index activity, typically for metrics.
type Observer interface {
	ObserveWrite(terms, locations int)
	ObserveSearch(cached bool)
}

type Option func(*ConcurrentIndex)

func WithObserver(o Observer) Option {
	return func(c *ConcurrentIndex) {
		c.obs = o
	}
}

// ConcurrentIndex makes a SearchIndex safe for concurrent callers. Writes
// hold the exclusive lock; reads and query evaluation share the read lock,
// so every call behaves as if executed alone in some serial order.
type ConcurrentIndex struct {
	mu    sync.RWMutex
	idx   *SearchIndex
	group singleflight.Group
	obs   Observer
}

var (
	_ Writer   = (*ConcurrentIndex)(nil)
	_ Searcher = (*ConcurrentIndex)(nil)
	_ Writer   = (*SearchIndex)(nil)
	_ Searcher = (*SearchIndex)(nil)
)

func NewConcurrent(opts ...Option) *ConcurrentIndex {
	c := &ConcurrentIndex{idx: New()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ConcurrentIndex) Add(term, location string, position int) {
	c.mu.Lock()
	c.idx.Add(term, location, position)
	terms, locs := c.idx.Len(), c.idx.LocationCount()
	c.mu.Unlock()
	c.observeWrite(terms, locs)
}

func (c *ConcurrentIndex) AddAll(other *SearchIndex) {
	if other == nil {
		return
	}
	c.mu.Lock()
	c.idx.AddAll(other)
	terms, locs := c.idx.Len(), c.idx.LocationCount()
	c.mu.Unlock()
	c.observeWrite(terms, locs)
}

// Search serves memoised results under the read lock. Misses for the same
// query and mode are coalesced into one evaluation, which runs under the
// read lock and is stored under the write lock; callers racing on a miss all
// receive the slice that was stored first.
func (c *ConcurrentIndex) Search(query string, exact bool) []Result {
	key := canonical(query)
	if key == "" {
		return nil
	}
	c.mu.RLock()
	results, ok := c.idx.lookup(key, exact)
	c.mu.RUnlock()
	if ok {
		c.observeSearch(true)
		return results
	}

	flight := "p:" + key
	if exact {
		flight = "e:" + key
	}
	v, _, _ := c.group.Do(flight, func() (any, error) {
		c.mu.RLock()
		if results, ok := c.idx.lookup(key, exact); ok {
			c.mu.RUnlock()
			return results, nil
		}
		results := c.idx.evaluate(key, exact)
		c.mu.RUnlock()

		c.mu.Lock()
		defer c.mu.Unlock()
		return c.idx.store(key, exact, results), nil
	})
	c.observeSearch(false)
	return v.([]Result)
}

func (c *ConcurrentIndex) Lookup(query string) ([]Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.Lookup(query)
}

func (c *ConcurrentIndex) Postings() map[string]map[string][]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.Postings()
}

func (c *ConcurrentIndex) Counts() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.Counts()
}

func (c *ConcurrentIndex) Results() map[string][]Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.Results()
}

func (c *ConcurrentIndex) Terms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.Terms()
}

func (c *ConcurrentIndex) Locations(term string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.Locations(term)
}

func (c *ConcurrentIndex) Positions(term, location string) []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.Positions(term, location)
}

func (c *ConcurrentIndex) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.Len()
}

func (c *ConcurrentIndex) LocationCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.LocationCount()
}

func (c *ConcurrentIndex) HasTerm(term string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.HasTerm(term)
}

func (c *ConcurrentIndex) HasLocation(term, location string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.HasLocation(term, location)
}

func (c *ConcurrentIndex) HasPosition(term, location string, position int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idx.HasPosition(term, location, position)
}

func (c *ConcurrentIndex) observeWrite(terms, locs int) {
	if c.obs != nil {
		c.obs.ObserveWrite(terms, locs)
	}
}

func (c *ConcurrentIndex) observeSearch(cached bool) {
	if c.obs != nil {
		c.obs.ObserveSearch(cached)
	}
}
