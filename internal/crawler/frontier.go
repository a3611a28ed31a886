package crawler

import (
	"slices"
	"sync"
)

// Frontier is the set of URLs admitted to a crawl, capped at a fixed budget.
// Admission is check-then-add under one lock, so concurrent discoverers can
// never push it past the budget.
type Frontier struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	limit int
}

// NewFrontier returns an empty frontier admitting at most limit URLs. A
// limit below one admits a single URL.
func NewFrontier(limit int) *Frontier {
	if limit < 1 {
		limit = 1
	}
	return &Frontier{
		seen:  make(map[string]struct{}),
		limit: limit,
	}
}

// Seed admits u if it is new and the budget allows.
func (f *Frontier) Seed(u string) bool {
	return len(f.Admit([]string{u})) == 1
}

// Admit returns the links that were unseen and fit in the remaining budget,
// in their original order, marking them seen.
func (f *Frontier) Admit(links []string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var admitted []string
	for _, link := range links {
		if len(f.seen) >= f.limit {
			break
		}
		if _, ok := f.seen[link]; ok {
			continue
		}
		f.seen[link] = struct{}{}
		f.order = append(f.order, link)
		admitted = append(admitted, link)
	}
	return admitted
}

// Seen returns every admitted URL in admission order.
func (f *Frontier) Seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.order)
}

func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func (f *Frontier) Limit() int {
	return f.limit
}
