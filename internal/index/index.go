// Package index implements the word-location inverted index: term to
// location to positions, per-location word totals, and a memo of ranked
// query results. SearchIndex is single-threaded; ConcurrentIndex guards one
// with a read-write mutex.
package index

import (
	"maps"
	"slices"
	"sort"
	"strings"
)

// Writer is the mutation side of an index. Builders and the crawler depend
// on it so the same code fills a private or a shared index.
type Writer interface {
	Add(term, location string, position int)
	AddAll(other *SearchIndex)
}

// Searcher evaluates normalized query lines.
type Searcher interface {
	Search(query string, exact bool) []Result
	Lookup(query string) ([]Result, bool)
}

type positionSet map[int]struct{}

type cachedResults struct {
	exact   bool
	results []Result
}

// SearchIndex is not safe for concurrent use.
type SearchIndex struct {
	postings map[string]map[string]positionSet
	totals   map[string]int
	terms    []string
	cache    map[string]cachedResults
}

func New() *SearchIndex {
	return &SearchIndex{
		postings: make(map[string]map[string]positionSet),
		totals:   make(map[string]int),
		cache:    make(map[string]cachedResults),
	}
}

// Add records term at position within location. The location total becomes
// the largest position seen for it, so positions from one linear pass leave
// the total equal to the word count of that pass.
func (s *SearchIndex) Add(term, location string, position int) {
	locs, ok := s.postings[term]
	if !ok {
		locs = make(map[string]positionSet)
		s.postings[term] = locs
		i, _ := slices.BinarySearch(s.terms, term)
		s.terms = slices.Insert(s.terms, i, term)
	}
	set, ok := locs[location]
	if !ok {
		set = make(positionSet)
		locs[location] = set
	}
	set[position] = struct{}{}
	if position > s.totals[location] {
		s.totals[location] = position
	}
}

// AddAll merges other into s. Positions are unioned and location totals take
// the maximum of both sides.
func (s *SearchIndex) AddAll(other *SearchIndex) {
	if other == nil || other == s {
		return
	}
	var added []string
	for term, otherLocs := range other.postings {
		locs, ok := s.postings[term]
		if !ok {
			locs = make(map[string]positionSet, len(otherLocs))
			s.postings[term] = locs
			added = append(added, term)
		}
		for loc, otherSet := range otherLocs {
			set, ok := locs[loc]
			if !ok {
				set = make(positionSet, len(otherSet))
				locs[loc] = set
			}
			for pos := range otherSet {
				set[pos] = struct{}{}
			}
		}
	}
	if len(added) > 0 {
		slices.Sort(added)
		s.terms = mergeSorted(s.terms, added)
	}
	for loc, total := range other.totals {
		if total > s.totals[loc] {
			s.totals[loc] = total
		}
	}
}

// mergeSorted merges two sorted, disjoint term lists.
func mergeSorted(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] < b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// Search returns the ranked results for a normalized query line. Terms are
// separated by whitespace. In exact mode a term matches only itself; in
// partial mode it matches every indexed term it prefixes. Blank queries
// return nil and are not memoised. A query is evaluated once per mode for the
// lifetime of the index; later writes do not refresh memoised results.
func (s *SearchIndex) Search(query string, exact bool) []Result {
	key := canonical(query)
	if key == "" {
		return nil
	}
	if results, ok := s.lookup(key, exact); ok {
		return results
	}
	return s.store(key, exact, s.evaluate(key, exact))
}

// Lookup returns the memoised results for query in whichever mode it was
// last evaluated.
func (s *SearchIndex) Lookup(query string) ([]Result, bool) {
	c, ok := s.cache[canonical(query)]
	return c.results, ok
}

func (s *SearchIndex) lookup(key string, exact bool) ([]Result, bool) {
	c, ok := s.cache[key]
	if !ok || c.exact != exact {
		return nil, false
	}
	return c.results, true
}

// store memoises results. An existing entry for the same mode wins.
func (s *SearchIndex) store(key string, exact bool, results []Result) []Result {
	if c, ok := s.cache[key]; ok && c.exact == exact {
		return c.results
	}
	s.cache[key] = cachedResults{exact: exact, results: results}
	return results
}

func (s *SearchIndex) evaluate(key string, exact bool) []Result {
	matched := make(map[string]struct{})
	for _, q := range strings.Fields(key) {
		if exact {
			if _, ok := s.postings[q]; ok {
				matched[q] = struct{}{}
			}
			continue
		}
		for i := sort.SearchStrings(s.terms, q); i < len(s.terms) && strings.HasPrefix(s.terms[i], q); i++ {
			matched[s.terms[i]] = struct{}{}
		}
	}

	counts := make(map[string]int)
	for term := range matched {
		for loc, set := range s.postings[term] {
			counts[loc] += len(set)
		}
	}

	results := make([]Result, 0, len(counts))
	for loc, count := range counts {
		total := s.totals[loc]
		if total < count {
			total = count
		}
		results = append(results, Result{
			Location: loc,
			Count:    count,
			Score:    float64(count) / float64(total),
		})
	}
	slices.SortFunc(results, compareResults)
	return results
}

func canonical(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

// Postings returns a copy of the index with positions sorted ascending.
func (s *SearchIndex) Postings() map[string]map[string][]int {
	out := make(map[string]map[string][]int, len(s.postings))
	for term, locs := range s.postings {
		inner := make(map[string][]int, len(locs))
		for loc, set := range locs {
			inner[loc] = sortedPositions(set)
		}
		out[term] = inner
	}
	return out
}

// Counts returns a copy of the per-location word totals.
func (s *SearchIndex) Counts() map[string]int {
	return maps.Clone(s.totals)
}

// Results returns a copy of every memoised query and its ranked results.
func (s *SearchIndex) Results() map[string][]Result {
	out := make(map[string][]Result, len(s.cache))
	for q, c := range s.cache {
		out[q] = slices.Clone(c.results)
	}
	return out
}

// Terms returns the indexed terms in sorted order.
func (s *SearchIndex) Terms() []string {
	return slices.Clone(s.terms)
}

// Locations returns the sorted locations holding term.
func (s *SearchIndex) Locations(term string) []string {
	return slices.Sorted(maps.Keys(s.postings[term]))
}

// Positions returns the sorted positions of term within location.
func (s *SearchIndex) Positions(term, location string) []int {
	return sortedPositions(s.postings[term][location])
}

// Len returns the number of distinct terms.
func (s *SearchIndex) Len() int {
	return len(s.postings)
}

// LocationCount returns the number of locations with a word total.
func (s *SearchIndex) LocationCount() int {
	return len(s.totals)
}

func (s *SearchIndex) HasTerm(term string) bool {
	_, ok := s.postings[term]
	return ok
}

func (s *SearchIndex) HasLocation(term, location string) bool {
	_, ok := s.postings[term][location]
	return ok
}

func (s *SearchIndex) HasPosition(term, location string, position int) bool {
	_, ok := s.postings[term][location][position]
	return ok
}

func sortedPositions(set positionSet) []int {
	if len(set) == 0 {
		return nil
	}
	return slices.Sorted(maps.Keys(set))
}
