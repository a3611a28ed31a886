package events

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

const (
	latencyWindow = 10000
	topQueries    = 10
)

// Stats is a point-in-time summary of tracked events.
type Stats struct {
	TotalQueries      int64        `json:"total_queries"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	FilesIndexed      int64        `json:"files_indexed"`
	FilesFailed       int64        `json:"files_failed"`
	PagesIndexed      int64        `json:"pages_indexed"`
	PagesFailed       int64        `json:"pages_failed"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps in-process totals of every tracked event. Latencies are
// kept for the most recent queries only.
type Aggregator struct {
	mu          sync.Mutex
	counts      map[Type]int64
	zero        int64
	latencies   []int64
	next        int
	queries     map[string]int64
	zeroQueries map[string]int64
	start       time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		counts:      make(map[Type]int64),
		latencies:   make([]int64, 0, 1024),
		queries:     make(map[string]int64),
		zeroQueries: make(map[string]int64),
		start:       time.Now(),
	}
}

func (a *Aggregator) Track(e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts[e.Type]++
	if e.Type != Query {
		return
	}
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, e.LatencyMs)
	} else {
		a.latencies[a.next] = e.LatencyMs
		a.next = (a.next + 1) % latencyWindow
	}
	a.queries[e.Query]++
	if e.Results == 0 {
		a.zero++
		a.zeroQueries[e.Query]++
	}
}

func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := Stats{
		TotalQueries:    a.counts[Query],
		ZeroResultCount: a.zero,
		FilesIndexed:    a.counts[FileIndexed],
		FilesFailed:     a.counts[FileFailed],
		PagesIndexed:    a.counts[PageIndexed],
		PagesFailed:     a.counts[PageFailed],
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queries, topQueries)
	stats.ZeroResultQueries = topN(a.zeroQueries, topQueries)
	if elapsed := time.Since(a.start).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count descending, then query text.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	slices.SortFunc(result, func(a, b QueryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Query, b.Query)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

// Multi fans each event out to every tracker in order.
type Multi []Tracker

func (m Multi) Track(e Event) {
	for _, t := range m {
		t.Track(e)
	}
}
