// Package events reports engine activity (pages crawled, files indexed,
// queries answered) to Kafka without blocking the work that produced it, and
// keeps in-process totals for the stats endpoint.
package events

import "time"

type Type string

const (
	PageIndexed Type = "page_indexed"
	PageFailed  Type = "page_failed"
	FileIndexed Type = "file_indexed"
	FileFailed  Type = "file_failed"
	Query       Type = "query"
)

// Event is one engine occurrence. Location is a file path or URL; Query
// events carry the normalized query and the result count instead.
type Event struct {
	Type      Type      `json:"type"`
	Location  string    `json:"location,omitempty"`
	Words     int       `json:"words,omitempty"`
	Links     int       `json:"links,omitempty"`
	Query     string    `json:"query,omitempty"`
	Exact     bool      `json:"exact,omitempty"`
	Results   int       `json:"results,omitempty"`
	LatencyMs int64     `json:"latency_ms,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// key partitions by location so one page's events stay ordered; queries
// partition by their text.
func (e Event) key() string {
	if e.Location != "" {
		return e.Location
	}
	return e.Query
}

// Tracker accepts events.
type Tracker interface {
	Track(Event)
}

// Nop discards every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Track(Event) {}
