// Package cache mirrors evaluated result lists into Redis so other
// processes can read the answers an engine has already computed.
package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cgportillo/project-cpxrtillo/internal/index"
	apperrors "github.com/cgportillo/project-cpxrtillo/pkg/errors"
	"github.com/cgportillo/project-cpxrtillo/pkg/logger"
	pkgredis "github.com/cgportillo/project-cpxrtillo/pkg/redis"
)

const keyPrefix = "results:"

// Store is the subset of pkg/redis.Client the mirror uses.
type Store interface {
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, v any) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Entry is the JSON document stored per query.
type Entry struct {
	Query   string         `json:"query"`
	Exact   bool           `json:"exact"`
	Results []index.Result `json:"results"`
	Stored  time.Time      `json:"stored"`
}

// Stats counts mirror traffic since start.
type Stats struct {
	Writes        int64 `json:"writes"`
	WriteFailures int64 `json:"write_failures"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	ReadFailures  int64 `json:"read_failures"`
}

// Mirror writes result lists to a Store. Write failures are logged and
// counted, never returned to the query path.
type Mirror struct {
	store        Store
	ttl          time.Duration
	logger       *slog.Logger
	writes       atomic.Int64
	writeErrors  atomic.Int64
	hits         atomic.Int64
	misses       atomic.Int64
	readFailures atomic.Int64
}

func New(store Store, ttl time.Duration) *Mirror {
	return &Mirror{
		store:  store,
		ttl:    ttl,
		logger: logger.WithComponent("result-mirror"),
	}
}

// Put stores results for a normalized query. Blank queries are ignored.
func (m *Mirror) Put(ctx context.Context, query string, exact bool, results []index.Result) {
	if query == "" {
		return
	}
	if results == nil {
		results = []index.Result{}
	}
	key := Key(query, exact)
	entry := Entry{Query: query, Exact: exact, Results: results, Stored: time.Now().UTC()}
	if err := m.store.SetJSON(ctx, key, entry, m.ttl); err != nil {
		m.writeErrors.Add(1)
		m.logger.Error("mirror write failed", "key", key, "query", query, "error", err)
		return
	}
	m.writes.Add(1)
	m.logger.Debug("results mirrored", "key", key, "query", query, "results", len(results))
}

// Get reads a mirrored entry back. A missing entry wraps ErrNotFound; a
// store failure wraps ErrUnavailable.
func (m *Mirror) Get(ctx context.Context, query string, exact bool) (*Entry, error) {
	var entry Entry
	err := m.store.GetJSON(ctx, Key(query, exact), &entry)
	if errors.Is(err, pkgredis.ErrMiss) {
		m.misses.Add(1)
		return nil, fmt.Errorf("%w: no mirrored results for %q", apperrors.ErrNotFound, query)
	}
	if err != nil {
		m.readFailures.Add(1)
		m.logger.Error("mirror read failed", "query", query, "error", err)
		return nil, fmt.Errorf("%w: reading mirror: %w", apperrors.ErrUnavailable, err)
	}
	m.hits.Add(1)
	return &entry, nil
}

// Invalidate removes every mirrored entry.
func (m *Mirror) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := m.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating mirror: %w", err)
	}
	m.logger.Info("mirror invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (m *Mirror) Stats() Stats {
	return Stats{
		Writes:        m.writes.Load(),
		WriteFailures: m.writeErrors.Load(),
		Hits:          m.hits.Load(),
		Misses:        m.misses.Load(),
		ReadFailures:  m.readFailures.Load(),
	}
}

// Key returns the Redis key for a normalized query in the given mode.
func Key(query string, exact bool) string {
	mode := "partial"
	if exact {
		mode = "exact"
	}
	sum := sha256.Sum256([]byte(mode + "|" + query))
	return fmt.Sprintf("%s%x", keyPrefix, sum[:16])
}
