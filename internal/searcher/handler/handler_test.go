package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/cgportillo/project-cpxrtillo/internal/events"
	"github.com/cgportillo/project-cpxrtillo/internal/index"
	"github.com/cgportillo/project-cpxrtillo/internal/searcher"
	"github.com/cgportillo/project-cpxrtillo/internal/searcher/cache"
	"github.com/cgportillo/project-cpxrtillo/internal/tokenizer"
	"github.com/cgportillo/project-cpxrtillo/internal/workqueue"
	apperrors "github.com/cgportillo/project-cpxrtillo/pkg/errors"
	"github.com/cgportillo/project-cpxrtillo/pkg/health"
	"github.com/cgportillo/project-cpxrtillo/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMirror struct {
	deleted int64
	err     error
	entries map[string]*cache.Entry
	getErr  error
	stats   cache.Stats
}

func (f *fakeMirror) Invalidate(context.Context) (int64, error) { return f.deleted, f.err }

func (f *fakeMirror) Get(_ context.Context, query string, exact bool) (*cache.Entry, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if e, ok := f.entries[cache.Key(query, exact)]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %q", apperrors.ErrNotFound, query)
}

func (f *fakeMirror) Stats() cache.Stats { return f.stats }

func newTestHandler(t *testing.T, mirror Mirror, maxResults int) (*Handler, *index.ConcurrentIndex) {
	t.Helper()
	n := tokenizer.New(tokenizer.Snowball{})
	idx := index.NewConcurrent()
	texts := map[string]string{
		"a.txt": "the dog was running over the hill then run home",
		"b.txt": "cats sleep and dogs run",
		"c.txt": "runner beans",
	}
	for loc, text := range texts {
		for i, stem := range n.Stems(text) {
			idx.Add(stem, loc, i+1)
		}
	}
	pool := workqueue.New(2, nil)
	t.Cleanup(pool.Shutdown)
	engine := searcher.NewParallel(searcher.NewEngine(idx, n), pool, nil)
	return New(engine, idx, mirror, false, maxResults), idx
}

func TestSearchAPI(t *testing.T) {
	h, _ := newTestHandler(t, nil, 0)
	srv := httptest.NewServer(h.Routes(RouteOptions{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/search?q=Running&mode=exact")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body SearchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "run", body.Normalized)
	assert.True(t, body.Exact)
	require.Len(t, body.Results, 2)
	assert.Equal(t, "a.txt", body.Results[0].Location)
	assert.Equal(t, 2, body.Results[0].Count)
	assert.InDelta(t, 0.2, body.Results[0].Score, 1e-9)
}

func TestSearchAPIPartialAndLimit(t *testing.T) {
	h, _ := newTestHandler(t, nil, 1)

	rec := httptest.NewRecorder()
	h.Routes(RouteOptions{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=run&mode=partial", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Exact)
	assert.Equal(t, 3, body.Total)
	assert.Len(t, body.Results, 1)
	assert.Contains(t, rec.Body.String(), `"score":0.`)
}

func TestSearchAPIValidation(t *testing.T) {
	h, _ := newTestHandler(t, nil, 0)
	routes := h.Routes(RouteOptions{})

	tests := []struct {
		target string
		status int
	}{
		{"/api/v1/search", http.StatusBadRequest},
		{"/api/v1/search?q=dog&mode=fuzzy", http.StatusBadRequest},
		{"/api/v1/search?q=dog&mode=true", http.StatusOK},
		{"/api/v1/search?q=%21%21%21", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=%21%21%21", nil))
	assert.Contains(t, rec.Body.String(), `"results":[]`)
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=dog&mode=fuzzy", nil))
	assert.JSONEq(t, `{"error":"mode must be 'exact' or 'partial', got \"fuzzy\""}`, rec.Body.String())

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search", nil))
	assert.JSONEq(t, `{"error":"query parameter 'q' is required"}`, rec.Body.String())
}

func TestCountsAPI(t *testing.T) {
	h, _ := newTestHandler(t, nil, 0)
	rec := httptest.NewRecorder()
	h.Routes(RouteOptions{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/index/counts", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Locations int            `json:"locations"`
		Counts    map[string]int `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Locations)
	assert.Equal(t, map[string]int{"a.txt": 10, "b.txt": 5, "c.txt": 2}, body.Counts)
}

func TestCacheInvalidate(t *testing.T) {
	h, _ := newTestHandler(t, nil, 0)
	rec := httptest.NewRecorder()
	h.Routes(RouteOptions{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"result mirror is disabled"}`, rec.Body.String())

	h, _ = newTestHandler(t, &fakeMirror{deleted: 4}, 0)
	rec = httptest.NewRecorder()
	h.Routes(RouteOptions{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"keys_deleted":4`)

	h, _ = newTestHandler(t, &fakeMirror{err: errors.New("down")}, 0)
	rec = httptest.NewRecorder()
	h.Routes(RouteOptions{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"mirror invalidation failed"}`, rec.Body.String())
}

func TestBrowsePage(t *testing.T) {
	h, _ := newTestHandler(t, nil, 0)
	routes := h.Routes(RouteOptions{})

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Indexed locations (3)")
	assert.NotContains(t, rec.Body.String(), "result(s)")

	form := url.Values{"q": {"dogs"}, "exact": {"true"}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	page := rec.Body.String()
	assert.Contains(t, page, "2 result(s)")
	assert.Contains(t, page, "<code>dog</code>")
	assert.Contains(t, page, "0.20000000")
	assert.Contains(t, page, "checked")

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBrowseEscapesLocations(t *testing.T) {
	h, idx := newTestHandler(t, nil, 0)
	idx.Add("xss", `<script>alert(1)</script>`, 1)

	rec := httptest.NewRecorder()
	h.Routes(RouteOptions{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotContains(t, rec.Body.String(), "<script>alert(1)</script>")
	assert.Contains(t, rec.Body.String(), "&lt;script&gt;")
}

func TestRoutesHealthAndMetrics(t *testing.T) {
	h, _ := newTestHandler(t, nil, 0)
	checker := health.NewChecker()
	checker.Register("index", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp}
	})
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	routes := h.Routes(RouteOptions{Health: checker, Metrics: m, RatePerSecond: 1, RateBurst: 1})

	for range 3 {
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	codes := make([]int, 0, 2)
	for range 2 {
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=dog", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestStatsAPI(t *testing.T) {
	n := tokenizer.New(tokenizer.Snowball{})
	idx := index.NewConcurrent()
	idx.Add("dog", "a.txt", 1)
	pool := workqueue.New(1, nil)
	t.Cleanup(pool.Shutdown)
	agg := events.NewAggregator()
	engine := searcher.NewParallel(searcher.NewEngine(idx, n, searcher.WithTracker(agg)), pool, nil)
	routes := New(engine, idx, nil, false, 0).Routes(RouteOptions{Stats: agg})

	for _, q := range []string{"dogs", "dog", "zebra"} {
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search?q="+q, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats events.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(3), stats.TotalQueries)
	assert.Equal(t, int64(1), stats.ZeroResultCount)
	assert.Equal(t, []events.QueryCount{{Query: "dog", Count: 2}, {Query: "zebra", Count: 1}}, stats.TopQueries)
}

func TestStatsAPIAbsentWithoutSource(t *testing.T) {
	h, _ := newTestHandler(t, nil, 0)
	rec := httptest.NewRecorder()
	h.Routes(RouteOptions{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCachedResultsAPI(t *testing.T) {
	h, _ := newTestHandler(t, nil, 0)
	rec := httptest.NewRecorder()
	h.Routes(RouteOptions{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache?q=dog", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	mirror := &fakeMirror{entries: map[string]*cache.Entry{
		cache.Key("run", true): {Query: "run", Exact: true, Results: []index.Result{{Location: "a.txt", Count: 2, Score: 0.2}}},
	}}
	h, _ = newTestHandler(t, mirror, 0)
	routes := h.Routes(RouteOptions{})

	tests := []struct {
		target string
		status int
		body   string
	}{
		{"/api/v1/cache?q=Running&mode=exact", http.StatusOK, `"where":"a.txt"`},
		{"/api/v1/cache?q=running&mode=partial", http.StatusNotFound, `"query has not been mirrored"`},
		{"/api/v1/cache?q=%21%21", http.StatusBadRequest, `has no words`},
		{"/api/v1/cache?q=run&mode=fuzzy", http.StatusBadRequest, `mode must be`},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}

	mirror.getErr = fmt.Errorf("%w: reading mirror: %w", apperrors.ErrUnavailable, errors.New("connection refused"))
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache?q=run&mode=exact", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestStatsAPIIncludesMirror(t *testing.T) {
	mirror := &fakeMirror{stats: cache.Stats{Writes: 3, Hits: 2, Misses: 1}}
	h, _ := newTestHandler(t, mirror, 0)
	rec := httptest.NewRecorder()
	h.Routes(RouteOptions{Stats: events.NewAggregator()}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Mirror)
	assert.Equal(t, mirror.stats, *body.Mirror)
	assert.Zero(t, body.TotalQueries)
}
