// Package handler serves the search engine over HTTP: a JSON query API, an
// index summary, activity stats, a small HTML browser page and health checks.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cgportillo/project-cpxrtillo/internal/events"
	"github.com/cgportillo/project-cpxrtillo/internal/index"
	"github.com/cgportillo/project-cpxrtillo/internal/searcher/cache"
	apperrors "github.com/cgportillo/project-cpxrtillo/pkg/errors"
	"github.com/cgportillo/project-cpxrtillo/pkg/logger"
)

// Querier evaluates one query line.
type Querier interface {
	Query(ctx context.Context, line string, exact bool) []index.Result
	Normalize(line string) string
}

// IndexReader exposes index summaries.
type IndexReader interface {
	Counts() map[string]int
	Len() int
	LocationCount() int
}

// Mirror reads back and clears results mirrored to Redis.
type Mirror interface {
	Get(ctx context.Context, query string, exact bool) (*cache.Entry, error)
	Invalidate(ctx context.Context) (int64, error)
	Stats() cache.Stats
}

// StatsSource summarizes tracked engine activity.
type StatsSource interface {
	Stats() events.Stats
}

type Handler struct {
	engine       Querier
	index        IndexReader
	mirror       Mirror
	defaultExact bool
	maxResults   int
	logger       *slog.Logger
}

// New builds a Handler. mirror may be nil; maxResults below one means no
// limit.
func New(engine Querier, idx IndexReader, mirror Mirror, defaultExact bool, maxResults int) *Handler {
	return &Handler{
		engine:       engine,
		index:        idx,
		mirror:       mirror,
		defaultExact: defaultExact,
		maxResults:   maxResults,
		logger:       logger.WithComponent("search-handler"),
	}
}

// SearchResponse is the body of GET /api/v1/search.
type SearchResponse struct {
	Query      string         `json:"query"`
	Normalized string         `json:"normalized"`
	Exact      bool           `json:"exact"`
	Total      int            `json:"total"`
	Results    []index.Result `json:"results"`
	LatencyMs  float64        `json:"latency_ms"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logger.FromContext(r.Context())

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}
	exact, ok := h.parseMode(r.URL.Query().Get("mode"))
	if !ok {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"mode must be 'exact' or 'partial', got %q", r.URL.Query().Get("mode")))
		return
	}

	results := h.engine.Query(r.Context(), query, exact)
	total := len(results)
	results = h.limit(results)
	if results == nil {
		results = []index.Result{}
	}
	latency := time.Since(start)

	resp := SearchResponse{
		Query:      query,
		Normalized: h.engine.Normalize(query),
		Exact:      exact,
		Total:      total,
		Results:    results,
		LatencyMs:  float64(latency.Microseconds()) / 1000,
	}
	log.Info("search completed",
		"query", query,
		"normalized", resp.Normalized,
		"exact", exact,
		"total", total,
		"latency", latency,
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// Counts serves the per-location word totals.
func (h *Handler) Counts(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"terms":     h.index.Len(),
		"locations": h.index.LocationCount(),
		"counts":    h.index.Counts(),
	})
}

// StatsResponse is the body of GET /api/v1/stats. Mirror is present only
// when the Redis mirror is enabled.
type StatsResponse struct {
	events.Stats
	Mirror *cache.Stats `json:"mirror,omitempty"`
}

// Stats serves the aggregated query and indexing activity.
func (h *Handler) Stats(src StatsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatsResponse{Stats: src.Stats()}
		if h.mirror != nil {
			ms := h.mirror.Stats()
			resp.Mirror = &ms
		}
		h.writeJSON(w, http.StatusOK, resp)
	}
}

// CachedResults serves the mirrored entry for a query without evaluating it.
func (h *Handler) CachedResults(w http.ResponseWriter, r *http.Request) {
	if h.mirror == nil {
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "result mirror is disabled"))
		return
	}
	exact, ok := h.parseMode(r.URL.Query().Get("mode"))
	if !ok {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"mode must be 'exact' or 'partial', got %q", r.URL.Query().Get("mode")))
		return
	}
	query := h.engine.Normalize(r.URL.Query().Get("q"))
	if query == "" {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' has no words"))
		return
	}
	entry, err := h.mirror.Get(r.Context(), query, exact)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, apperrors.New(err, http.StatusNotFound, "query has not been mirrored"))
			return
		}
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.mirror == nil {
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "result mirror is disabled"))
		return
	}
	deleted, err := h.mirror.Invalidate(r.Context())
	if err != nil {
		err = apperrors.New(fmt.Errorf("%w: %w", apperrors.ErrInternal, err), http.StatusInternalServerError, "mirror invalidation failed")
		h.logger.Error("mirror invalidation failed", "error", err, "status_code", apperrors.HTTPStatusCode(err))
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) parseMode(mode string) (exact bool, ok bool) {
	switch mode {
	case "":
		return h.defaultExact, true
	case "exact":
		return true, true
	case "partial":
		return false, true
	}
	if b, err := strconv.ParseBool(mode); err == nil {
		return b, true
	}
	return false, false
}

// limit trims to maxResults without touching the memoised slice.
func (h *Handler) limit(results []index.Result) []index.Result {
	if h.maxResults > 0 && len(results) > h.maxResults {
		return results[:h.maxResults:h.maxResults]
	}
	return results
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to its status code and client message.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": apperrors.Message(err)})
}
