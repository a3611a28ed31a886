package handler

import (
	"net/http"
	"time"

	"github.com/cgportillo/project-cpxrtillo/pkg/health"
	"github.com/cgportillo/project-cpxrtillo/pkg/metrics"
	"github.com/cgportillo/project-cpxrtillo/pkg/middleware"
)

// RouteOptions configures the middleware around the routes.
type RouteOptions struct {
	Health        *health.Checker
	Metrics       *metrics.Metrics
	RatePerSecond float64
	RateBurst     int
	Timeout       time.Duration
	CORSOrigins   []string
	Stats         StatsSource
}

// Routes mounts every endpoint and wraps the mux in the middleware chain.
// Health checks bypass rate limiting.
func (h *Handler) Routes(opts RouteOptions) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/search", h.Search)
	api.HandleFunc("GET /api/v1/index/counts", h.Counts)
	api.HandleFunc("GET /api/v1/cache", h.CachedResults)
	api.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	if opts.Stats != nil {
		api.HandleFunc("GET /api/v1/stats", h.Stats(opts.Stats))
	}
	api.HandleFunc("GET /{$}", h.Browse)
	api.HandleFunc("POST /{$}", h.Browse)

	limited := middleware.Chain(api,
		middleware.NewRateLimiter(opts.RatePerSecond, opts.RateBurst).Middleware,
		middleware.Timeout(opts.Timeout),
	)

	mux := http.NewServeMux()
	mux.Handle("/", limited)
	if opts.Health != nil {
		mux.HandleFunc("GET /health/live", opts.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", opts.Health.ReadyHandler())
	}

	chain := []func(http.Handler) http.Handler{middleware.RequestID,
		middleware.AccessLog,
		middleware.CORS(middleware.DefaultCORSConfig(opts.CORSOrigins...)),
	}
	if opts.Metrics != nil {
		chain = append(chain, middleware.Metrics(opts.Metrics))
	}
	return middleware.Chain(mux, chain...)
}
