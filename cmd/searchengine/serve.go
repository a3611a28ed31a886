package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/cgportillo/project-cpxrtillo/internal/index"
	"github.com/cgportillo/project-cpxrtillo/internal/searcher"
	"github.com/cgportillo/project-cpxrtillo/internal/searcher/cache"
	"github.com/cgportillo/project-cpxrtillo/internal/searcher/handler"
	"github.com/cgportillo/project-cpxrtillo/internal/workqueue"
	"github.com/cgportillo/project-cpxrtillo/pkg/config"
	"github.com/cgportillo/project-cpxrtillo/pkg/health"
	"github.com/cgportillo/project-cpxrtillo/pkg/logger"
	"github.com/cgportillo/project-cpxrtillo/pkg/metrics"
	pkgredis "github.com/cgportillo/project-cpxrtillo/pkg/redis"
)

// serve exposes idx over HTTP until ctx is cancelled, then shuts the server
// down gracefully.
func serve(ctx context.Context, cfg *config.Config, port int, idx *index.ConcurrentIndex, engine *searcher.Engine, pool *workqueue.Pool, m *metrics.Metrics, stats handler.StatsSource) error {
	log := logger.WithComponent("server")
	checker := health.NewChecker()
	checker.Register("index", func(context.Context) health.ComponentHealth {
		if idx.Len() == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "index is empty"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d terms in %d locations", idx.Len(), idx.LocationCount()),
		}
	})

	var mirror *cache.Mirror
	if cfg.Redis.Addr != "" {
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, result mirror disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer client.Close()
			mirror = cache.New(client, cfg.Redis.CacheTTL)
			if _, err := mirror.Invalidate(ctx); err != nil {
				log.Warn("clearing stale mirrored results failed", "error", err)
			}
			checker.Register("redis", health.Ping(client.Ping, true))
			log.Info("result mirror enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	// a nil *cache.Mirror must not become a non-nil interface
	var (
		engineMirror  searcher.Mirror
		handlerMirror handler.Mirror
	)
	if mirror != nil {
		engineMirror, handlerMirror = mirror, mirror
	}
	parallel := searcher.NewParallel(engine, pool, engineMirror)
	h := handler.New(parallel, idx, handlerMirror, cfg.Query.DefaultExact, cfg.Query.MaxResults)

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", port),
		Handler: h.Routes(handler.RouteOptions{
			Health:        checker,
			Metrics:       m,
			RatePerSecond: cfg.Server.RatePerSecond,
			RateBurst:     cfg.Server.RateBurst,
			Timeout:       cfg.Server.WriteTimeout,
			CORSOrigins:   cfg.Server.CORSOrigins,
			Stats:         stats,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("search server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	})
	err := g.Wait()
	log.Info("search server stopped")
	return err
}
