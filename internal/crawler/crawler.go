// Package crawler indexes a bounded web subgraph breadth-first from a seed
// URL. Every fetch runs as a worker-pool task; discovered links are admitted
// through a shared Frontier that enforces the link budget.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/cgportillo/project-cpxrtillo/internal/events"
	"github.com/cgportillo/project-cpxrtillo/internal/index"
	"github.com/cgportillo/project-cpxrtillo/internal/tokenizer"
	apperrors "github.com/cgportillo/project-cpxrtillo/pkg/errors"
	"github.com/cgportillo/project-cpxrtillo/pkg/logger"
)

// Pool runs crawl tasks.
type Pool interface {
	Submit(task func()) error
	Drain(ctx context.Context) error
}

// Observer is told the outcome of each crawl task.
type Observer interface {
	ObservePage(status string)
}

type Option func(*Crawler)

func WithTracker(t events.Tracker) Option {
	return func(c *Crawler) {
		if t != nil {
			c.tracker = t
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Crawler) {
		c.obs = o
	}
}

// Stats counts crawl outcomes.
type Stats struct {
	Admitted int
	Fetched  int64
	Failed   int64
}

type Crawler struct {
	index      index.Writer
	pool       Pool
	normalizer tokenizer.Normalizer
	fetcher    Fetcher
	frontier   *Frontier
	tracker    events.Tracker
	obs        Observer
	logger     *slog.Logger
	fetched    atomic.Int64
	failed     atomic.Int64
}

// New returns a crawler that writes pages into w and admits at most limit
// URLs over its lifetime, the seed included.
func New(w index.Writer, pool Pool, normalizer tokenizer.Normalizer, fetcher Fetcher, limit int, opts ...Option) *Crawler {
	c := &Crawler{
		index:      w,
		pool:       pool,
		normalizer: normalizer,
		fetcher:    fetcher,
		frontier:   NewFrontier(limit),
		tracker:    events.Nop{},
		logger:     logger.WithComponent("crawler"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl admits seed and blocks until every task it transitively spawned has
// finished. Fetch failures are logged and skipped. A seed that is not an
// absolute http(s) URL returns apperrors.ErrInvalidInput.
func (c *Crawler) Crawl(ctx context.Context, seed string) error {
	start, ok := normalizeSeed(seed)
	if !ok {
		return fmt.Errorf("%w: malformed seed url %q", apperrors.ErrInvalidInput, seed)
	}
	if !c.frontier.Seed(start) {
		c.logger.Info("seed already crawled or budget spent", "seed", start)
		return nil
	}
	began := time.Now()
	if err := c.submit(ctx, start); err != nil {
		return err
	}
	if err := c.pool.Drain(ctx); err != nil {
		return fmt.Errorf("waiting for crawl tasks: %w", err)
	}
	stats := c.Stats()
	c.logger.Info("crawl finished",
		"seed", start,
		"admitted", stats.Admitted,
		"fetched", stats.Fetched,
		"failed", stats.Failed,
		"duration", time.Since(began),
	)
	return nil
}

// Stats returns counters accumulated over every Crawl call.
func (c *Crawler) Stats() Stats {
	return Stats{
		Admitted: c.frontier.Len(),
		Fetched:  c.fetched.Load(),
		Failed:   c.failed.Load(),
	}
}

// Visited returns every admitted URL in admission order.
func (c *Crawler) Visited() []string {
	return c.frontier.Seen()
}

func (c *Crawler) submit(ctx context.Context, u string) error {
	if err := c.pool.Submit(func() { c.visit(ctx, u) }); err != nil {
		return fmt.Errorf("submitting %s: %w", u, err)
	}
	return nil
}

func (c *Crawler) visit(ctx context.Context, u string) {
	if ctx.Err() != nil {
		return
	}
	began := time.Now()
	body, err := c.fetcher.Fetch(ctx, u)
	if err != nil {
		c.failed.Add(1)
		c.logger.Warn("skipping page", "url", u, "error", err)
		c.tracker.Track(events.Event{Type: events.PageFailed, Location: u, Error: err.Error()})
		c.observe("failed")
		return
	}

	base, err := url.Parse(u)
	if err != nil {
		base = nil
	}
	page := Clean(base, body)

	private := index.New()
	position := 0
	for _, stem := range c.normalizer.Stems(page.Text) {
		position++
		private.Add(stem, u, position)
	}
	c.index.AddAll(private)
	c.fetched.Add(1)

	admitted := c.frontier.Admit(page.Links)
	for _, link := range admitted {
		if err := c.submit(ctx, link); err != nil {
			c.logger.Error("dropping admitted link", "url", link, "error", err)
		}
	}

	c.logger.Debug("page indexed",
		"url", u,
		"words", position,
		"links", len(page.Links),
		"admitted", len(admitted),
	)
	c.tracker.Track(events.Event{
		Type:      events.PageIndexed,
		Location:  u,
		Words:     position,
		Links:     len(page.Links),
		LatencyMs: time.Since(began).Milliseconds(),
	})
	c.observe("indexed")
}

func (c *Crawler) observe(status string) {
	if c.obs != nil {
		c.obs.ObservePage(status)
	}
}
