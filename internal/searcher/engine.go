// Package searcher evaluates query lines against an index: one at a time,
// one worker-pool task per line, or interactively for the HTTP front end.
package searcher

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cgportillo/project-cpxrtillo/internal/events"
	"github.com/cgportillo/project-cpxrtillo/internal/index"
	"github.com/cgportillo/project-cpxrtillo/internal/tokenizer"
	apperrors "github.com/cgportillo/project-cpxrtillo/pkg/errors"
	"github.com/cgportillo/project-cpxrtillo/pkg/logger"
)

const maxLineBytes = 1 << 20

// Observer is told about every evaluated query.
type Observer interface {
	ObserveQuery(mode string, results int, took time.Duration)
}

// Mirror receives interactive results.
type Mirror interface {
	Put(ctx context.Context, query string, exact bool, results []index.Result)
}

// Pool runs query tasks.
type Pool interface {
	Submit(task func()) error
	Drain(ctx context.Context) error
}

type Option func(*Engine)

func WithTracker(t events.Tracker) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracker = t
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.obs = o
	}
}

// Mode names the match mode for logs and metrics.
func Mode(exact bool) string {
	if exact {
		return "exact"
	}
	return "partial"
}

// Engine normalizes query lines and evaluates them against an index. The
// index memoises results, so repeating a line is cheap.
type Engine struct {
	searcher   index.Searcher
	normalizer tokenizer.Normalizer
	tracker    events.Tracker
	obs        Observer
	logger     *slog.Logger
}

func NewEngine(s index.Searcher, normalizer tokenizer.Normalizer, opts ...Option) *Engine {
	e := &Engine{
		searcher:   s,
		normalizer: normalizer,
		tracker:    events.Nop{},
		logger:     logger.WithComponent("searcher"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Normalize returns the canonical form of line used as the result key.
func (e *Engine) Normalize(line string) string {
	return e.normalizer.Query(line)
}

// Search normalizes line and evaluates it. Lines without words return nil.
func (e *Engine) Search(line string, exact bool) []index.Result {
	query := e.Normalize(line)
	if query == "" {
		return nil
	}
	start := time.Now()
	results := e.searcher.Search(query, exact)
	took := time.Since(start)

	if e.obs != nil {
		e.obs.ObserveQuery(Mode(exact), len(results), took)
	}
	e.tracker.Track(events.Event{
		Type:      events.Query,
		Query:     query,
		Exact:     exact,
		Results:   len(results),
		LatencyMs: took.Milliseconds(),
	})
	return results
}

// Results returns the memoised results for line, if it has been evaluated.
func (e *Engine) Results(line string) ([]index.Result, bool) {
	query := e.Normalize(line)
	if query == "" {
		return nil, false
	}
	return e.searcher.Lookup(query)
}

// SearchFile evaluates every line of path in order.
func (e *Engine) SearchFile(ctx context.Context, path string, exact bool) error {
	n := 0
	err := eachLine(path, func(line string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.Search(line, exact)
		n++
		return nil
	})
	if err != nil {
		return err
	}
	e.logger.Info("query file evaluated", "path", path, "lines", n, "mode", Mode(exact))
	return nil
}

// ParallelEngine evaluates query files with one pool task per line. Its
// interactive Query path runs one call at a time.
type ParallelEngine struct {
	*Engine
	pool   Pool
	mirror Mirror
	mu     sync.Mutex
}

// NewParallel wraps engine. The index behind engine must be safe for
// concurrent use. mirror may be nil.
func NewParallel(engine *Engine, pool Pool, mirror Mirror) *ParallelEngine {
	return &ParallelEngine{Engine: engine, pool: pool, mirror: mirror}
}

// SearchFile submits one task per line of path and waits for all of them.
func (p *ParallelEngine) SearchFile(ctx context.Context, path string, exact bool) error {
	n := 0
	err := eachLine(path, func(line string) error {
		if err := p.pool.Submit(func() { p.Search(line, exact) }); err != nil {
			return fmt.Errorf("submitting query: %w", err)
		}
		n++
		return nil
	})
	if drainErr := p.pool.Drain(ctx); drainErr != nil && err == nil {
		err = fmt.Errorf("waiting for query tasks: %w", drainErr)
	}
	if err != nil {
		return err
	}
	p.logger.Info("query file evaluated in parallel", "path", path, "lines", n, "mode", Mode(exact))
	return nil
}

// Query evaluates one line synchronously and mirrors the results.
func (p *ParallelEngine) Query(ctx context.Context, line string, exact bool) []index.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	results := p.Search(line, exact)
	if p.mirror != nil {
		if query := p.Normalize(line); query != "" {
			p.mirror.Put(ctx, query, exact, results)
		}
	}
	return results
}

func eachLine(path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w %s: %w", apperrors.ErrUnreadableSource, path, err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w %s: %w", apperrors.ErrUnreadableSource, path, err)
	}
	return nil
}
