// Package indexer discovers text files and fills an index from them, either
// one file after another or one worker-pool task per file.
package indexer

import (
	"bufio"
	"context"
	"errors"
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

const maxLineBytes = 16 << 20

// Pool runs tasks and waits for them.
type Pool interface {
	Submit(task func()) error
	Drain(ctx context.Context) error
}

// Observer is told the outcome of each source.
type Observer interface {
	ObserveSource(status string)
}

type Option func(*Builder)

func WithExtensions(exts []string) Option {
	return func(b *Builder) {
		if len(exts) > 0 {
			b.extensions = exts
		}
	}
}

func WithTracker(t events.Tracker) Option {
	return func(b *Builder) {
		if t != nil {
			b.tracker = t
		}
	}
}

func WithObserver(o Observer) Option {
	return func(b *Builder) {
		b.obs = o
	}
}

// Builder turns text files into index entries. The location of every entry
// is the file path; positions count words from 1 across the whole file.
type Builder struct {
	normalizer tokenizer.Normalizer
	extensions []string
	tracker    events.Tracker
	obs        Observer
	logger     *slog.Logger
}

func NewBuilder(normalizer tokenizer.Normalizer, opts ...Option) *Builder {
	b := &Builder{
		normalizer: normalizer,
		extensions: DefaultExtensions,
		tracker:    events.Nop{},
		logger:     logger.WithComponent("indexer"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// IndexFile reads path line by line and adds every stem to w. It returns the
// number of words indexed.
func (b *Builder) IndexFile(path string, w index.Writer) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w %s: %w", apperrors.ErrUnreadableSource, path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	position := 0
	for scanner.Scan() {
		for _, stem := range b.normalizer.Stems(scanner.Text()) {
			position++
			w.Add(stem, path, position)
		}
	}
	if err := scanner.Err(); err != nil {
		return position, fmt.Errorf("%w %s: %w", apperrors.ErrUnreadableSource, path, err)
	}
	return position, nil
}

// Build indexes every source under root directly into w, in path order.
// Unreadable files are logged and skipped; their errors are joined and
// returned once every file has been tried.
func (b *Builder) Build(ctx context.Context, root string, w index.Writer) error {
	files, err := FindFiles(root, b.extensions)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrUnreadableSource, err)
	}
	start := time.Now()
	var errs []error
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		started := time.Now()
		words, err := b.IndexFile(path, w)
		if b.record(path, words, started, err) {
			errs = append(errs, err)
		}
	}
	b.logger.Info("sources indexed",
		"root", root,
		"files", len(files),
		"failed", len(errs),
		"duration", time.Since(start),
	)
	return errors.Join(errs...)
}

// BuildParallel submits one task per source to pool. Each task indexes its
// file into a private index and merges it into w once, so the shared index
// is locked once per file rather than once per word. It returns after the
// pool has drained.
func (b *Builder) BuildParallel(ctx context.Context, root string, w index.Writer, pool Pool) error {
	files, err := FindFiles(root, b.extensions)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrUnreadableSource, err)
	}
	start := time.Now()
	var (
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	for _, path := range files {
		err := pool.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			started := time.Now()
			private := index.New()
			words, err := b.IndexFile(path, private)
			if b.record(path, words, started, err) {
				fail(err)
				return
			}
			w.AddAll(private)
		})
		if err != nil {
			fail(fmt.Errorf("submitting %s: %w", path, err))
			break
		}
	}
	if err := pool.Drain(ctx); err != nil {
		fail(fmt.Errorf("waiting for indexing tasks: %w", err))
	}

	mu.Lock()
	defer mu.Unlock()
	b.logger.Info("sources indexed in parallel",
		"root", root,
		"files", len(files),
		"failed", len(errs),
		"duration", time.Since(start),
	)
	return errors.Join(errs...)
}

// record reports one source's outcome and returns true if it failed.
func (b *Builder) record(path string, words int, started time.Time, err error) bool {
	ev := events.Event{
		Type:      events.FileIndexed,
		Location:  path,
		Words:     words,
		LatencyMs: time.Since(started).Milliseconds(),
	}
	status := "indexed"
	if err != nil {
		b.logger.Warn("skipping unreadable source", "path", path, "error", err)
		ev.Type = events.FileFailed
		ev.Error = err.Error()
		status = "failed"
	} else {
		b.logger.Debug("source indexed", "path", path, "words", words)
	}
	b.tracker.Track(ev)
	if b.obs != nil {
		b.obs.ObserveSource(status)
	}
	return err != nil
}
