// Package tracing times the phases of a run. Spans nest through the context
// and the finished tree is written to slog at debug level.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type contextKey struct{}

// Span is one timed phase.
type Span struct {
	Name     string
	TraceID  string
	Start    time.Time
	Duration time.Duration
	Children []*Span
	Attrs    map[string]any
	mu       sync.Mutex
}

// Start begins a root span with a fresh trace ID.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{
		Name:    name,
		TraceID: uuid.NewString(),
		Start:   time.Now(),
		Attrs:   make(map[string]any),
	}
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChild begins a span under the one in ctx. Without a parent it starts
// a new trace.
func StartChild(ctx context.Context, name string) (context.Context, *Span) {
	parent := FromContext(ctx)
	if parent == nil {
		return Start(ctx, name)
	}
	child := &Span{
		Name:    name,
		TraceID: parent.TraceID,
		Start:   time.Now(),
		Attrs:   make(map[string]any),
	}
	parent.mu.Lock()
	parent.Children = append(parent.Children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, contextKey{}, child), child
}

func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// End fixes the span's duration and returns it.
func (s *Span) End() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Duration = time.Since(s.Start)
	return s.Duration
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// Log writes the span and its descendants, parents first.
func (s *Span) Log(log *slog.Logger) {
	s.log(log, 0)
}

func (s *Span) log(log *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration", s.Duration,
		"depth", depth,
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()

	log.Debug("span", attrs...)
	for _, child := range children {
		child.log(log, depth+1)
	}
}
