package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cgportillo/project-cpxrtillo/pkg/kafka"
	"github.com/cgportillo/project-cpxrtillo/pkg/logger"
)

// Publisher is the subset of kafka.Producer the collector needs.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

const (
	maxBatch      = 100
	flushInterval = 250 * time.Millisecond
)

// Collector buffers events on a channel and publishes them in batches from a
// single goroutine. Track never blocks; events are dropped when the buffer
// is full.
type Collector struct {
	publisher Publisher
	eventCh   chan Event
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
	dropped   atomic.Int64
	logger    *slog.Logger
}

func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan Event, bufferSize),
		done:      make(chan struct{}),
		logger:    logger.WithComponent("events-collector"),
	}
}

// Start launches the publishing goroutine. When ctx ends, buffered events
// are flushed and the goroutine exits.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(flushInterval)
		defer ticker.Stop()
		batch := make([]kafka.Event, 0, maxBatch)
		flush := func(ctx context.Context) {
			if len(batch) == 0 {
				return
			}
			if err := c.publisher.PublishBatch(ctx, batch); err != nil {
				c.logger.Error("failed to publish events", "count", len(batch), "error", err)
			}
			batch = batch[:0]
		}
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					flush(context.WithoutCancel(ctx))
					return
				}
				batch = append(batch, kafka.Event{Key: event.key(), Value: event})
				if len(batch) >= maxBatch {
					flush(ctx)
				}
			case <-ticker.C:
				flush(ctx)
			case <-ctx.Done():
				c.drainRemaining(&batch)
				flush(context.WithoutCancel(ctx))
				return
			}
		}
	}()
	c.logger.Info("events collector started", "buffer_size", cap(c.eventCh))
}

// Track queues event, stamping it if Timestamp is zero.
func (c *Collector) Track(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("event dropped (buffer full)", "dropped_total", c.dropped.Load())
		}
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events, flushes what is buffered and waits for the
// publishing goroutine. Start must have been called.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.eventCh)
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) drainRemaining(batch *[]kafka.Event) {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			*batch = append(*batch, kafka.Event{Key: event.key(), Value: event})
		default:
			return
		}
	}
}
