package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cgportillo/project-cpxrtillo/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	fail   bool
}

func (f *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker unavailable")
	}
	f.events = append(f.events, events...)
	return nil
}

func (f *fakePublisher) snapshot() []kafka.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.Event(nil), f.events...)
}

func TestCollectorPublishesOnClose(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 16)
	c.Start(context.Background())

	c.Track(Event{Type: PageIndexed, Location: "https://example.com/", Words: 12})
	c.Track(Event{Type: Query, Query: "run", Results: 3})
	c.Close()
	c.Close()

	got := pub.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "https://example.com/", got[0].Key)
	assert.Equal(t, "run", got[1].Key)
	ev := got[0].Value.(Event)
	assert.Equal(t, PageIndexed, ev.Type)
	assert.False(t, ev.Timestamp.IsZero())

	c.Track(Event{Type: Query, Query: "after close"})
	assert.Len(t, pub.snapshot(), 2)
}

func TestCollectorFlushesOnTicker(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	c.Track(Event{Type: FileIndexed, Location: "a.txt"})
	assert.Eventually(t, func() bool { return len(pub.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	c.Close()
}

func TestCollectorDropsWhenFull(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 2)
	for range 5 {
		c.Track(Event{Type: Query, Query: "q"})
	}
	assert.Equal(t, int64(3), c.Dropped())

	c.Start(context.Background())
	c.Close()
	assert.Len(t, pub.snapshot(), 2)
}

func TestCollectorSurvivesPublishErrors(t *testing.T) {
	pub := &fakePublisher{fail: true}
	c := NewCollector(pub, 4)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	c.Track(Event{Type: PageFailed, Location: "https://bad.example/", Error: "timeout"})
	cancel()
	c.Close()
	assert.Empty(t, pub.snapshot())
}

func TestNopTracker(t *testing.T) {
	var tr Tracker = Nop{}
	tr.Track(Event{Type: Query})
}
