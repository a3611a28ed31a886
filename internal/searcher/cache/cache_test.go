package cache

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/cgportillo/project-cpxrtillo/internal/index"
	apperrors "github.com/cgportillo/project-cpxrtillo/pkg/errors"
	pkgredis "github.com/cgportillo/project-cpxrtillo/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore keeps JSON documents in a map, mimicking the Redis client.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	fail error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (s *memStore) SetJSON(_ context.Context, key string, v any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.data[key] = b
	s.ttls[key] = ttl
	return nil
}

func (s *memStore) GetJSON(_ context.Context, key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	b, ok := s.data[key]
	if !ok {
		return pkgredis.ErrMiss
	}
	return json.Unmarshal(b, v)
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func TestMirrorPutAndGet(t *testing.T) {
	store := newMemStore()
	m := New(store, time.Minute)
	results := []index.Result{{Location: "a.txt", Count: 2, Score: 0.2}}

	m.Put(context.Background(), "run", true, results)

	entry, err := m.Get(context.Background(), "run", true)
	require.NoError(t, err)
	assert.Equal(t, "run", entry.Query)
	assert.True(t, entry.Exact)
	assert.Equal(t, results, entry.Results)
	assert.Equal(t, time.Minute, store.ttls[Key("run", true)])

	_, err = m.Get(context.Background(), "run", false)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, Stats{Writes: 1, Hits: 1, Misses: 1}, m.Stats())

	raw := string(store.data[Key("run", true)])
	assert.Contains(t, raw, `"score":0.20000000`)
	assert.Contains(t, raw, `"where":"a.txt"`)
}

func TestMirrorIgnoresBlankAndSwallowsErrors(t *testing.T) {
	store := newMemStore()
	m := New(store, time.Minute)
	m.Put(context.Background(), "", true, nil)
	assert.Empty(t, store.data)

	store.fail = errors.New("connection refused")
	m.Put(context.Background(), "dog", false, nil)
	_, err := m.Get(context.Background(), "dog", false)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	assert.Equal(t, Stats{WriteFailures: 1, ReadFailures: 1}, m.Stats())
}

func TestMirrorInvalidate(t *testing.T) {
	store := newMemStore()
	store.data["other:key"] = []byte(`{}`)
	m := New(store, time.Minute)
	m.Put(context.Background(), "a", true, nil)
	m.Put(context.Background(), "b", false, nil)

	deleted, err := m.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Len(t, store.data, 1)
}

func TestKeyDependsOnMode(t *testing.T) {
	assert.NotEqual(t, Key("run", true), Key("run", false))
	assert.Equal(t, Key("run", true), Key("run", true))
	assert.Regexp(t, `^results:[0-9a-f]{32}$`, Key("run", true))
}
