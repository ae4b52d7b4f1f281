package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryTimestampStore is an in-process TimestampStore.
type memoryTimestampStore struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	err  error
}

func newMemoryTimestampStore() *memoryTimestampStore {
	return &memoryTimestampStore{hits: make(map[string][]time.Time)}
}

func (m *memoryTimestampStore) Record(ctx context.Context, key string, at, cutoff time.Time, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	kept := m.hits[key][:0]
	for _, h := range m.hits[key] {
		if h.After(cutoff) {
			kept = append(kept, h)
		}
	}
	if len(kept) >= limit {
		m.hits[key] = kept
		return false, nil
	}
	m.hits[key] = append(kept, at)
	return true, nil
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	stores := map[string]TimestampStore{
		"memory": newMemoryTimestampStore(),
		"file":   NewFileTimestampStore(filepath.Join(t.TempDir(), "rate_limit.json")),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
			rl := NewRateLimiter(store, 100, 60*time.Second)
			rl.now = func() time.Time { return now }

			for i := 0; i < 100; i++ {
				ok, err := rl.Allow(ctx, "10.0.0.1")
				require.NoError(t, err)
				require.True(t, ok, "hit %d", i+1)
				now = now.Add(100 * time.Millisecond)
			}

			ok, err := rl.Allow(ctx, "10.0.0.1")
			require.NoError(t, err)
			assert.False(t, ok, "101st hit inside the window")

			ok, err = rl.Allow(ctx, "10.0.0.2")
			require.NoError(t, err)
			assert.True(t, ok, "other source has its own window")

			now = now.Add(60 * time.Second)
			ok, err = rl.Allow(ctx, "10.0.0.1")
			require.NoError(t, err)
			assert.True(t, ok, "window slid past the old hits")
		})
	}
}

func TestRateLimiterStoreError(t *testing.T) {
	store := newMemoryTimestampStore()
	store.err = errors.New("boom")
	rl := NewRateLimiter(store, 1, time.Minute)

	_, err := rl.Allow(context.Background(), "k")
	assert.Error(t, err)
}

func TestFileTimestampStorePrunesOldEntries(t *testing.T) {
	ctx := context.Background()
	store := NewFileTimestampStore(filepath.Join(t.TempDir(), "rate_limit.json"))
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	old := base.Add(-time.Hour)

	for _, hit := range []struct {
		key string
		at  time.Time
	}{{"a", base}, {"a", base.Add(30 * time.Second)}, {"b", base}} {
		ok, err := store.Record(ctx, hit.key, hit.at, old, 10)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := store.Record(ctx, "a", base.Add(40*time.Second), base.Add(10*time.Second), 2)
	require.NoError(t, err)
	assert.True(t, ok, "only one hit of a is left inside the window")

	doc, err := store.doc.Read(ctx)
	require.NoError(t, err)
	_, hasB := doc["b"]
	assert.False(t, hasB, "expired keys are dropped entirely")
	assert.Len(t, doc["a"], 2)

	ok, err = store.Record(ctx, "a", base.Add(41*time.Second), base.Add(10*time.Second), 2)
	require.NoError(t, err)
	assert.False(t, ok)
	doc, err = store.doc.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, doc["a"], 2, "a rejected hit is not stored")
}

func TestRateLimiterConcurrentCallersNeverOvershoot(t *testing.T) {
	stores := map[string]TimestampStore{
		"memory": newMemoryTimestampStore(),
		"file":   NewFileTimestampStore(filepath.Join(t.TempDir(), "rate_limit.json")),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			rl := NewRateLimiter(store, 5, time.Minute)

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				allowed int
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := rl.Allow(context.Background(), "10.0.0.1")
					assert.NoError(t, err)
					if ok {
						mu.Lock()
						allowed++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 5, allowed)
		})
	}
}
