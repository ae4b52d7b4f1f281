package services

import (
	"context"
	"fmt"
	"time"
)

// TimestampStore is durable storage for sliding-window hit timestamps.
type TimestampStore interface {
	// Record drops entries of key at or before cutoff and, when fewer than
	// limit remain, records a hit at at. Both steps are one atomic operation
	// so concurrent callers cannot overshoot the limit.
	Record(ctx context.Context, key string, at, cutoff time.Time, limit int) (bool, error)
}

// RateLimiter is a sliding-window counter: at most limit hits per window
// for each key.
type RateLimiter struct {
	store  TimestampStore
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(store TimestampStore, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{store: store, limit: limit, window: window, now: time.Now}
}

// Allow records a hit for key unless its window is saturated.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := r.now()
	allowed, err := r.store.Record(ctx, key, now, now.Add(-r.window), r.limit)
	if err != nil {
		return false, fmt.Errorf("record rate hit: %w", err)
	}
	return allowed, nil
}

// FileTimestampStore keeps the rolling timestamp lists in one JSON file.
type FileTimestampStore struct {
	doc *jsonDocument[map[string][]int64]
}

var _ TimestampStore = (*FileTimestampStore)(nil)

func NewFileTimestampStore(path string) *FileTimestampStore {
	return &FileTimestampStore{doc: newJSONDocument[map[string][]int64](path)}
}

// Record prunes every key, not only this one, so idle sources do not
// accumulate in the file.
func (s *FileTimestampStore) Record(ctx context.Context, key string, at, cutoff time.Time, limit int) (bool, error) {
	allowed := false
	err := s.doc.Update(ctx, func(doc *map[string][]int64) error {
		if *doc == nil {
			*doc = make(map[string][]int64)
		}
		changed := false
		cut := cutoff.UnixMilli()
		for k, hits := range *doc {
			kept := hits[:0]
			for _, h := range hits {
				if h > cut {
					kept = append(kept, h)
				}
			}
			if len(kept) != len(hits) {
				changed = true
			}
			if len(kept) == 0 {
				delete(*doc, k)
				continue
			}
			(*doc)[k] = kept
		}

		if len((*doc)[key]) >= limit {
			if !changed {
				return errNoChange
			}
			return nil
		}
		(*doc)[key] = append((*doc)[key], at.UnixMilli())
		allowed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}
