package engine

import (
	"sync"
	"time"
)

// RepeatFilter suppresses the same sentence being spoken again too soon.
type RepeatFilter struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func NewRepeatFilter() *RepeatFilter {
	return &RepeatFilter{items: make(map[string]time.Time)}
}

// Seen records key at now and reports whether it was already recorded within
// ttl. A non-positive ttl disables suppression.
func (r *RepeatFilter) Seen(key string, now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ts, ok := r.items[key]; ok && now.Sub(ts) < ttl {
		return true
	}
	r.items[key] = now
	if len(r.items) > 1000 {
		for k, ts := range r.items {
			if now.Sub(ts) >= ttl {
				delete(r.items, k)
			}
		}
	}
	return false
}

func (r *RepeatFilter) Reset() {
	r.mu.Lock()
	r.items = make(map[string]time.Time)
	r.mu.Unlock()
}
