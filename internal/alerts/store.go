package alerts

import (
	"sync"
	"time"

	"sightline/internal/model"
)

// Store is a fixed-size ring of the most recent proximity alerts.
type Store struct {
	mu    sync.RWMutex
	buf   []model.Alert
	next  int
	full  bool
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{buf: make([]model.Alert, limit), limit: limit}
}

func (s *Store) Add(alert model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf[s.next] = alert
	s.next = (s.next + 1) % s.limit
	if s.next == 0 {
		s.full = true
	}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lenLocked()
}

func (s *Store) lenLocked() int {
	if s.full {
		return s.limit
	}
	return s.next
}

// ordered returns the stored alerts oldest first.
func (s *Store) ordered() []model.Alert {
	n := s.lenLocked()
	out := make([]model.Alert, 0, n)
	start := 0
	if s.full {
		start = s.next
	}
	for i := 0; i < n; i++ {
		out = append(out, s.buf[(start+i)%s.limit])
	}
	return out
}

// List returns up to limit of the newest alerts, oldest first.
func (s *Store) List(limit int) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.ordered()
	if limit <= 0 || limit >= len(all) {
		return all
	}
	return all[len(all)-limit:]
}

func (s *Store) Since(ts time.Time) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Alert, 0)
	for _, a := range s.ordered() {
		if !a.Timestamp.Before(ts) {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = make([]model.Alert, s.limit)
	s.next = 0
	s.full = false
}
