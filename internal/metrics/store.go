package metrics

import (
	"sync"
	"time"

	"sightline/internal/model"
)

// Store holds per-camera session statistics. When more than limit cameras
// are tracked the least recently updated one is evicted.
type Store struct {
	mu        sync.RWMutex
	byCamera  map[string]*model.SessionStats
	updatedAt map[string]time.Time
	limit     int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 100
	}
	return &Store{
		byCamera:  make(map[string]*model.SessionStats),
		updatedAt: make(map[string]time.Time),
		limit:     limit,
	}
}

// Update applies fn to the camera's stats under the store lock.
func (s *Store) Update(cameraID string, now time.Time, fn func(*model.SessionStats)) {
	if cameraID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byCamera[cameraID]
	if !ok {
		st = &model.SessionStats{CameraID: cameraID, StartedAt: now}
		s.byCamera[cameraID] = st
	}
	fn(st)
	s.updatedAt[cameraID] = now
	if len(s.byCamera) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(cameraID string) (model.SessionStats, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byCamera[cameraID]
	if !ok {
		return model.SessionStats{}, time.Time{}, false
	}
	return *st, s.updatedAt[cameraID], true
}

func (s *Store) GetAll() map[string]model.SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.SessionStats, len(s.byCamera))
	for id, st := range s.byCamera {
		out[id] = *st
	}
	return out
}

// Totals sums the counters of every camera.
func (s *Store) Totals() model.SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var t model.SessionStats
	for _, st := range s.byCamera {
		t.FramesProcessed += st.FramesProcessed
		t.FramesSkipped += st.FramesSkipped
		t.FramesDropped += st.FramesDropped
		t.DetectionsTotal += st.DetectionsTotal
		t.RelevantTotal += st.RelevantTotal
		t.AlertsEmitted += st.AlertsEmitted
		t.DescriptionsGenerated += st.DescriptionsGenerated
		t.FallbackDescriptions += st.FallbackDescriptions
		t.LLMCallsSkipped += st.LLMCallsSkipped
		t.FPS += st.FPS
		t.DetectionsPerSec += st.DetectionsPerSec
		if t.StartedAt.IsZero() || st.StartedAt.Before(t.StartedAt) {
			t.StartedAt = st.StartedAt
		}
	}
	t.SkipRate = t.SkippedRatio()
	return t
}

func (s *Store) evictOldest() {
	var oldestCamera string
	var oldest time.Time
	for camera, ts := range s.updatedAt {
		if oldestCamera == "" || ts.Before(oldest) {
			oldestCamera = camera
			oldest = ts
		}
	}
	if oldestCamera != "" {
		delete(s.byCamera, oldestCamera)
		delete(s.updatedAt, oldestCamera)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCamera = make(map[string]*model.SessionStats)
	s.updatedAt = make(map[string]time.Time)
}
