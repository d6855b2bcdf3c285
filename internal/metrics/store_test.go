package metrics

import (
	"testing"
	"time"

	"sightline/internal/model"
)

func TestUpdateAccumulates(t *testing.T) {
	s := NewStore(10)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		s.Update("cam1", now, func(st *model.SessionStats) {
			st.FramesProcessed++
			st.DetectionsTotal += 2
		})
	}
	st, updated, ok := s.Get("cam1")
	if !ok || st.FramesProcessed != 3 || st.DetectionsTotal != 6 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if !updated.Equal(now) || !st.StartedAt.Equal(now) {
		t.Fatalf("unexpected timestamps %v %v", updated, st.StartedAt)
	}
}

func TestEvictsLeastRecentlyUpdated(t *testing.T) {
	s := NewStore(2)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	noop := func(*model.SessionStats) {}
	s.Update("a", base, noop)
	s.Update("b", base.Add(time.Second), noop)
	s.Update("a", base.Add(2*time.Second), noop)
	s.Update("c", base.Add(3*time.Second), noop)
	if _, _, ok := s.Get("b"); ok {
		t.Fatalf("expected b evicted")
	}
	if len(s.GetAll()) != 2 {
		t.Fatalf("expected two cameras")
	}
	s.Update("a", base, func(st *model.SessionStats) { st.AlertsEmitted = 4 })
	s.Update("c", base, func(st *model.SessionStats) { st.AlertsEmitted = 1 })
	if s.Totals().AlertsEmitted != 5 {
		t.Fatalf("unexpected totals %+v", s.Totals())
	}
	s.Update("a", base, func(st *model.SessionStats) { st.FramesProcessed, st.FramesSkipped = 1, 2 })
	s.Update("c", base, func(st *model.SessionStats) { st.FramesProcessed, st.FramesSkipped = 1, 0 })
	if got := s.Totals().SkipRate; got != 0.5 {
		t.Fatalf("expected combined skip rate 0.5, got %v", got)
	}
	s.Clear()
	if len(s.GetAll()) != 0 {
		t.Fatalf("store not cleared")
	}
}
