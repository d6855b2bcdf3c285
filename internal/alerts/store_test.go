package alerts

import (
	"testing"
	"time"

	"sightline/internal/model"
)

func alertAt(ts time.Time, class string) model.Alert {
	return model.Alert{Timestamp: ts, CameraID: "cam1", Class: class, Level: model.AlertWarning}
}

func TestRingKeepsNewest(t *testing.T) {
	s := NewStore(3)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, class := range []string{"a", "b", "c", "d", "e"} {
		s.Add(alertAt(base.Add(time.Duration(i)*time.Second), class))
	}
	got := s.List(0)
	if len(got) != 3 || got[0].Class != "c" || got[2].Class != "e" {
		t.Fatalf("unexpected ring contents %+v", got)
	}
	last := s.List(2)
	if len(last) != 2 || last[0].Class != "d" {
		t.Fatalf("unexpected limited list %+v", last)
	}
}

func TestSinceAndClear(t *testing.T) {
	s := NewStore(10)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Add(alertAt(base, "person"))
	s.Add(alertAt(base.Add(5*time.Second), "car"))
	got := s.Since(base.Add(time.Second))
	if len(got) != 1 || got[0].Class != "car" {
		t.Fatalf("unexpected since result %+v", got)
	}
	s.Clear()
	if s.Len() != 0 || len(s.List(0)) != 0 {
		t.Fatalf("store not cleared")
	}
}
