package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"sightline/internal/config"
	"sightline/internal/model"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "sightline.db")
	st, err := NewStore(config.StorageConfig{Enabled: true, Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return st
}

func TestNewStoreDisabledAndUnknown(t *testing.T) {
	st, err := NewStore(config.StorageConfig{Enabled: false})
	if st != nil || err != nil {
		t.Fatalf("disabled storage should be nil, got %v %v", st, err)
	}
	if _, err := NewStore(config.StorageConfig{Enabled: true, Driver: "mongo"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, text := range []string{"Path clear", "Person ahead", "Car on your left"} {
		err := st.SaveHistory(ctx, model.HistoryEntry{
			ID:          "id-" + text,
			Timestamp:   base.Add(time.Duration(i) * time.Second),
			CameraID:    "cam1",
			Description: text,
			Source:      string(model.SourceFallback),
			ObjectCount: i,
			Objects:     []model.Detection{{Class: "person", Distance: 1.5, Position: model.PositionCenter}},
		})
		if err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	got, err := st.History(ctx, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 2 || got[0].Description != "Car on your left" {
		t.Fatalf("unexpected history %+v", got)
	}
	if !got[0].Timestamp.Equal(base.Add(2*time.Second)) {
		t.Fatalf("timestamp not round-tripped: %v", got[0].Timestamp)
	}
	if len(got[0].Objects) != 1 || got[0].Objects[0].Class != "person" {
		t.Fatalf("objects not decoded: %+v", got[0].Objects)
	}
}

func TestSaveAlert(t *testing.T) {
	st := newTestStore(t)
	err := st.SaveAlert(context.Background(), model.Alert{
		Timestamp: time.Now(),
		CameraID:  "cam1",
		Class:     "car",
		Level:     model.AlertCritical,
		Distance:  0.8,
		Position:  model.PositionCenter,
		Pattern:   model.VibrationDouble,
		Message:   "Caution, car very close",
	})
	if err != nil {
		t.Fatalf("save alert: %v", err)
	}
}

func TestDescriptionCacheUsageAndPrune(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	if _, ok, err := st.CachedDescription(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected miss, got %v %v", ok, err)
	}
	if err := st.CacheDescription(ctx, "k1", "[]", "Person ahead."); err != nil {
		t.Fatalf("cache: %v", err)
	}
	if err := st.CacheDescription(ctx, "k1", "[]", "A person ahead."); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	text, ok, err := st.CachedDescription(ctx, "k1")
	if err != nil || !ok || text != "A person ahead." {
		t.Fatalf("unexpected lookup %q %v %v", text, ok, err)
	}
	if err := st.CacheDescription(ctx, "k2", "[]", "Door on your right."); err != nil {
		t.Fatalf("cache: %v", err)
	}

	// k1 has 2 uses, k2 has 1; both are older than the cutoff
	n, err := st.PruneCache(ctx, time.Now().Add(time.Hour), 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one pruned entry, got %d", n)
	}
	if _, ok, _ := st.CachedDescription(ctx, "k1"); !ok {
		t.Fatalf("frequently used entry should survive")
	}
	if _, ok, _ := st.CachedDescription(ctx, "k2"); ok {
		t.Fatalf("rarely used entry should be pruned")
	}
}
