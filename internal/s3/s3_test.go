package s3

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"sightline/internal/model"
)

type memBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemBucket() *memBucket {
	return &memBucket{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *memBucket) List(_ context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (b *memBucket) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (b *memBucket) Put(_ context.Context, key string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	b.types[key] = contentType
	return nil
}

func TestSourceReplaysInKeyOrder(t *testing.T) {
	b := newMemBucket()
	_ = b.Put(context.Background(), "walk/002.jpg", []byte("b"), "image/jpeg")
	_ = b.Put(context.Background(), "walk/001.jpg", []byte("a"), "image/jpeg")
	_ = b.Put(context.Background(), "walk/readme.txt", []byte("x"), "text/plain")
	_ = b.Put(context.Background(), "other/003.jpg", []byte("c"), "image/jpeg")

	src := NewSource(b, "walk/", "cam", false)
	ctx := context.Background()
	var ids []string
	for {
		f, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if f.Source != "s3" || f.CameraID != "cam" {
			t.Fatalf("unexpected frame %+v", f)
		}
		ids = append(ids, f.ID)
	}
	if strings.Join(ids, ",") != "001,002" {
		t.Fatalf("unexpected order %v", ids)
	}
}

func TestSourceLoops(t *testing.T) {
	b := newMemBucket()
	_ = b.Put(context.Background(), "f.jpg", []byte("a"), "image/jpeg")
	src := NewSource(b, "", "cam", true)
	for i := 0; i < 3; i++ {
		if _, err := src.Next(context.Background()); err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
	}
}

func TestSourceEmptyBucket(t *testing.T) {
	src := NewSource(newMemBucket(), "", "cam", true)
	if _, err := src.Next(context.Background()); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestArchiverWritesFrameAndDetections(t *testing.T) {
	b := newMemBucket()
	a := NewArchiver(b, nil)
	frame := model.Frame{
		ID:        "f1",
		CameraID:  "porch",
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Image:     []byte("jpeg"),
	}
	dets := []model.Detection{{Class: "person", Distance: 0.8}}
	if err := a.Archive(context.Background(), frame, dets); err != nil {
		t.Fatalf("archive: %v", err)
	}
	key := "porch/20240501T120000.000Z-f1"
	if string(b.objects[key+".jpg"]) != "jpeg" || b.types[key+".jpg"] != "image/jpeg" {
		t.Fatalf("frame not stored under %s: %v", key, b.types)
	}
	var snap snapshot
	if err := json.Unmarshal(b.objects[key+".json"], &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.FrameID != "f1" || len(snap.Detections) != 1 || snap.Detections[0].Class != "person" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
