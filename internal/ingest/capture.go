package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"sightline/internal/model"
)

// FrameSource yields captured frames in order. Next returns io.EOF once the
// source is exhausted.
type FrameSource interface {
	Next(ctx context.Context) (model.Frame, error)
}

var imageExts = []string{".jpg", ".jpeg", ".png"}

// DirSource replays the images of a directory in name order.
type DirSource struct {
	dir      string
	cameraID string
	loop     bool
	files    []string
	pos      int
	now      func() time.Time
}

func NewDirSource(dir, cameraID string, loop bool) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read capture dir: %w", err)
	}
	files := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		if e.IsDir() {
			return "", false
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		return filepath.Join(dir, e.Name()), lo.Contains(imageExts, ext)
	})
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	return &DirSource{dir: dir, cameraID: cameraID, loop: loop, files: files, now: time.Now}, nil
}

func (s *DirSource) Next(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}
	if s.pos >= len(s.files) {
		if !s.loop {
			return model.Frame{}, io.EOF
		}
		s.pos = 0
	}
	path := s.files[s.pos]
	s.pos++
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Frame{}, err
	}
	return NewImageFrame(s.cameraID, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), data, s.now().UTC()), nil
}

// NewImageFrame wraps encoded image bytes. Dimensions come from the image
// header when it can be read.
func NewImageFrame(cameraID, id string, data []byte, at time.Time) model.Frame {
	if id == "" {
		id = uuid.NewString()
	}
	f := model.Frame{ID: id, CameraID: cameraID, Timestamp: at, Image: data, Source: "capture"}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		f.Width, f.Height = cfg.Width, cfg.Height
	}
	return f
}

// StartCapture pulls frames from src at the rate returned by fps, which is
// re-read before every frame so power profile changes apply immediately.
// done is closed when the source is exhausted or ctx ends.
func StartCapture(ctx context.Context, src FrameSource, fps func() float64, sink *Sink, logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		current := fps()
		limiter := rate.NewLimiter(limitFor(current), 1)
		for {
			if f := fps(); f != current {
				current = f
				limiter.SetLimit(limitFor(current))
			}
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			frame, err := src.Next(ctx)
			if err != nil {
				if errors.Is(err, io.EOF) {
					if logger != nil {
						logger.Info("capture source exhausted")
					}
					return
				}
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("capture read failed", "err", err)
				}
				if !BackoffSleep(ctx, time.Second) {
					return
				}
				continue
			}
			// an unlimited capture still needs the power stride downstream
			frame.Paced = current > 0
			sink.Send(ctx, frame)
		}
	}()
	return done
}

func limitFor(fps float64) rate.Limit {
	if fps <= 0 {
		return rate.Inf
	}
	return rate.Limit(fps)
}
