package ingest

import (
	"context"
	"log/slog"
	"time"

	"sightline/internal/model"
)

// Sink is the bounded frame channel shared by every source. When the
// consumer falls behind the newest frame is dropped.
type Sink struct {
	out    chan<- model.Frame
	logger *slog.Logger
	onDrop func(cameraID string)
}

func NewSink(out chan<- model.Frame, logger *slog.Logger, onDrop func(cameraID string)) *Sink {
	return &Sink{out: out, logger: logger, onDrop: onDrop}
}

func (s *Sink) Send(ctx context.Context, frame model.Frame) bool {
	select {
	case s.out <- frame:
		return true
	case <-ctx.Done():
		return false
	default:
		if s.logger != nil {
			s.logger.Warn("frame channel full, dropping frame", "camera_id", frame.CameraID, "frame_id", frame.ID)
		}
		if s.onDrop != nil {
			s.onDrop(frame.CameraID)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
