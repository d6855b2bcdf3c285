package engine

import "time"

type frameSample struct {
	at         time.Time
	detections int
}

// RateWindow keeps processed-frame samples for a sliding duration and derives
// frames and detections per second from them.
type RateWindow struct {
	duration   time.Duration
	samples    []frameSample
	head       int
	detections int
}

func NewRateWindow(duration time.Duration) *RateWindow {
	if duration <= 0 {
		duration = 10 * time.Second
	}
	return &RateWindow{duration: duration, samples: make([]frameSample, 0, 64)}
}

func (w *RateWindow) Add(at time.Time, detections int) {
	w.evict(at.Add(-w.duration))
	w.samples = append(w.samples, frameSample{at: at, detections: detections})
	w.detections += detections
}

func (w *RateWindow) evict(cutoff time.Time) {
	for w.head < len(w.samples) {
		s := w.samples[w.head]
		if !s.at.Before(cutoff) {
			break
		}
		w.detections -= s.detections
		w.head++
	}
	if w.head > 0 && w.head*2 >= len(w.samples) {
		w.samples = append([]frameSample{}, w.samples[w.head:]...)
		w.head = 0
	}
}

// Rates returns frames per second and detections per second as of now.
func (w *RateWindow) Rates(now time.Time) (float64, float64) {
	w.evict(now.Add(-w.duration))
	n := len(w.samples) - w.head
	if n == 0 {
		return 0, 0
	}
	secs := w.duration.Seconds()
	return float64(n) / secs, float64(w.detections) / secs
}
