package engine

import (
	"time"

	"sightline/internal/model"
)

// DescriptionThrottle decides when a new description may be produced.
type DescriptionThrottle struct {
	last time.Time
	set  bool
}

// Decide reports whether to describe now and whether the description is
// urgent. Anything inside dangerDistance bypasses the interval.
func (t *DescriptionThrottle) Decide(now time.Time, dets []model.Detection, dangerDistance float64, interval time.Duration) (emit bool, urgent bool) {
	for _, d := range dets {
		if d.Distance < dangerDistance {
			t.last, t.set = now, true
			return true, true
		}
	}
	if t.set && now.Sub(t.last) < interval {
		return false, false
	}
	t.last, t.set = now, true
	return true, false
}

func (t *DescriptionThrottle) Reset() {
	t.last, t.set = time.Time{}, false
}
