package engine

import "sightline/internal/model"

// FilterRelevant keeps the detections worth mentioning. Input must already be
// sorted nearest first; the first matching rule sets the priority and order is
// preserved.
func FilterRelevant(dets []model.Detection, rules *FilterRules) []model.Detection {
	limit := rules.MaxResults
	if limit <= 0 {
		limit = 5
	}
	out := make([]model.Detection, 0, limit)
	for _, d := range dets {
		if len(out) >= limit {
			break
		}
		danger := d.Distance < rules.DangerDistance
		if !danger && rules.Ignore.Contains(d.Class) {
			continue
		}
		switch {
		case danger:
			d.Priority = model.PriorityHigh
		case rules.Priority.Contains(d.Class) && d.Distance < rules.PriorityDistance:
			d.Priority = model.PriorityMedium
		case d.Position == model.PositionCenter && d.Distance < rules.CenterDistance:
			d.Priority = model.PriorityMedium
		default:
			continue
		}
		out = append(out, d)
	}
	return out
}
