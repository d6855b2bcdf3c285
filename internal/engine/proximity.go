package engine

import (
	"time"

	"sightline/internal/config"
	"sightline/internal/model"
)

func ClassifyProximity(distance float64, cfg config.AlertsConfig) model.AlertLevel {
	switch {
	case distance < cfg.CriticalDistance:
		return model.AlertCritical
	case distance < cfg.WarningDistance:
		return model.AlertWarning
	}
	return model.AlertNone
}

// ProximityMonitor turns relevant detections into alerts, at most one per
// camera and class per cooldown.
type ProximityMonitor struct {
	cooldown *Cooldown
}

func NewProximityMonitor() *ProximityMonitor {
	return &ProximityMonitor{cooldown: NewCooldown()}
}

func (p *ProximityMonitor) Check(now time.Time, cameraID string, dets []model.Detection, cfg config.AlertsConfig) []model.Alert {
	var out []model.Alert
	for _, d := range dets {
		level := ClassifyProximity(d.Distance, cfg)
		if level == model.AlertNone {
			continue
		}
		if !p.cooldown.Allow(cameraID+"|"+d.Class, now, cfg.Cooldown) {
			continue
		}
		pattern := model.VibrationSingle
		if level == model.AlertCritical {
			pattern = model.VibrationDouble
		}
		out = append(out, model.Alert{
			Timestamp: now,
			CameraID:  cameraID,
			Class:     d.Class,
			Level:     level,
			Distance:  d.Distance,
			Position:  d.Position,
			Pattern:   pattern,
		})
	}
	return out
}

func (p *ProximityMonitor) Reset() {
	p.cooldown.Reset()
}
