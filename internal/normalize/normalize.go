package normalize

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"sightline/internal/config"
	"sightline/internal/model"
)

// Options controls how raw detector output is placed in the user's frame.
type Options struct {
	ConfidenceThreshold float64
	Calibrated          bool
	FocalLength         float64
	KnownWidths         map[string]float64
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ConfidenceThreshold: cfg.Detector.ConfidenceThreshold,
		Calibrated:          cfg.Detector.Calibrated,
		FocalLength:         cfg.Detector.FocalLength,
		KnownWidths:         cfg.Detector.KnownWidths,
	}
}

// Detections drops low-confidence boxes, estimates distance and position for
// the rest and returns them nearest first.
func Detections(raw []model.RawDetection, width, height int, opts Options) []model.Detection {
	out := make([]model.Detection, 0, len(raw))
	for _, r := range raw {
		if r.Confidence < opts.ConfidenceThreshold {
			continue
		}
		class := Class(r.Class)
		if class == "" {
			continue
		}
		out = append(out, model.Detection{
			Class:      class,
			Confidence: r.Confidence,
			Box:        r.Box,
			Distance:   EstimateDistance(class, r.Box, width, height, opts),
			Position:   EstimatePosition(r.Box, width),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Distance < out[j].Distance
	})
	return out
}

func Class(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func EstimatePosition(box [4]float64, width int) model.Position {
	if width <= 0 {
		return model.PositionCenter
	}
	cx := (box[0] + box[2]) / 2
	w := float64(width)
	switch {
	case cx < w*0.33:
		return model.PositionLeft
	case cx > w*0.66:
		return model.PositionRight
	}
	return model.PositionCenter
}

func EstimateDistance(class string, box [4]float64, width, height int, opts Options) float64 {
	if opts.Calibrated {
		if known, ok := opts.KnownWidths[class]; ok && known > 0 {
			return pinholeDistance(known, box[2]-box[0], opts.FocalLength)
		}
	}
	return heuristicDistance(box, width)
}

func heuristicDistance(box [4]float64, width int) float64 {
	if width <= 0 {
		return 6.0
	}
	side := math.Max(box[2]-box[0], box[3]-box[1])
	ratio := side / float64(width)
	switch {
	case ratio > 0.5:
		return 1.0
	case ratio > 0.3:
		return 1.5
	case ratio > 0.2:
		return 2.5
	case ratio > 0.1:
		return 4.0
	}
	return 6.0
}

func pinholeDistance(knownWidth, pixelWidth, focal float64) float64 {
	if pixelWidth < 1 {
		return 10.0
	}
	if focal <= 0 {
		focal = 600
	}
	d := knownWidth * focal / pixelWidth
	return math.Max(0.5, math.Min(d, 20.0))
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z0700",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	dot := false
	for _, ch := range value {
		if ch == '.' && !dot {
			dot = true
			continue
		}
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

// parseUnix accepts seconds, fractional seconds and milliseconds.
func parseUnix(value string) (time.Time, error) {
	if strings.Contains(value, ".") {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return time.Time{}, err
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	}
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
