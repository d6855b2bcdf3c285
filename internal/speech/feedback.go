package speech

import (
	"context"
	"log/slog"
	"os/exec"

	"sightline/internal/config"
	"sightline/internal/model"
)

// Publisher delivers events to companion devices.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

// Feedback plays alert tones and triggers vibration patterns.
type Feedback struct {
	toneCommand string
	tones       map[model.AlertLevel]string
	vibration   bool
	publisher   Publisher
	logger      *slog.Logger
}

func NewFeedback(cfg config.SpeechConfig, publisher Publisher, logger *slog.Logger) *Feedback {
	return &Feedback{
		toneCommand: cfg.ToneCommand,
		tones: map[model.AlertLevel]string{
			model.AlertCritical: cfg.DangerTone,
			model.AlertWarning:  cfg.WarningTone,
		},
		vibration: cfg.Vibration,
		publisher: publisher,
		logger:    logger,
	}
}

// Tone starts the tone for level without waiting for it to finish.
func (f *Feedback) Tone(ctx context.Context, level model.AlertLevel) {
	file := f.tones[level]
	if f.toneCommand == "" || file == "" {
		if f.logger != nil {
			f.logger.Debug("tone", "level", level)
		}
		return
	}
	cmd := exec.CommandContext(ctx, f.toneCommand, file)
	if err := cmd.Start(); err != nil {
		if f.logger != nil {
			f.logger.Warn("tone command failed", "error", err, "level", level)
		}
		return
	}
	go func() { _ = cmd.Wait() }()
}

func (f *Feedback) Vibrate(ctx context.Context, cameraID string, pattern model.VibrationPattern) {
	if !f.vibration {
		return
	}
	if f.publisher == nil {
		if f.logger != nil {
			f.logger.Info("vibrate", "camera_id", cameraID, "pattern", pattern)
		}
		return
	}
	ev := model.Event{Type: model.EventVibration, CameraID: cameraID, Pattern: pattern}
	if err := f.publisher.Publish(ctx, ev); err != nil && f.logger != nil {
		f.logger.Warn("vibration publish failed", "error", err, "pattern", pattern)
	}
}
