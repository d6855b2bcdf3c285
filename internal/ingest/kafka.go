package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"sightline/internal/config"
)

// StartKafka consumes JSON frames from a topic with a consumer group.
func StartKafka(ctx context.Context, cfg config.KafkaConfig, parser *Parser, sink *Sink, logger *slog.Logger) {
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", cfg.Brokers, "topic", cfg.Topic, "group_id", cfg.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				if !BackoffSleep(ctx, 500*time.Millisecond) {
					return
				}
				continue
			}
			frame, err := parser.ParseLine(string(m.Value))
			if err != nil {
				if logger != nil {
					logger.Warn("kafka parse error", "err", err, "offset", m.Offset)
				}
				continue
			}
			if frame == nil {
				continue
			}
			if frame.CameraID == parser.defaultCamera && len(m.Key) > 0 {
				frame.CameraID = string(m.Key)
			}
			frame.Source = "kafka"
			sink.Send(ctx, *frame)
		}
	}()
}
