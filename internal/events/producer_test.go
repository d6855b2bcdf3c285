package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"sightline/internal/model"
)

func TestPublishEncodesEvent(t *testing.T) {
	mock := mocks.NewSyncProducer(t, sarama.NewConfig())
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev model.Event
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.Type != model.EventVibration || ev.Pattern != model.VibrationDouble || ev.CameraID != "porch" {
			return fmt.Errorf("unexpected event %+v", ev)
		}
		if ev.Timestamp.IsZero() {
			return errors.New("timestamp not filled")
		}
		return nil
	})
	p := NewProducerWith(mock, "sightline-events", nil)
	p.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	err := p.Publish(context.Background(), model.Event{Type: model.EventVibration, CameraID: "porch", Pattern: model.VibrationDouble})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestPublishReturnsSendError(t *testing.T) {
	mock := mocks.NewSyncProducer(t, sarama.NewConfig())
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	p := NewProducerWith(mock, "sightline-events", nil)
	err := p.Publish(context.Background(), model.Event{Type: model.EventAlert, CameraID: "c1"})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected broker error, got %v", err)
	}
	_ = p.Close()
}

func TestPublishCancelled(t *testing.T) {
	mock := mocks.NewSyncProducer(t, sarama.NewConfig())
	p := NewProducerWith(mock, "t", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Publish(ctx, model.Event{}); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
	_ = p.Close()
}
