package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(n int) Config {
	return Config{MaxRetries: n, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffMultiple: 2}
}

func TestDoRetriesTransientStatus(t *testing.T) {
	calls := 0
	out, err := Do(context.Background(), fastConfig(3), nil, nil, "llm", func(int) (string, error) {
		calls++
		if calls < 3 {
			return "", &StatusError{Service: "llm", Code: 503}
		}
		return "ok", nil
	})
	if err != nil || out != "ok" {
		t.Fatalf("expected ok, got %q %v", out, err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnClientError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(3), nil, nil, "llm", func(int) (int, error) {
		calls++
		return 0, &StatusError{Service: "llm", Code: 400}
	})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 400 {
		t.Fatalf("expected status error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestDoExhaustion(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(2), nil, nil, "tts", func(int) (int, error) {
		calls++
		return 0, errors.New("connection refused")
	})
	if err == nil || calls != 3 {
		t.Fatalf("expected 3 failing calls, got %d %v", calls, err)
	}
}

func TestTransient(t *testing.T) {
	if Transient(context.DeadlineExceeded) {
		t.Fatalf("deadline must not be retried")
	}
	if !Transient(&StatusError{Code: 429}) {
		t.Fatalf("429 should be retried")
	}
	if Transient(nil) {
		t.Fatalf("nil is not an error")
	}
}
