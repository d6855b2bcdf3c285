package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"
)

type Config struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:      2,
		BaseDelay:       200 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		BackoffMultiple: 2.0,
	}
}

// WithRetries returns c with MaxRetries replaced; negative values mean none.
func (c Config) WithRetries(n int) Config {
	if n < 0 {
		n = 0
	}
	c.MaxRetries = n
	return c
}

func (c Config) delay(attempt int) time.Duration {
	mult := c.BackoffMultiple
	if mult <= 0 {
		mult = 2
	}
	d := time.Duration(float64(c.BaseDelay) * math.Pow(mult, float64(attempt)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// StatusError is returned by callers when a remote answered with a non-2xx status.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.Code, e.Body)
}

// Checker decides whether an attempt that failed with err should be retried.
type Checker func(err error) bool

// Transient retries network failures, 429 and 5xx. Cancellation and deadline
// errors from the caller's context are final.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

// Do runs fn until it succeeds, returns a non-retryable error, or the retry
// budget is spent. The last error is returned on exhaustion.
func Do[T any](ctx context.Context, cfg Config, check Checker, logger *slog.Logger, name string, fn func(attempt int) (T, error)) (T, error) {
	if check == nil {
		check = Transient
	}
	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := cfg.delay(attempt - 1)
			if logger != nil {
				logger.Debug("retrying request", "service", name, "attempt", attempt+1, "delay", wait, "error", lastErr)
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
		out, err := fn(attempt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !check(err) {
			return zero, err
		}
	}
	return zero, fmt.Errorf("%s: retries exhausted: %w", name, lastErr)
}
