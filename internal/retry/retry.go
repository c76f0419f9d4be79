// Package retry provides the exponential-backoff helper wrapping
// work-provider calls, per the specification's retry/backoff design.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/zgeoff/decree/internal/errkind"
	"github.com/zgeoff/decree/internal/metrics"
)

// Config holds retry tuning. The defaults match the specification
// verbatim: three attempts, 2s base, factor 2, capped at 30s, full jitter.
type Config struct {
	MaxAttempts int
	BackoffBase time.Duration
	Factor      float64
	MaxBackoff  time.Duration
}

// DefaultConfig returns the specification's retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BackoffBase: 2 * time.Second,
		Factor:      2.0,
		MaxBackoff:  30 * time.Second,
	}
}

// StatusError is the interface an operation's error must satisfy for the
// retry helper to inspect its HTTP status and headers. Operations that
// don't fail with a StatusError are treated as non-retryable.
type StatusError interface {
	error
	StatusCode() int
	Header() http.Header
}

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Sleeper abstracts time.Sleep for deterministic tests.
type Sleeper func(ctx context.Context, d time.Duration) error

// RealSleeper sleeps for real, honoring context cancellation.
func RealSleeper(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs op, retrying on transient failures per cfg. Non-StatusError
// failures, and StatusError failures whose code isn't in the retryable
// set, propagate immediately.
func Do[T any](ctx context.Context, cfg Config, sleep Sleeper, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			metrics.RecordRetryOutcome("success")
			return result, nil
		}
		lastErr = err

		var statusErr StatusError
		if !errors.As(err, &statusErr) {
			metrics.RecordRetryOutcome("permanent")
			return zero, err
		}
		if !retryableStatus[statusErr.StatusCode()] {
			metrics.RecordRetryOutcome("permanent")
			return zero, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := backoffFor(cfg, attempt, statusErr)
		if err := sleep(ctx, wait); err != nil {
			metrics.RecordRetryOutcome("cancelled")
			return zero, err
		}
	}

	metrics.RecordRetryOutcome("exhausted")
	return zero, errkind.New(errkind.TransientProvider, "retry.Do", lastErr)
}

// backoffFor computes the wait duration before the next attempt.
// Retry-After takes priority for 429s; otherwise full-jitter exponential
// backoff capped at MaxBackoff.
func backoffFor(cfg Config, attempt int, statusErr StatusError) time.Duration {
	if statusErr.StatusCode() == http.StatusTooManyRequests {
		if h := statusErr.Header(); h != nil {
			if ra := h.Get("Retry-After"); ra != "" {
				if secs, err := parsePositiveSeconds(ra); err == nil {
					return time.Duration(secs) * time.Second
				}
			}
		}
	}

	base := float64(cfg.BackoffBase)
	computed := base
	for i := 1; i < attempt; i++ {
		computed *= cfg.Factor
	}
	if computed > float64(cfg.MaxBackoff) {
		computed = float64(cfg.MaxBackoff)
	}

	return time.Duration(rand.Float64() * computed)
}

func parsePositiveSeconds(s string) (int, error) {
	var n int
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errors.New("not a positive integer")
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return 0, errors.New("not a positive integer")
	}
	return n, nil
}
