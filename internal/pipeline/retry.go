package pipeline

import (
	"context"
	"math/rand/v2"
	"time"

	apperrors "github.com/jittakal/kafeventrouter/internal/errors"
)

// RetryConfig controls exponential backoff between attempts.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         bool
}

// backoff returns the delay before attempt n, counting from 1.
func (c RetryConfig) backoff(n int) time.Duration {
	d := c.InitialBackoff
	multiplier := c.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}
	for i := 1; i < n; i++ {
		d = time.Duration(float64(d) * multiplier)
		if c.MaxBackoff > 0 && d > c.MaxBackoff {
			d = c.MaxBackoff
			break
		}
	}
	if c.Jitter && d > 0 {
		// Jitter keeps the delay within [d/2, d].
		d = d/2 + time.Duration(rand.Int64N(int64(d/2)+1))
	}
	return d
}

// retry runs fn until it succeeds, fails with an error that is not
// retryable, or MaxAttempts is reached. The last error is returned.
func retry(ctx context.Context, cfg RetryConfig, onRetry func(attempt int, err error), fn func() error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(cfg.backoff(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err = fn(); err == nil {
			return nil
		}
		if !apperrors.IsRetryable(err) || attempt == attempts {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
	return err
}
