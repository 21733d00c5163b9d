package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "tumblrbackup/pkg/errors"
	"tumblrbackup/pkg/logger"
)

// Policy describes how an operation is retried
type Policy struct {
	// MaxAttempts counts the first try; values below 1 mean a single attempt
	MaxAttempts int
	Backoff     BackoffStrategy
	// RetryIf decides whether an error is transient
	RetryIf func(error) bool
	// OnRetry runs before sleeping ahead of the next attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	Logger  logger.Logger
}

// DefaultPolicy retries transient API failures three times
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Logger:      logger.GetLogger(),
	}
}

// NewPolicy builds a policy with exponential backoff between base and max
func NewPolicy(maxAttempts int, base, max time.Duration, log logger.Logger) *Policy {
	p := DefaultPolicy()
	p.MaxAttempts = maxAttempts
	p.Backoff = &ExponentialBackoff{
		BaseDelay:    base,
		MaxDelay:     max,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
	if log != nil {
		p.Logger = log
	}
	return p
}

// DefaultRetryIf retries rate limits, server errors and network failures.
// Cancellation and anything classified as auth or remote API failure is final.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if t, ok := apperrors.TypeOf(err); ok {
		return apperrors.IsRetryable(t)
	}
	return false
}

// Do runs op until it succeeds, returns a non-retryable error, exhausts the
// policy or ctx is cancelled
func Do(ctx context.Context, p *Policy, op func(ctx context.Context) error) error {
	if p == nil {
		p = DefaultPolicy()
	}
	retryIf := p.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 && p.Logger != nil {
				p.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		if !retryIf(lastErr) {
			return lastErr
		}
		if attempt >= maxAttempts {
			if p.Logger != nil {
				p.Logger.WarnWithFields("max retry attempts exceeded", map[string]interface{}{
					"attempts":   attempt,
					"last_error": lastErr.Error(),
				})
			}
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", maxAttempts, lastErr)
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff.NextDelay(attempt)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr, delay)
		}
		if p.Logger != nil {
			p.Logger.WarnWithFields("retrying operation", map[string]interface{}{
				"attempt":  attempt,
				"error":    lastErr.Error(),
				"delay_ms": delay.Milliseconds(),
			})
		}

		if err := Wait(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// DoWithResult is Do for operations that produce a value
func DoWithResult[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, p, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}
