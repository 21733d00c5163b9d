package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy yields the delay before the attempt after `attempt`
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff grows the delay by Multiplier each attempt, capped at
// MaxDelay, with +/- JitterFactor randomisation
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

// DefaultExponentialBackoff starts at 1s and caps at 30s
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))
	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}
	if eb.JitterFactor > 0 {
		jitter := delay * eb.JitterFactor
		delay += rand.Float64()*2*jitter - jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// ConstantBackoff waits the same Delay between every attempt
type ConstantBackoff struct {
	Delay time.Duration
}

func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// Wait sleeps for delay or until ctx is done
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
