package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter gates outbound requests
type Limiter interface {
	// Allow takes a token if one is available
	Allow() bool
	// Wait blocks until a token is available or ctx is done
	Wait(ctx context.Context) error
}

// TokenBucket holds up to capacity tokens and adds one every interval
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int
	tokens     int
	interval   time.Duration
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket creates a full bucket
func NewTokenBucket(capacity int, interval time.Duration) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		interval:   interval,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// PerMinute returns a bucket admitting rpm requests per minute with a burst
// of one, or nil when rpm is not positive (unthrottled)
func PerMinute(rpm int) *TokenBucket {
	if rpm <= 0 {
		return nil
	}
	return NewTokenBucket(1, time.Minute/time.Duration(rpm))
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	for !tb.Allow() {
		tb.mu.Lock()
		sleep := tb.interval - tb.now().Sub(tb.lastRefill)
		tb.mu.Unlock()
		if sleep <= 0 {
			sleep = time.Millisecond
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

func (tb *TokenBucket) refill() {
	if tb.interval <= 0 {
		tb.tokens = tb.capacity
		return
	}
	now := tb.now()
	earned := int(now.Sub(tb.lastRefill) / tb.interval)
	if earned <= 0 {
		return
	}
	tb.tokens += earned
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = tb.lastRefill.Add(time.Duration(earned) * tb.interval)
}
