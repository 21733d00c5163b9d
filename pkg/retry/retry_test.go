package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "tumblrbackup/pkg/errors"
	"tumblrbackup/pkg/logger"
)

func fastPolicy(max int) *Policy {
	return &Policy{
		MaxAttempts: max,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		Logger:      logger.NewTestLogger(),
	}
}

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{9, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, backoff.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoffJitterStaysInBounds(t *testing.T) {
	backoff := &ExponentialBackoff{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, JitterFactor: 0.3}

	for i := 0; i < 50; i++ {
		d := backoff.NextDelay(2)
		assert.GreaterOrEqual(t, d, 140*time.Millisecond)
		assert.LessOrEqual(t, d, 260*time.Millisecond)
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return &apperrors.Error{Type: apperrors.ErrorTypeServerError, Code: 503}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	rateLimited := &apperrors.Error{Type: apperrors.ErrorTypeRateLimit, Code: 429}

	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		attempts++
		return rateLimited
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, rateLimited)
}

func TestDoDoesNotRetryFinalErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"auth", apperrors.NewAuthError("rejected", nil)},
		{"remote api", apperrors.NewRemoteAPIError("not found", 404, nil)},
		{"plain", errors.New("boom")},
		{"cancelled", context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
				attempts++
				return tt.err
			})
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, attempts)
		})
	}
}

func TestDoStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy(10)
	p.Backoff = &ConstantBackoff{Delay: time.Hour}
	p.OnRetry = func(int, error, time.Duration) { cancel() }

	err := Do(ctx, p, func(context.Context) error {
		return &apperrors.Error{Type: apperrors.ErrorTypeNetwork}
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastPolicy(2), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &apperrors.Error{Type: apperrors.ErrorTypeNetwork}
		}
		return "page", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "page", got)
}

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Wait(ctx, 0), context.Canceled)
}
