package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/fazzk/internal/platform/retry"
)

var (
	errTransient = errors.New("transient")
	errRejected  = errors.New("rejected")
	errThrottled = errors.New("throttled")
)

var fastPolicy = retry.Policy{
	MaxAttempts:     3,
	InitialBackoff:  time.Millisecond,
	ThrottleBackoff: 2 * time.Millisecond,
}

func classify(err error) retry.Action {
	switch {
	case errors.Is(err, errRejected):
		return retry.Stop
	case errors.Is(err, errThrottled):
		return retry.After
	default:
		return retry.Retry
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	calls := 0
	val, err := retry.Do(context.Background(), fastPolicy, classify, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errTransient
		}
		return "nickname", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "nickname", val)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := retry.DoVoid(context.Background(), fastPolicy, classify, func(context.Context) error {
		calls++
		return errRejected
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var perm *retry.PermanentError
	require.ErrorAs(t, err, &perm)
	assert.ErrorIs(t, err, errRejected)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := retry.DoVoid(context.Background(), fastPolicy, retry.Always, func(context.Context) error {
		calls++
		return errTransient
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, errTransient)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
}

func TestDo_BackoffDoublesAndCaps(t *testing.T) {
	var waits []time.Duration
	p := retry.Policy{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     3 * time.Millisecond,
		OnRetry: func(_ int, _ error, backoff time.Duration) {
			waits = append(waits, backoff)
		},
	}

	_ = retry.DoVoid(context.Background(), p, retry.Always, func(context.Context) error {
		return errTransient
	})

	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond, 3 * time.Millisecond}, waits)
}

func TestDo_ThrottleUsesThrottleBackoff(t *testing.T) {
	var waits []time.Duration
	p := fastPolicy
	p.OnRetry = func(_ int, _ error, backoff time.Duration) { waits = append(waits, backoff) }

	_ = retry.DoVoid(context.Background(), p, classify, func(context.Context) error {
		return errThrottled
	})

	assert.Equal(t, []time.Duration{2 * time.Millisecond, 2 * time.Millisecond}, waits)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := retry.Policy{MaxAttempts: 3, InitialBackoff: time.Hour}
	p.OnRetry = func(int, error, time.Duration) { cancel() }

	err := retry.DoVoid(ctx, p, retry.Always, func(context.Context) error { return errTransient })

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_RejectsZeroAttempts(t *testing.T) {
	_, err := retry.Do(context.Background(), retry.Policy{}, retry.Always, func(context.Context) (int, error) {
		return 1, nil
	})
	require.Error(t, err)
}
