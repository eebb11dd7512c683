package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("NOT_FOUND"), false},
		{"marked", NewTransientError(errors.New("503"), 503), true},
		{"wrapped marked", fmt.Errorf("details: %w", NewTransientError(errors.New("limit"), 0)), true},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"circuit open", ErrCircuitOpen, false},
		{"reset by peer", errors.New("read tcp: connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 403, 404} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	var retried []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	got, err := Retry(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("busy"), 503)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	boom := errors.New("REQUEST_DENIED")
	_, err := Retry(context.Background(), fastPolicy(5), func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("busy"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Retry(ctx, RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Hour}, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(errors.New("busy"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, p.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 300*time.Millisecond, p.Backoff(5))

	p.JitterFraction = 0.5
	for i := 0; i < 20; i++ {
		d := p.Backoff(0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestBreaker_OpensAndRecovers(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var changes []string
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 2,
		Cooldown:         time.Minute,
		OnStateChange:    func(from, to State) { changes = append(changes, from.String()+"->"+to.String()) },
	})
	b.now = func() time.Time { return now }

	transient := NewTransientError(errors.New("busy"), 503)
	require.NoError(t, b.Allow())
	b.Record(transient)
	assert.Equal(t, Closed, b.State())
	b.Record(transient)
	assert.Equal(t, Open, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	now = now.Add(time.Minute)
	assert.Equal(t, HalfOpen, b.State())
	require.NoError(t, b.Allow())
	b.Record(nil)
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, changes)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Second})
	b.now = func() time.Time { return now }

	b.Record(NewTransientError(errors.New("busy"), 503))
	now = now.Add(time.Second)
	require.NoError(t, b.Allow())
	b.Record(NewTransientError(errors.New("busy"), 503))
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1})
	b.Record(errors.New("NOT_FOUND"))
	assert.Equal(t, Closed, b.State())
}

func TestCall_AppliesTimeoutPerAttempt(t *testing.T) {
	g := &Guard{Retry: fastPolicy(2), Breaker: NewBreaker(BreakerConfig{FailureThreshold: 10}), Timeout: 5 * time.Millisecond}
	calls := 0
	_, err := Call(context.Background(), g, "details", func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, calls)
}

func TestCall_OpenCircuitShortCircuits(t *testing.T) {
	g := NewGuard(GuardConfig{MaxAttempts: 1, FailureThreshold: 1, CooldownSecs: 60})
	_, err := Call(context.Background(), g, "details", func(context.Context) (int, error) {
		return 0, NewTransientError(errors.New("busy"), 503)
	})
	require.Error(t, err)

	called := false
	_, err = Call(context.Background(), g, "details", func(context.Context) (int, error) {
		called = true
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCall_NilGuard(t *testing.T) {
	got, err := Call(context.Background(), nil, "x", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestNewGuard_Defaults(t *testing.T) {
	g := NewGuard(GuardConfig{})
	assert.Equal(t, 3, g.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Second, g.Timeout)
	assert.Equal(t, Closed, g.Breaker.State())
}
