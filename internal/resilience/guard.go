package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Guard wraps every provider call: each attempt gets its own timeout and is
// checked against the breaker, and transient failures are retried.
type Guard struct {
	Retry   RetryPolicy
	Breaker *Breaker
	Timeout time.Duration
}

// GuardConfig holds the config-file values for a Guard.
type GuardConfig struct {
	MaxAttempts      int
	InitialBackoffMs int
	MaxBackoffMs     int
	Multiplier       float64
	FailureThreshold int
	CooldownSecs     int
	TimeoutSecs      int
}

// NewGuard builds a Guard from config values. Zero values take defaults.
func NewGuard(cfg GuardConfig) *Guard {
	p := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoffMs > 0 {
		p.InitialBackoff = time.Duration(cfg.InitialBackoffMs) * time.Millisecond
	}
	if cfg.MaxBackoffMs > 0 {
		p.MaxBackoff = time.Duration(cfg.MaxBackoffMs) * time.Millisecond
	}
	if cfg.Multiplier > 0 {
		p.Multiplier = cfg.Multiplier
	}

	bc := DefaultBreakerConfig()
	if cfg.FailureThreshold > 0 {
		bc.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.CooldownSecs > 0 {
		bc.Cooldown = time.Duration(cfg.CooldownSecs) * time.Second
	}
	bc.OnStateChange = func(from, to State) {
		zap.L().Warn("provider circuit changed",
			zap.String("component", "resilience"),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}

	timeout := 10 * time.Second
	if cfg.TimeoutSecs > 0 {
		timeout = time.Duration(cfg.TimeoutSecs) * time.Second
	}
	return &Guard{Retry: p, Breaker: NewBreaker(bc), Timeout: timeout}
}

// Call runs fn under g. A nil Guard calls fn directly.
func Call[T any](ctx context.Context, g *Guard, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	if g == nil {
		return fn(ctx)
	}
	policy := g.Retry
	if policy.OnRetry == nil {
		policy.OnRetry = LogRetries(operation)
	}
	return Retry(ctx, policy, func(ctx context.Context) (T, error) {
		var zero T
		if g.Breaker != nil {
			if err := g.Breaker.Allow(); err != nil {
				return zero, err
			}
		}
		attemptCtx := ctx
		if g.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, g.Timeout)
			defer cancel()
		}
		val, err := fn(attemptCtx)
		if g.Breaker != nil {
			g.Breaker.Record(err)
		}
		return val, err
	})
}
