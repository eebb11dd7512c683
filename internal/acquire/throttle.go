package acquire

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Throttle defaults.
const (
	DefaultPerSecond = 5.0
	DefaultPageDelay = 2 * time.Second
	DefaultMaxPages  = 3
)

// Throttle spaces provider calls to a calls-per-second budget and adds the
// delay the provider needs before a next_page_token becomes valid.
type Throttle struct {
	limiter   *rate.Limiter
	pageDelay time.Duration
}

// NewThrottle creates a throttle. A non-positive perSecond uses
// DefaultPerSecond; a negative pageDelay uses DefaultPageDelay.
func NewThrottle(perSecond float64, pageDelay time.Duration) *Throttle {
	if perSecond <= 0 {
		perSecond = DefaultPerSecond
	}
	if pageDelay < 0 {
		pageDelay = DefaultPageDelay
	}
	return &Throttle{
		limiter:   rate.NewLimiter(rate.Limit(perSecond), 1),
		pageDelay: pageDelay,
	}
}

// Wait blocks until the next call is allowed.
func (t *Throttle) Wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "acquire: rate limit wait")
	}
	return nil
}

// WaitPage blocks for the page-token delay and then for the limiter.
func (t *Throttle) WaitPage(ctx context.Context) error {
	if t.pageDelay > 0 {
		timer := time.NewTimer(t.pageDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return eris.Wrap(ctx.Err(), "acquire: page token wait")
		case <-timer.C:
		}
	}
	return t.Wait(ctx)
}

// Limit returns the configured calls-per-second budget.
func (t *Throttle) Limit() float64 {
	return float64(t.limiter.Limit())
}
