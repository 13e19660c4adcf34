package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle enforces a smooth, non-bursty call rate.
//
// Each caller is scheduled at least `interval` after the prior call, even
// under concurrency. The watcher uses it to bound how often it polls chat.db
// while Messages is writing heavily. A nil *Throttle never waits.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle returns a throttle spacing calls interval apart, or nil when
// interval is not positive.
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		return nil
	}
	// Burst of one allows one immediate call.
	return &Throttle{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next call is allowed or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}
