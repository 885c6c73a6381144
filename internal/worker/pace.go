package worker

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// NewLimiter returns a limiter allowing one event per delay. A delay of
// zero or less never blocks.
func NewLimiter(delay time.Duration) *rate.Limiter {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return rate.NewLimiter(limit, 1)
}

// Pace blocks until lim grants the next event or ctx is done, and returns
// ctx.Err() in the latter case. Unlike rate.Limiter.Wait it does not give
// up early when the token would arrive after the context deadline, so a
// non-nil error always means the context itself has ended.
func Pace(ctx context.Context, lim *rate.Limiter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r := lim.Reserve()
	d := r.Delay()
	if d == 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}
