// Package ratelimit provides the job-wide throttle for outbound synthesis
// requests. Every request of a run draws one permit from the same Limiter.
package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// DefaultRate is used when no valid rate is configured
const DefaultRate = 1

// Limiter grants at most perSecond permits in any one-second window.
// Permits are spaced evenly (burst of one) and are never returned.
type Limiter struct {
	perSecond int
	limiter   *rate.Limiter
	granted   atomic.Int64
}

// New creates a limiter for perSecond permits per second. Non-positive
// values fall back to DefaultRate.
func New(perSecond int) *Limiter {
	if perSecond <= 0 {
		perSecond = DefaultRate
	}
	return &Limiter{
		perSecond: perSecond,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Acquire blocks until a permit is available or ctx is done. When the next
// permit lies beyond ctx's deadline it fails at once with an error matching
// context.DeadlineExceeded.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if _, ok := ctx.Deadline(); ok {
			return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return err
	}
	l.granted.Add(1)
	return nil
}

// Rate returns the configured permits per second
func (l *Limiter) Rate() int {
	return l.perSecond
}

// Interval returns the spacing between two permits
func (l *Limiter) Interval() time.Duration {
	return time.Second / time.Duration(l.perSecond)
}

// Span returns the shortest time in which a fresh limiter hands out n
// permits. The first permit is immediate.
func (l *Limiter) Span(n int) time.Duration {
	if n <= 1 {
		return 0
	}
	return time.Duration(n-1) * time.Second / time.Duration(l.perSecond)
}

// Granted returns the number of permits handed out so far
func (l *Limiter) Granted() int64 {
	return l.granted.Load()
}
