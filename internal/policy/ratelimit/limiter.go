// Package ratelimit implements the courtesy throttle shared by every remote request.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration.
type Config struct {
	// Interval is the minimum spacing between successive dispatches.
	// Zero or negative disables throttling.
	Interval time.Duration
}

// Limiter enforces a fixed minimum delay between dispatches, independent of
// how many workers are waiting on it.
type Limiter struct {
	limiter  *rate.Limiter
	observer func(time.Duration)
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	return &Limiter{limiter: rate.NewLimiter(limit, 1)}
}

// OnDelay registers a callback receiving every non-trivial wait duration.
func (l *Limiter) OnDelay(fn func(time.Duration)) {
	l.observer = fn
}

// Wait blocks until the next dispatch slot is available, respecting the context.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond && l.observer != nil {
		l.observer(waited)
	}
	return nil
}
