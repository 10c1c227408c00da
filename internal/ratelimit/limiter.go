package ratelimit

import (
	"context"
	"time"
)

// Limiter evaluates fixed-window budgets against a Store.
type Limiter struct {
	store Store
	now   func() time.Time
}

// NewLimiter wires a limiter on top of store.
func NewLimiter(store Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// WithClock overrides the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow counts one request against key. A non-positive limit or window means
// no budget is configured and the request passes without touching the store.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	if limit <= 0 || window <= 0 {
		return Result{Allowed: true, Remaining: -1}, nil
	}
	return l.store.Hit(ctx, key, limit, window, l.now())
}

// Sweep drops elapsed windows from the backing store.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	return l.store.Sweep(ctx, l.now())
}
