// Package ratelimit throttles requests with fixed-window counters keyed by
// client, route and identity.
package ratelimit

import (
	"context"
	"time"
)

// Rule is the budget applied to one endpoint or route group. A rule with a
// non-positive Limit or Window disables throttling.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Enabled reports whether the rule throttles at all.
func (r Rule) Enabled() bool {
	return r.Limit > 0 && r.Window > 0
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Store performs the read-check-increment of a window atomically per key.
type Store interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
	// Sweep drops windows that have fully elapsed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}
