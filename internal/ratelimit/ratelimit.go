// Package ratelimit bounds the rate of shortening requests per identity.
//
// Quotas are two-tier: a per-minute AND a per-hour fixed window, both of
// which must pass. Counters live either in Redis (cluster-wide) or in
// process memory (single node, tests).
package ratelimit

import (
	"context"
	"time"
)

// Limit is a pair of fixed-window ceilings applied simultaneously.
type Limit struct {
	PerMinute int
	PerHour   int
}

// Tiered shortening quotas, keyed by whether the caller is authenticated.
var (
	Anonymous  = Limit{PerMinute: 2, PerHour: 5}
	Registered = Limit{PerMinute: 10, PerHour: 100}
)

// Result reports the outcome of a quota check. RetryAfter is the time until
// the last violated window resets, zero when the request is allowed.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter gates requests per identity key.
type Limiter interface {
	// Allow counts a request against key's windows and reports whether it
	// fits within limit. Backend failures return an error so the caller
	// can decide between failing open and closed.
	Allow(ctx context.Context, key string, limit Limit) (Result, error)
}

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
)
