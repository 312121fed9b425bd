// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ratelimit gates outbound requests with a per-domain token bucket.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter holds one token bucket per target domain. Buckets refill
// continuously at the configured requests-per-minute and are created
// lazily on first acquisition. Callers never touch bucket state directly.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*rate.Limiter
	perMinute int
}

// New returns a Limiter budgeted at perMinute requests per minute per
// domain. A non-positive budget disables limiting.
func New(perMinute int) *Limiter {
	return &Limiter{
		buckets:   make(map[string]*rate.Limiter),
		perMinute: perMinute,
	}
}

// Wait blocks the caller until a token for domain is available. Requests
// are delayed, never dropped. Returns ctx.Err() if the context is
// cancelled while waiting.
func (l *Limiter) Wait(ctx context.Context, domain string) error {
	if l.perMinute <= 0 {
		return nil
	}
	return l.bucket(domain).Wait(ctx)
}

func (l *Limiter) bucket(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[domain]
	if !ok {
		// Burst 1 keeps dispatches evenly spaced, so no rolling
		// 60-second window can exceed the per-minute budget.
		b = rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), 1)
		l.buckets[domain] = b
	}
	return b
}
