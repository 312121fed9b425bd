// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"time"
)

// Policy bounds retries of a fallible operation.
type Policy struct {
	// MaxRetries is the total number of attempts allowed.
	MaxRetries int

	// Delay is the base backoff; attempt n sleeps Delay * n before the
	// next try (linear backoff).
	Delay time.Duration
}

const defaultMaxRetries = 3

// Do runs op until it succeeds, fails fatally, or exhausts the policy.
// Only KindTransient errors are retried. It returns the number of attempts
// made alongside the final error, so callers can report attempt counts in
// task outcomes. If the context is cancelled during a backoff wait, Do
// returns ctx.Err().
func Do(ctx context.Context, p Policy, op func() error) (attempts int, err error) {
	max := p.MaxRetries
	if max <= 0 {
		max = defaultMaxRetries
	}

	for attempt := 1; ; attempt++ {
		err = op()
		if err == nil {
			return attempt, nil
		}
		if KindOf(err) != KindTransient || attempt >= max {
			return attempt, err
		}

		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(p.Delay * time.Duration(attempt)):
		}
	}
}
