package main

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

// pacer decides how long the loop waits between batches.
type pacer struct {
	base    time.Duration
	backoff time.Duration
}

func newPacer(base time.Duration) *pacer {
	return &pacer{base: base, backoff: base}
}

func (p *pacer) next(processed bool, err error) time.Duration {
	switch {
	case err != nil:
		p.backoff = nextBackoff(p.backoff, p.base, maxBackoff)
		return withJitter(p.backoff)
	case processed:
		p.backoff = p.base
		return 0
	default:
		p.backoff = p.base
		return withJitter(p.base)
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	if next := current * 2; next < max {
		return next
	}
	return max
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
