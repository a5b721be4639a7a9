package main

import (
	"context"
	"math/rand/v2"
	"time"
)

// pacer spaces out polls: base delay while the outbox is quiet, doubling up to
// ceiling after each failed batch. A small random spread keeps replicas from
// polling in lockstep.
type pacer struct {
	base    time.Duration
	ceiling time.Duration
	spread  time.Duration
	current time.Duration
}

func newPacer(base, ceiling time.Duration) *pacer {
	return &pacer{base: base, ceiling: ceiling, spread: 250 * time.Millisecond, current: base}
}

// idle resets the backoff and returns the quiet-period delay.
func (p *pacer) idle() time.Duration {
	p.current = p.base
	return p.jitter(p.base)
}

// failed grows the backoff and returns the delay before the next attempt.
func (p *pacer) failed() time.Duration {
	next := p.current * 2
	if next <= 0 {
		next = p.base
	}
	p.current = min(next, p.ceiling)
	return p.jitter(p.current)
}

func (p *pacer) jitter(d time.Duration) time.Duration {
	if d <= 0 || p.spread <= 0 {
		return d
	}
	return d + rand.N(p.spread)
}

// wait blocks for d or until ctx ends.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
