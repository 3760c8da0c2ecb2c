package stream

import (
	"math/rand"
	"time"
)

// Backoff computes the wait before the next dial attempt. A session that
// proved healthy (any heartbeat after it started) resets the delay to base;
// one that died without health doubles it, capped at max. Jitter spreads
// reconnect storms: the wait is scaled by a random factor in [1, 1+jitter].
type Backoff struct {
	base   time.Duration
	max    time.Duration
	jitter float64
	cur    time.Duration
	rng    *rand.Rand
}

func NewBackoff(base, max time.Duration, jitter float64) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{
		base:   base,
		max:    max,
		jitter: jitter,
		cur:    base,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the jittered wait for the coming attempt and advances the
// internal delay.
func (b *Backoff) Next(hadHealth bool) time.Duration {
	if hadHealth {
		b.cur = b.base
	} else {
		b.cur *= 2
		if b.cur > b.max {
			b.cur = b.max
		}
	}
	scale := 1.0
	if b.jitter > 0 {
		scale += b.rng.Float64() * b.jitter
	}
	return time.Duration(float64(b.cur) * scale)
}
