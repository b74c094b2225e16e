package rosbridge

import (
	"math/rand"
	"time"
)

// backoff computes exponential reconnect delays with jitter (spec.md §4.6):
// delay doubles each attempt starting from Initial, capped at Max, then
// randomized by +/- Jitter fraction. It is not safe for concurrent use;
// the session actor owns it exclusively.
type backoff struct {
	initial time.Duration
	max     time.Duration
	jitter  float64

	attempt int
	rand    *rand.Rand
}

func newBackoff(cfg Config) *backoff {
	return &backoff{
		initial: cfg.BackoffInitial,
		max:     cfg.BackoffMax,
		jitter:  cfg.BackoffJitter,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// next returns the delay to wait before the next reconnect attempt and
// advances the attempt counter.
func (b *backoff) next() time.Duration {
	base := b.initial << uint(b.attempt)
	if base <= 0 || base > b.max {
		base = b.max
	}
	b.attempt++

	if b.jitter <= 0 {
		return base
	}
	spread := float64(base) * b.jitter
	delta := (b.rand.Float64()*2 - 1) * spread
	d := time.Duration(float64(base) + delta)
	if d < 0 {
		d = 0
	}
	return d
}

// reset returns the backoff to its initial state, called after a
// successful reconnect, just before the resubscription sweep.
func (b *backoff) reset() {
	b.attempt = 0
}
