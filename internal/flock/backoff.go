package flock

import "time"

// Backoff produces the base retry intervals for a contended acquisition.
// The first interval is min; each subsequent one doubles, capped at max.
// Intervals never decrease and never exceed max.
type Backoff struct {
	min time.Duration
	max time.Duration
	cur time.Duration
}

// NewBackoff creates a backoff sequence. A non-positive min is treated as
// 1ms and a max below min is raised to min.
func NewBackoff(minInterval, maxInterval time.Duration) *Backoff {
	if minInterval <= 0 {
		minInterval = time.Millisecond
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}
	return &Backoff{min: minInterval, max: maxInterval}
}

// Next returns the next interval in the sequence.
func (b *Backoff) Next() time.Duration {
	switch {
	case b.cur == 0:
		b.cur = b.min
	case b.cur > b.max/2:
		b.cur = b.max
	default:
		b.cur *= 2
	}
	return b.cur
}

// Reset restarts the sequence at min.
func (b *Backoff) Reset() {
	b.cur = 0
}
