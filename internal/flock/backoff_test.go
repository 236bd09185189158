package flock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestBackoff_Doubles(t *testing.T) {
	bo := NewBackoff(100*time.Millisecond, time.Second)

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, bo.Next(), "step %d", i)
	}
}

func TestBackoff_Reset(t *testing.T) {
	bo := NewBackoff(10*time.Millisecond, time.Second)
	bo.Next()
	bo.Next()
	bo.Reset()
	assert.Equal(t, 10*time.Millisecond, bo.Next())
}

func TestBackoff_NormalisesBounds(t *testing.T) {
	bo := NewBackoff(0, 0)
	assert.Equal(t, time.Millisecond, bo.Next())
	assert.Equal(t, time.Millisecond, bo.Next())

	bo = NewBackoff(time.Second, time.Millisecond)
	assert.Equal(t, time.Second, bo.Next())
	assert.Equal(t, time.Second, bo.Next())
}

func TestBackoff_MonotonicAndCapped(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		minMs := rapid.Int64Range(1, 5_000).Draw(t, "min")
		maxMs := rapid.Int64Range(minMs, 600_000).Draw(t, "max")
		steps := rapid.IntRange(1, 80).Draw(t, "steps")

		lo := time.Duration(minMs) * time.Millisecond
		hi := time.Duration(maxMs) * time.Millisecond
		bo := NewBackoff(lo, hi)

		prev := time.Duration(0)
		for i := 0; i < steps; i++ {
			d := bo.Next()
			if d < prev {
				t.Fatalf("step %d: %s < previous %s", i, d, prev)
			}
			if d < lo || d > hi {
				t.Fatalf("step %d: %s outside [%s, %s]", i, d, lo, hi)
			}
			prev = d
		}
	})
}
