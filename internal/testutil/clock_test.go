package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClock_StartsFrozen(t *testing.T) {
	clock := NewFakeClock(epoch)
	assert.Equal(t, epoch, clock.Now())
	assert.Equal(t, epoch, clock.Now())
	assert.Empty(t, clock.Sleeps())
}

func TestFakeClock_SleepAdvancesAndRecords(t *testing.T) {
	clock := NewFakeClock(epoch)
	ctx := context.Background()

	require.NoError(t, clock.Sleep(ctx, time.Second))
	require.NoError(t, clock.Sleep(ctx, 2*time.Second))

	assert.Equal(t, epoch.Add(3*time.Second), clock.Now())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
}

func TestFakeClock_SleepHonorsCancelledContext(t *testing.T) {
	clock := NewFakeClock(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := clock.Sleep(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, epoch, clock.Now())
	assert.Empty(t, clock.Sleeps())
}

func TestFakeClock_AdvanceDoesNotRecord(t *testing.T) {
	clock := NewFakeClock(epoch)
	clock.Advance(time.Minute)
	assert.Equal(t, epoch.Add(time.Minute), clock.Now())
	assert.Empty(t, clock.Sleeps())
}

func TestFakeClock_Reset(t *testing.T) {
	clock := NewFakeClock(epoch)
	require.NoError(t, clock.Sleep(context.Background(), time.Second))

	clock.Reset(epoch)
	assert.Equal(t, epoch, clock.Now())
	assert.Empty(t, clock.Sleeps())
}

func TestFakeClock_ConcurrentSleeps(t *testing.T) {
	clock := NewFakeClock(epoch)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = clock.Sleep(context.Background(), time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Len(t, clock.Sleeps(), 50)
	assert.Equal(t, epoch.Add(50*time.Millisecond), clock.Now())
}
