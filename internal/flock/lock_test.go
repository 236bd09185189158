package flock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simregress/internal/testutil"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// fastOptions keeps real-clock tests short.
func fastOptions(mode Mode) Options {
	return Options{
		Mode:        mode,
		Timeout:     NoTimeout,
		MinInterval: time.Millisecond,
		MaxInterval: 5 * time.Millisecond,
		MaxJitter:   time.Millisecond,
	}
}

func TestAcquire_ExclusiveCreatesTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updating.lck")

	h, err := New(path, fastOptions(Exclusive)).Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, h.Held())
	assert.FileExists(t, path)

	require.NoError(t, h.Release())
	assert.False(t, h.Held())
}

func TestRelease_LeavesTargetOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updating.lck")

	h, err := New(path, fastOptions(Exclusive)).Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Release())

	assert.FileExists(t, path, "lock target must survive release for diagnostics")
}

func TestRelease_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updating.lck")

	h, err := New(path, fastOptions(Exclusive)).Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, h.Release())
	require.NoError(t, h.Release())

	var nilHandle *Handle
	assert.NoError(t, nilHandle.Release())
}

func TestAcquire_ExclusiveReusesLeftoverTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updating.lck")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	h, err := New(path, fastOptions(Exclusive)).Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Release())
}

func TestAcquire_MutualExclusion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "updating.lck")
	marker := filepath.Join(dir, "held.marker")

	const workers = 4
	const rounds = 5

	var holders, maxHolders atomic.Int32
	var violations atomic.Int32
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				err := Do(context.Background(), path, fastOptions(Exclusive), func() error {
					n := holders.Add(1)
					defer holders.Add(-1)
					for {
						m := maxHolders.Load()
						if n <= m || maxHolders.CompareAndSwap(m, n) {
							break
						}
					}

					// The marker exists only while someone holds the lock.
					if _, err := os.Stat(marker); err == nil {
						violations.Add(1)
					}
					if err := os.WriteFile(marker, []byte("held"), 0o644); err != nil {
						return err
					}
					time.Sleep(2 * time.Millisecond)
					return os.Remove(marker)
				})
				if err != nil {
					t.Errorf("Do failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxHolders.Load())
	assert.Zero(t, violations.Load())
}

func TestAcquire_SecondBlocksUntilRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updating.lck")

	first, err := New(path, fastOptions(Exclusive)).Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan *Handle, 1)
	go func() {
		h, err := New(path, fastOptions(Exclusive)).Acquire(context.Background())
		if err != nil {
			t.Errorf("second Acquire failed: %v", err)
			close(acquired)
			return
		}
		acquired <- h
	}()

	select {
	case <-acquired:
		t.Fatal("second exclusive acquisition succeeded while first was held")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Release())

	select {
	case h := <-acquired:
		require.NotNil(t, h)
		assert.NoError(t, h.Release())
	case <-time.After(5 * time.Second):
		t.Fatal("second acquisition did not proceed after release")
	}
}

func TestAcquire_ZeroTimeoutFailsImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updating.lck")

	first, err := New(path, fastOptions(Exclusive)).Acquire(context.Background())
	require.NoError(t, err)
	defer first.Release()

	clock := testutil.NewFakeClock(epoch)
	opts := fastOptions(Exclusive)
	opts.Timeout = 0
	opts.Clock = clock

	_, err = New(path, opts).Acquire(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	assert.Empty(t, clock.Sleeps())
}

func TestAcquire_TimeoutAfterBackoff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updating.lck")

	first, err := New(path, fastOptions(Exclusive)).Acquire(context.Background())
	require.NoError(t, err)
	defer first.Release()

	clock := testutil.NewFakeClock(epoch)
	opts := Options{
		Mode:        Exclusive,
		Timeout:     5 * time.Second,
		MinInterval: 100 * time.Millisecond,
		MaxInterval: time.Second,
		Clock:       clock,
	}

	_, err = New(path, opts).Acquire(context.Background())
	require.ErrorIs(t, err, ErrTimeout)

	sleeps := clock.Sleeps()
	require.NotEmpty(t, sleeps)
	assert.Equal(t, 100*time.Millisecond, sleeps[0])
	for i := 1; i < len(sleeps); i++ {
		assert.GreaterOrEqual(t, sleeps[i], sleeps[i-1], "interval decreased at retry %d", i)
		assert.LessOrEqual(t, sleeps[i], time.Second)
	}

	var total time.Duration
	for _, s := range sleeps {
		total += s
	}
	assert.GreaterOrEqual(t, total, 5*time.Second)
}

func TestAcquire_JitterIsBounded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updating.lck")

	first, err := New(path, fastOptions(Exclusive)).Acquire(context.Background())
	require.NoError(t, err)
	defer first.Release()

	clock := testutil.NewFakeClock(epoch)
	opts := Options{
		Mode:        Exclusive,
		Timeout:     30 * time.Second,
		MinInterval: 100 * time.Millisecond,
		MaxInterval: 2 * time.Second,
		MaxJitter:   time.Second,
		Clock:       clock,
	}
	_, err = New(path, opts).Acquire(context.Background())
	require.ErrorIs(t, err, ErrTimeout)

	bo := NewBackoff(opts.MinInterval, opts.MaxInterval)
	for i, s := range clock.Sleeps() {
		base := bo.Next()
		assert.GreaterOrEqual(t, s, base, "sleep %d shorter than its base interval", i)
		assert.Less(t, s, base+opts.MaxJitter, "sleep %d jitter out of bounds", i)
	}
}

func TestAcquire_ContextCancelledWhileWaiting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updating.lck")

	first, err := New(path, fastOptions(Exclusive)).Acquire(context.Background())
	require.NoError(t, err)
	defer first.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = New(path, fastOptions(Exclusive)).Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestAcquire_SharedWithoutTargetIsConfigError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.lck")
	clock := testutil.NewFakeClock(epoch)

	opts := fastOptions(Shared)
	opts.Clock = clock
	_, err := New(path, opts).Acquire(context.Background())

	require.ErrorIs(t, err, ErrNoTarget)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Empty(t, clock.Sleeps(), "configuration errors must not be retried")
	assert.NoFileExists(t, path)
}

func TestAcquire_SharedHoldersCoexist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updating.lck")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	a, err := New(path, fastOptions(Shared)).Acquire(context.Background())
	require.NoError(t, err)
	defer a.Release()

	opts := fastOptions(Shared)
	opts.Timeout = 0
	b, err := New(path, opts).Acquire(context.Background())
	require.NoError(t, err)
	defer b.Release()
}

func TestAcquire_SharedExcludesExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updating.lck")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	reader, err := New(path, fastOptions(Shared)).Acquire(context.Background())
	require.NoError(t, err)

	opts := fastOptions(Exclusive)
	opts.Timeout = 0
	_, err = New(path, opts).Acquire(context.Background())
	require.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, reader.Release())
	w, err := New(path, opts).Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.Release())
}

func TestAcquire_DisabledIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updating.lck")

	opts := fastOptions(Exclusive)
	opts.Disabled = true
	h, err := New(path, opts).Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, h.Held())
	assert.NoFileExists(t, path)
	assert.NoError(t, h.Release())

	opts.Mode = Shared
	_, err = New(path, opts).Acquire(context.Background())
	assert.NoError(t, err, "disabled shared lock must not require a target")
}

func TestDo_ReleasesOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updating.lck")
	boom := errors.New("boom")

	err := Do(context.Background(), path, fastOptions(Exclusive), func() error { return boom })
	require.ErrorIs(t, err, boom)

	opts := fastOptions(Exclusive)
	opts.Timeout = 0
	h, err := New(path, opts).Acquire(context.Background())
	require.NoError(t, err, "lock must be free after Do returns an error")
	require.NoError(t, h.Release())
}

func TestDo_ReleasesOnPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updating.lck")

	assert.Panics(t, func() {
		_ = Do(context.Background(), path, fastOptions(Exclusive), func() error { panic("boom") })
	})

	opts := fastOptions(Exclusive)
	opts.Timeout = 0
	h, err := New(path, opts).Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Release())
}

func TestRecordBackend_AcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updating.lck")

	opts := fastOptions(Exclusive)
	opts.Backend = RecordBackend{}
	h, err := New(path, opts).Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Release())

	opts.Mode = Shared
	h, err = New(path, opts).Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Release())
}

func TestBackendByName(t *testing.T) {
	b, ok := BackendByName("")
	require.True(t, ok)
	assert.Equal(t, "flock", b.Name())

	b, ok = BackendByName("fcntl")
	require.True(t, ok)
	assert.Equal(t, "fcntl", b.Name())

	_, ok = BackendByName("zookeeper")
	assert.False(t, ok)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "exclusive", Exclusive.String())
	assert.Equal(t, "shared", Shared.String())
}
