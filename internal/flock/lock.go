package flock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"
)

// Mode selects exclusive (writer) or shared (reader) locking.
type Mode int

const (
	Exclusive Mode = iota
	Shared
)

func (m Mode) String() string {
	if m == Shared {
		return "shared"
	}
	return "exclusive"
}

// NoTimeout makes Acquire wait for as long as the lock stays contended.
const NoTimeout time.Duration = -1

// Default backoff parameters.
const (
	DefaultMinInterval = 100 * time.Millisecond
	DefaultMaxInterval = 10 * time.Second
	DefaultMaxJitter   = time.Second
)

// Options configures a Lock.
type Options struct {
	Mode Mode

	// Timeout bounds the total wait for a contended lock. Zero means a
	// single attempt; NoTimeout (any negative value) waits indefinitely.
	Timeout time.Duration

	// MinInterval and MaxInterval bound the base retry interval.
	// Zero values select the package defaults.
	MinInterval time.Duration
	MaxInterval time.Duration

	// MaxJitter is the exclusive upper bound of the random delay added to
	// every sleep. Zero disables jitter.
	MaxJitter time.Duration

	// Disabled turns Acquire and Release into no-ops.
	Disabled bool

	Backend Backend
	Clock   Clock
	Rand    *rand.Rand
	Logger  *slog.Logger
}

// DefaultOptions returns exclusive, unbounded-wait options with the default
// backoff parameters.
func DefaultOptions() Options {
	return Options{
		Mode:        Exclusive,
		Timeout:     NoTimeout,
		MinInterval: DefaultMinInterval,
		MaxInterval: DefaultMaxInterval,
		MaxJitter:   DefaultMaxJitter,
	}
}

// Lock is an advisory lock on a single target path.
type Lock struct {
	path    string
	opts    Options
	backend Backend
	clock   Clock
	logger  *slog.Logger
}

// New creates a lock for path. Nothing is touched on disk until Acquire.
func New(path string, opts Options) *Lock {
	if opts.MinInterval == 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.MaxInterval == 0 {
		opts.MaxInterval = DefaultMaxInterval
	}
	l := &Lock{
		path:    path,
		opts:    opts,
		backend: opts.Backend,
		clock:   opts.Clock,
		logger:  opts.Logger,
	}
	if l.backend == nil {
		l.backend = DefaultBackend()
	}
	if l.clock == nil {
		l.clock = realClock{}
	}
	if l.logger == nil {
		l.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l
}

// Path returns the lock target path.
func (l *Lock) Path() string { return l.path }

// Handle is a held lock. Release must be called exactly once; further calls
// are no-ops.
type Handle struct {
	lock     *Lock
	file     *os.File
	released bool
}

// Acquire takes the lock, retrying with backoff while it is contended.
//
// It returns ErrNoTarget for a shared acquisition of a missing target,
// ErrTimeout when the configured wait elapses, or ctx.Err() if the context
// ends while sleeping between attempts.
func (l *Lock) Acquire(ctx context.Context) (*Handle, error) {
	if l.opts.Disabled {
		return &Handle{lock: l}, nil
	}

	f, err := l.open()
	if err != nil {
		return nil, err
	}

	start := l.clock.Now()
	bo := NewBackoff(l.opts.MinInterval, l.opts.MaxInterval)
	for attempt := 1; ; attempt++ {
		err := l.backend.TryLock(f, l.opts.Mode)
		if err == nil {
			l.logger.Info("acquired lock",
				"path", l.path,
				"mode", l.opts.Mode.String(),
				"attempts", attempt,
				"backend", l.backend.Name())
			return &Handle{lock: l, file: f}, nil
		}
		if !errors.Is(err, ErrContended) {
			f.Close()
			return nil, fmt.Errorf("lock %s: %w", l.path, err)
		}

		elapsed := l.clock.Now().Sub(start)
		if l.opts.Timeout >= 0 && elapsed >= l.opts.Timeout {
			f.Close()
			return nil, fmt.Errorf("%w: %s (%s lock, waited %s over %d attempts)",
				ErrTimeout, l.path, l.opts.Mode, elapsed, attempt)
		}

		wait := bo.Next() + l.jitter()
		l.logger.Debug("lock contended, backing off",
			"path", l.path,
			"attempt", attempt,
			"wait", wait)
		if err := l.clock.Sleep(ctx, wait); err != nil {
			f.Close()
			return nil, fmt.Errorf("lock %s: %w", l.path, err)
		}
	}
}

func (l *Lock) open() (*os.File, error) {
	if l.opts.Mode == Shared {
		if _, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoTarget, l.path)
		}
		f, err := os.Open(l.path)
		if err != nil {
			return nil, fmt.Errorf("open lock target: %w", err)
		}
		return f, nil
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		// Left behind by an earlier holder; the advisory lock decides.
		f, err = os.OpenFile(l.path, os.O_WRONLY, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("open lock target: %w", err)
	}
	return f, nil
}

func (l *Lock) jitter() time.Duration {
	if l.opts.MaxJitter <= 0 {
		return 0
	}
	if l.opts.Rand != nil {
		return time.Duration(l.opts.Rand.Int64N(int64(l.opts.MaxJitter)))
	}
	return time.Duration(rand.Int64N(int64(l.opts.MaxJitter)))
}

// Release clears the advisory lock and closes the target. The target file
// itself is not removed.
func (h *Handle) Release() error {
	if h == nil || h.released {
		return nil
	}
	h.released = true
	if h.file == nil {
		return nil
	}

	l := h.lock
	err := errors.Join(l.backend.Unlock(h.file), h.file.Close())
	h.file = nil
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	l.logger.Info("released lock", "path", l.path, "mode", l.opts.Mode.String())
	return nil
}

// Held reports whether the handle still owns an advisory lock.
func (h *Handle) Held() bool {
	return h != nil && !h.released && h.file != nil
}

// Do acquires the lock at path, runs fn, and releases the lock on every
// exit path. A release failure is joined with fn's error.
func Do(ctx context.Context, path string, opts Options, fn func() error) (err error) {
	h, err := New(path, opts).Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, h.Release())
	}()
	return fn()
}
