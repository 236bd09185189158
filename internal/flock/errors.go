package flock

import "errors"

var (
	// ErrContended is returned by a Backend when another holder owns a
	// conflicting lock. Acquire treats it as transient and retries.
	ErrContended = errors.New("flock: lock held by another owner")

	// ErrTimeout indicates the configured wait elapsed while the lock was
	// still contended.
	ErrTimeout = errors.New("flock: timed out waiting for lock")

	// ErrNoTarget indicates a shared acquisition against a target that no
	// exclusive holder has ever created. This is a configuration error and
	// is never retried.
	ErrNoTarget = errors.New("flock: lock target for shared lock not found")

	// ErrUnsupported is returned by backends on platforms without advisory
	// locking.
	ErrUnsupported = errors.New("flock: advisory locking not supported on this platform")
)
