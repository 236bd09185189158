package flock

import "os"

// Backend performs a single non-blocking lock or unlock on an open file.
//
// TryLock must return ErrContended (possibly wrapped) when a conflicting
// lock is held elsewhere, and any other error for permanent failures.
type Backend interface {
	TryLock(f *os.File, mode Mode) error
	Unlock(f *os.File) error
	Name() string
}

// DefaultBackend returns the backend used when Options.Backend is nil.
func DefaultBackend() Backend {
	return FlockBackend{}
}

// BackendByName resolves a backend from its configuration name
// ("flock" or "fcntl"). An empty name selects the default.
func BackendByName(name string) (Backend, bool) {
	switch name {
	case "", FlockBackend{}.Name():
		return FlockBackend{}, true
	case RecordBackend{}.Name():
		return RecordBackend{}, true
	default:
		return nil, false
	}
}
