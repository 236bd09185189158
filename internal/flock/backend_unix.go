//go:build unix

package flock

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// FlockBackend locks with flock(2). Locks are tied to the open file
// description, so two handles in one process exclude each other.
type FlockBackend struct{}

func (FlockBackend) Name() string { return "flock" }

func (FlockBackend) TryLock(f *os.File, mode Mode) error {
	how := unix.LOCK_EX
	if mode == Shared {
		how = unix.LOCK_SH
	}
	err := unix.Flock(int(f.Fd()), how|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return ErrContended
	}
	return err
}

func (FlockBackend) Unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

// RecordBackend locks the whole file with POSIX record locks
// (fcntl F_SETLK). These work across NFS clients but are owned by the
// process, not the handle.
type RecordBackend struct{}

func (RecordBackend) Name() string { return "fcntl" }

func (RecordBackend) TryLock(f *os.File, mode Mode) error {
	lk := unix.Flock_t{Type: unix.F_WRLCK, Whence: 0, Start: 0, Len: 0}
	if mode == Shared {
		lk.Type = unix.F_RDLCK
	}
	err := unix.FcntlFlock(f.Fd(), unix.F_SETLK, &lk)
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EACCES) {
		return ErrContended
	}
	return err
}

func (RecordBackend) Unlock(f *os.File) error {
	lk := unix.Flock_t{Type: unix.F_UNLCK, Whence: 0, Start: 0, Len: 0}
	return unix.FcntlFlock(f.Fd(), unix.F_SETLK, &lk)
}
