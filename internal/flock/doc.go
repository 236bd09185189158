// Package flock provides cooperative, path-keyed advisory locking.
//
// A lock target is an ordinary file. An exclusive acquisition creates the
// file if needed and opens it for writing; a shared acquisition requires the
// file to exist already and opens it read-only. The advisory lock itself is
// taken with a non-blocking call in a retry loop whose interval starts at
// Options.MinInterval, doubles on every contended attempt, is capped at
// Options.MaxInterval, and is padded with uniform random jitter so that
// several waiters do not wake in lockstep.
//
// # Usage
//
//	err := flock.Do(ctx, filepath.Join(testDir, "updating.lck"), flock.Options{
//	    Mode:    flock.Exclusive,
//	    Timeout: flock.NoTimeout,
//	}, func() error {
//	    return regenerateReference()
//	})
//
// The target file is left on disk after release so its presence can be
// inspected; only the advisory lock state is cleared.
//
// # Backends
//
// Backend abstracts the locking primitive. FlockBackend (the default) uses
// flock(2), whose locks belong to the open file description and therefore
// also exclude other handles in the same process. RecordBackend uses POSIX
// record locks via fcntl(F_SETLK), which are honored by NFS but are owned by
// the process as a whole.
//
// Re-entrant acquisition by the same caller is not supported.
package flock
