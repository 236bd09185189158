// Package store provides SQLite-backed history of harness runs.
//
// Each run is one row in runs, keyed by a UUIDv7 so that ids sort by
// creation time. A run may carry:
//   - Verdicts: the per-column KS outcome of a passing stochastic check
//   - Timing: the reference and candidate per-run CPU times and their ratio
//
// # Ordering
//
// Listing queries order by started_at DESC, id DESC COLLATE BINARY so that
// results are stable when two runs start in the same instant.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
