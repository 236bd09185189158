// Package harness creates and checks regression test cases for a stochastic
// simulator.
//
// A test case is a directory holding reference outputs recorded from a
// known-good simulator build. Running a test case drives a state machine:
//
//	Idle -> LockAcquired -> ExactChecked -> StochasticChecked
//	     -> ChecksumFinalized -> Done
//
// with Failed reachable from every state. Each stage either records new
// references (update mode) or checks a fresh run against the recorded ones
// (check mode):
//
//   - Exact: a short run at a fixed seed is hashed with SHA-512 and compared
//     bit for bit.
//   - Stochastic: many seeded runs are summarized into a table and compared
//     column by column with a two-sample KS test; CPU time per run is
//     compared against the recorded baseline.
//   - Checksums: after an update, every file in the test directory is listed
//     in a sha512sum-compatible manifest.
//
// # Locking
//
// Update runs hold an exclusive advisory lock on <testDir>/updating.lck for
// the whole sequence, so two builds never rewrite the same references at
// once. Check runs never lock. The lock is released before a failure is
// returned to the caller.
//
// # Command files
//
// Recorded command lines refer to the simulator, the stats tool and the
// parameter files through $simBinary, $statsBinary, $paramFN, $genMapFN and
// $nsimsStoch, which are expanded at run time so a check exercises the build
// under test rather than the archived one.
package harness
