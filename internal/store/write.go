package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidRun is returned when a run lacks required fields.
var ErrInvalidRun = errors.New("invalid run")

// WriteRun inserts a run with its verdicts and timing in one transaction.
// A run without an ID is assigned one; the ID used is returned.
//
// Writing the same ID twice is an error: runs are immutable history.
func (s *Store) WriteRun(ctx context.Context, run Run) (string, error) {
	if run.TestName == "" {
		return "", fmt.Errorf("write run: %w: empty test name", ErrInvalidRun)
	}
	if run.Outcome != OutcomePass && run.Outcome != OutcomeFail {
		return "", fmt.Errorf("write run: %w: outcome %q", ErrInvalidRun, run.Outcome)
	}
	if run.ID == "" {
		id, err := NewRunID()
		if err != nil {
			return "", fmt.Errorf("write run: %w", err)
		}
		run.ID = id
	}

	paramsJSON, err := marshalParams(run.Params)
	if err != nil {
		return "", fmt.Errorf("write run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, test_name, test_dir, mode, exact_variant, stoch_variant, seed,
		 final_state, outcome, failure_kind, message, params, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.TestName,
		run.TestDir,
		run.Mode,
		run.ExactVariant,
		run.StochVariant,
		run.Seed,
		run.FinalState,
		run.Outcome,
		run.FailureKind,
		run.Message,
		paramsJSON,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
	)
	if err != nil {
		return "", fmt.Errorf("write run: %w", err)
	}

	for _, v := range run.Verdicts {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO verdicts
			(run_id, column_name, p, d, n_reference, n_candidate)
			VALUES (?, ?, ?, ?, ?, ?)
		`, run.ID, v.Column, v.P, v.D, v.NReference, v.NCandidate)
		if err != nil {
			return "", fmt.Errorf("write verdict %s: %w", v.Column, err)
		}
	}

	if t := run.Timing; t != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO timings
			(run_id, reference_per_run, candidate_per_run, ratio, max_slowdown)
			VALUES (?, ?, ?, ?, ?)
		`, run.ID, t.ReferencePerRun, t.CandidatePerRun, t.Ratio, t.MaxSlowdown)
		if err != nil {
			return "", fmt.Errorf("write timing: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("write run: commit: %w", err)
	}
	return run.ID, nil
}

// DeleteRuns prunes the history of a test down to its newest keep runs.
// Verdicts and timings go with their runs. Returns the number deleted.
func (s *Store) DeleteRuns(ctx context.Context, testName string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs
		WHERE test_name = ?
		  AND id NOT IN (
			SELECT id FROM runs
			WHERE test_name = ?
			ORDER BY started_at DESC, id COLLATE BINARY DESC
			LIMIT ?
		  )
	`, testName, testName, keep)
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}
	return n, nil
}
