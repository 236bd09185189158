package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DefaultListLimit bounds ListRuns when the filter sets no limit.
const DefaultListLimit = 20

// ListFilter selects runs for ListRuns.
type ListFilter struct {
	// TestName restricts results to one test when non-empty.
	TestName string
	// FailedOnly restricts results to failed runs.
	FailedOnly bool
	// Limit caps the number of runs; zero means DefaultListLimit.
	Limit int
}

const runColumns = `id, test_name, test_dir, mode, exact_variant, stoch_variant, seed,
	final_state, outcome, failure_kind, message, params, started_at, finished_at`

// ReadRun retrieves a run with its verdicts and timing.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, err
	}

	if run.Verdicts, err = s.readVerdicts(ctx, id); err != nil {
		return Run{}, err
	}
	if run.Timing, err = s.readTiming(ctx, id); err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns runs newest first, without verdicts or timing.
// Ordering: started_at DESC, id DESC COLLATE BINARY.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListRuns(ctx context.Context, f ListFilter) ([]Run, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any
	if f.TestName != "" {
		query += ` AND test_name = ?`
		args = append(args, f.TestName)
	}
	if f.FailedOnly {
		query += ` AND outcome = ?`
		args = append(args, OutcomeFail)
	}
	query += ` ORDER BY started_at DESC, id COLLATE BINARY DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LastPassing returns the most recent passing run of a test.
// Returns sql.ErrNoRows if the test never passed.
func (s *Store) LastPassing(ctx context.Context, testName string) (Run, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM runs
		WHERE test_name = ? AND outcome = ?
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`, testName, OutcomePass).Scan(&id)
	if err != nil {
		return Run{}, err
	}
	return s.ReadRun(ctx, id)
}

func (s *Store) readVerdicts(ctx context.Context, runID string) ([]Verdict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT column_name, p, d, n_reference, n_candidate
		FROM verdicts
		WHERE run_id = ?
		ORDER BY p ASC, column_name COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer rows.Close()

	verdicts := []Verdict{}
	for rows.Next() {
		var v Verdict
		if err := rows.Scan(&v.Column, &v.P, &v.D, &v.NReference, &v.NCandidate); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		verdicts = append(verdicts, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verdicts: %w", err)
	}
	return verdicts, nil
}

func (s *Store) readTiming(ctx context.Context, runID string) (*Timing, error) {
	var t Timing
	err := s.db.QueryRowContext(ctx, `
		SELECT reference_per_run, candidate_per_run, ratio, max_slowdown
		FROM timings
		WHERE run_id = ?
	`, runID).Scan(&t.ReferencePerRun, &t.CandidatePerRun, &t.Ratio, &t.MaxSlowdown)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query timing: %w", err)
	}
	return &t, nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run               Run
		params            string
		started, finished string
	)
	err := sc.Scan(
		&run.ID,
		&run.TestName,
		&run.TestDir,
		&run.Mode,
		&run.ExactVariant,
		&run.StochVariant,
		&run.Seed,
		&run.FinalState,
		&run.Outcome,
		&run.FailureKind,
		&run.Message,
		&params,
		&started,
		&finished,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	if run.Params, err = unmarshalParams(params); err != nil {
		return Run{}, err
	}
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, err
	}
	if run.FinishedAt, err = parseTime(finished); err != nil {
		return Run{}, err
	}
	return run, nil
}
