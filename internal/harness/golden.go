package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the deterministic part of a Result: what ran and which
// states were passed through, without timings or measured values.
type TraceSnapshot struct {
	Test     string       `json:"test"`
	Mode     Mode         `json:"mode"`
	Seed     int64        `json:"seed"`
	State    State        `json:"state"`
	Trace    []Transition `json:"trace"`
	Commands []string     `json:"commands"`
	Failure  FailureKind  `json:"failure,omitempty"`
}

// Snapshot extracts the TraceSnapshot of r.
func Snapshot(r *Result) TraceSnapshot {
	s := TraceSnapshot{
		Test:     r.Test,
		Mode:     r.Mode,
		Seed:     r.Seed,
		State:    r.State,
		Trace:    r.Trace,
		Commands: r.Commands,
	}
	if r.Failure != nil {
		s.Failure = r.Failure.Kind
	}
	return s
}

// RunWithGolden runs tc and compares its trace snapshot against the golden
// file testdata/golden/{name}.golden. The run's own error is returned; a
// snapshot mismatch fails t.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Use a FixedSeed so that recorded command lines are reproducible.
func RunWithGolden(t *testing.T, o *Orchestrator, name string, tc TestCase) (*Result, error) {
	t.Helper()

	res, runErr := o.Run(context.Background(), tc)
	if err := AssertGolden(t, name, res); err != nil {
		return res, err
	}
	return res, runErr
}

// AssertGolden compares an existing result's trace snapshot against the
// golden file for name.
func AssertGolden(t *testing.T, name string, res *Result) error {
	t.Helper()

	data, err := json.MarshalIndent(Snapshot(res), "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
