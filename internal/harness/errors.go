package harness

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/simregress/internal/equiv"
	"github.com/roach88/simregress/internal/flock"
	"github.com/roach88/simregress/internal/timing"
)

// FailureKind classifies why a run failed.
type FailureKind string

const (
	KindLockTimeout   FailureKind = "lock_timeout"
	KindConfig        FailureKind = "config"
	KindExactMismatch FailureKind = "exact_mismatch"
	KindStatistical   FailureKind = "statistical"
	KindRegression    FailureKind = "regression"
	KindExecution     FailureKind = "execution"
)

// ErrExactMismatch is wrapped by failures of the exact check.
var ErrExactMismatch = errors.New("exact output checksum differs from reference")

// Failure is the error returned by a failed run.
type Failure struct {
	Kind FailureKind
	// State is the state the run was in when it failed.
	State State
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failure after %s: %v", f.Kind, f.State, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// MarshalJSON renders the failure with its message.
func (f *Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind    FailureKind `json:"kind"`
		State   State       `json:"state"`
		Message string      `json:"message"`
	}{f.Kind, f.State, f.Err.Error()})
}

// IsKind reports whether err is a *Failure of the given kind.
func IsKind(err error, kind FailureKind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}

// classify picks a kind for err from the error types of the stages.
// fallback is used for errors no stage claims.
func classify(err error, fallback FailureKind) FailureKind {
	var div *equiv.DivergenceError
	var reg *timing.RegressionError
	switch {
	case errors.Is(err, flock.ErrTimeout):
		return KindLockTimeout
	case errors.Is(err, flock.ErrNoTarget):
		return KindConfig
	case errors.Is(err, ErrExactMismatch):
		return KindExactMismatch
	case errors.As(err, &div):
		return KindStatistical
	case errors.As(err, &reg):
		return KindRegression
	}
	return fallback
}
