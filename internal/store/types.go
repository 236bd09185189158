package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcomes stored in runs.outcome.
const (
	OutcomePass = "pass"
	OutcomeFail = "fail"
)

// Run is one recorded harness run.
type Run struct {
	ID           string
	TestName     string
	TestDir      string
	Mode         string
	ExactVariant string
	StochVariant string
	Seed         int64
	FinalState   string
	Outcome      string
	FailureKind  string
	Message      string
	Params       map[string]string
	StartedAt    time.Time
	FinishedAt   time.Time

	// Verdicts is empty unless a stochastic comparison passed.
	Verdicts []Verdict
	// Timing is nil unless the timing check ran.
	Timing *Timing
}

// Passed reports whether the run succeeded.
func (r Run) Passed() bool { return r.Outcome == OutcomePass }

// Verdict is the KS outcome for one summary column.
type Verdict struct {
	Column     string
	P          float64
	D          float64
	NReference int
	NCandidate int
}

// Timing is the outcome of a timing-regression check.
type Timing struct {
	ReferencePerRun float64
	CandidatePerRun float64
	Ratio           float64
	MaxSlowdown     float64
}

// NewRunID returns a time-ordered run id.
func NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}
