package harness

import (
	"time"

	"github.com/roach88/simregress/internal/equiv"
	"github.com/roach88/simregress/internal/timing"
)

// State is a stage of a test-case run.
type State int

const (
	Idle State = iota
	LockAcquired
	ExactChecked
	StochasticChecked
	ChecksumFinalized
	Done
	Failed
)

var stateNames = [...]string{
	Idle:              "Idle",
	LockAcquired:      "LockAcquired",
	ExactChecked:      "ExactChecked",
	StochasticChecked: "StochasticChecked",
	ChecksumFinalized: "ChecksumFinalized",
	Done:              "Done",
	Failed:            "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// Transition is one step of the state machine.
type Transition struct {
	From State `json:"from"`
	To   State `json:"to"`

	// Note says what happened, e.g. "skipped" or "recorded".
	Note string `json:"note,omitempty"`
}

// Result is the outcome of running one test case.
type Result struct {
	Test string `json:"test"`
	Mode Mode   `json:"mode"`
	Seed int64  `json:"seed"`

	// Pass is true once the run reaches Done.
	Pass  bool  `json:"pass"`
	State State `json:"state"`

	// Trace lists every transition in order.
	Trace []Transition `json:"trace"`

	// Commands holds the command lines run, before variable expansion.
	Commands []string `json:"commands"`

	// ExactSum is the SHA-512 of the exact run's output, if it ran.
	ExactSum string `json:"exact_sum,omitempty"`

	// Report is set when a stochastic comparison passed.
	Report *equiv.Report `json:"report,omitempty"`

	// Timing is set when the timing check ran.
	Timing *timing.Comparison `json:"timing,omitempty"`

	// Failure is set when State is Failed.
	Failure *Failure `json:"failure,omitempty"`

	RunID      string    `json:"run_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewResult creates a result in the Idle state.
func NewResult(test string, mode Mode) *Result {
	return &Result{
		Test:     test,
		Mode:     mode,
		State:    Idle,
		Trace:    []Transition{},
		Commands: []string{},
	}
}

// advance moves to the next state and records the transition.
func (r *Result) advance(to State, note string) {
	r.Trace = append(r.Trace, Transition{From: r.State, To: to, Note: note})
	r.State = to
	if to == Done {
		r.Pass = true
	}
}

// fail moves to Failed, remembering the state the failure happened in.
func (r *Result) fail(f *Failure) {
	r.Failure = f
	r.Pass = false
	r.advance(Failed, string(f.Kind))
}
