package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/roach88/simregress/internal/runner"
)

// Response is what FakeRunner returns for a matching command.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	User     time.Duration
	Sys      time.Duration

	// Err is returned instead of running anything.
	Err error
}

type rule struct {
	substr string
	resp   func(cmd runner.Command) Response
}

// FakeRunner is a runner.Runner that answers from canned responses keyed by
// a substring of the command line, and records every command it receives.
type FakeRunner struct {
	mu    sync.Mutex
	rules []rule
	calls []runner.Command
}

// NewFakeRunner returns a FakeRunner with no rules.
func NewFakeRunner() *FakeRunner { return &FakeRunner{} }

// On registers resp for command lines containing substr. Later rules take
// precedence over earlier ones.
func (f *FakeRunner) On(substr string, resp Response) *FakeRunner {
	return f.OnFunc(substr, func(runner.Command) Response { return resp })
}

// OnFunc registers a response computed from the command.
func (f *FakeRunner) OnFunc(substr string, fn func(cmd runner.Command) Response) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{substr: substr, resp: fn})
	return f
}

// Calls returns the commands received so far.
func (f *FakeRunner) Calls() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.Command(nil), f.calls...)
}

// Lines returns the command lines received so far.
func (f *FakeRunner) Lines() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Line
	}
	return out
}

// Run implements runner.Runner.
func (f *FakeRunner) Run(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	var match *rule
	for i := len(f.rules) - 1; i >= 0; i-- {
		if strings.Contains(cmd.Line, f.rules[i].substr) {
			match = &f.rules[i]
			break
		}
	}
	f.mu.Unlock()

	if match == nil {
		return nil, fmt.Errorf("fake runner: no response for %q", cmd.Line)
	}
	resp := match.resp(cmd)
	if resp.Err != nil {
		return nil, resp.Err
	}

	res := &runner.Result{
		ExitCode: resp.ExitCode,
		Stderr:   []byte(resp.Stderr),
		User:     resp.User,
		Sys:      resp.Sys,
		Wall:     resp.User + resp.Sys,
	}
	if cmd.Stdout != nil {
		if _, err := cmd.Stdout.Write([]byte(resp.Stdout)); err != nil {
			return nil, err
		}
	} else {
		res.Stdout = []byte(resp.Stdout)
	}
	if resp.ExitCode != 0 {
		return res, &runner.ExitError{Line: cmd.Line, Code: resp.ExitCode, Stderr: res.Stderr}
	}
	return res, nil
}
