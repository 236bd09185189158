// Package runner executes simulator command lines through the shell and
// reports their exit status, output, and CPU usage.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// Command is one shell command line to execute.
type Command struct {
	// Line is passed to "sh -c".
	Line string

	// Dir is the working directory; empty means the current one.
	Dir string

	// Env adds KEY=VALUE entries to the inherited environment.
	Env []string

	// Stdout receives standard output. When nil, output is captured in
	// Result.Stdout.
	Stdout io.Writer
}

// Result describes a finished command.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte

	// User and Sys include CPU time of every descendant the shell waited
	// for, so a pipeline is measured as a whole.
	User time.Duration
	Sys  time.Duration
	Wall time.Duration
}

// ExitError is returned for a command that ran and exited non-zero.
type ExitError struct {
	Line   string
	Code   int
	Stderr []byte
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command exited with status %d: %s", e.Code, e.Line)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func lastLine(b []byte) string {
	b = bytes.TrimRight(b, "\n")
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	return string(b)
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// Shell runs commands with "sh -c".
type Shell struct {
	// Path of the shell; empty means "sh".
	Path   string
	Logger *slog.Logger
}

// NewShell returns a Shell that logs to logger.
func NewShell(logger *slog.Logger) *Shell {
	return &Shell{Logger: logger}
}

// Run executes cmd and waits for it. A non-zero exit yields both the result
// and an *ExitError. Cancelling ctx kills the command's process group.
func (s *Shell) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Line == "" {
		return nil, errors.New("empty command line")
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	shell := s.Path
	if shell == "" {
		shell = "sh"
	}

	c := exec.CommandContext(ctx, shell, "-c", cmd.Line)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	setProcessGroup(c)

	var stdout, stderr bytes.Buffer
	if cmd.Stdout != nil {
		c.Stdout = cmd.Stdout
	} else {
		c.Stdout = &stdout
	}
	c.Stderr = io.MultiWriter(&stderr, &tailWriter{logger: logger})

	logger.Info("running command", "cmd", cmd.Line, "dir", cmd.Dir)
	start := time.Now()
	err := c.Run()
	wall := time.Since(start)

	res := &Result{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
		Wall:   wall,
	}
	if c.ProcessState != nil {
		res.User = c.ProcessState.UserTime()
		res.Sys = c.ProcessState.SystemTime()
		res.ExitCode = c.ProcessState.ExitCode()
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("command cancelled: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.Error("command failed", "cmd", cmd.Line, "exit_code", res.ExitCode)
			return res, &ExitError{Line: cmd.Line, Code: res.ExitCode, Stderr: res.Stderr}
		}
		return nil, fmt.Errorf("run command: %w", err)
	}
	logger.Info("finished command",
		"cmd", cmd.Line,
		"wall", wall,
		"user", res.User,
		"sys", res.Sys)
	return res, nil
}

// tailWriter forwards the command's stderr to the debug log line by line.
type tailWriter struct {
	logger *slog.Logger
	buf    []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.logger.Debug("stderr", "line", string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}
