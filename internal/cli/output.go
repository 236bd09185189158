package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/simregress/internal/harness"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Test case passed, tables equivalent, manifest intact
	ExitFailure      = 1 // Regression detected (exact mismatch, divergence, slowdown, lock timeout)
	ExitCommandError = 2 // Command error (bad configuration, missing references, unreadable tables)
)

// Error codes reported in JSON output.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeConfig        = "E002" // Configuration invalid
	ErrCodeNotFound      = "E003" // Path not found
	ErrCodeReadFailed    = "E004" // Table or file unreadable
	ErrCodeWriteFailed   = "E005" // File write error
	ErrCodeHistory       = "E006" // Run history unavailable
	ErrCodeLockTimeout   = "E101" // Update lock not acquired in time
	ErrCodeExactMismatch = "E102" // Exact output checksum differs
	ErrCodeStatistical   = "E103" // Summary distributions differ
	ErrCodeRegression    = "E104" // Candidate too slow
	ErrCodeExecution     = "E105" // Simulator or stats tool failed
	ErrCodeManifest      = "E106" // Manifest does not match directory
)

// failureCodes maps harness failure kinds to error codes and exit codes.
var failureCodes = map[harness.FailureKind]struct {
	code string
	exit int
}{
	harness.KindLockTimeout:   {ErrCodeLockTimeout, ExitFailure},
	harness.KindConfig:        {ErrCodeConfig, ExitCommandError},
	harness.KindExactMismatch: {ErrCodeExactMismatch, ExitFailure},
	harness.KindStatistical:   {ErrCodeStatistical, ExitFailure},
	harness.KindRegression:    {ErrCodeRegression, ExitFailure},
	harness.KindExecution:     {ErrCodeExecution, ExitFailure},
}

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Harness failures map by kind; anything else that is not an ExitError
// is ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var f *harness.Failure
	if errors.As(err, &f) {
		if fc, ok := failureCodes[f.Kind]; ok {
			return fc.exit
		}
	}
	return ExitFailure
}

// failureCode returns the JSON error code for a harness failure.
func failureCode(f *harness.Failure) string {
	if fc, ok := failureCodes[f.Kind]; ok {
		return fc.code
	}
	return ErrCodeGeneric
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
	RunID  string    `json:"run_id,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// reportedError marks an error whose message the formatter already wrote.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return reportedError{err}
}

// Reported reports whether err was already written to the command output.
func Reported(err error) bool {
	var r reportedError
	return errors.As(err, &r)
}
