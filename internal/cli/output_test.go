package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simregress/internal/harness"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"test": "t001"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"column": "pi", "p": "1e-9"}
	err := formatter.Error(ErrCodeStatistical, "distribution of column pi does not match", details)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E103", resp.Error.Code)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	require.NoError(t, formatter.Error(ErrCodeConfig, "invalid configuration", "threshold: out of range"))
	assert.Contains(t, buf.String(), "Error [E002]: invalid configuration")
	assert.NotContains(t, buf.String(), "Details:")

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error(ErrCodeConfig, "invalid configuration", "threshold: out of range"))
	assert.Contains(t, buf.String(), "Details: threshold: out of range")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Running %s", "t001")

			assert.Empty(t, out.String())
			if tt.wantLog {
				assert.Contains(t, errOut.String(), "Running t001")
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain", errors.New("boom"), ExitFailure},
		{"exit error", NewExitError(ExitCommandError, "bad flags"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "x", errors.New("y"))), ExitCommandError},
		{"config failure", &harness.Failure{Kind: harness.KindConfig, Err: errors.New("missing exactcmd.txt")}, ExitCommandError},
		{"statistical failure", &harness.Failure{Kind: harness.KindStatistical, Err: errors.New("pi differs")}, ExitFailure},
		{"lock timeout", &harness.Failure{Kind: harness.KindLockTimeout, Err: errors.New("timed out")}, ExitFailure},
		{"reported", reported(NewExitError(ExitCommandError, "x")), ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestFailureCode(t *testing.T) {
	assert.Equal(t, ErrCodeExactMismatch, failureCode(&harness.Failure{Kind: harness.KindExactMismatch}))
	assert.Equal(t, ErrCodeRegression, failureCode(&harness.Failure{Kind: harness.KindRegression}))
	assert.Equal(t, ErrCodeGeneric, failureCode(&harness.Failure{Kind: "other"}))
}

func TestReported(t *testing.T) {
	base := NewExitError(ExitFailure, "x")
	assert.False(t, Reported(base))
	assert.True(t, Reported(reported(base)))
	assert.True(t, Reported(fmt.Errorf("wrap: %w", reported(base))))
	assert.Nil(t, reported(nil))

	var exitErr *ExitError
	require.ErrorAs(t, reported(base), &exitErr)
	assert.Same(t, base, exitErr)
}

func TestExitError_Message(t *testing.T) {
	assert.Equal(t, "bad", NewExitError(ExitFailure, "bad").Error())
	err := WrapExitError(ExitFailure, "failed to load", errors.New("no such file"))
	assert.Equal(t, "failed to load: no such file", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "no such file")
}
