package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/simregress/internal/config"
	"github.com/roach88/simregress/internal/harness"
)

// SuiteOptions holds flags for the suite command.
type SuiteOptions struct {
	*RootOptions
	Filter string // test name filter (glob pattern)

	flagged config.Config
}

// CaseResult holds the result of a single test case.
type CaseResult struct {
	Name    string              `json:"name"`
	Pass    bool                `json:"pass"`
	State   harness.State       `json:"state"`
	Failure harness.FailureKind `json:"failure,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// SuiteResult holds the overall suite result.
type SuiteResult struct {
	Cases  []CaseResult `json:"cases"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Total  int          `json:"total"`
}

// NewSuiteCommand creates the suite command.
func NewSuiteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SuiteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "suite",
		Short: "Record or check every test case",
		Long: `Run every test case under <srcdir>/tests/dist in turn, with the same
flags as run. Each case gets a fresh seed.

Exit codes:
  0 - All test cases passed
  1 - One or more test cases failed
  2 - Command error (invalid paths, bad configuration)

Examples:
  simregress suite --srcdir ../cosi
  simregress suite --filter "t00*" --force-stoch
  simregress suite --update-exact --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuite(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter test cases by glob pattern")
	addConfigFlags(cmd, &opts.flagged)

	return cmd
}

func runSuite(opts *SuiteOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return reportError(formatter, ErrCodeConfig, err)
	}
	if err := applyConfigFlags(cmd, cfg, &opts.flagged); err != nil {
		return reportError(formatter, ErrCodeConfig, err)
	}

	distDir := filepath.Join(cfg.SrcDir, "tests", "dist")
	names, err := findTestCases(distDir, opts.Filter)
	if err != nil {
		return reportError(formatter, ErrCodeNotFound, WrapExitError(ExitCommandError, "failed to find test cases", err))
	}

	if len(names) == 0 {
		if opts.Format == "json" {
			return outputSuiteJSON(cmd, SuiteResult{Cases: []CaseResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No test cases found.")
		return nil
	}

	orch, cleanup, err := opts.orchestrator(cfg, logger)
	if err != nil {
		return reportError(formatter, ErrCodeConfig, err)
	}
	defer cleanup()

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	result := SuiteResult{
		Cases: make([]CaseResult, 0, len(names)),
		Total: len(names),
	}
	mode := harness.ModeFor(cfg.UpdateExact, cfg.UpdateStoch)
	w := cmd.OutOrStdout()

	for _, name := range names {
		tc, err := harness.ResolveTestCase(cfg.SrcDir, name, 0, "")
		if err != nil {
			return reportError(formatter, ErrCodeConfig, WrapExitError(ExitCommandError, "no test case", err))
		}
		tc.Mode = mode

		res, runErr := orch.Run(ctx, tc)
		cr := CaseResult{Name: name, Pass: res.Pass, State: res.State}
		var f *harness.Failure
		if errors.As(runErr, &f) {
			cr.Failure = f.Kind
			cr.Error = f.Err.Error()
		} else if runErr != nil {
			cr.Error = runErr.Error()
		}
		result.Cases = append(result.Cases, cr)

		if cr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}

		if opts.Format != "json" {
			if err := writeResultText(w, res, opts.Verbose); err != nil {
				return err
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	if opts.Format == "json" {
		if err := outputSuiteJSON(cmd, result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	}

	if result.Failed > 0 {
		return reported(NewExitError(ExitFailure, fmt.Sprintf("%d of %d test cases failed", result.Failed, result.Total)))
	}
	return nil
}

// findTestCases returns the names of the test directories in dir that
// match filter, sorted.
func findTestCases(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, e.Name()); !ok {
				continue
			}
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func outputSuiteJSON(cmd *cobra.Command, result SuiteResult) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
