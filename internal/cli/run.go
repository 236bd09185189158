package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/simregress/internal/config"
	"github.com/roach88/simregress/internal/harness"
	"github.com/roach88/simregress/internal/metrics"
	"github.com/roach88/simregress/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	TestNum      int
	TestName     string
	TestDir      string
	ExactVariant string
	StochVariant string
	Seed         int64

	flagged config.Config
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Record or check one test case",
		Long: `Record new references for a test case or check the current build
against them.

Without --update-exact or --update-stoch the test is checked: the exact
command is rerun and its output checksum compared, and with --force-stoch
the stochastic command is rerun and its summary statistics compared with
two-sample KS tests and its CPU time with the recorded baseline. Updating
takes the test directory's lock for the whole run and finishes by
rewriting the directory's checksum manifest.

Exit codes:
  0 - Test case passed
  1 - Regression detected or lock not acquired
  2 - Command error (bad configuration, missing references)

Examples:
  simregress run --test-num 1
  simregress run --test-dir ./tests/dist/t001 --update-exact --update-stoch
  simregress run --test-num 4 --force-stoch --nsims-stoch 10000 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTestCase(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.TestNum, "test-num", 0, "test number, named t%03d")
	cmd.Flags().StringVar(&opts.TestName, "test-name", "", "test name")
	cmd.Flags().StringVar(&opts.TestDir, "test-dir", "", "test directory (default <srcdir>/tests/dist/<name>)")
	cmd.Flags().StringVar(&opts.ExactVariant, "variant-exact", "", "exact reference variant (default <arch>-<os>_$CXX)")
	cmd.Flags().StringVar(&opts.StochVariant, "variant-stoch", harness.DefaultStochVariant, "stochastic reference variant")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "simulator seed for new references (0 draws one)")
	addConfigFlags(cmd, &opts.flagged)

	return cmd
}

func runTestCase(opts *RunOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return reportError(formatter, ErrCodeConfig, err)
	}
	if err := applyConfigFlags(cmd, cfg, &opts.flagged); err != nil {
		return reportError(formatter, ErrCodeConfig, err)
	}

	tc, err := harness.ResolveTestCase(cfg.SrcDir, opts.TestName, opts.TestNum, opts.TestDir)
	if err != nil {
		return reportError(formatter, ErrCodeConfig, WrapExitError(ExitCommandError, "no test case", err))
	}
	if opts.ExactVariant != "" {
		tc.ExactVariant = opts.ExactVariant
	}
	if opts.StochVariant != "" {
		tc.StochVariant = opts.StochVariant
	}
	tc.Seed = harness.SeedFromFlag(opts.Seed)
	tc.Mode = harness.ModeFor(cfg.UpdateExact, cfg.UpdateStoch)

	orch, cleanup, err := opts.orchestrator(cfg, logger)
	if err != nil {
		return reportError(formatter, ErrCodeConfig, err)
	}
	defer cleanup()

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	formatter.VerboseLog("Running %s (%s) in %s", tc.Name, tc.Mode, tc.Dir)
	res, runErr := orch.Run(ctx, tc)
	return reportResult(formatter, res, runErr)
}

// orchestrator builds a harness for cfg, opening the run history and the
// metrics collector when they are configured. The returned cleanup closes
// the history.
func (o *RootOptions) orchestrator(cfg *config.Config, logger *slog.Logger) (*harness.Orchestrator, func(), error) {
	deps := harness.Deps{
		Runner: o.Runner,
		Locker: o.Locker,
		Logger: logger,
	}
	cleanup := func() {}

	if cfg.History.Path != "" {
		st, err := store.Open(cfg.History.Path)
		if err != nil {
			return nil, cleanup, WrapExitError(ExitCommandError, "failed to open run history", err)
		}
		deps.Store = st
		cleanup = func() {
			if err := st.Close(); err != nil {
				logger.Error("error closing run history", "error", err)
			}
		}
	}
	if cfg.Metrics.Textfile != "" {
		deps.Metrics = metrics.NewCollector()
	}

	orch, err := harness.New(cfg, deps)
	if err != nil {
		cleanup()
		return nil, func() {}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return orch, cleanup, nil
}

// signalContext derives a context from the command's that is cancelled on
// SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// reportResult writes a harness result and maps its failure to an exit
// code.
func reportResult(formatter *OutputFormatter, res *harness.Result, runErr error) error {
	var f *harness.Failure
	if runErr != nil && !errors.As(runErr, &f) {
		return reportError(formatter, ErrCodeGeneric, WrapExitError(ExitFailure, "run failed", runErr))
	}

	if formatter.Format == "json" {
		if f == nil {
			return formatter.Success(res)
		}
		if err := formatter.Error(failureCode(f), f.Error(), res); err != nil {
			return err
		}
		return reported(WrapExitError(GetExitCode(f), "test case failed", f))
	}

	if err := writeResultText(formatter.Writer, res, formatter.Verbose); err != nil {
		return err
	}
	if f != nil {
		return reported(WrapExitError(GetExitCode(f), "test case failed", f))
	}
	return nil
}

func writeResultText(w io.Writer, res *harness.Result, verbose bool) error {
	mark := "✓"
	if !res.Pass {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s (%s, seed %d)\n", mark, res.Test, res.Mode, res.Seed)

	states := make([]string, 0, len(res.Trace)+1)
	states = append(states, harness.Idle.String())
	for _, tr := range res.Trace {
		s := tr.To.String()
		if tr.Note != "" {
			s += " [" + tr.Note + "]"
		}
		states = append(states, s)
	}
	fmt.Fprintf(w, "  trace: %s\n", strings.Join(states, " -> "))

	if res.Timing != nil {
		fmt.Fprintf(w, "  timing: %.6gs per run vs reference %.6gs per run (ratio %.3f, max %g)\n",
			res.Timing.CandidatePerRun, res.Timing.ReferencePerRun, res.Timing.Ratio, res.Timing.MaxSlowdown)
	}
	if res.Failure != nil {
		fmt.Fprintf(w, "  %v\n", res.Failure)
	}
	if res.Report != nil {
		if err := res.Report.Render(indent{w}, verbose); err != nil {
			return fmt.Errorf("render report: %w", err)
		}
	}
	if res.RunID != "" {
		fmt.Fprintf(w, "  run: %s\n", res.RunID)
	}
	return nil
}

// indent prefixes every line written through it with two spaces.
type indent struct{ w io.Writer }

func (in indent) Write(p []byte) (int, error) {
	lines := strings.SplitAfter(string(p), "\n")
	var b strings.Builder
	for _, l := range lines {
		if l == "" {
			continue
		}
		b.WriteString("  ")
		b.WriteString(l)
	}
	if _, err := io.WriteString(in.w, b.String()); err != nil {
		return 0, err
	}
	return len(p), nil
}

// reportError writes err through the formatter and returns it marked as
// reported.
func reportError(formatter *OutputFormatter, code string, err error) error {
	if outErr := formatter.Error(code, err.Error(), nil); outErr != nil {
		return outErr
	}
	return reported(err)
}
