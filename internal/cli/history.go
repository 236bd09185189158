package cli

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/simregress/internal/store"
)

// HistoryOptions holds flags for the history commands.
type HistoryOptions struct {
	*RootOptions
	Database   string
	TestName   string
	FailedOnly bool
	Limit      int
	Keep       int
}

// HistoryRun is one run in history output.
type HistoryRun struct {
	ID          string            `json:"id"`
	Test        string            `json:"test"`
	Mode        string            `json:"mode"`
	Seed        int64             `json:"seed"`
	Outcome     string            `json:"outcome"`
	State       string            `json:"state"`
	FailureKind string            `json:"failure_kind,omitempty"`
	Message     string            `json:"message,omitempty"`
	Params      map[string]string `json:"params,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	Duration    string            `json:"duration"`
	Verdicts    []HistoryVerdict  `json:"verdicts,omitempty"`
	Timing      *HistoryTiming    `json:"timing,omitempty"`
}

// HistoryVerdict is one column's KS outcome.
type HistoryVerdict struct {
	Column string  `json:"column"`
	P      float64 `json:"p"`
	D      float64 `json:"d"`
}

// HistoryTiming is a run's timing check. Ratio is nil when infinite.
type HistoryTiming struct {
	ReferencePerRun float64  `json:"reference_per_run"`
	CandidatePerRun float64  `json:"candidate_per_run"`
	Ratio           *float64 `json:"ratio"`
	MaxSlowdown     float64  `json:"max_slowdown"`
}

// NewHistoryCommand creates the history command and its subcommands.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List runs recorded in the run history, newest first.

The database is --db, or history.path from the configuration.

Examples:
  simregress history --db ./runs.db
  simregress history --db ./runs.db --test t001 --failed
  simregress history show 01926f3e-7b7c-7c1e-8f00-3a9b2c4d5e6f
  simregress history prune --test t001 --keep 50`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(opts, cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite run history")
	cmd.Flags().StringVar(&opts.TestName, "test", "", "only runs of this test")
	cmd.Flags().BoolVar(&opts.FailedOnly, "failed", false, "only failed runs")
	cmd.Flags().IntVar(&opts.Limit, "limit", store.DefaultListLimit, "maximum number of runs")

	show := &cobra.Command{
		Use:           "show <run-id>",
		Short:         "Show one run with its verdicts and timing",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryShow(opts, args[0], cmd)
		},
	}

	prune := &cobra.Command{
		Use:           "prune",
		Short:         "Delete all but the newest runs of a test",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryPrune(opts, cmd)
		},
	}
	prune.Flags().StringVar(&opts.TestName, "test", "", "test to prune (required)")
	_ = prune.MarkFlagRequired("test")
	prune.Flags().IntVar(&opts.Keep, "keep", 100, "number of runs to keep")

	cmd.AddCommand(show, prune)
	return cmd
}

// openHistory opens --db, falling back to the configured history path.
func (o *HistoryOptions) openHistory() (*store.Store, error) {
	path := o.Database
	if path == "" {
		cfg, err := o.loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.History.Path
	}
	if path == "" {
		return nil, NewExitError(ExitCommandError, "no run history: set --db or history.path")
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open run history", err)
	}
	return st, nil
}

func runHistoryList(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := opts.openHistory()
	if err != nil {
		return reportError(formatter, ErrCodeHistory, err)
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), store.ListFilter{
		TestName:   opts.TestName,
		FailedOnly: opts.FailedOnly,
		Limit:      opts.Limit,
	})
	if err != nil {
		return reportError(formatter, ErrCodeHistory, WrapExitError(ExitCommandError, "failed to list runs", err))
	}

	out := make([]HistoryRun, len(runs))
	for i, r := range runs {
		out[i] = historyRun(r)
	}
	if opts.Format == "json" {
		return outputHistoryJSON(cmd, out)
	}
	if len(out) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}
	return writeHistoryTable(cmd.OutOrStdout(), out)
}

func runHistoryShow(opts *HistoryOptions, id string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := opts.openHistory()
	if err != nil {
		return reportError(formatter, ErrCodeHistory, err)
	}
	defer st.Close()

	run, err := st.ReadRun(cmd.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return reportError(formatter, ErrCodeNotFound, NewExitError(ExitCommandError, "no run "+id))
	}
	if err != nil {
		return reportError(formatter, ErrCodeHistory, WrapExitError(ExitCommandError, "failed to read run", err))
	}

	hr := historyRun(run)
	if opts.Format == "json" {
		return outputHistoryJSON(cmd, hr)
	}
	return writeHistoryRun(cmd.OutOrStdout(), hr)
}

func runHistoryPrune(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := opts.openHistory()
	if err != nil {
		return reportError(formatter, ErrCodeHistory, err)
	}
	defer st.Close()

	n, err := st.DeleteRuns(cmd.Context(), opts.TestName, opts.Keep)
	if err != nil {
		return reportError(formatter, ErrCodeHistory, WrapExitError(ExitCommandError, "failed to prune runs", err))
	}
	if opts.Format == "json" {
		return formatter.Success(map[string]any{"test": opts.TestName, "deleted": n})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d runs of %s\n", n, opts.TestName)
	return nil
}

// historyRun converts a stored run for output.
func historyRun(r store.Run) HistoryRun {
	hr := HistoryRun{
		ID:          r.ID,
		Test:        r.TestName,
		Mode:        r.Mode,
		Seed:        r.Seed,
		Outcome:     r.Outcome,
		State:       r.FinalState,
		FailureKind: r.FailureKind,
		Message:     r.Message,
		Params:      r.Params,
		StartedAt:   r.StartedAt,
		Duration:    r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
	}
	for _, v := range r.Verdicts {
		hr.Verdicts = append(hr.Verdicts, HistoryVerdict{Column: v.Column, P: v.P, D: v.D})
	}
	if t := r.Timing; t != nil {
		hr.Timing = &HistoryTiming{
			ReferencePerRun: t.ReferencePerRun,
			CandidatePerRun: t.CandidatePerRun,
			MaxSlowdown:     t.MaxSlowdown,
		}
		if !math.IsInf(t.Ratio, 0) && !math.IsNaN(t.Ratio) {
			ratio := t.Ratio
			hr.Timing.Ratio = &ratio
		}
	}
	return hr
}

func writeHistoryTable(w io.Writer, runs []HistoryRun) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTEST\tMODE\tOUTCOME\tSTATE\tSTARTED\tDURATION")
	for _, r := range runs {
		outcome := r.Outcome
		if r.FailureKind != "" {
			outcome += " (" + r.FailureKind + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Test, r.Mode, outcome, r.State,
			r.StartedAt.Local().Format(time.DateTime), r.Duration)
	}
	return tw.Flush()
}

func writeHistoryRun(w io.Writer, r HistoryRun) error {
	fmt.Fprintf(w, "Run: %s\n", r.ID)
	fmt.Fprintf(w, "Test: %s (%s, seed %d)\n", r.Test, r.Mode, r.Seed)
	fmt.Fprintf(w, "Outcome: %s in state %s after %s\n", r.Outcome, r.State, r.Duration)
	if r.Message != "" {
		fmt.Fprintf(w, "Message: %s\n", r.Message)
	}
	if t := r.Timing; t != nil {
		ratio := "inf"
		if t.Ratio != nil {
			ratio = fmt.Sprintf("%.3f", *t.Ratio)
		}
		fmt.Fprintf(w, "Timing: %.6gs per run vs reference %.6gs per run (ratio %s, max %g)\n",
			t.CandidatePerRun, t.ReferencePerRun, ratio, t.MaxSlowdown)
	}
	if len(r.Verdicts) == 0 {
		return nil
	}
	fmt.Fprintln(w, "Verdicts:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  P\tD\tCOLUMN")
	for _, v := range r.Verdicts {
		fmt.Fprintf(tw, "  %.6g\t%.6g\t%s\n", v.P, v.D, v.Column)
	}
	return tw.Flush()
}

func outputHistoryJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
