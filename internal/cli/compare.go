package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/simregress/internal/equiv"
	"github.com/roach88/simregress/internal/table"
)

// CompareOptions holds flags for the compare command.
type CompareOptions struct {
	*RootOptions
	File1      string
	File2      string
	Threshold  float64
	Exclude    []string
	CollectAll bool
	Record     bool
}

// CompareResult is the JSON payload of a record.
type CompareResult struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Rows        int    `json:"rows"`
	Columns     int    `json:"columns"`
}

// NewCompareCommand creates the compare command.
func NewCompareCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompareOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare the distributions of two summary tables",
		Long: `Test whether the distribution of any summary statistic differs between
two tables of simulation results, one two-sample Kolmogorov-Smirnov test
per shared column.

Tables are read by extension: .tsv, .tsv.gz, .tsv.bz2 or .colz. A path
of the form stdin.<ext> reads standard input. With --record, --file1 is
saved to --file2 (which may be stdout.<ext>) instead of compared.

Examples:
  simregress compare --file1 stochsumm.tsv.gz --file2 new.tsv
  coalescent ... | sample_stats_extra ... | simregress compare --file1 ref.colz --file2 stdin.tsv
  simregress compare --file1 old.tsv.bz2 --file2 new.colz --record`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.File1, "file1", "", "first (reference) table (required)")
	_ = cmd.MarkFlagRequired("file1")
	cmd.Flags().StringVar(&opts.File2, "file2", "", "second (candidate) table (required)")
	_ = cmd.MarkFlagRequired("file2")
	cmd.Flags().Float64VarP(&opts.Threshold, "threshold", "p", 0, "p-value below which distributions differ (default from configuration)")
	cmd.Flags().StringArrayVar(&opts.Exclude, "exclude-cols", nil, "exclude columns whose names match this regexp (repeatable)")
	cmd.Flags().BoolVar(&opts.CollectAll, "collect-all", false, "report every diverging column instead of stopping at the first")
	cmd.Flags().BoolVar(&opts.Record, "record", false, "save --file1 to --file2 and exit")

	return cmd
}

func runCompare(opts *CompareOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd)

	if opts.Record {
		return runRecord(opts, cmd, formatter)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return reportError(formatter, ErrCodeConfig, err)
	}
	eo := equiv.Options{
		Threshold:  cfg.Equivalence.Threshold,
		Exclude:    cfg.Equivalence.Exclude,
		CollectAll: cfg.Equivalence.CollectAll,
		Logger:     logger,
	}
	if cmd.Flags().Changed("threshold") {
		eo.Threshold = opts.Threshold
	}
	if cmd.Flags().Changed("exclude-cols") {
		eo.Exclude = opts.Exclude
	}
	if cmd.Flags().Changed("collect-all") {
		eo.CollectAll = opts.CollectAll
	}
	tester, err := equiv.New(eo)
	if err != nil {
		return reportError(formatter, ErrCodeConfig, WrapExitError(ExitCommandError, "invalid comparison options", err))
	}

	ref, err := loadTable(cmd, opts.File1)
	if err != nil {
		return reportError(formatter, ErrCodeReadFailed, err)
	}
	cand, err := loadTable(cmd, opts.File2)
	if err != nil {
		return reportError(formatter, ErrCodeReadFailed, err)
	}
	logger.Info("comparing tables",
		"reference", opts.File1, "reference_rows", ref.Len(),
		"candidate", opts.File2, "candidate_rows", cand.Len())

	report, err := tester.Compare(ref, cand)
	if err != nil {
		var div *equiv.DivergenceError
		if !errors.As(err, &div) {
			return reportError(formatter, ErrCodeReadFailed, WrapExitError(ExitCommandError, "comparison failed", err))
		}
		details := map[string]any{"threshold": div.Threshold, "failures": div.Failures}
		if outErr := formatter.Error(ErrCodeStatistical, div.Error(), details); outErr != nil {
			return outErr
		}
		return reported(WrapExitError(ExitFailure, "distributions differ", div))
	}

	if opts.Format == "json" {
		return formatter.Success(report)
	}
	if err := report.Render(cmd.OutOrStdout(), opts.Verbose); err != nil {
		return WrapExitError(ExitCommandError, "failed to write report", err)
	}
	return nil
}

// runRecord re-saves File1 as File2.
func runRecord(opts *CompareOptions, cmd *cobra.Command, formatter *OutputFormatter) error {
	t, err := loadTable(cmd, opts.File1)
	if err != nil {
		return reportError(formatter, ErrCodeReadFailed, err)
	}
	if err := saveTable(cmd, opts.File2, t); err != nil {
		return reportError(formatter, ErrCodeWriteFailed, err)
	}

	// A table written to stdout is the whole output.
	if isStream(opts.File2, "stdout") {
		return nil
	}
	res := CompareResult{
		Source:      opts.File1,
		Destination: opts.File2,
		Rows:        t.Len(),
		Columns:     len(t.Columns),
	}
	if opts.Format == "json" {
		return formatter.Success(res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved %s to %s (%d rows, %d columns)\n",
		res.Source, res.Destination, res.Rows, res.Columns)
	return nil
}

func isStream(path, name string) bool {
	return strings.HasPrefix(path, name+".")
}

func loadTable(cmd *cobra.Command, path string) (*table.Table, error) {
	if !isStream(path, "stdin") {
		t, err := table.Load(path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load "+path, err)
		}
		return t, nil
	}
	f, err := table.FormatOf(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load "+path, err)
	}
	t, err := table.Read(cmd.InOrStdin(), f)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load "+path, err)
	}
	return t, nil
}

func saveTable(cmd *cobra.Command, path string, t *table.Table) error {
	if !isStream(path, "stdout") {
		if err := table.Save(path, t); err != nil {
			return WrapExitError(ExitCommandError, "failed to save "+path, err)
		}
		return nil
	}
	f, err := table.FormatOf(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to save "+path, err)
	}
	if err := table.Write(cmd.OutOrStdout(), f, t); err != nil {
		return WrapExitError(ExitCommandError, "failed to save "+path, err)
	}
	return nil
}
