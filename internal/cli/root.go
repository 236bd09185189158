package cli

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/simregress/internal/config"
	"github.com/roach88/simregress/internal/harness"
	"github.com/roach88/simregress/internal/runner"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // optional YAML file

	// LookupEnv resolves SIMREGRESS_* overrides; nil means the process
	// environment. Tests replace it.
	LookupEnv config.LookupFunc

	// Runner and Locker override the orchestrator's collaborators (for
	// testing). Nil selects the shell runner and file locks.
	Runner runner.Runner
	Locker harness.Locker
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the simregress CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simregress",
		Short: "simregress - regression tests for a stochastic simulator",
		Long: `Record reference outputs of a stochastic simulator and check new builds
against them: exact output checksums for fixed seeds, two-sample
Kolmogorov-Smirnov tests on summary statistics, and CPU time slowdown.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to YAML configuration file")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewSuiteCommand(opts))
	cmd.AddCommand(NewCompareCommand(opts))
	cmd.AddCommand(NewManifestCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// logger builds the command's logger: text on stderr, Debug when verbose.
func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// formatter builds the command's output formatter.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// loadConfig reads the configuration file and environment overrides.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	lookup := o.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg, err := config.LoadWithEnv(o.Config, lookup)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return cfg, nil
}

// Execute runs the CLI with the process arguments and returns the exit
// code.
func Execute() int {
	cmd := NewRootCommand()
	err := cmd.Execute()
	if err != nil && !Reported(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return GetExitCode(err)
}
