package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/simregress/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool           `json:"valid"`
	Errors   []string       `json:"errors,omitempty"`
	Config   *config.Config `json:"config,omitempty"`
	EnvNames []string       `json:"env,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and print the effective settings",
		Long: `Load the configuration from built-in defaults, --config and the
SIMREGRESS_* environment, check it against the configuration schema and
print the result.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			return outputValidationErrors(formatter, verr.Problems, err)
		}
		return reportError(formatter, ErrCodeConfig, err)
	}

	result := ValidationResult{Valid: true, Config: cfg}
	if opts.Verbose {
		result.EnvNames = config.EnvNames()
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode configuration", err)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "✓ configuration valid")
	fmt.Fprint(w, string(data))
	for _, name := range result.EnvNames {
		formatter.VerboseLog("env: %s", name)
	}
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, problems []string, err error) error {
	if formatter.Format == "json" {
		if outErr := formatter.Success(ValidationResult{Valid: false, Errors: problems}); outErr != nil {
			return outErr
		}
		return reported(err)
	}
	fmt.Fprintln(formatter.Writer, "✗ configuration invalid")
	for _, p := range problems {
		fmt.Fprintf(formatter.Writer, "  %s\n", p)
	}
	return reported(err)
}
