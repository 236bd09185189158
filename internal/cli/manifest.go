package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/simregress/internal/manifest"
)

// ManifestOptions holds flags for the manifest commands.
type ManifestOptions struct {
	*RootOptions
	Strict bool // also report files missing from the manifest
}

// ManifestResult is the payload of manifest write and verify.
type ManifestResult struct {
	Dir      string           `json:"dir"`
	Entries  []manifest.Entry `json:"entries,omitempty"`
	Verified bool             `json:"verified"`
}

// NewManifestCommand creates the manifest command and its subcommands.
func NewManifestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ManifestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Write or verify a test directory's checksum manifest",
		Long: `Write or verify ` + manifest.FileName + `, the sha512sum-compatible list of
every file in a test directory. Updating a test case rewrites it; verify
checks a directory has not changed since.`,
	}

	write := &cobra.Command{
		Use:           "write <test-dir>",
		Short:         "Rewrite the checksum manifest",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifestWrite(opts, args[0], cmd)
		},
	}

	verify := &cobra.Command{
		Use:   "verify <test-dir>",
		Short: "Check files against the checksum manifest",
		Long: `Check every file listed in the manifest against its recorded checksum.

Exit codes:
  0 - All files match
  1 - A file is missing or changed (or, with --strict, unlisted)
  2 - Command error (no manifest, unreadable directory)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifestVerify(opts, args[0], cmd)
		},
	}
	verify.Flags().BoolVar(&opts.Strict, "strict", false, "also fail on files not in the manifest")

	cmd.AddCommand(write, verify)
	return cmd
}

func runManifestWrite(opts *ManifestOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if _, err := os.Stat(dir); err != nil {
		return reportError(formatter, ErrCodeNotFound, WrapExitError(ExitCommandError, "test directory not found", err))
	}
	entries, err := manifest.Write(dir)
	if err != nil {
		return reportError(formatter, ErrCodeWriteFailed, WrapExitError(ExitCommandError, "failed to write manifest", err))
	}

	if opts.Format == "json" {
		return formatter.Success(ManifestResult{Dir: dir, Entries: entries})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s with %d files\n", manifest.FileName, len(entries))
	for _, e := range entries {
		formatter.VerboseLog("  %s", e.Path)
	}
	return nil
}

func runManifestVerify(opts *ManifestOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	err := manifest.Verify(dir, opts.Strict)
	var mismatch *manifest.MismatchError
	switch {
	case errors.As(err, &mismatch):
		if outErr := formatter.Error(ErrCodeManifest, err.Error(), mismatch.Problems); outErr != nil {
			return outErr
		}
		return reported(WrapExitError(ExitFailure, "manifest mismatch", err))
	case err != nil:
		return reportError(formatter, ErrCodeReadFailed, WrapExitError(ExitCommandError, "failed to verify manifest", err))
	}

	if opts.Format == "json" {
		return formatter.Success(ManifestResult{Dir: dir, Verified: true})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", dir)
	return nil
}
