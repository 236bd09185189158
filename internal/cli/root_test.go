package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "simregress", cmd.Use)
	assert.Contains(t, cmd.Long, "Kolmogorov-Smirnov")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"run"}, {"suite"}, {"compare"},
		{"manifest", "write"}, {"manifest", "verify"},
		{"history"}, {"history", "show"}, {"history", "prune"},
		{"validate"}, {"version"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{
		"srcdir", "builddir", "test-num", "test-name", "test-dir",
		"update-exact", "update-stoch", "variant-exact", "variant-stoch",
		"seed", "nsims-exact", "nsims-stoch", "force-stoch", "sim-params",
		"max-minutes", "max-slowdown", "use-orig-seed", "sim-binary", "stats-binary",
	} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s", name)
	}

	assert.Equal(t, "dflt", runCmd.Flags().Lookup("variant-stoch").DefValue)
	assert.Equal(t, "3", runCmd.Flags().Lookup("nsims-exact").DefValue)
	assert.Equal(t, "p", runCmd.Flags().Lookup("threshold").Shorthand)
}

func TestCompareCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	compareCmd, _, err := cmd.Find([]string{"compare"})
	require.NoError(t, err)

	for _, name := range []string{"file1", "file2", "exclude-cols", "record", "collect-all"} {
		assert.NotNil(t, compareCmd.Flags().Lookup(name), "compare should have --%s", name)
	}
	assert.Equal(t, "p", compareCmd.Flags().Lookup("threshold").Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, nil, "--format", "yaml", "version")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "simregress ")

	old := Version
	Version = "v1.2.3"
	t.Cleanup(func() { Version = old })

	out, _, err = execute(t, nil, "--format", "json", "version")
	require.NoError(t, err)
	assert.Contains(t, out, `"version":"v1.2.3"`)
}
