package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/simregress/internal/harness"
	"github.com/roach88/simregress/internal/testutil"
)

const (
	exactOutput = "exact-output\n"
	stochRuns   = 400
)

// noEnv hides the process environment from the configuration loader.
func noEnv(string) (string, bool) { return "", false }

// execute runs the root command with args and returns stdout, stderr and
// the error.
func execute(t *testing.T, opts *RootOptions, args ...string) (string, string, error) {
	t.Helper()
	if opts == nil {
		opts = &RootOptions{}
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = noEnv
	}
	cmd := newRootCommand(opts)
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// srcTree is a source tree with two test cases and fake binaries.
type srcTree struct {
	root  string
	sim   string
	stats string
	tmp   string
}

func newSrcTree(t *testing.T) *srcTree {
	t.Helper()
	root := t.TempDir()
	dist := filepath.Join(root, "tests", "dist")
	for _, d := range []string{"t001", "t002", "other"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dist, d), 0o755))
	}
	writeFile(t, filepath.Join(dist, harness.ParamFile), "sample_size 1 20\n")
	writeFile(t, filepath.Join(dist, harness.GenMapFile), "0 1.0\n")

	bin := filepath.Join(root, "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	sim := filepath.Join(bin, "coalescent")
	stats := filepath.Join(bin, "sample_stats_extra")
	writeFile(t, sim, "#!/bin/sh\n")
	writeFile(t, stats, "#!/bin/sh\n")

	return &srcTree{root: root, sim: sim, stats: stats, tmp: t.TempDir()}
}

// args returns the flags selecting the tree, its binaries and a fixed
// variant, followed by extra.
func (s *srcTree) args(extra ...string) []string {
	return append([]string{
		"--srcdir", s.root,
		"--sim-binary", s.sim,
		"--stats-binary", s.stats,
		"--variant-exact", "x86_64-linux_g++",
		"--nsims-stoch", fmt.Sprint(stochRuns),
		"--tmp-dir", s.tmp,
	}, extra...)
}

func (s *srcTree) testDir(name string) string {
	return filepath.Join(s.root, "tests", "dist", name)
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
}

// summaryTSV renders n rows of stats-tool output with pi drawn from
// N(10+shift, 2).
func summaryTSV(seed uint64, n int, shift float64) string {
	pi := testutil.NormalSample(seed, n, 10+shift, 2)
	tajd := testutil.NormalSample(seed+7919, n, 0, 1)

	var b strings.Builder
	b.WriteString("pi\ttajd\ttime\n")
	for i := range n {
		fmt.Fprintf(&b, "%g\t%g\t%d\n", pi[i], tajd[i], i)
	}
	return b.String()
}

// simRunner answers the exact command with exact and the stochastic
// pipeline with a summary of the given shift.
func simRunner(exact string, seed uint64, shift float64, user time.Duration) *testutil.FakeRunner {
	return testutil.NewFakeRunner().
		On("-n 3 ", testutil.Response{Stdout: exact}).
		On("--output-sim-times", testutil.Response{
			Stdout: summaryTSV(seed, stochRuns, shift),
			User:   user,
		})
}

// record creates references for test case name.
func (s *srcTree) record(t *testing.T, name string, extra ...string) {
	t.Helper()
	opts := &RootOptions{Runner: simRunner(exactOutput, 1, 0, 8*time.Second)}
	args := append([]string{"run", "--test-name", name, "--seed", "4242", "--update-exact", "--update-stoch"}, s.args(extra...)...)
	_, stderr, err := execute(t, opts, args...)
	require.NoError(t, err, stderr)
}
