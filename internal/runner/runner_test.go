package runner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShell_CapturesOutput(t *testing.T) {
	res, err := NewShell(nil).Run(context.Background(), Command{
		Line: "printf 'a\\tb\\n1\\t2\\n'; echo oops >&2",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "a\tb\n1\t2\n", string(res.Stdout))
	assert.Equal(t, "oops\n", string(res.Stderr))
	assert.GreaterOrEqual(t, res.User, time.Duration(0))
	assert.Greater(t, res.Wall, time.Duration(0))
}

func TestShell_PipelineToWriter(t *testing.T) {
	var out bytes.Buffer
	res, err := NewShell(nil).Run(context.Background(), Command{
		Line:   "printf 'x\\ny\\n' | tr a-z A-Z",
		Stdout: &out,
	})
	require.NoError(t, err)
	assert.Equal(t, "X\nY\n", out.String())
	assert.Empty(t, res.Stdout)
}

func TestShell_NonZeroExit(t *testing.T) {
	res, err := NewShell(nil).Run(context.Background(), Command{Line: "echo bad input >&2; exit 3"})
	require.Error(t, err)

	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 3, ee.Code)
	assert.Contains(t, err.Error(), "bad input")
	require.NotNil(t, res)
	assert.Equal(t, 3, res.ExitCode)
}

func TestShell_DirAndEnv(t *testing.T) {
	dir := t.TempDir()
	res, err := NewShell(nil).Run(context.Background(), Command{
		Line: `pwd; echo "$SIMREGRESS_TEST_VAR"`,
		Dir:  dir,
		Env:  []string{"SIMREGRESS_TEST_VAR=hello"},
	})
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(res.Stdout), []byte("\n"))
	require.Len(t, lines, 2)
	got, err := filepath.EvalSymlinks(string(lines[0]))
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "hello", string(lines[1]))
}

func TestShell_Cancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewShell(nil).Run(ctx, Command{Line: "sleep 5 | cat"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestShell_EmptyLine(t *testing.T) {
	_, err := NewShell(nil).Run(context.Background(), Command{})
	assert.Error(t, err)
}

func TestExpand(t *testing.T) {
	vars := map[string]string{"simBinary": "./coalescent", "paramFN": "/t/test.cosiParams"}

	got, err := Expand("$simBinary -p ${paramFN} -m --cost $$5", vars)
	require.NoError(t, err)
	assert.Equal(t, "./coalescent -p /t/test.cosiParams -m --cost $5", got)
}

func TestExpand_FallsBackToEnvironment(t *testing.T) {
	t.Setenv("SIMREGRESS_EXPAND_TEST", "from-env")
	got, err := Expand("x=$SIMREGRESS_EXPAND_TEST", nil)
	require.NoError(t, err)
	assert.Equal(t, "x=from-env", got)
}

func TestExpand_MissingIsError(t *testing.T) {
	_, err := Expand("$a $b $a", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a, b")
}

func TestTempFiles(t *testing.T) {
	dir := t.TempDir()
	tf := &TempFiles{Dir: dir}

	a, err := tf.Reserve("stochtime", ".txt")
	require.NoError(t, err)
	b, err := tf.Reserve("stochtime", ".txt")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.FileExists(t, a)
	assert.Equal(t, []string{a, b}, tf.Paths())

	require.NoError(t, os.Remove(b))
	require.NoError(t, tf.Cleanup())
	assert.NoFileExists(t, a)
}

func TestTempFiles_Keep(t *testing.T) {
	tf := &TempFiles{Dir: t.TempDir(), Keep: true}
	p, err := tf.Reserve("keep", "")
	require.NoError(t, err)
	require.NoError(t, tf.Cleanup())
	assert.FileExists(t, p)
}
