package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copyTree copies the fixture dir so tests can write manifests into it.
func copyTree(t *testing.T, src string) string {
	t.Helper()
	dst := t.TempDir()
	err := filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(src, path)
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
	require.NoError(t, err)
	return dst
}

func TestBuild_MatchesSha512sum(t *testing.T) {
	entries, err := Build(filepath.Join("testdata", "casedir"))
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "casedir_manifest", Encode(entries))
}

func TestBuild_ExcludesManifestAndBackups(t *testing.T) {
	dir := copyTree(t, filepath.Join("testdata", "casedir"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("stale"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "draft~"), []byte("x"), 0o644))

	entries, err := Build(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, Excluded(filepath.Base(e.Path)), e.Path)
	}
	assert.Len(t, entries, 4)
}

func TestWrite_Idempotent(t *testing.T) {
	dir := copyTree(t, filepath.Join("testdata", "casedir"))

	_, err := Write(dir)
	require.NoError(t, err)
	first, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)

	_, err = Write(dir)
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.NoError(t, Verify(dir, true))
}

func TestWrite_SortedPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"zeta", "alpha", "mid/beta"} {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
	}

	entries, err := Write(dir)
	require.NoError(t, err)
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	assert.Equal(t, []string{"alpha", "mid/beta", "zeta"}, paths)
}

func TestVerify_DetectsChanges(t *testing.T) {
	dir := copyTree(t, filepath.Join("testdata", "casedir"))
	_, err := Write(dir)
	require.NoError(t, err)

	count := filepath.Join(dir, "stoch", "dflt", "stochcount.txt")
	require.NoError(t, os.WriteFile(count, []byte("2000"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(dir, "stoch", "dflt", "stochtime.txt")))

	err = Verify(dir, false)
	require.ErrorIs(t, err, ErrMismatch)

	var me *MismatchError
	require.ErrorAs(t, err, &me)
	require.Len(t, me.Problems, 2)
	assert.Equal(t, Problem{Path: "stoch/dflt/stochcount.txt", Reason: "checksum differs"}, me.Problems[0])
	assert.Equal(t, Problem{Path: "stoch/dflt/stochtime.txt", Reason: "missing"}, me.Problems[1])
}

func TestVerify_StrictReportsNewFiles(t *testing.T) {
	dir := copyTree(t, filepath.Join("testdata", "casedir"))
	_, err := Write(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.txt"), []byte("new"), 0o644))

	assert.NoError(t, Verify(dir, false))
	err = Verify(dir, true)
	require.ErrorIs(t, err, ErrMismatch)
	assert.Contains(t, err.Error(), "extra.txt: not in manifest")
}

func TestVerify_NoManifest(t *testing.T) {
	err := Verify(t.TempDir(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecode_AcceptsBinaryMarker(t *testing.T) {
	sum := strings.Repeat("ab", 64)
	entries, err := Decode(strings.NewReader(sum + " *file.bin\n"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "file.bin", entries[0].Path)

	_, err = Decode(strings.NewReader("deadbeef  short\n"))
	assert.Error(t, err)
}

func TestStreamSum_RoundTrip(t *testing.T) {
	sum, err := HashReader(strings.NewReader("abc\n"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "exactsum.sha512")
	require.NoError(t, WriteStreamSum(path, sum))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sum+"  -\n", string(raw))

	got, err := ReadStreamSum(path)
	require.NoError(t, err)
	assert.Equal(t, sum, got)
}

func TestStreamSum_MatchesFixture(t *testing.T) {
	// The fixture was produced by `printf 'abc\n' | sha512sum`.
	want, err := ReadStreamSum(filepath.Join("testdata", "casedir", "exact", "x86_64-linux_g++", "exactsum.sha512"))
	require.NoError(t, err)

	got, err := HashReader(strings.NewReader("abc\n"))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
