// Package manifest writes and verifies the SHA-512 checksum manifest of a
// test directory. The format is the one produced by sha512sum: one
// "<hex>  <path>" line per file, paths relative to the directory, sorted.
package manifest

import (
	"bufio"
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// FileName is the manifest's name inside the test directory.
const FileName = "testchecksums.sha512"

// ErrMismatch is returned by Verify when any entry does not match.
var ErrMismatch = errors.New("checksum mismatch")

// Entry is one manifest line.
type Entry struct {
	Path string `json:"path"`
	Sum  string `json:"sum"`
}

// Excluded reports whether a file name is left out of the manifest: the
// manifest itself and editor backups ending in '~'.
func Excluded(name string) bool {
	return name == FileName || strings.HasSuffix(name, "~")
}

// Build hashes every regular file under dir except excluded ones and returns
// the entries sorted by path.
func Build(dir string) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || Excluded(d.Name()) {
			return nil
		}
		sum, err := HashFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Path: filepath.ToSlash(rel), Sum: sum})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("build manifest: %w", err)
	}
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Path, b.Path) })
	return entries, nil
}

// HashFile returns the hex SHA-512 digest of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return HashReader(f)
}

// HashReader returns the hex SHA-512 digest of everything read from r.
func HashReader(r io.Reader) (string, error) {
	h := sha512.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Encode renders entries in sha512sum format.
func Encode(entries []Entry) []byte {
	var b bytes.Buffer
	for _, e := range entries {
		b.WriteString(e.Sum)
		b.WriteString("  ")
		b.WriteString(e.Path)
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// Decode parses sha512sum-format lines.
func Decode(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		sum, path, ok := strings.Cut(text, " ")
		if !ok || len(sum) != sha512.Size*2 {
			return nil, fmt.Errorf("manifest line %d: malformed", line)
		}
		// sha512sum marks binary mode with '*' instead of the second space.
		path = strings.TrimPrefix(path, " ")
		path = strings.TrimPrefix(path, "*")
		entries = append(entries, Entry{Path: path, Sum: sum})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Write rebuilds dir's manifest and replaces any existing one.
func Write(dir string) ([]Entry, error) {
	path := filepath.Join(dir, FileName)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	entries, err := Build(dir)
	if err != nil {
		return nil, err
	}
	tmp := path + ".tmp~"
	if err := os.WriteFile(tmp, Encode(entries), 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return entries, nil
}

// Problem describes one entry that failed verification.
type Problem struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// MismatchError lists the entries that failed verification.
type MismatchError struct {
	Problems []Problem
}

func (e *MismatchError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.Path + ": " + p.Reason
	}
	return fmt.Sprintf("%s: %s", ErrMismatch, strings.Join(parts, "; "))
}

func (e *MismatchError) Is(target error) bool { return target == ErrMismatch }

// Verify checks every entry of dir's manifest against the files on disk.
// Files added since the manifest was written are reported when strict is set.
func Verify(dir string, strict bool) error {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		return fmt.Errorf("verify manifest: %w", err)
	}
	want, err := Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("verify manifest: %w", err)
	}

	var problems []Problem
	listed := make(map[string]bool, len(want))
	for _, e := range want {
		listed[e.Path] = true
		got, err := HashFile(filepath.Join(dir, filepath.FromSlash(e.Path)))
		switch {
		case errors.Is(err, os.ErrNotExist):
			problems = append(problems, Problem{Path: e.Path, Reason: "missing"})
		case err != nil:
			return fmt.Errorf("verify manifest: %w", err)
		case got != e.Sum:
			problems = append(problems, Problem{Path: e.Path, Reason: "checksum differs"})
		}
	}

	if strict {
		have, err := Build(dir)
		if err != nil {
			return err
		}
		for _, e := range have {
			if !listed[e.Path] {
				problems = append(problems, Problem{Path: e.Path, Reason: "not in manifest"})
			}
		}
	}
	if len(problems) > 0 {
		return &MismatchError{Problems: problems}
	}
	return nil
}
