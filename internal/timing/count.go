package timing

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Run-count file names inside a stochastic variant directory.
const (
	CountFile     = "stochcount.txt"
	LongCountFile = "stochcount.long.txt"
)

// ReadCount returns the run count recorded in dir and the file it came from.
// LongCountFile takes precedence over CountFile when present.
func ReadCount(dir string) (int, string, error) {
	path := filepath.Join(dir, LongCountFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		path = filepath.Join(dir, CountFile)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, "", fmt.Errorf("read run count: %w", err)
	}
	s := strings.TrimSpace(string(raw))
	n, err := strconv.Atoi(s)
	if err != nil {
		// Accept integral floats such as "1000.0".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, "", fmt.Errorf("run count in %s: %q is not an integer", path, s)
		}
		n = int(f)
	}
	if n <= 0 {
		return 0, "", fmt.Errorf("run count in %s is %d, must be positive", path, n)
	}
	return n, path, nil
}

// WriteCount records n in dir/CountFile.
func WriteCount(dir string, n int) error {
	path := filepath.Join(dir, CountFile)
	if err := os.WriteFile(path, []byte(strconv.Itoa(n)), 0o644); err != nil {
		return fmt.Errorf("write run count: %w", err)
	}
	return nil
}
