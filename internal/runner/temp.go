package runner

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// TempFiles hands out uniquely named temporary files and removes them on
// Cleanup unless Keep is set.
type TempFiles struct {
	Dir    string
	Keep   bool
	Logger *slog.Logger

	paths []string
}

// Reserve creates an empty temp file and returns its path. No other
// Reserve call, in this or another process, returns the same path.
func (t *TempFiles) Reserve(prefix, suffix string) (string, error) {
	f, err := os.CreateTemp(t.Dir, prefix+"*"+suffix)
	if err != nil {
		return "", fmt.Errorf("reserve temp file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("reserve temp file: %w", err)
	}
	t.paths = append(t.paths, path)
	return path, nil
}

// Paths returns the reserved paths in reservation order.
func (t *TempFiles) Paths() []string {
	return append([]string(nil), t.paths...)
}

// Cleanup removes every reserved file that still exists.
func (t *TempFiles) Cleanup() error {
	logger := t.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if t.Keep {
		for _, p := range t.paths {
			logger.Info("keeping temp file", "path", p)
		}
		return nil
	}
	var errs []error
	for _, p := range t.paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("could not delete temp file", "path", p, "error", err)
			errs = append(errs, err)
			continue
		}
		logger.Debug("deleted temp file", "path", p)
	}
	t.paths = nil
	return errors.Join(errs...)
}
