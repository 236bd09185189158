package harness

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// flagsSuffix names the compiler-flags file built next to a binary.
const flagsSuffix = ".flags.txt"

// archiveBinaries copies the binaries that produced a reference into the
// variant directory, with the simulator's flags file when there is one.
func archiveBinaries(dir string, binaries ...string) error {
	for _, bin := range binaries {
		if err := copyFile(bin, filepath.Join(dir, filepath.Base(bin))); err != nil {
			return fmt.Errorf("archive %s: %w", bin, err)
		}
		flags := bin + flagsSuffix
		if _, err := os.Stat(flags); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := copyFile(flags, filepath.Join(dir, filepath.Base(flags))); err != nil {
			return fmt.Errorf("archive %s: %w", flags, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
