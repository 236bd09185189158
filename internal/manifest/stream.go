package manifest

import (
	"fmt"
	"os"
	"strings"
)

// StdinName is the path sha512sum prints for data read from standard input.
const StdinName = "-"

// WriteStreamSum records the digest of a byte stream in sha512sum format,
// as "<hex>  -".
func WriteStreamSum(path, sum string) error {
	data := Encode([]Entry{{Path: StdinName, Sum: sum}})
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write checksum: %w", err)
	}
	return nil
}

// ReadStreamSum reads a digest written by WriteStreamSum.
func ReadStreamSum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("read checksum: %w", err)
	}
	defer f.Close()
	entries, err := Decode(f)
	if err != nil {
		return "", fmt.Errorf("read checksum %s: %w", path, err)
	}
	if len(entries) != 1 {
		return "", fmt.Errorf("read checksum %s: want one entry, found %d", path, len(entries))
	}
	return strings.ToLower(entries[0].Sum), nil
}
