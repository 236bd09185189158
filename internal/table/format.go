package table

import (
	"fmt"
	"strings"
)

// Format identifies an on-disk table encoding.
type Format string

const (
	FormatTSV      Format = "tsv"
	FormatTSVBzip2 Format = "tsv.bz2"
	FormatTSVGzip  Format = "tsv.gz"
	FormatColz     Format = "colz"
)

// Formats lists the supported formats, most specific extension first.
var Formats = []Format{FormatTSVBzip2, FormatTSVGzip, FormatTSV, FormatColz}

// Ext returns the file extension including the leading dot.
func (f Format) Ext() string { return "." + string(f) }

// Writable reports whether tables can be saved in this format.
func (f Format) Writable() bool { return f != FormatTSVBzip2 }

// FormatOf returns the format named by the extension of path. The pseudo
// paths "stdin.<ext>" and "stdout.<ext>" resolve the same way.
func FormatOf(path string) (Format, error) {
	lower := strings.ToLower(path)
	for _, f := range Formats {
		if strings.HasSuffix(lower, f.Ext()) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// ParseFormat parses a format name such as "tsv.gz" or ".colz".
func ParseFormat(name string) (Format, error) {
	name = strings.TrimPrefix(strings.ToLower(name), ".")
	for _, f := range Formats {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}
