package table

import (
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// Read decodes a table in format f from r.
func Read(r io.Reader, f Format) (*Table, error) {
	switch f {
	case FormatTSV:
		return ReadTSV(r)
	case FormatTSVBzip2:
		return ReadTSV(bzip2.NewReader(r))
	case FormatTSVGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("read table: %w", err)
		}
		defer zr.Close()
		return ReadTSV(zr)
	case FormatColz:
		return ReadColz(r)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// Write encodes t in format f to w.
func Write(w io.Writer, f Format, t *Table) error {
	switch f {
	case FormatTSV:
		return WriteTSV(w, t)
	case FormatTSVGzip:
		zw := gzip.NewWriter(w)
		if err := WriteTSV(zw, t); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	case FormatColz:
		return WriteColz(w, t)
	case FormatTSVBzip2:
		return fmt.Errorf("%w: %s", ErrReadOnlyFormat, f)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// Load reads the table at path, choosing the format from its extension.
func Load(path string) (*Table, error) {
	f, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load table: %w", err)
	}
	defer file.Close()

	t, err := Read(file, f)
	if err != nil {
		return nil, fmt.Errorf("load table %s: %w", path, err)
	}
	return t, nil
}

// Save writes t to path in the format named by its extension. The file is
// written to a temporary sibling and renamed into place.
func Save(path string, t *Table) error {
	f, err := FormatOf(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Write(&buf, f, t); err != nil {
		return fmt.Errorf("save table %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("save table: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save table: %w", err)
	}
	return nil
}

// Find returns the first existing "<base>.<ext>" over the supported
// formats, or an error wrapping os.ErrNotExist.
func Find(base string) (string, error) {
	for _, f := range Formats {
		p := base + f.Ext()
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no table at %s.{tsv,tsv.gz,tsv.bz2,colz}: %w", base, os.ErrNotExist)
}
